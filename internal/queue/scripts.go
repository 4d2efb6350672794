package queue

import "github.com/redis/go-redis/v9"

// Every state change below runs as one server-side script. The store executes
// scripts one at a time, so no other client can observe a partial write.
//
// Segment pending lists are derived inside scripts as <pending>:<segment>,
// the same way segmentListName does on the client side.

// commitLua appends id to a pending list and refreshes its stats.
// A false payload leaves the values table untouched. Only a requeue can find
// id still pending, so only a requeue scans the list for it.
const commitLua = `
local function commit(values, pending, stats, segments, id, payload, now, segment, requeue)
  if payload then
    redis.call('HSET', values, id, payload)
  end
  if requeue == '1' then
    redis.call('LREM', pending, 0, id)
  end
  redis.call('RPUSH', pending, id)
  redis.call('HSETNX', stats, id .. ':requeues', 0)
  redis.call('HSETNX', stats, id .. ':segment', segment)
  redis.call('HSET', stats, id .. ':queued_at', now)
  redis.call('HINCRBY', stats, 'queued_total', 1)
  local requeues = tonumber(redis.call('HGET', stats, id .. ':requeues'))
  if requeue == '1' then
    requeues = redis.call('HINCRBY', stats, id .. ':requeues', 1)
    redis.call('HINCRBY', stats, 'requeued_total', 1)
  end
  if segment ~= '' then
    redis.call('SADD', segments, segment)
  end
  return requeues
end
`

// ownerLua reads the segment a message was first queued to.
const ownerLua = `
local function owner(stats, id)
  return redis.call('HGET', stats, id .. ':segment') or ''
end
`

// splitMemberLua decodes "segment|id" delayed set members.
const splitMemberLua = `
local function split_member(member)
  local sep = nil
  local from = 1
  while true do
    local at = string.find(member, '|', from, true)
    if not at then break end
    sep = at
    from = at + 1
  end
  if not sep then
    return member, ''
  end
  return string.sub(member, sep + 1), string.sub(member, 1, sep - 1)
end
`

// enqueueScript is the atomic enqueue operation.
//
// KEYS: values, pending, stats, segments, delayed
// ARGV: id, payload, now_ms, segment, requeue flag, delayed member, max requeues
// Returns {status, requeues}; status is OK, NOT_FOUND, SEGMENT or LIMIT.
var enqueueScript = redis.NewScript(commitLua + ownerLua + `
local id = ARGV[1]
local payload = ARGV[2]
if payload == '' then
  payload = false
end

if ARGV[5] == '1' then
  local current = redis.call('HGET', KEYS[3], id .. ':requeues')
  if not current then
    return {'NOT_FOUND', 0}
  end
  if owner(KEYS[3], id) ~= ARGV[4] then
    return {'SEGMENT', tonumber(current)}
  end
  local max = tonumber(ARGV[7])
  if max > 0 and tonumber(current) >= max then
    return {'LIMIT', tonumber(current)}
  end
  redis.call('ZREM', KEYS[5], ARGV[6])
end

local requeues = commit(KEYS[1], KEYS[2], KEYS[3], KEYS[4], id, payload, ARGV[3], ARGV[4], ARGV[5])
return {'OK', requeues}
`)

// dequeueScript pops one id and hands back its payload.
//
// KEYS: values, stats, segments, global pending
// ARGV: segment (empty for any), 'head' or 'tail'
// Returns {id, segment, payload, requeues, queued_at} or nil when empty.
var dequeueScript = redis.NewScript(`
local function take(list, segment)
  local id
  if ARGV[2] == 'tail' then
    id = redis.call('RPOP', list)
  else
    id = redis.call('LPOP', list)
  end
  if not id then
    return nil
  end
  if segment ~= '' and redis.call('LLEN', list) == 0 then
    redis.call('SREM', KEYS[3], segment)
  end
  local payload = redis.call('HGET', KEYS[1], id) or ''
  redis.call('HDEL', KEYS[1], id)
  local requeues = redis.call('HGET', KEYS[2], id .. ':requeues') or '0'
  local queued_at = redis.call('HGET', KEYS[2], id .. ':queued_at') or '0'
  return {id, segment, payload, requeues, queued_at}
end

if ARGV[1] ~= '' then
  return take(KEYS[4] .. ':' .. ARGV[1], ARGV[1])
end

local found = take(KEYS[4], '')
if found then
  return found
end

local segments = redis.call('SMEMBERS', KEYS[3])
table.sort(segments)
for _, segment in ipairs(segments) do
  found = take(KEYS[4] .. ':' .. segment, segment)
  if found then
    return found
  end
end
return nil
`)

// delayScript parks a message in the delayed set.
//
// KEYS: values, pending, delayed, stats
// ARGV: id, delayed member, deliver_at_ms, payload, segment
// Returns 1, 0 when the message is unknown, or -1 when segment is not its own.
var delayScript = redis.NewScript(ownerLua + `
if redis.call('HEXISTS', KEYS[4], ARGV[1] .. ':requeues') == 0 then
  return 0
end
if owner(KEYS[4], ARGV[1]) ~= ARGV[5] then
  return -1
end
redis.call('LREM', KEYS[2], 0, ARGV[1])
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[4])
end
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[2])
return 1
`)

// reapScript moves due delayed messages back to their pending lists.
//
// KEYS: delayed, values, stats, segments, global pending
// ARGV: now_ms, batch size
// Returns the relocated members.
var reapScript = redis.NewScript(commitLua + splitMemberLua + `
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local moved = {}
for _, member in ipairs(due) do
  redis.call('ZREM', KEYS[1], member)
  local id, segment = split_member(member)
  local pending = KEYS[5]
  if segment ~= '' then
    pending = pending .. ':' .. segment
  end
  commit(KEYS[2], pending, KEYS[3], KEYS[4], id, false, ARGV[1], segment, '0')
  table.insert(moved, member)
end
return moved
`)

// discardScript removes every trace of one message.
//
// KEYS: values, stats, delayed, pending
// ARGV: id, delayed member, segment
// Returns 1, 0 when the message is unknown, or -1 when segment is not its own.
var discardScript = redis.NewScript(ownerLua + `
if redis.call('HEXISTS', KEYS[2], ARGV[1] .. ':requeues') == 0 then
  return 0
end
if owner(KEYS[2], ARGV[1]) ~= ARGV[3] then
  return -1
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1] .. ':requeues', ARGV[1] .. ':queued_at', ARGV[1] .. ':segment')
redis.call('ZREM', KEYS[3], ARGV[2])
redis.call('LREM', KEYS[4], 0, ARGV[1])
return 1
`)

// purgeScript clears a whole namespace.
//
// KEYS: values, global pending, stats, delayed, segments
// Returns the number of segment lists removed.
var purgeScript = redis.NewScript(`
local segments = redis.call('SMEMBERS', KEYS[5])
for _, segment in ipairs(segments) do
  redis.call('DEL', KEYS[2] .. ':' .. segment)
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[4], KEYS[5])
return #segments
`)
