package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"redline-go/internal/config"
	"redline-go/internal/domain"
	"redline-go/internal/pool"
	"redline-go/internal/queue"
	"redline-go/internal/reaper"
	redisstor "redline-go/internal/store/redis"
)

var _ = Describe("Queue scenarios", func() {
	const (
		poolName = "test_pool"
		segment  = "seg1"
		numMsgs  = 5
	)

	var (
		ctx      context.Context
		store    *redisstor.Embedded
		cfg      *config.Config
		server   *queue.Server
		registry *pool.Registry
		now      time.Time
		segments = []string{"seg1", "seg2", "seg3"}
	)

	// givenAValidRedlineInstance
	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = redisstor.NewEmbedded()
		Expect(err).NotTo(HaveOccurred())

		cfg, err = config.Parse([]byte("queue:\n  namespace: redline-it\n"))
		Expect(err).NotTo(HaveOccurred())

		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		server = queue.NewServer(store.Client(), &cfg.Queue, logger,
			queue.WithClock(func() time.Time { return now }),
		)
		registry = pool.NewRegistry(store.Client(), &cfg.Queue)

		Expect(server.Purge(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	queueOne := func(segment string) domain.MessageKey {
		key, err := server.QueueMessage(ctx, map[string]string{
			"name": fmt.Sprintf("test_message_%s", time.Now().Format(time.RFC3339Nano)),
		}, segment)
		Expect(err).NotTo(HaveOccurred())
		return key
	}

	It("increments the queue size when a message is queued", func() {
		initial, err := server.GetMessageCount(ctx)
		Expect(err).NotTo(HaveOccurred())

		queueOne("")

		updated, err := server.GetMessageCount(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated).To(Equal(initial + 1))
	})

	It("increments the queue size by n when n messages are queued", func() {
		initial, err := server.GetMessageCount(ctx)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < numMsgs; i++ {
			queueOne("")
		}

		updated, err := server.GetMessageCount(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated).To(Equal(initial + numMsgs))
	})

	It("keeps the segment name on the queued message key", func() {
		queueOne(segment)

		msg, err := server.RemoveMostRecentlyQueuedMessage(ctx, segment)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).NotTo(BeNil())
		Expect(msg.Key.Segment).To(Equal(segment))
	})

	It("loads a saved distribution pool with all segments", func() {
		_, err := registry.Save(ctx, pool.Config{Name: poolName, Segments: segments})
		Expect(err).NotTo(HaveOccurred())

		p := registry.Pool(poolName)
		size, err := p.Size(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(size).To(Equal(len(segments)))

		loaded, err := p.LoadSegments(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(segments))
	})

	It("distributes pool messages over all segments", func() {
		_, err := registry.Save(ctx, pool.Config{Name: poolName, Segments: segments})
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < numMsgs; i++ {
			seg, err := registry.Pool(poolName).NextSegment(ctx)
			Expect(err).NotTo(HaveOccurred())
			queueOne(seg)
		}

		seen := map[string]bool{}
		for i := 0; i < numMsgs; i++ {
			msg, err := server.DequeueMessage(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).NotTo(BeNil())
			Expect(segments).To(ContainElement(msg.Key.Segment))
			seen[msg.Key.Segment] = true
		}
		for _, s := range segments {
			Expect(seen).To(HaveKey(s))
		}
	})

	It("spreads pool messages evenly across segments", func() {
		_, err := registry.Save(ctx, pool.Config{Name: poolName, Segments: segments})
		Expect(err).NotTo(HaveOccurred())

		for _, total := range []int{6, 7} {
			Expect(server.Purge(ctx)).To(Succeed())

			for i := 0; i < total; i++ {
				seg, err := registry.Pool(poolName).NextSegment(ctx)
				Expect(err).NotTo(HaveOccurred())
				queueOne(seg)
			}

			counts := map[string]int{}
			for i := 0; i < total; i++ {
				msg, err := server.DequeueMessage(ctx, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(msg).NotTo(BeNil())
				counts[msg.Key.Segment]++
			}

			empty, err := server.DequeueMessage(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(empty).To(BeNil())

			Expect(counts).To(HaveLen(len(segments)))
			low := total / len(segments)
			for _, s := range segments {
				Expect(counts[s]).To(BeNumerically(">=", low), "segment %s of %d messages", s, total)
				Expect(counts[s]).To(BeNumerically("<=", low+1), "segment %s of %d messages", s, total)
			}
			if total%len(segments) == 0 {
				for _, s := range segments {
					Expect(counts[s]).To(Equal(low))
				}
			}
		}
	})

	It("increments the requeue count when a message is requeued", func() {
		key := queueOne("")

		msg, err := server.DequeueMessage(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Key).To(Equal(key))

		requeued, err := server.RequeueMessage(ctx, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(requeued.RequeueCount).To(Equal(msg.RequeueCount + 1))

		stored, err := server.RequeueCount(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(1))
	})

	It("parks a delayed message until the reaper releases it", func() {
		key := queueOne(segment)

		msg, err := server.DequeueMessage(ctx, segment)
		Expect(err).NotTo(HaveOccurred())
		Expect(server.DequeueMessageWithDelay(ctx, msg, 30*time.Second)).To(Succeed())

		entries, err := server.DelayedMessages(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Key).To(Equal(key))

		next, err := server.DequeueMessage(ctx, segment)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(BeNil())

		r := reaper.NewService(server, time.Second, cfg.Reaper.BatchSize, slog.New(slog.NewTextHandler(io.Discard, nil)))
		moved, err := r.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(moved).To(BeZero())

		now = now.Add(30 * time.Second)
		moved, err = r.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(moved).To(Equal(1))

		next, err = server.DequeueMessage(ctx, segment)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).NotTo(BeNil())
		Expect(next.Key).To(Equal(key))
		Expect(next.Payload).To(Equal(msg.Payload))
	})

	It("runs the pool, requeue and purge walkthrough", func() {
		_, err := registry.Save(ctx, pool.Config{Name: poolName, Segments: segments})
		Expect(err).NotTo(HaveOccurred())

		p := registry.Pool(poolName)
		var keys []domain.MessageKey
		for i := 0; i < 3; i++ {
			seg, err := p.NextSegment(ctx)
			Expect(err).NotTo(HaveOccurred())
			keys = append(keys, queueOne(seg))
		}
		Expect([]string{keys[0].Segment, keys[1].Segment, keys[2].Segment}).To(Equal(segments))

		msg, err := server.DequeueMessage(ctx, "seg2")
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Key).To(Equal(keys[1]))

		requeued, err := server.RequeueMessage(ctx, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(requeued.RequeueCount).To(Equal(1))

		count, err := server.SegmentMessageCount(ctx, "seg2")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(int64(1)))

		Expect(server.Purge(ctx)).To(Succeed())
		for _, s := range segments {
			count, err := server.SegmentMessageCount(ctx, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())
		}
	})
})
