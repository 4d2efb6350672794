package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a missing or malformed setting.
// It is fatal at startup and never recoverable per call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if !c.Storage.Mode.IsValid() {
		return &ConfigurationError{Field: "storage.mode", Reason: fmt.Sprintf("unknown mode %q", c.Storage.Mode)}
	}

	switch c.Logger.Format {
	case "json", "text":
	default:
		return &ConfigurationError{Field: "logger.format", Reason: fmt.Sprintf("must be json or text, got %q", c.Logger.Format)}
	}

	if err := c.Queue.Validate(); err != nil {
		return err
	}

	if c.Queue.MaxRequeues < 0 {
		return &ConfigurationError{Field: "queue.max_requeues", Reason: "must not be negative"}
	}
	if c.Reaper.Interval <= 0 {
		return &ConfigurationError{Field: "reaper.interval", Reason: "must be positive"}
	}
	if c.Reaper.BatchSize <= 0 {
		return &ConfigurationError{Field: "reaper.batch_size", Reason: "must be positive"}
	}

	seen := make(map[string]struct{}, len(c.Pools))
	for i, p := range c.Pools {
		field := fmt.Sprintf("pools[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			return &ConfigurationError{Field: field + ".name", Reason: "is required"}
		}
		if _, dup := seen[p.Name]; dup {
			return &ConfigurationError{Field: field + ".name", Reason: fmt.Sprintf("duplicate pool %q", p.Name)}
		}
		seen[p.Name] = struct{}{}
		if len(p.Segments) == 0 {
			return &ConfigurationError{Field: field + ".segments", Reason: "at least one segment is required"}
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return &ConfigurationError{Field: "kafka.brokers", Reason: "is required when kafka is enabled"}
		}
		if c.Kafka.Pool != "" {
			if _, ok := seen[c.Kafka.Pool]; !ok {
				return &ConfigurationError{Field: "kafka.pool", Reason: fmt.Sprintf("pool %q is not declared", c.Kafka.Pool)}
			}
		}
	}

	return nil
}

// Validate checks that every store structure has a distinct, non-empty name.
func (c *QueueConfig) Validate() error {
	names := map[string]string{
		"queue.values_table":        c.ValuesTable,
		"queue.pending_list":        c.PendingList,
		"queue.message_stats_table": c.MessageStatsTable,
		"queue.delayed_set":         c.DelayedSet,
		"queue.segments_set":        c.SegmentsSet,
	}

	used := make(map[string]string, len(names))
	for field, name := range names {
		if strings.TrimSpace(name) == "" {
			return &ConfigurationError{Field: field, Reason: "is required"}
		}
		if other, ok := used[name]; ok {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("name %q already used by %s", name, other)}
		}
		used[name] = field
	}

	return nil
}
