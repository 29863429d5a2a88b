package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/salesimport/internal/config"
	"github.com/JonMunkholm/salesimport/internal/core"
)

// dataField is the stream entry field holding the JSON job.
const dataField = "data"

// Connect opens a Redis client and verifies it answers.
func Connect(ctx context.Context, cfg config.QueueConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	slog.Info("connected to redis", "addr", cfg.RedisAddr, "stream", cfg.Stream)
	return rdb, nil
}

// RedisStreams is a Broker on one Redis stream and consumer group.
type RedisStreams struct {
	rdb      redis.UniversalClient
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// NewRedisStreams returns a broker for the stream and group in cfg. The
// consumer name defaults to the hostname.
func NewRedisStreams(rdb redis.UniversalClient, cfg config.QueueConfig) *RedisStreams {
	consumer := cfg.Consumer
	if consumer == "" {
		consumer, _ = os.Hostname()
	}
	if consumer == "" {
		consumer = "importer"
	}
	return &RedisStreams{
		rdb:      rdb,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: consumer,
		block:    cfg.BlockTimeout,
	}
}

// Consumer returns this broker's consumer name.
func (s *RedisStreams) Consumer() string { return s.consumer }

// Publish adds job to the stream.
func (s *RedisStreams) Publish(ctx context.Context, job core.Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{dataField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to stream %s: %w", s.stream, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group, and the stream if needed.
func (s *RedisStreams) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", s.group, err)
	}
	return nil
}

// Read implements Broker.
func (s *RedisStreams) Read(ctx context.Context, count int64) ([]Message, error) {
	results, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    s.block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for _, result := range results {
		msgs = append(msgs, s.decode(ctx, result.Messages)...)
	}
	return msgs, nil
}

// Ack implements Broker.
func (s *RedisStreams) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.rdb.XAck(ctx, s.stream, s.group, ids...).Err()
}

// Claim implements Broker.
func (s *RedisStreams) Claim(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error) {
	xmsgs, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decode(ctx, xmsgs), nil
}

// decode unmarshals stream entries. Entries that are not jobs can never be
// processed, so they are acknowledged and dropped.
func (s *RedisStreams) decode(ctx context.Context, xmsgs []redis.XMessage) []Message {
	msgs := make([]Message, 0, len(xmsgs))
	var bad []string
	for _, xm := range xmsgs {
		job, err := decodeJob(xm.Values)
		if err != nil {
			slog.Warn("dropping malformed job message",
				"stream", s.stream,
				"message_id", xm.ID,
				"error", err,
			)
			bad = append(bad, xm.ID)
			continue
		}
		msgs = append(msgs, Message{ID: xm.ID, Job: job})
	}
	if err := s.Ack(ctx, bad...); err != nil {
		slog.Warn("failed to ack malformed messages", "stream", s.stream, "error", err)
	}
	return msgs
}

func decodeJob(values map[string]any) (core.Job, error) {
	var job core.Job
	data, ok := values[dataField].(string)
	if !ok {
		return job, fmt.Errorf("missing %q field", dataField)
	}
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return job, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.ID == "" || job.Platform == "" || job.Source == "" {
		return job, fmt.Errorf("incomplete job %q", data)
	}
	return job, nil
}
