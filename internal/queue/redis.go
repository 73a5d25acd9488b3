package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/menusync/internal/config"
	"storefront/menusync/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type Queue interface {
	AddTask(ctx context.Context, task task.Task) (string, error) // Returns message ID
	GetTask(ctx context.Context, group, consumer, stream string) (*redis.XMessage, error)
	AutoClaim(ctx context.Context, group, consumer, stream string, minIdleTime time.Duration) ([]redis.XMessage, error)
	AckTask(ctx context.Context, stream, group, msgID string) error
	CreateGroup(ctx context.Context, stream, group string) error
	StreamName(t task.Task) string
}

type RedisQueue struct {
	redisClient  *redis.Client
	streamPrefix string
	maxLen       int64
	block        time.Duration
}

func NewRedisQueue(redisClient *redis.Client, cfg config.FeedConfig) *RedisQueue {
	prefix := cfg.StreamPrefix
	if prefix == "" {
		prefix = "menusync:stream:"
	}
	return &RedisQueue{
		redisClient:  redisClient,
		streamPrefix: prefix,
		maxLen:       cfg.MaxLen,
		block:        5 * time.Second,
	}
}

func (q *RedisQueue) StreamName(t task.Task) string {
	return task.StreamName(q.streamPrefix, t)
}

func (q *RedisQueue) CreateGroup(ctx context.Context, stream, group string) error {
	err := q.redisClient.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		log.Debugf("Group %s already exists for stream %s", group, stream)
		return nil
	}
	return err
}

func (q *RedisQueue) AddTask(ctx context.Context, task task.Task) (string, error) {
	taskType := task.TaskType()
	streamName := q.StreamName(task)

	taskValue, err := task.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]interface{}{
			"task_type": taskType,
			"task_data": string(taskValue),
		},
	}
	if q.maxLen > 0 {
		args.MaxLen = q.maxLen
		args.Approx = true
	}

	messageID, err := q.redisClient.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", streamName, err)
	}

	log.Debugf("Added task %s to stream %s with message ID: %s", taskType, streamName, messageID)
	return messageID, nil
}

func (q *RedisQueue) GetTask(ctx context.Context, group, consumer, stream string) (*redis.XMessage, error) {
	result, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No new messages
		}
		return nil, fmt.Errorf("failed to read from Redis stream %s: %w", stream, err)
	}

	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}

	return &result[0].Messages[0], nil
}

func (q *RedisQueue) AckTask(ctx context.Context, stream, group, msgID string) error {
	return q.redisClient.XAck(ctx, stream, group, msgID).Err()
}

func (q *RedisQueue) AutoClaim(
	ctx context.Context,
	group,
	consumer,
	stream string,
	minIdleTime time.Duration,
) ([]redis.XMessage, error) {
	result, _, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdleTime,
		Start:    "0-0",
		Count:    1,
	}).Result()

	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim messages from Redis stream %s: %w", stream, err)
	}

	return result, nil
}

type ConsumeOptions struct {
	MinIdle     time.Duration // Pending messages idle this long are claimed again
	MaxAttempts int           // Failed deliveries before a message is acked and dropped
}

func ConsumeOptionsFrom(cfg config.FeedConfig) ConsumeOptions {
	return ConsumeOptions{MinIdle: cfg.ClaimMinIdle, MaxAttempts: cfg.MaxAttempts}
}

// Consume reads stream as member of group until ctx is done, acknowledging
// every message handle accepts. A rejected message stays pending and is
// claimed again once idle for opts.MinIdle; after opts.MaxAttempts failed
// deliveries it is acked and dropped.
func Consume(ctx context.Context, q Queue, stream, group, consumer string, opts ConsumeOptions, handle func(taskData []byte) error) error {
	if opts.MinIdle <= 0 {
		opts.MinIdle = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	if err := q.CreateGroup(ctx, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	attempts := make(map[string]int)
	process := func(msg *redis.XMessage) {
		data, _ := msg.Values["task_data"].(string)
		if err := handle([]byte(data)); err != nil {
			attempts[msg.ID]++
			if attempts[msg.ID] < opts.MaxAttempts {
				log.Warnf("❌ Failed to handle message %s from %s (attempt %d/%d): %v",
					msg.ID, stream, attempts[msg.ID], opts.MaxAttempts, err)
				return
			}
			log.Errorf("🗑️ Dropping message %s from %s after %d attempts: %v", msg.ID, stream, attempts[msg.ID], err)
		}

		delete(attempts, msg.ID)
		if err := q.AckTask(ctx, stream, group, msg.ID); err != nil {
			log.Warnf("Failed to ack message %s on %s: %v", msg.ID, stream, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := q.GetTask(ctx, group, consumer, stream)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if msg != nil {
			process(msg)
			continue
		}

		claimed, err := q.AutoClaim(ctx, group, consumer, stream, opts.MinIdle)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("❌ Failed to auto-claim messages for %s: %v", stream, err)
			continue
		}
		for i := range claimed {
			log.Infof("🔄 Retrying pending message %s from %s", claimed[i].ID, stream)
			process(&claimed[i])
		}
	}
}
