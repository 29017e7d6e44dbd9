package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// QueueRender is the pending render jobs list.
	QueueRender = "queue:render"
	// processingSuffix names the per-consumer in-flight list. Messages sit
	// there between Claim and Ack so a dead worker's claims stay visible.
	processingSuffix = ":processing"
)

type Queue struct {
	client *redis.Client
}

// Message is the durable render work item. The heavy job state lives in
// Postgres; the queue only carries identity and attempt bookkeeping.
type Message struct {
	JobID      uuid.UUID `json:"job_id"`
	ProjectID  uuid.UUID `json:"project_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	raw string
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue pushes a render job onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, jobID, projectID uuid.UUID) error {
	msg := Message{
		JobID:      jobID,
		ProjectID:  projectID,
		EnqueuedAt: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.client.RPush(ctx, QueueRender, data).Err()
}

// Requeue puts a message back on the pending list with the attempt count
// bumped. Used after a transient failure, once the backoff delay elapsed.
func (q *Queue) Requeue(ctx context.Context, consumer string, msg *Message) error {
	if err := q.remove(ctx, consumer, msg); err != nil {
		return err
	}
	next := Message{
		JobID:      msg.JobID,
		ProjectID:  msg.ProjectID,
		Attempt:    msg.Attempt + 1,
		EnqueuedAt: time.Now(),
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.client.RPush(ctx, QueueRender, data).Err()
}

// Claim blocks up to timeout for a pending message, atomically moving it to
// the consumer's processing list. Returns nil, nil on timeout.
func (q *Queue) Claim(ctx context.Context, consumer string, timeout time.Duration) (*Message, error) {
	raw, err := q.client.BRPopLPush(ctx, QueueRender, processingList(consumer), timeout).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim: %w", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg.raw = raw
	return &msg, nil
}

// Ack removes a claimed message from the processing list once the job
// reached a terminal state.
func (q *Queue) Ack(ctx context.Context, consumer string, msg *Message) error {
	return q.remove(ctx, consumer, msg)
}

func (q *Queue) remove(ctx context.Context, consumer string, msg *Message) error {
	if msg.raw == "" {
		return nil
	}
	if err := q.client.LRem(ctx, processingList(consumer), 1, msg.raw).Err(); err != nil {
		return fmt.Errorf("failed to remove claimed message: %w", err)
	}
	return nil
}

// Len reports the pending queue depth, exposed on the health endpoint.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueRender).Result()
}

// Orphans lists messages stuck in a consumer's processing list, typically
// after a crash. The watchdog requeues or fails them.
func (q *Queue) Orphans(ctx context.Context, consumer string) ([]Message, error) {
	raws, err := q.client.LRange(ctx, processingList(consumer), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list processing jobs: %w", err)
	}
	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue // drop undecodable entries
		}
		msg.raw = raw
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func processingList(consumer string) string {
	return QueueRender + processingSuffix + ":" + consumer
}
