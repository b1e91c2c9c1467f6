package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"staybook/models"
	"staybook/services/messaging"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeDeadLetterArchive = "deadletter:archive"
	DeadLetterQueue       = "deadletter"
)

func NewDeadLetterTask(letter models.DeadLetter) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(letter)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeDeadLetterArchive, b)
	opts := []asynq.Option{
		asynq.Queue(DeadLetterQueue),
		asynq.TaskID(letter.ID),
		asynq.MaxRetry(10),
		asynq.Retention(7 * 24 * time.Hour),
	}
	return task, opts, nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DeadLetterSink hands rejected envelopes to the archive worker.
type DeadLetterSink struct {
	client enqueuer
	now    func() time.Time
}

func NewDeadLetterSink(client *asynq.Client) *DeadLetterSink {
	return &DeadLetterSink{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// DeadLetter implements messaging.DeadLetterSink.
func (s *DeadLetterSink) DeadLetter(ctx context.Context, env messaging.Envelope, reason string) error {
	letter := models.DeadLetter{
		ID:          uuid.NewString(),
		SourceTopic: env.SourceTopic,
		EventType:   env.EventType,
		BookingID:   env.BookingID,
		EventID:     env.EventID,
		Payload:     string(env.Payload),
		Reason:      reason,
		ReceivedAt:  env.ReceivedAt,
	}
	task, opts, err := NewDeadLetterTask(letter)
	if err != nil {
		return fmt.Errorf("build dead letter task: %w", err)
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue dead letter: %w", err)
	}
	return nil
}
