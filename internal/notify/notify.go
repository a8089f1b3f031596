// Package notify carries registration outcomes to users as fire-and-forget
// background tasks. Intents are enqueued onto Redis via asynq after the
// admission transaction commits; a worker delivers them over PubNub.
// Delivery failure never affects a committed registration.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Task type names, one per intent kind.
const (
	TypeRegistrationConfirmed = "notify:registration_confirmed"
	TypeWaitlistJoined        = "notify:waitlist_joined"
	TypeSwappedToWaitlist     = "notify:swapped_to_waitlist"
	TypeWaitlistPromoted      = "notify:waitlist_promoted"
)

// Intent describes one notification to deliver. Position is meaningful for
// the waitlist kinds only.
type Intent struct {
	Kind     string `json:"kind"`
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
	Position int    `json:"position,omitempty"`
}

// Enqueuer pushes intents onto the notification queue.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer backed by Redis.
func NewEnqueuer(redisOpt asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpt)}
}

// Enqueue schedules delivery of one intent.
func (e *Enqueuer) Enqueue(ctx context.Context, intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	task := asynq.NewTask(intent.Kind, payload)
	if _, err := e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Queue("default")); err != nil {
		return fmt.Errorf("enqueue %s: %w", intent.Kind, err)
	}
	return nil
}

// Close releases the underlying asynq client.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// Publisher delivers a message to one user's channel.
type Publisher interface {
	Publish(ctx context.Context, userID string, message any) (string, error)
}

// Worker processes queued intents and publishes them.
type Worker struct {
	pub Publisher
	log *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(pub Publisher, log *slog.Logger) *Worker {
	return &Worker{pub: pub, log: log}
}

// Mux returns the task mux with every intent kind registered.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRegistrationConfirmed, w.Handle)
	mux.HandleFunc(TypeWaitlistJoined, w.Handle)
	mux.HandleFunc(TypeSwappedToWaitlist, w.Handle)
	mux.HandleFunc(TypeWaitlistPromoted, w.Handle)
	return mux
}

// Message is the user-facing payload published for an intent.
type Message struct {
	Kind     string `json:"kind"`
	EventID  string `json:"event_id"`
	Text     string `json:"text"`
	Position int    `json:"position,omitempty"`
}

// Handle decodes one queued intent and publishes it. Errors are returned to
// asynq so it retries delivery with backoff.
func (w *Worker) Handle(ctx context.Context, t *asynq.Task) error {
	var intent Intent
	if err := json.Unmarshal(t.Payload(), &intent); err != nil {
		return fmt.Errorf("unmarshal intent: %w", err)
	}

	msg := Message{
		Kind:     intent.Kind,
		EventID:  intent.EventID,
		Text:     textFor(intent),
		Position: intent.Position,
	}
	if _, err := w.pub.Publish(ctx, intent.UserID, msg); err != nil {
		w.log.Warn("notification publish failed",
			"kind", intent.Kind, "user_id", intent.UserID, "event_id", intent.EventID, "err", err)
		return err
	}
	return nil
}

func textFor(intent Intent) string {
	switch intent.Kind {
	case TypeRegistrationConfirmed:
		return "Your registration is confirmed."
	case TypeWaitlistJoined:
		return fmt.Sprintf("You are on the waitlist at position %d.", intent.Position)
	case TypeSwappedToWaitlist:
		return fmt.Sprintf("Your spot was given to a prioritized attendee; you are now on the waitlist at position %d.", intent.Position)
	case TypeWaitlistPromoted:
		return "A spot opened up and you are now registered."
	default:
		return "Your registration status changed."
	}
}

// RunServer starts an asynq worker in the current goroutine and blocks
// until the server stops.
func RunServer(redisOpt asynq.RedisClientOpt, worker *Worker) error {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	return srv.Run(worker.Mux())
}
