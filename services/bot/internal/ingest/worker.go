// Package ingest feeds episode upserts into the catalog: from a JetStream
// subject and from captioned videos posted to the source chat.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
)

const (
	StreamName     = "BOT_INGEST"
	DefaultSubject = "bot.ingest.episode"
	DLQSubject     = "bot.ingest.dlq"
	streamSubjects = "bot.ingest.>"
)

// Sink applies an upsert. The conversation controller implements it.
type Sink interface {
	Ingest(ctx context.Context, u catalog.EpisodeUpsert) error
}

// Job is the JSON payload published on the ingest subject.
type Job struct {
	EventID string   `json:"event_id"`
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	Status  string   `json:"status,omitempty"`
	Genres  []string `json:"genres,omitempty"`
	Episode int      `json:"episode"`
	Variant string   `json:"variant,omitempty"`
	Source  string   `json:"source"`
	Skip    string   `json:"skip,omitempty"`
}

// Upsert converts the job, leaving Status empty when the job has none.
func (j Job) Upsert() catalog.EpisodeUpsert {
	u := catalog.EpisodeUpsert{
		Slug:    j.Slug,
		Title:   j.Title,
		Genres:  j.Genres,
		Episode: j.Episode,
		Variant: j.Variant,
		Source:  j.Source,
		Skip:    j.Skip,
	}
	if j.Status != "" {
		u.Status = domain.ParseStatus(j.Status)
	}
	return u
}

type Worker struct {
	Log     *zap.Logger
	JS      nats.JetStreamContext
	Sink    Sink
	Dedup   Dedup
	Subject string
	Durable string

	MaxDeliver int
}

func NewWorker(log *zap.Logger, nc *nats.Conn, sink Sink, dedup Dedup, subject string) (*Worker, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Worker{
		Log:        log,
		JS:         js,
		Sink:       sink,
		Dedup:      dedup,
		Subject:    subject,
		Durable:    "bot_ingest_episode",
		MaxDeliver: 5,
	}, nil
}

func (w *Worker) EnsureStream(ctx context.Context) error {
	info, err := w.JS.StreamInfo(StreamName, nats.Context(ctx))
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == streamSubjects {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{streamSubjects}
		_, err := w.JS.UpdateStream(&cfg, nats.Context(ctx))
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = w.JS.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{streamSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	}, nats.Context(ctx))
	return err
}

func (w *Worker) Run(ctx context.Context) error {
	if err := w.EnsureStream(ctx); err != nil {
		return err
	}
	sub, err := w.JS.PullSubscribe(w.Subject, w.Durable)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	w.Log.Info("consumer started", zap.String("subject", w.Subject))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
		for _, m := range msgs {
			w.handleMsg(ctx, m)
		}
	}
}

type verdict int

const (
	verdictAck verdict = iota
	verdictRetry
	verdictDeadLetter
)

func (w *Worker) handleMsg(ctx context.Context, m *nats.Msg) {
	delivered := uint64(1)
	if md, _ := m.Metadata(); md != nil {
		delivered = md.NumDelivered
	}

	v, reason := w.process(ctx, m.Data, delivered)
	switch v {
	case verdictRetry:
		_ = m.NakWithDelay(backoffDelay(delivered))
	case verdictDeadLetter:
		if err := w.publishDLQ(m.Data, reason); err != nil {
			w.Log.Error("dlq publish failed", zap.Error(err))
		}
		_ = m.Ack()
	default:
		_ = m.Ack()
	}
}

// process decides the fate of one delivery.
func (w *Worker) process(ctx context.Context, data []byte, delivered uint64) (verdict, string) {
	if w.MaxDeliver > 0 && int(delivered) > w.MaxDeliver {
		return verdictDeadLetter, fmt.Sprintf("max deliveries exceeded: %d", delivered)
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		w.Log.Warn("bad payload", zap.String("subject", w.Subject), zap.Error(err))
		return verdictDeadLetter, "bad payload: " + err.Error()
	}
	log := w.Log.With(zap.String("event_id", j.EventID), zap.String("slug", j.Slug), zap.Int("episode", j.Episode))

	if j.EventID != "" && w.Dedup != nil {
		dup, err := w.Dedup.Check(ctx, j.EventID)
		if err != nil {
			log.Warn("dedup check failed", zap.Error(err))
			return verdictRetry, ""
		}
		if dup {
			log.Debug("duplicate event skipped")
			return verdictAck, ""
		}
	}

	err := w.Sink.Ingest(ctx, j.Upsert())
	switch {
	case err == nil:
		return verdictAck, ""
	case errors.Is(err, catalog.ErrInvalidUpsert):
		log.Warn("invalid upsert", zap.Error(err))
		return verdictDeadLetter, err.Error()
	default:
		log.Warn("ingest failed", zap.Uint64("attempt", delivered), zap.Error(err))
		if j.EventID != "" && w.Dedup != nil {
			if ferr := w.Dedup.Forget(ctx, j.EventID); ferr != nil {
				log.Warn("dedup forget failed", zap.Error(ferr))
			}
		}
		return verdictRetry, ""
	}
}

func (w *Worker) publishDLQ(data []byte, reason string) error {
	msg := map[string]any{
		"id":      uuid.NewString(),
		"subject": w.Subject,
		"reason":  reason,
		"payload": json.RawMessage(data),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.JS.Publish(DLQSubject, b)
	return err
}
