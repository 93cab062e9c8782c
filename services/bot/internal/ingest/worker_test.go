package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
)

type fakeSink struct {
	calls []catalog.EpisodeUpsert
	err   error
}

func (f *fakeSink) Ingest(_ context.Context, u catalog.EpisodeUpsert) error {
	f.calls = append(f.calls, u)
	return f.err
}

func newTestWorker(sink Sink) *Worker {
	return &Worker{Log: zap.NewNop(), Sink: sink, Dedup: newMemoryDedup(), Subject: DefaultSubject, MaxDeliver: 5}
}

func payload(t *testing.T, j Job) []byte {
	t.Helper()
	b, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestProcess_AppliesOnceAndSkipsDuplicates(t *testing.T) {
	sink := &fakeSink{}
	w := newTestWorker(sink)
	data := payload(t, Job{EventID: "e1", Slug: "x", Episode: 1, Source: "s", Status: "finish"})

	if v, _ := w.process(context.Background(), data, 1); v != verdictAck {
		t.Fatalf("expected ack, got %v", v)
	}
	if v, _ := w.process(context.Background(), data, 1); v != verdictAck {
		t.Fatalf("expected ack for duplicate, got %v", v)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("expected 1 ingest call, got %d", len(sink.calls))
	}
	if sink.calls[0].Status != domain.StatusFinished {
		t.Fatalf("expected status normalized, got %q", sink.calls[0].Status)
	}
}

func TestProcess_TransientFailureRetriesAndForgets(t *testing.T) {
	sink := &fakeSink{err: domain.ErrTransientIO}
	w := newTestWorker(sink)
	data := payload(t, Job{EventID: "e2", Slug: "x", Episode: 1, Source: "s"})

	if v, _ := w.process(context.Background(), data, 1); v != verdictRetry {
		t.Fatalf("expected retry, got %v", v)
	}
	sink.err = nil
	if v, _ := w.process(context.Background(), data, 2); v != verdictAck {
		t.Fatalf("expected ack on redelivery, got %v", v)
	}
	if len(sink.calls) != 2 {
		t.Fatalf("redelivery must reach the sink, got %d calls", len(sink.calls))
	}
}

func TestProcess_InvalidUpsertDeadLetters(t *testing.T) {
	sink := &fakeSink{err: errors.Join(catalog.ErrInvalidUpsert, errors.New("empty slug"))}
	w := newTestWorker(sink)

	v, reason := w.process(context.Background(), payload(t, Job{EventID: "e3"}), 1)
	if v != verdictDeadLetter || reason == "" {
		t.Fatalf("expected dead letter with reason, got %v %q", v, reason)
	}
}

func TestProcess_MaxDeliveriesDeadLetters(t *testing.T) {
	sink := &fakeSink{}
	w := newTestWorker(sink)

	if v, _ := w.process(context.Background(), payload(t, Job{Slug: "x"}), 6); v != verdictDeadLetter {
		t.Fatalf("expected dead letter, got %v", v)
	}
	if len(sink.calls) != 0 {
		t.Fatal("exhausted deliveries must not reach the sink")
	}
}

func TestProcess_BadPayloadIsDeadLettered(t *testing.T) {
	sink := &fakeSink{}
	w := newTestWorker(sink)
	v, reason := w.process(context.Background(), []byte("{"), 1)
	if v != verdictDeadLetter {
		t.Fatalf("expected dead letter, got %v", v)
	}
	if !strings.HasPrefix(reason, "bad payload") {
		t.Fatalf("unexpected reason %q", reason)
	}
	if len(sink.calls) != 0 {
		t.Fatal("a malformed job must not reach the sink")
	}
}
