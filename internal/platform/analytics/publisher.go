// Package analytics provides a fire-and-forget NATS publisher for bot usage events.
package analytics

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectConversationStarted = "analytics.bot.conversation_started"
	SubjectEpisodeViewed       = "analytics.bot.episode_viewed"
	SubjectTitleOpened         = "analytics.bot.title_opened"
	SubjectSearchPerformed     = "analytics.bot.search_performed"
	SubjectCatalogPurged       = "analytics.bot.catalog_purged"
)

// Event is the envelope sent to all analytics.* subjects.
type Event struct {
	EventID        string         `json:"event_id"`
	EventName      string         `json:"event_name"`
	ConversationID string         `json:"conversation_id,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// AsyncPublisher is the subset of nats.JetStreamContext the publisher needs.
type AsyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher publishes analytics events to NATS JetStream.
// A nil pointer and a Publisher without a stream are both no-ops.
type Publisher struct {
	js  AsyncPublisher
	log *zap.Logger
}

func New(js AsyncPublisher, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// Publish sends an event asynchronously. Failures are logged and never surface to the caller.
func (p *Publisher) Publish(subject, eventName string, conversationID int64, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:        uuid.NewString(),
		EventName:      eventName,
		ConversationID: strconv.FormatInt(conversationID, 10),
		OccurredAt:     time.Now().UTC(),
		Properties:     props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
