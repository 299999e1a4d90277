package webhooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/SlNPacifist/icfpc2023/internal/store"
)

// EventSolutionImproved is emitted whenever a strictly better solution is stored.
const EventSolutionImproved = "solution.improved"

// Publisher fans events out to the configured endpoints through the store outbox.
type Publisher struct {
	Store     store.Store
	Endpoints []string
	Secret    string
	Logger    *slog.Logger
}

func NewPublisher(s store.Store, endpoints []string, secret string) *Publisher {
	return &Publisher{Store: s, Endpoints: endpoints, Secret: secret, Logger: slog.Default()}
}

// Emit enqueues one delivery per endpoint. It returns the event id, or "" when
// no endpoint is configured.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) string {
	if p == nil || len(p.Endpoints) == 0 {
		return ""
	}
	id := "evt_" + uuid.NewString()
	payload := map[string]any{
		"id":   id,
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.Logger.Warn("webhook payload", "event", eventType, "err", err)
		return ""
	}
	for _, url := range p.Endpoints {
		if _, err := p.Store.EnqueueNotification(ctx, eventType, url, p.Secret, body); err != nil {
			p.Logger.Warn("webhook enqueue", "event", eventType, "url", url, "err", err)
		}
	}
	return id
}
