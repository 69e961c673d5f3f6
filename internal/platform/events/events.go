// Package events provides an in-process, fire-and-forget event bus. Core
// services emit events after their record-store writes commit; consumers
// (audit feed, notifications) subscribe at startup. Delivery happens on
// separate goroutines so a slow or failing consumer never blocks or fails
// the operation that emitted the event.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TypeInsuranceSynced     = "insurance.synced"
	TypeInsuranceSuperseded = "insurance.superseded"
	TypeClaimSubmitted      = "claim.submitted"
	TypeClaimStatusChanged  = "claim.status_changed"
)

// Event is a post-commit notification about a state change in the core.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	TenantID  string                 `json:"tenant_id"`
	Resource  string                 `json:"resource"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler consumes a single event. Errors are logged, never propagated.
type Handler func(Event) error

// Emitter fans events out to subscribed handlers asynchronously.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func NewEmitter(logger zerolog.Logger) *Emitter {
	return &Emitter{
		handlers: make(map[string][]Handler),
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type. The wildcard "*"
// subscribes to every event.
func (e *Emitter) Subscribe(eventType string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], h)
}

// Emit dispatches the event to all matching handlers and returns immediately.
func (e *Emitter) Emit(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	e.mu.RLock()
	handlers := append([]Handler{}, e.handlers[evt.Type]...)
	handlers = append(handlers, e.handlers["*"]...)
	e.mu.RUnlock()

	for _, h := range handlers {
		h := h
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error().
						Str("event_id", evt.ID).
						Str("event_type", evt.Type).
						Interface("panic", r).
						Msg("event handler panicked")
				}
			}()
			if err := h(evt); err != nil {
				e.logger.Warn().
					Err(err).
					Str("event_id", evt.ID).
					Str("event_type", evt.Type).
					Msg("event handler failed")
			}
		}()
	}
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown and in
// tests; callers of Emit never wait.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

// AuditFeed returns a handler that writes every event to the structured log.
func AuditFeed(logger zerolog.Logger) Handler {
	return func(evt Event) error {
		logger.Info().
			Str("event_id", evt.ID).
			Str("event_type", evt.Type).
			Str("tenant_id", evt.TenantID).
			Str("resource", evt.Resource).
			Time("at", evt.Timestamp).
			Msg("audit")
		return nil
	}
}
