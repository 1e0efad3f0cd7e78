// Package events handles event emission for venue lifecycle changes
package events

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/zkinzler/dfw-openings/pkg/kafka"
	"github.com/zkinzler/dfw-openings/pkg/tracing"
)

// Emitter publishes venue events after the change they describe is committed
type Emitter interface {
	Emit(ctx context.Context, events ...*kafka.VenueEvent) error
}

// publisher is satisfied by *kafka.Producer
type publisher interface {
	PublishVenueEvent(ctx context.Context, event *kafka.VenueEvent) error
	PublishVenueEvents(ctx context.Context, events []*kafka.VenueEvent) error
}

// KafkaEmitter emits events through a Kafka producer
type KafkaEmitter struct {
	producer publisher
	logger   ectologger.Logger
}

// NewKafkaEmitter creates a new event emitter
func NewKafkaEmitter(producer publisher, logger ectologger.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *KafkaEmitter) Emit(ctx context.Context, events ...*kafka.VenueEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaEmitter.Emit")
	defer span.End()

	var err error
	switch len(events) {
	case 0:
		return nil
	case 1:
		err = e.producer.PublishVenueEvent(ctx, events[0])
	default:
		err = e.producer.PublishVenueEvents(ctx, events)
	}
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(events),
		}).Error("Failed to emit venue events")
		return err
	}
	return nil
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Emit(context.Context, ...*kafka.VenueEvent) error { return nil }

// Recorder keeps emitted events in memory
type Recorder struct {
	mu     sync.Mutex
	events []*kafka.VenueEvent
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, events ...*kafka.VenueEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of everything emitted so far
func (r *Recorder) Events() []*kafka.VenueEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*kafka.VenueEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the emitted events of one type
func (r *Recorder) OfType(t EventType) []*kafka.VenueEvent {
	var out []*kafka.VenueEvent
	for _, e := range r.Events() {
		if e.EventType == string(t) {
			out = append(out, e)
		}
	}
	return out
}
