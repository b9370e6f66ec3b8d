// Package event carries state-change notifications from the services to
// whoever wants them: the local WebSocket hub, other server instances via
// Redis, and an optional Kafka audit stream.
package event

import (
	"context"
	"errors"

	"github.com/sakif/voteboard/internal/model"
)

// Publisher delivers an event. Implementations must not block on slow
// consumers; delivery is best-effort and never rolls back the state change
// that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev model.Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev model.Event) error {
	return f(ctx, ev)
}

// Fanout publishes every event to all of its members, in order. One member
// failing does not stop the others; the errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, model.Event) error { return nil })
