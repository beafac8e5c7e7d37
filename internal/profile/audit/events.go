package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/psyprofile/psyprofile-backend/pkg/messaging"
)

// Publisher is the subset of messaging.Publisher the event sink needs
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// EventRecorder publishes audit.profile.<action> events
type EventRecorder struct {
	publisher Publisher
}

func NewEventRecorder(p Publisher) *EventRecorder {
	return &EventRecorder{publisher: p}
}

func (r *EventRecorder) Record(ctx context.Context, e Entry) error {
	e = Finalize(e, time.Now())

	ctx = messaging.WithCorrelationID(ctx, e.SessionID)
	if err := r.publisher.Publish(ctx, messaging.AuditRoutingPrefix+e.Action, e); err != nil {
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}
