package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExchangeAuditEvents receives content-free processing events
const ExchangeAuditEvents = "audit.events"

// AuditRoutingPrefix prefixes the action in audit routing keys, e.g. audit.profile.generate
const AuditRoutingPrefix = "audit.profile."

// Event is the envelope for every published message
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}
