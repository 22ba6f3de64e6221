package events

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the form committed events take once they leave the node: the
// wire event plus a unique id and the time it was forwarded.
type Envelope struct {
	ID         uuid.UUID         `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

// NewEnvelope wraps evt. Events without a wire form keep only their type.
func NewEnvelope(evt Event, now time.Time) Envelope {
	env := Envelope{ID: uuid.New(), EmittedAt: now.UTC(), Attributes: map[string]string{}}
	if evt == nil {
		return env
	}
	env.Type = evt.EventType()
	if wire := ToWire(evt); wire != nil {
		for k, v := range wire.Attributes {
			env.Attributes[k] = v
		}
	}
	return env
}
