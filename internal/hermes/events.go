package hermes

import (
	"strings"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

// SubjectPrefix roots every ledger event subject.
const SubjectPrefix = "swarm.verity."

// SubjectAll matches every ledger event.
const SubjectAll = SubjectPrefix + ">"

// Subject returns the NATS subject for an event kind, e.g.
// swarm.verity.rating.submitted.
func Subject(kind ledger.EventKind) string {
	return SubjectPrefix + string(kind)
}

// KindFromSubject is the inverse of Subject.
func KindFromSubject(subject string) (ledger.EventKind, bool) {
	kind, ok := strings.CutPrefix(subject, SubjectPrefix)
	if !ok || kind == "" {
		return "", false
	}
	return ledger.EventKind(kind), true
}

type publisher interface {
	Publish(subject string, data any) error
}

// EventPublisher forwards committed ledger events to NATS.
type EventPublisher struct {
	pub publisher
}

func NewEventPublisher(pub publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

func (p *EventPublisher) Emit(e ledger.Event) error {
	return p.pub.Publish(Subject(e.Kind), e)
}
