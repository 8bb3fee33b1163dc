// Package events publishes contact cluster changes.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	cloverctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	EventTypeContactCreated = "contact.created"
	EventTypeContactLinked  = "contact.linked"
	EventTypeContactMerged  = "contact.merged"
)

// Publisher writes contact events to the event stream.
type Publisher interface {
	PublishContactEvents(ctx context.Context, events []*kafka.ContactEvent) error
}

// Emitter turns identify outcomes into contact events.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Emitter) Name() string { return "events" }

// OnIdentified publishes the events for one committed identify call.
// Unchanged outcomes publish nothing.
func (e *Emitter) OnIdentified(ctx context.Context, outcome *identity.Outcome) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.OnIdentified")
	defer span.End()

	events := e.Build(ctx, outcome)
	if len(events) == 0 {
		return nil
	}

	if err := e.publisher.PublishContactEvents(ctx, events); err != nil {
		tracing.RecordError(span, err)
		e.logger.WithContext(ctx).WithError(err).WithField("primary_contact_id", outcome.Primary.ID).Error("Failed to emit contact events")
		return err
	}
	return nil
}

// Build returns the events describing outcome, merge first.
func (e *Emitter) Build(ctx context.Context, outcome *identity.Outcome) []*kafka.ContactEvent {
	requestID := cloverctx.GetRequestID(ctx)
	ts := e.now()
	primary := outcome.Primary

	var events []*kafka.ContactEvent

	if len(outcome.Demoted) > 0 || outcome.Promoted {
		events = append(events, &kafka.ContactEvent{
			EventType:        EventTypeContactMerged,
			ContactID:        primary.ID,
			PrimaryContactID: primary.ID,
			LinkPrecedence:   string(primary.LinkPrecedence),
			Email:            primary.Email,
			PhoneNumber:      primary.PhoneNumber,
			MergedIDs:        contactIDs(outcome.Demoted),
			RepointedIDs:     contactIDs(outcome.Repointed),
			RequestID:        requestID,
			Timestamp:        ts,
		})
	}

	if created := outcome.Created; created != nil {
		eventType := EventTypeContactCreated
		if created.IsSecondary() {
			eventType = EventTypeContactLinked
		}
		events = append(events, &kafka.ContactEvent{
			EventType:        eventType,
			ContactID:        created.ID,
			PrimaryContactID: primary.ID,
			LinkPrecedence:   string(created.LinkPrecedence),
			Email:            created.Email,
			PhoneNumber:      created.PhoneNumber,
			RequestID:        requestID,
			Timestamp:        ts,
		})
	}

	return events
}

func contactIDs(contacts []models.Contact) []int64 {
	if len(contacts) == 0 {
		return nil
	}
	ids := make([]int64, len(contacts))
	for i := range contacts {
		ids[i] = contacts[i].ID
	}
	return ids
}
