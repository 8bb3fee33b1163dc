// Package processor feeds contact observations from Kafka into the identity service.
package processor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	cloverctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Identifier reconciles one observation.
type Identifier interface {
	Identify(ctx context.Context, email, phone *string) (*models.ContactSummary, error)
}

// Processor handles observation messages
type Processor struct {
	logger     ectologger.Logger
	identifier Identifier
}

// NewProcessor creates a new observation processor
func NewProcessor(logger ectologger.Logger, identifier Identifier) *Processor {
	return &Processor{
		logger:     logger,
		identifier: identifier,
	}
}

// ProcessMessage identifies the observation carried by msg.
// Client errors (invalid observations) are dropped; anything else is returned so the
// message is redelivered.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx = cloverctx.SetSource(ctx, cloverctx.SourceKafka)
	ctx = cloverctx.SetRequestID(ctx, fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))

	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":       msg.Key,
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if msg.Observation == nil {
		if err := msg.ParseObservation(); err != nil {
			log.WithError(err).Warn("Skipping unparseable observation")
			return nil
		}
	}

	obs := msg.Observation
	summary, err := p.identifier.Identify(ctx, obs.Email, obs.PhoneNumber.StringPtr())
	if err != nil {
		if isClientError(err) {
			log.WithError(err).Warn("Skipping invalid observation")
			return nil
		}
		tracing.RecordError(span, err)
		return err
	}

	log.WithField("primary_contact_id", summary.PrimaryContactID).Debug("Processed observation")
	return nil
}

func isClientError(err error) bool {
	if !httperror.IsHTTPError(err) {
		return false
	}
	code := httperror.GetStatusCode(err)
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError
}
