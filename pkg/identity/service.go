package identity

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	cloverctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	OutcomeCreatedPrimary = "created_primary"
	OutcomeLinked         = "linked"
	OutcomeMerged         = "merged"
	OutcomeUnchanged      = "unchanged"
	OutcomeInvalid        = "invalid"
	OutcomeError          = "error"
)

// Outcome describes one committed identify call.
type Outcome struct {
	Request Request
	Summary models.ContactSummary
	Primary models.Contact
	// Created is the inserted contact, if any: a fresh primary or a new secondary.
	Created   *models.Contact
	Promoted  bool
	Demoted   []models.Contact
	Repointed []models.Contact
}

// Kind classifies the outcome for metrics and events.
func (o *Outcome) Kind() string {
	switch {
	case len(o.Demoted) > 0 || o.Promoted:
		return OutcomeMerged
	case o.Created != nil && o.Created.IsPrimary():
		return OutcomeCreatedPrimary
	case o.Created != nil:
		return OutcomeLinked
	default:
		return OutcomeUnchanged
	}
}

// Observer is notified after an identify call commits. Failures are logged, never returned.
type Observer interface {
	Name() string
	OnIdentified(ctx context.Context, outcome *Outcome) error
}

// Config contains configuration for the identity service.
type Config struct {
	EmailNormalizer normalizers.Normalizer
	PhoneNormalizer normalizers.Normalizer
}

// DefaultConfig trims both identifiers.
func DefaultConfig() Config {
	return Config{
		EmailNormalizer: normalizers.Trim,
		PhoneNormalizer: normalizers.Trim,
	}
}

// Service reconciles observations into contact clusters.
type Service struct {
	log        ectologger.Logger
	store      Store
	transactor Transactor
	observers  []Observer
	cfg        Config
}

// NewService creates a new identity service.
func NewService(
	log ectologger.Logger,
	store Store,
	transactor Transactor,
	cfg Config,
	observers ...Observer,
) *Service {
	if cfg.EmailNormalizer == nil {
		cfg.EmailNormalizer = normalizers.Trim
	}
	if cfg.PhoneNormalizer == nil {
		cfg.PhoneNormalizer = normalizers.Trim
	}
	return &Service{
		log:        log,
		store:      store,
		transactor: transactor,
		observers:  observers,
		cfg:        cfg,
	}
}

// Identify records the observation (email, phone) and returns the consolidated cluster it belongs to.
func (s *Service) Identify(ctx context.Context, email, phone *string) (*models.ContactSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.Identify")
	defer span.End()

	start := time.Now()
	source := cloverctx.GetSource(ctx)

	req := NewRequest(email, phone, s.cfg.EmailNormalizer, s.cfg.PhoneNormalizer)
	if err := req.Validate(); err != nil {
		metrics.RecordIdentify(source, OutcomeInvalid, time.Since(start).Seconds())
		return nil, err
	}

	var outcome *Outcome
	err := s.transactor.RunExclusive(ctx, req.LockKeys(), func(ctx context.Context) error {
		var err error
		outcome, err = s.identify(ctx, req)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		s.log.WithContext(ctx).WithError(err).WithFields(req.fields()).Error("identify failed")
		metrics.RecordIdentify(source, OutcomeError, time.Since(start).Seconds())
		return nil, storageFailure(err)
	}

	kind := outcome.Kind()
	metrics.RecordIdentify(source, kind, time.Since(start).Seconds())
	metrics.RecordMerge(createdPrecedences(outcome), len(outcome.Demoted), len(outcome.Repointed))

	s.log.WithContext(ctx).WithFields(map[string]any{
		"primary_contact_id": outcome.Summary.PrimaryContactID,
		"outcome":            kind,
		"demoted":            len(outcome.Demoted),
		"repointed":          len(outcome.Repointed),
		"secondaries":        len(outcome.Summary.SecondaryContactIDs),
	}).Info("identified contact")

	s.notify(ctx, outcome)

	summary := outcome.Summary
	return &summary, nil
}

// identify runs match, select, merge, create and re-fetch inside the caller's transaction.
func (s *Service) identify(ctx context.Context, req Request) (*Outcome, error) {
	matches, err := Match(ctx, s.store, req)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		created, err := CreatePrimary(ctx, s.store, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Request: req,
			Summary: BuildSummary(*created, nil),
			Primary: *created,
			Created: created,
		}, nil
	}

	selected, err := SelectPrimary(ctx, s.store, matches)
	if err != nil {
		return nil, err
	}

	merged, err := Merge(ctx, s.store, selected, matches)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Request:   req,
		Promoted:  merged.Promoted,
		Demoted:   merged.Demoted,
		Repointed: merged.Repointed,
	}

	if ShouldCreateSecondary(merged.Primary, matches, req) {
		outcome.Created, err = CreateSecondary(ctx, s.store, req, merged.Primary)
		if err != nil {
			return nil, err
		}
	}

	primary, members, err := FetchCluster(ctx, s.store, merged.Primary.ID)
	if err != nil {
		return nil, err
	}
	outcome.Primary = *primary
	outcome.Summary = BuildSummary(*primary, members)
	return outcome, nil
}

// Cluster returns the consolidated view of the cluster containing contact id.
// It reads inside the transactor so a concurrent merge is seen either whole or not at all.
func (s *Service) Cluster(ctx context.Context, id int64) (*models.ContactSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.Cluster")
	defer span.End()

	var summary *models.ContactSummary
	err := s.transactor.RunExclusive(ctx, nil, func(ctx context.Context) error {
		root, err := resolveRoot(ctx, s.store, id)
		if err != nil || root == nil {
			return err
		}

		members, err := s.store.FindActiveChildrenOf(ctx, root.ID)
		if err != nil {
			return err
		}

		built := BuildSummary(*root, members)
		summary = &built
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		s.log.WithContext(ctx).WithError(err).WithField("contact_id", id).Error("failed to load cluster")
		return nil, storageFailure(err)
	}
	if summary == nil {
		return nil, contactNotFound(id)
	}
	return summary, nil
}

func (s *Service) notify(ctx context.Context, outcome *Outcome) {
	for _, observer := range s.observers {
		if err := observer.OnIdentified(ctx, outcome); err != nil {
			metrics.RecordObserverFailure(observer.Name())
			s.log.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"observer":           observer.Name(),
				"primary_contact_id": outcome.Summary.PrimaryContactID,
			}).Warn("post-commit observer failed")
		}
	}
}

func createdPrecedences(outcome *Outcome) []string {
	if outcome.Created == nil {
		return nil
	}
	return []string{string(outcome.Created.LinkPrecedence)}
}
