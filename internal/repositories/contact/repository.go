package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"
)

const tableName = "contacts"

var columns = []string{"id", "email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at", "deleted_at"}

// Options configures the PostgreSQL repository.
type Options struct {
	// LockTimeout bounds every lock wait inside RunExclusive.
	LockTimeout time.Duration
	// AdvisoryLocks takes pg_advisory_xact_lock on each key inside RunExclusive.
	// Disable it when keys are already serialized elsewhere (e.g. Redis).
	AdvisoryLocks bool
}

// Repository stores contacts in PostgreSQL.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	opts   Options
	now    func() time.Time
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger, opts Options) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunExclusive runs fn in a READ COMMITTED transaction holding advisory locks on keys.
// Lookups made through ctx inside fn lock their rows with FOR UPDATE.
func (r *Repository) RunExclusive(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "ContactRepository.RunExclusive")
	defer span.End()

	txCtx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	if _, err := tx.ExecContext(txCtx, database.LockTimeoutStatement(r.opts.LockTimeout)); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if r.opts.AdvisoryLocks {
		if err := database.AcquireAdvisoryLocks(txCtx, tx, keys); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("keys", len(keys)).Warn("failed to acquire contact locks")
			return err
		}
	}

	if err := fn(txCtx); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// FindActiveByEmailOrPhone returns active contacts holding email or phone, oldest first
func (r *Repository) FindActiveByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "ContactRepository.FindActiveByEmailOrPhone")
	defer span.End()

	sb := r.selectActive(ctx)
	var matchers []string
	if email != nil {
		matchers = append(matchers, sb.Equal("email", *email))
	}
	if phone != nil {
		matchers = append(matchers, sb.Equal("phone_number", *phone))
	}
	if len(matchers) == 0 {
		return []models.Contact{}, nil
	}
	sb.Where(sb.Or(matchers...))

	return r.selectContacts(ctx, sb, "failed to find contacts by email or phone")
}

// FindActiveChildrenOf returns the active contacts linked to primaryID, oldest first
func (r *Repository) FindActiveChildrenOf(ctx context.Context, primaryID int64) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "ContactRepository.FindActiveChildrenOf")
	defer span.End()

	sb := r.selectActive(ctx)
	sb.Where(sb.Equal("linked_id", primaryID))

	return r.selectContacts(ctx, sb, "failed to find linked contacts")
}

// FindActiveByID returns the active contact with id, or nil
func (r *Repository) FindActiveByID(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "ContactRepository.FindActiveByID")
	defer span.End()

	sb := r.selectActive(ctx)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var contact models.Contact
	err := r.db.Querier(ctx).GetContext(ctx, &contact, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("contact_id", id).Error("failed to get contact by ID")
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return &contact, nil
}

// Insert creates a contact and returns it with its id and timestamps
func (r *Repository) Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "ContactRepository.Insert")
	defer span.End()

	now := r.now()
	created := *contact
	created.CreatedAt = now
	created.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols("email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at")
	ib.Values(created.Email, created.PhoneNumber, created.LinkedID, string(created.LinkPrecedence), now, now)
	ib.Returning("id")

	query, args := ib.Build()

	if err := r.db.Querier(ctx).QueryRowxContext(ctx, query, args...).Scan(&created.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to insert contact")
		return nil, fmt.Errorf("failed to insert contact: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"contact_id":      created.ID,
		"link_precedence": created.LinkPrecedence,
		"linked_id":       created.LinkedID,
	}).Debug("inserted contact")

	return &created, nil
}

// Update persists link precedence and linkage and refreshes updated_at
func (r *Repository) Update(ctx context.Context, contact *models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "ContactRepository.Update")
	defer span.End()

	now := r.now()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("link_precedence", string(contact.LinkPrecedence)),
		ub.Assign("linked_id", contact.LinkedID),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", contact.ID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()

	result, err := r.db.Querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("contact_id", contact.ID).Error("failed to update contact")
		return fmt.Errorf("failed to update contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to update contact %d: not found or deleted", contact.ID)
	}

	contact.UpdatedAt = now
	return nil
}

func (r *Repository) selectActive(ctx context.Context) *sqlbuilder.SelectBuilder {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.IsNull("deleted_at"))
	sb.OrderBy("created_at ASC", "id ASC")
	if database.TxFromContext(ctx) != nil {
		sb.ForUpdate()
	}
	return sb
}

func (r *Repository) selectContacts(ctx context.Context, sb *sqlbuilder.SelectBuilder, message string) ([]models.Contact, error) {
	query, args := sb.Build()

	contacts := []models.Contact{}
	if err := r.db.Querier(ctx).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error(message)
		return nil, fmt.Errorf("%s: %w", message, err)
	}
	return contacts, nil
}
