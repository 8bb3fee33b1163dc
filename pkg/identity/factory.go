package identity

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ShouldCreateSecondary reports whether req carries information the cluster lacks.
//
// Email and phone are tested independently: a value counts as new when it differs from
// the primary's and no active contact holds it. matches must be the full match set for
// req, which already contains every active holder of either value.
func ShouldCreateSecondary(primary models.Contact, matches []models.Contact, req Request) bool {
	return isNewValue(req.Email, primary.Email, matches, models.Contact.HasEmail) ||
		isNewValue(req.PhoneNumber, primary.PhoneNumber, matches, models.Contact.HasPhoneNumber)
}

func isNewValue(value, primaryValue *string, matches []models.Contact, holds func(models.Contact, string) bool) bool {
	if value == nil {
		return false
	}
	if primaryValue != nil && *primaryValue == *value {
		return false
	}
	for _, contact := range matches {
		if holds(contact, *value) {
			return false
		}
	}
	return true
}

// CreatePrimary inserts a fresh primary carrying the request's values.
func CreatePrimary(ctx context.Context, store Store, req Request) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.CreatePrimary")
	defer span.End()

	return store.Insert(ctx, &models.Contact{
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		LinkPrecedence: models.LinkPrecedencePrimary,
	})
}

// CreateSecondary inserts a secondary of primary carrying both request values,
// even when one of them duplicates an existing value.
func CreateSecondary(ctx context.Context, store Store, req Request, primary models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.CreateSecondary")
	defer span.End()

	linkedID := primary.ID
	return store.Insert(ctx, &models.Contact{
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		LinkedID:       &linkedID,
		LinkPrecedence: models.LinkPrecedenceSecondary,
	})
}
