package identity

import (
	"context"
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Match returns every active contact holding the request's email or phone number, oldest first.
// An empty result means the observation belongs to no existing identity.
func Match(ctx context.Context, store Store, req Request) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Match")
	defer span.End()

	contacts, err := store.FindActiveByEmailOrPhone(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	sortByCreation(contacts)
	return contacts, nil
}

func sortByCreation(contacts []models.Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return createdBefore(contacts[i], contacts[j])
	})
}

func createdBefore(a, b models.Contact) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
