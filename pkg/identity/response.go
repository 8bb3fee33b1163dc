package identity

import (
	"context"
	"fmt"
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// FetchCluster re-reads primaryID and its direct children.
func FetchCluster(ctx context.Context, store Store, primaryID int64) (*models.Contact, []models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.FetchCluster")
	defer span.End()

	primary, err := store.FindActiveByID(ctx, primaryID)
	if err != nil {
		return nil, nil, err
	}
	if primary == nil {
		return nil, nil, fmt.Errorf("primary contact %d is not active", primaryID)
	}

	children, err := store.FindActiveChildrenOf(ctx, primaryID)
	if err != nil {
		return nil, nil, err
	}
	return primary, children, nil
}

// BuildSummary aggregates a cluster. Emails and phone numbers start with the primary's
// value and follow member creation order without duplicates; secondary ids ascend.
func BuildSummary(primary models.Contact, members []models.Contact) models.ContactSummary {
	ordered := make([]models.Contact, 0, len(members))
	for _, member := range members {
		if member.ID != primary.ID {
			ordered = append(ordered, member)
		}
	}
	sortByCreation(ordered)

	summary := models.ContactSummary{
		PrimaryContactID:    primary.ID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}

	emails := newOrderedSet(&summary.Emails)
	phones := newOrderedSet(&summary.PhoneNumbers)
	emails.add(primary.Email)
	phones.add(primary.PhoneNumber)

	for _, member := range ordered {
		emails.add(member.Email)
		phones.add(member.PhoneNumber)
		if member.IsSecondary() {
			summary.SecondaryContactIDs = append(summary.SecondaryContactIDs, member.ID)
		}
	}

	sort.Slice(summary.SecondaryContactIDs, func(i, j int) bool {
		return summary.SecondaryContactIDs[i] < summary.SecondaryContactIDs[j]
	})
	return summary
}

type orderedSet struct {
	values *[]string
	seen   map[string]bool
}

func newOrderedSet(values *[]string) *orderedSet {
	return &orderedSet{values: values, seen: map[string]bool{}}
}

func (s *orderedSet) add(value *string) {
	if value == nil || s.seen[*value] {
		return
	}
	s.seen[*value] = true
	*s.values = append(*s.values, *value)
}
