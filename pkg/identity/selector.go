package identity

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// maxLinkHops bounds how far resolveRoot follows linked_id before giving up.
const maxLinkHops = 8

// SelectPrimary picks the canonical contact for a non-empty, creation-ordered match set:
//  1. the oldest primary in the set;
//  2. otherwise the active contact whose id is the smallest linked_id in the set
//     (this assumes ids are assigned in creation order);
//  3. otherwise the oldest contact in the set.
//
// The result may be a secondary only in cases 2 and 3 with inconsistent data; Merge promotes it.
func SelectPrimary(ctx context.Context, store Store, matches []models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.SelectPrimary")
	defer span.End()

	if len(matches) == 0 {
		return nil, fmt.Errorf("cannot select a primary from an empty match set")
	}

	for i := range matches {
		if matches[i].IsPrimary() {
			selected := matches[i]
			return &selected, nil
		}
	}

	var minLinkedID *int64
	for i := range matches {
		if id := matches[i].LinkedID; id != nil && (minLinkedID == nil || *id < *minLinkedID) {
			minLinkedID = id
		}
	}
	if minLinkedID != nil {
		root, err := resolveRoot(ctx, store, *minLinkedID)
		if err != nil {
			return nil, err
		}
		if root != nil {
			return root, nil
		}
	}

	selected := matches[0]
	return &selected, nil
}

// resolveRoot loads id and follows linked_id until it reaches a primary.
// It returns the last active contact on the path, or nil when id itself is not active.
func resolveRoot(ctx context.Context, store Store, id int64) (*models.Contact, error) {
	contact, err := store.FindActiveByID(ctx, id)
	if err != nil || contact == nil {
		return nil, err
	}

	for hops := 0; hops < maxLinkHops && contact.IsSecondary() && contact.LinkedID != nil; hops++ {
		parent, err := store.FindActiveByID(ctx, *contact.LinkedID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		contact = parent
	}
	return contact, nil
}
