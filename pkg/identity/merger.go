package identity

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MergeResult lists the rows Merge changed.
type MergeResult struct {
	Primary   models.Contact
	Promoted  bool
	Demoted   []models.Contact
	Repointed []models.Contact
}

type merger struct {
	store     Store
	primaryID int64
	result    *MergeResult
	folded    map[int64]bool
	moved     map[int64]bool
}

// Merge folds the other primaries in matches into selected.
//
// Each of them becomes a secondary of selected and its children are re-pointed at selected, so no
// secondary ever references another secondary. The merge runs even when nothing new is inserted.
// Primaries outside the match set are left alone, even when a matched secondary belongs to one.
// A selected contact that is not a primary (its own primary was tombstoned) is promoted and adopts
// its former siblings. Merge never inserts.
func Merge(ctx context.Context, store Store, selected *models.Contact, matches []models.Contact) (*MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Merge")
	defer span.End()

	m := &merger{
		store:     store,
		primaryID: selected.ID,
		result:    &MergeResult{Primary: *selected},
		folded:    map[int64]bool{selected.ID: true},
		moved:     map[int64]bool{},
	}

	if !selected.IsPrimary() {
		if err := m.promote(ctx); err != nil {
			return nil, err
		}
	}

	for i := range matches {
		if matches[i].IsPrimary() && !m.folded[matches[i].ID] {
			if err := m.fold(ctx, matches[i]); err != nil {
				return nil, err
			}
		}
	}

	for i := range matches {
		if err := m.attachStray(ctx, matches[i]); err != nil {
			return nil, err
		}
	}

	return m.result, nil
}

// attachStray re-points a matched secondary to the selected primary when its link no longer leads
// to an active primary. Secondaries of untouched primaries stay where they are.
func (m *merger) attachStray(ctx context.Context, contact models.Contact) error {
	if !contact.IsSecondary() || contact.LinkedID == nil || m.moved[contact.ID] || m.folded[contact.ID] {
		return nil
	}
	if *contact.LinkedID == m.primaryID || m.folded[*contact.LinkedID] {
		return nil
	}

	root, err := resolveRoot(ctx, m.store, *contact.LinkedID)
	if err != nil {
		return err
	}
	if root != nil && root.IsPrimary() && root.ID != m.primaryID {
		return nil
	}
	return m.repoint(ctx, contact)
}

func (m *merger) promote(ctx context.Context) error {
	primary := &m.result.Primary
	formerLinkedID := primary.LinkedID

	primary.LinkPrecedence = models.LinkPrecedencePrimary
	primary.LinkedID = nil
	if err := m.store.Update(ctx, primary); err != nil {
		return err
	}
	m.result.Promoted = true

	if formerLinkedID == nil {
		return nil
	}
	return m.repointChildrenOf(ctx, *formerLinkedID)
}

func (m *merger) fold(ctx context.Context, contact models.Contact) error {
	m.folded[contact.ID] = true

	contact.LinkPrecedence = models.LinkPrecedenceSecondary
	contact.LinkedID = &m.primaryID
	if err := m.store.Update(ctx, &contact); err != nil {
		return err
	}
	m.result.Demoted = append(m.result.Demoted, contact)

	return m.repointChildrenOf(ctx, contact.ID)
}

func (m *merger) repointChildrenOf(ctx context.Context, formerParentID int64) error {
	children, err := m.store.FindActiveChildrenOf(ctx, formerParentID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.ID == m.primaryID {
			continue
		}
		if err := m.repoint(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) repoint(ctx context.Context, contact models.Contact) error {
	if m.moved[contact.ID] {
		return nil
	}
	m.moved[contact.ID] = true
	if contact.LinkedID != nil && *contact.LinkedID == m.primaryID && contact.IsSecondary() {
		return nil
	}

	contact.LinkPrecedence = models.LinkPrecedenceSecondary
	contact.LinkedID = &m.primaryID
	if err := m.store.Update(ctx, &contact); err != nil {
		return err
	}
	m.result.Repointed = append(m.result.Repointed, contact)
	return nil
}
