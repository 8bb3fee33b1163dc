package contact

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// MemoryStore keeps contacts in process memory for local runs and tests.
// RunExclusive serializes all transactions and restores a snapshot when fn fails. Individual
// lookups made outside RunExclusive are not isolated from an in-flight transaction.
type MemoryStore struct {
	txMu     sync.Mutex
	mu       sync.RWMutex
	contacts map[int64]models.Contact
	lastID   int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts: map[int64]models.Contact{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// Seed stores contacts with their ids and timestamps as given.
func (s *MemoryStore) Seed(contacts ...models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, contact := range contacts {
		s.contacts[contact.ID] = cloneContact(contact)
		if contact.ID > s.lastID {
			s.lastID = contact.ID
		}
	}
}

// All returns every stored contact, tombstoned included, ordered by id.
func (s *MemoryStore) All() []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Contact, 0, len(s.contacts))
	for _, contact := range s.contacts {
		all = append(all, cloneContact(contact))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

func (s *MemoryStore) RunExclusive(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot, lastID := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snapshot, lastID)
		return err
	}
	return nil
}

func (s *MemoryStore) FindActiveByEmailOrPhone(_ context.Context, email, phone *string) ([]models.Contact, error) {
	return s.filter(func(c models.Contact) bool {
		return (email != nil && c.HasEmail(*email)) || (phone != nil && c.HasPhoneNumber(*phone))
	}), nil
}

func (s *MemoryStore) FindActiveChildrenOf(_ context.Context, primaryID int64) ([]models.Contact, error) {
	return s.filter(func(c models.Contact) bool {
		return c.LinkedID != nil && *c.LinkedID == primaryID
	}), nil
}

func (s *MemoryStore) FindActiveByID(_ context.Context, id int64) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, ok := s.contacts[id]
	if !ok || contact.DeletedAt != nil {
		return nil, nil
	}
	found := cloneContact(contact)
	return &found, nil
}

func (s *MemoryStore) Insert(_ context.Context, contact *models.Contact) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.lastID++
	created := cloneContact(*contact)
	created.ID = s.lastID
	created.CreatedAt = now
	created.UpdatedAt = now
	created.DeletedAt = nil
	s.contacts[created.ID] = created

	result := cloneContact(created)
	return &result, nil
}

func (s *MemoryStore) Update(_ context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.contacts[contact.ID]
	if !ok || stored.DeletedAt != nil {
		return fmt.Errorf("failed to update contact %d: not found or deleted", contact.ID)
	}

	now := s.now()
	updated := cloneContact(*contact)
	stored.LinkPrecedence = updated.LinkPrecedence
	stored.LinkedID = updated.LinkedID
	stored.UpdatedAt = now
	s.contacts[contact.ID] = stored

	contact.UpdatedAt = now
	return nil
}

func (s *MemoryStore) filter(keep func(models.Contact) bool) []models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := []models.Contact{}
	for _, contact := range s.contacts {
		if contact.DeletedAt == nil && keep(contact) {
			matches = append(matches, cloneContact(contact))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}

func (s *MemoryStore) snapshot() (map[int64]models.Contact, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[int64]models.Contact, len(s.contacts))
	for id, contact := range s.contacts {
		snapshot[id] = cloneContact(contact)
	}
	return snapshot, s.lastID
}

func (s *MemoryStore) restore(snapshot map[int64]models.Contact, lastID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts = snapshot
	s.lastID = lastID
}

func cloneContact(c models.Contact) models.Contact {
	clone := c
	if c.Email != nil {
		email := *c.Email
		clone.Email = &email
	}
	if c.PhoneNumber != nil {
		phone := *c.PhoneNumber
		clone.PhoneNumber = &phone
	}
	if c.LinkedID != nil {
		linkedID := *c.LinkedID
		clone.LinkedID = &linkedID
	}
	if c.DeletedAt != nil {
		deletedAt := *c.DeletedAt
		clone.DeletedAt = &deletedAt
	}
	return clone
}
