package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func linked(id int64) *int64 { return &id }

func at(minute int) time.Time {
	return time.Date(2024, 1, 1, 0, minute, 0, 0, time.UTC)
}

type lookupStore struct {
	Store
	byID map[int64]models.Contact
}

func (s lookupStore) FindActiveByID(_ context.Context, id int64) (*models.Contact, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func TestRequest_LockKeys(t *testing.T) {
	req := Request{Email: ptr("b@x.com"), PhoneNumber: ptr("123")}
	assert.Equal(t, []string{"email:b@x.com", "phone:123"}, req.LockKeys())

	assert.Equal(t, []string{"phone:123"}, Request{PhoneNumber: ptr("123")}.LockKeys())
	assert.Empty(t, Request{}.LockKeys())
}

func TestSelectPrimary(t *testing.T) {
	store := lookupStore{byID: map[int64]models.Contact{
		2: {ID: 2, LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at(0)},
		4: {ID: 4, LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at(9)},
	}}

	tests := []struct {
		name    string
		matches []models.Contact
		wantID  int64
	}{
		{
			name: "oldest primary in the match set",
			matches: []models.Contact{
				{ID: 7, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(4), CreatedAt: at(1)},
				{ID: 5, LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at(2)},
				{ID: 9, LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at(3)},
			},
			wantID: 5,
		},
		{
			name: "primary of a matched secondary does not compete",
			matches: []models.Contact{
				{ID: 5, LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at(2)},
				{ID: 7, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(2), CreatedAt: at(3)},
			},
			wantID: 5,
		},
		{
			name: "smallest linked id when only secondaries match",
			matches: []models.Contact{
				{ID: 8, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(4), CreatedAt: at(4)},
				{ID: 9, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(2), CreatedAt: at(5)},
			},
			wantID: 2,
		},
		{
			name: "oldest match when the linked primary is gone",
			matches: []models.Contact{
				{ID: 8, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(99), CreatedAt: at(4)},
				{ID: 9, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(99), CreatedAt: at(5)},
			},
			wantID: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := SelectPrimary(context.Background(), store, tt.matches)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, selected.ID)
		})
	}

	_, err := SelectPrimary(context.Background(), store, nil)
	assert.Error(t, err)
}

func TestResolveRoot_FollowsChains(t *testing.T) {
	store := lookupStore{byID: map[int64]models.Contact{
		1: {ID: 1, LinkPrecedence: models.LinkPrecedencePrimary},
		2: {ID: 2, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(1)},
		3: {ID: 3, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(2)},
	}}

	root, err := resolveRoot(context.Background(), store, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), root.ID)

	root, err = resolveRoot(context.Background(), store, 42)
	require.NoError(t, err)
	assert.Nil(t, root)
}

type errorStore struct {
	Store
}

func (errorStore) FindActiveByID(context.Context, int64) (*models.Contact, error) {
	return nil, errors.New("boom")
}

func TestSelectPrimary_PropagatesStoreErrors(t *testing.T) {
	_, err := SelectPrimary(context.Background(), errorStore{}, []models.Contact{
		{ID: 2, LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(1)},
	})
	assert.Error(t, err)
}

func TestShouldCreateSecondary(t *testing.T) {
	primary := models.Contact{ID: 1, Email: ptr("a"), PhoneNumber: ptr("111"), LinkPrecedence: models.LinkPrecedencePrimary}
	member := models.Contact{ID: 2, Email: ptr("b"), PhoneNumber: ptr("222"), LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(1)}
	matches := []models.Contact{primary, member}

	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{name: "same as primary", req: Request{Email: ptr("a"), PhoneNumber: ptr("111")}},
		{name: "values held by another member", req: Request{Email: ptr("b"), PhoneNumber: ptr("111")}},
		{name: "new phone", req: Request{Email: ptr("a"), PhoneNumber: ptr("999")}, want: true},
		{name: "new email only", req: Request{Email: ptr("z")}, want: true},
		{name: "known phone only", req: Request{PhoneNumber: ptr("222")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCreateSecondary(primary, matches, tt.req))
		})
	}
}

func TestBuildSummary(t *testing.T) {
	primary := models.Contact{ID: 4, PhoneNumber: ptr("111"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at(0)}
	members := []models.Contact{
		{ID: 10, Email: ptr("late@x.com"), PhoneNumber: ptr("111"), LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(4), CreatedAt: at(3)},
		{ID: 7, Email: ptr("early@x.com"), PhoneNumber: ptr("222"), LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(4), CreatedAt: at(1)},
		{ID: 8, Email: ptr("early@x.com"), LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: linked(4), CreatedAt: at(2)},
		primary,
	}

	summary := BuildSummary(primary, members)

	assert.Equal(t, int64(4), summary.PrimaryContactID)
	assert.Equal(t, []string{"early@x.com", "late@x.com"}, summary.Emails)
	assert.Equal(t, []string{"111", "222"}, summary.PhoneNumbers)
	assert.Equal(t, []int64{7, 8, 10}, summary.SecondaryContactIDs)
}

func TestBuildSummary_LonePrimary(t *testing.T) {
	summary := BuildSummary(models.Contact{ID: 1, Email: ptr("a@x.com"), LinkPrecedence: models.LinkPrecedencePrimary}, nil)

	assert.Equal(t, []string{"a@x.com"}, summary.Emails)
	assert.NotNil(t, summary.PhoneNumbers)
	assert.Empty(t, summary.PhoneNumbers)
	assert.NotNil(t, summary.SecondaryContactIDs)
	assert.Empty(t, summary.SecondaryContactIDs)
}

type staticLocker struct {
	locked   []string
	unlocked bool
	err      error
}

func (l *staticLocker) LockKeys(_ context.Context, keys []string) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locked = keys
	return func(context.Context) { l.unlocked = true }, nil
}

type funcTransactor func(ctx context.Context, keys []string, fn func(ctx context.Context) error) error

func (f funcTransactor) RunExclusive(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	return f(ctx, keys, fn)
}

func TestWithKeyLocks(t *testing.T) {
	passthrough := funcTransactor(func(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
		return fn(ctx)
	})

	locker := &staticLocker{}
	ran := false
	err := WithKeyLocks(locker, passthrough).RunExclusive(context.Background(), []string{"email:a"}, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"email:a"}, locker.locked)
	assert.True(t, locker.unlocked)

	failing := &staticLocker{err: errors.New("lock not acquired")}
	err = WithKeyLocks(failing, passthrough).RunExclusive(context.Background(), []string{"email:a"}, func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.Error(t, err)
}
