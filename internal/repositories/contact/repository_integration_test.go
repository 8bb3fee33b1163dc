//go:build integration

package contact_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/db"
	"github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/testutil/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	db     database.DB
	repo   *contact.Repository
	svc    *identity.Service
	logger ectologger.Logger
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration tests in short mode")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.logger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s.pg = containers.NewPostgresContainer(s.T())

	migrations := database.NewMigrationService(s.logger, &database.MigrationConfig{
		Files:        db.Migrations,
		Path:         db.MigrationsPath,
		AutoRollback: true,
	})
	s.Require().NoError(migrations.MigratePostgres(s.pg.DB.DB, "clover"))

	s.db = database.NewDatabaseInstance(s.pg.DB, s.logger)
	s.repo = contact.NewRepository(s.db, s.logger, contact.Options{
		LockTimeout:   2 * time.Second,
		AdvisoryLocks: true,
	})
	s.svc = identity.NewService(s.logger, s.repo, s.repo, identity.DefaultConfig())
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.pg.DB.Exec("TRUNCATE contacts RESTART IDENTITY")
	s.Require().NoError(err)
}

func str(v string) *string { return &v }

func (s *RepositorySuite) countContacts() int {
	var count int
	s.Require().NoError(s.pg.DB.Get(&count, "SELECT COUNT(*) FROM contacts"))
	return count
}

func (s *RepositorySuite) TestScenarios() {
	ctx := context.Background()

	a, err := s.svc.Identify(ctx, str("a@x.com"), str("123"))
	s.Require().NoError(err)
	s.Equal(int64(1), a.PrimaryContactID)

	b, err := s.svc.Identify(ctx, str("a@x.com"), str("999"))
	s.Require().NoError(err)
	s.Equal(models.ContactSummary{
		PrimaryContactID:    1,
		Emails:              []string{"a@x.com"},
		PhoneNumbers:        []string{"123", "999"},
		SecondaryContactIDs: []int64{2},
	}, *b)

	_, err = s.svc.Identify(ctx, str("b@x.com"), str("555"))
	s.Require().NoError(err)

	c, err := s.svc.Identify(ctx, str("a@x.com"), str("555"))
	s.Require().NoError(err)
	s.Equal(int64(1), c.PrimaryContactID)
	s.Equal([]int64{2, 3}, c.SecondaryContactIDs)
	s.Equal(3, s.countContacts())

	var chained int
	s.Require().NoError(s.pg.DB.Get(&chained, `
		SELECT COUNT(*) FROM contacts c
		JOIN contacts p ON p.id = c.linked_id
		WHERE c.deleted_at IS NULL AND p.link_precedence = 'secondary'`))
	s.Zero(chained)
}

func (s *RepositorySuite) TestTombstonedRowsAreIgnored() {
	ctx := context.Background()
	_, err := s.pg.DB.Exec(`INSERT INTO contacts (email, link_precedence, deleted_at) VALUES ('gone@x.com', 'primary', NOW())`)
	s.Require().NoError(err)

	summary, err := s.svc.Identify(ctx, str("gone@x.com"), nil)
	s.Require().NoError(err)
	s.Equal(int64(2), summary.PrimaryContactID)
	s.Empty(summary.SecondaryContactIDs)
}

func (s *RepositorySuite) TestConcurrentIdentifyCreatesOnePrimary() {
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Identify(context.Background(), str("race@x.com"), str("42"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal(1, s.countContacts())
}

func (s *RepositorySuite) TestConcurrentMergesKeepClustersFlat() {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.svc.Identify(ctx, str(fmt.Sprintf("p%d@x.com", i)), str(fmt.Sprintf("10%d", i)))
		s.Require().NoError(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.svc.Identify(context.Background(), str(fmt.Sprintf("p%d@x.com", i)), str(fmt.Sprintf("10%d", i+1)))
			if err != nil {
				// Contention may surface as a retryable failure; retry once like a client would.
				assert.Equal(s.T(), http.StatusServiceUnavailable, httperror.GetStatusCode(err))
				_, err = s.svc.Identify(context.Background(), str(fmt.Sprintf("p%d@x.com", i)), str(fmt.Sprintf("10%d", i+1)))
			}
			assert.NoError(s.T(), err)
		}(i)
	}
	wg.Wait()

	// Which clusters end up joined depends on commit order; the link structure must stay flat.
	var broken int
	s.Require().NoError(s.pg.DB.Get(&broken, `
		SELECT COUNT(*) FROM contacts c
		LEFT JOIN contacts p ON p.id = c.linked_id AND p.deleted_at IS NULL
		WHERE c.deleted_at IS NULL AND (
			(c.link_precedence = 'primary' AND c.linked_id IS NOT NULL) OR
			(c.link_precedence = 'secondary' AND (p.id IS NULL OR p.link_precedence <> 'primary')))`))
	s.Zero(broken)
	s.Equal(4, s.countContacts())

	for id := int64(1); id <= 4; id++ {
		summary, err := s.svc.Cluster(ctx, id)
		s.Require().NoError(err)
		s.NotContains(summary.SecondaryContactIDs, summary.PrimaryContactID)
	}
}

func (s *RepositorySuite) TestRunExclusiveRollsBack() {
	ctx := context.Background()
	err := s.repo.RunExclusive(ctx, []string{"email:x"}, func(ctx context.Context) error {
		_, err := s.repo.Insert(ctx, &models.Contact{Email: str("x"), LinkPrecedence: models.LinkPrecedencePrimary})
		s.Require().NoError(err)
		return fmt.Errorf("abort")
	})
	s.Require().Error(err)
	s.Equal(0, s.countContacts())
}

func (s *RepositorySuite) TestUpdateRejectsMissingRows() {
	err := s.repo.Update(context.Background(), &models.Contact{ID: 99, LinkPrecedence: models.LinkPrecedencePrimary})
	require.Error(s.T(), err)
}
