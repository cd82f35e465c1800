package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"faceguard/internal/attendance"
	"faceguard/internal/enrollment"
	"faceguard/internal/journal"
	"faceguard/internal/queue"
	"faceguard/internal/store"
)

type SQLiteSuite struct {
	suite.Suite
	db  *store.DB
	ctx context.Context
	t0  time.Time
}

func TestSQLiteSuite(t *testing.T) {
	suite.Run(t, new(SQLiteSuite))
}

func (s *SQLiteSuite) SetupTest() {
	s.ctx = context.Background()
	s.t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	db, err := store.Open(s.ctx, store.DriverSQLite, filepath.Join(s.T().TempDir(), "data", "faceguard.db"))
	s.Require().NoError(err)
	s.Require().NoError(db.Migrate(s.ctx))
	s.db = db
}

func (s *SQLiteSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
}

func (s *SQLiteSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(s.db.Migrate(s.ctx))
	s.True(s.db.Healthy(s.ctx))
}

func (s *SQLiteSuite) TestIdentityRepository() {
	repo := enrollment.NewRepository(s.db.Client)
	s.Require().NoError(repo.InsertIdentity(s.ctx, enrollment.Identity{ID: "a", Name: "Ann", ReferenceImage: []byte{1, 2, 3}, EnrolledAt: s.t0}))
	s.Require().NoError(repo.InsertIdentity(s.ctx, enrollment.Identity{ID: "b", Name: "Bob", ReferenceImage: []byte{4}, EnrolledAt: s.t0.Add(time.Second)}))
	// replay keeps the original row
	s.Require().NoError(repo.InsertIdentity(s.ctx, enrollment.Identity{ID: "a", Name: "Changed", ReferenceImage: []byte{9}, EnrolledAt: s.t0}))

	got, err := repo.ListIdentities(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("Ann", got[0].Name)
	s.Equal([]byte{1, 2, 3}, got[0].ReferenceImage)
	s.True(got[0].EnrolledAt.Equal(s.t0))
	s.Equal("Bob", got[1].Name)

	s.Require().NoError(repo.DeleteIdentity(s.ctx, "a"))
	got, err = repo.ListIdentities(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("b", got[0].ID)

	s.Error(repo.InsertIdentity(s.ctx, enrollment.Identity{Name: "NoID"}))
}

func (s *SQLiteSuite) TestAttendanceRepository() {
	repo := attendance.NewRepository(s.db.Client)
	conf := 0.82
	for i, name := range []string{"Ann", "Bob", "Cy"} {
		rec := attendance.Record{
			ID:           name,
			IdentityName: name,
			Timestamp:    s.t0.Add(time.Duration(i) * time.Minute),
			Status:       attendance.StatusPresent,
		}
		if name == "Bob" {
			rec.Confidence = &conf
		}
		s.Require().NoError(repo.InsertRecord(s.ctx, rec))
	}

	all, err := repo.ListRecords(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]string{"Cy", "Bob", "Ann"}, []string{all[0].IdentityName, all[1].IdentityName, all[2].IdentityName})
	s.Nil(all[0].Confidence)
	s.Require().NotNil(all[1].Confidence)
	s.InDelta(0.82, *all[1].Confidence, 1e-9)
	s.Equal(attendance.StatusPresent, all[2].Status)
	s.True(all[2].Timestamp.Equal(s.t0))

	page, err := repo.ListRecords(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal("Bob", page[0].IdentityName)

	s.Require().NoError(repo.ClearRecords(s.ctx))
	all, err = repo.ListRecords(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Empty(all)
}

// TestJournalRestoresLedger runs the full persistence path: ledger mutations
// are journaled, applied to the database, and restored into a fresh ledger.
func (s *SQLiteSuite) TestJournalRestoresLedger() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	attRepo := attendance.NewRepository(s.db.Client)
	idRepo := enrollment.NewRepository(s.db.Client)
	q := queue.NewInMemory(16)
	go func() { _ = journal.NewApplier(attRepo, idRepo, nil).Run(ctx, q) }()

	ledger := attendance.NewLedger(time.Hour)
	detach := journal.NewPublisher(q, time.Second, nil).Attach(ledger, nil)
	defer detach()

	_, err := ledger.Record("Ann", s.t0)
	s.Require().NoError(err)
	_, err = ledger.Record("Bob", s.t0.Add(time.Minute))
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		recs, err := attRepo.ListRecords(s.ctx, 0, 0)
		return err == nil && len(recs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := attRepo.ListRecords(s.ctx, 0, 0)
	s.Require().NoError(err)
	restored := attendance.NewLedger(time.Hour)
	restored.Restore(recs)

	outcome, err := restored.Record("Ann", s.t0.Add(30*time.Minute))
	s.Require().NoError(err)
	s.Equal(attendance.Suppressed, outcome)
	s.Equal("Bob", restored.ListRecent(1)[0].IdentityName)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "oracle", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
