package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"freelance-market/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var auctionRowColumns = []string{
	"id", "title", "description", "owner_id", "category_ids", "start_date", "end_date",
	"requested_delivery_days", "status", "winner_id", "version", "created_at", "updated_at",
}

func auctionRow(rows *sqlmock.Rows, id, status string, version int64, start, end time.Time) *sqlmock.Rows {
	return rows.AddRow(id, "Logo", "Vector logo", "owner_1", []byte(`["design","branding"]`),
		start, end, 10, status, nil, version, start.Add(-time.Hour), start.Add(-time.Hour))
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError("op", sql.ErrNoRows), domain.ErrNotFound)
	assert.ErrorIs(t, mapError("op", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}), domain.ErrDuplicateEntity)
	assert.ErrorIs(t, mapError("op", &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock"}), domain.ErrPersistence)
	assert.ErrorIs(t, mapError("op", context.Canceled), context.Canceled)
	assert.ErrorIs(t, mapError("op", errors.New("bad connection")), domain.ErrPersistence)
	assert.NoError(t, mapError("op", nil))
}

func TestAuctionRepository_GetAuction(t *testing.T) {
	db, mock := newMockDB(t)
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM auctions WHERE id = \?`).
		WithArgs("auction_1").
		WillReturnRows(auctionRow(sqlmock.NewRows(auctionRowColumns), "auction_1", "OPEN", 3, start, end))

	got, err := NewMySQLAuctionRepository(db).GetAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionOpen, got.Status)
	assert.Equal(t, []string{"design", "branding"}, got.CategoryIDs)
	assert.Equal(t, int64(3), got.Version)
	assert.Empty(t, got.WinnerID)
	assert.True(t, end.Equal(got.EndDate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_GetAuctionNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT .+ FROM auctions WHERE id = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(auctionRowColumns))

	_, err := NewMySQLAuctionRepository(db).GetAuction(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuctionRepository_CreateSetsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	auction := &domain.Auction{
		ID: "auction_1", Title: "Logo", OwnerID: "owner_1",
		StartDate: now.Add(time.Hour), EndDate: now.Add(3 * time.Hour),
		RequestedDeliveryDays: 10, Status: domain.AuctionPending,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO auctions`).
		WithArgs("auction_1", "Logo", "", "owner_1", "[]", auction.StartDate, auction.EndDate, 10,
			"PENDING", sqlmock.AnyArg(), 1, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewMySQLAuctionRepository(db).CreateAuction(context.Background(), auction))
	assert.Equal(t, int64(1), auction.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuctionRepository_UpdateStaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	auction := &domain.Auction{ID: "auction_1", Status: domain.AuctionOpen, Version: 4}

	mock.ExpectExec(`UPDATE auctions .+ WHERE id = \? AND version = \?`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewMySQLAuctionRepository(db).UpdateAuction(context.Background(), auction)
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, int64(4), auction.Version)
}

func TestAuctionRepository_ListDue(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(auctionRowColumns)
	auctionRow(rows, "a_pending", "PENDING", 1, now.Add(-time.Minute), now.Add(time.Hour))
	auctionRow(rows, "a_open", "OPEN", 2, now.Add(-2*time.Hour), now.Add(30*time.Minute))
	mock.ExpectQuery(`SELECT .+ FROM auctions\s+WHERE \(status = 'PENDING' AND start_date <= \?\)`).
		WithArgs(now, now.Add(time.Hour)).
		WillReturnRows(rows)

	due, err := NewMySQLAuctionRepository(db).ListDue(context.Background(), now, time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, domain.AuctionPending, due[0].Status)
	assert.Equal(t, domain.AuctionOpen, due[1].Status)
}

func TestAuctionRepository_RejectsUnknownStatus(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM auctions WHERE id = \?`).
		WillReturnRows(auctionRow(sqlmock.NewRows(auctionRowColumns), "auction_1", "ARCHIVED", 1, now, now))

	_, err := NewMySQLAuctionRepository(db).GetAuction(context.Background(), "auction_1")
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestOfferRepository_DuplicateSeller(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	offer := &domain.Offer{ID: "offer_1", AuctionID: "auction_1", SellerID: "s1", Price: 100, ProposedDeliveryDays: 10, SubmittedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO offers`).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'auction_1-s1' for key 'uq_offers_auction_seller'"})

	err := NewMySQLOfferRepository(db).CreateOffer(context.Background(), offer)
	require.ErrorIs(t, err, domain.ErrDuplicateEntity)
}

func TestOfferRepository_ListByAuction(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "auction_id", "seller_id", "price", "proposed_delivery_days", "submitted_at", "updated_at"}).
		AddRow("offer_1", "auction_1", "s1", 100.0, 10, now, now).
		AddRow("offer_2", "auction_1", "s2", 80.5, 12, now.Add(time.Minute), now.Add(time.Minute))
	mock.ExpectQuery(`FROM offers WHERE auction_id = \? ORDER BY submitted_at ASC, id ASC`).
		WithArgs("auction_1").
		WillReturnRows(rows)

	offers, err := NewMySQLOfferRepository(db).ListByAuction(context.Background(), "auction_1")
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, 80.5, offers[1].Price)
	assert.Equal(t, 12, offers[1].ProposedDeliveryDays)
}

func TestOfferRepository_DeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`DELETE FROM offers WHERE id = \?`).WithArgs("offer_x").WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewMySQLOfferRepository(db).DeleteOffer(context.Background(), "offer_x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubscriptionRepository(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	repo := NewMySQLSubscriptionRepository(db)

	mock.ExpectExec(`INSERT INTO subscriptions`).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	err := repo.AddSubscription(ctx, &domain.Subscription{AuctionID: "auction_1", UserID: "u1", CreatedAt: time.Now()})
	require.ErrorIs(t, err, domain.ErrDuplicateEntity)

	mock.ExpectExec(`DELETE FROM subscriptions WHERE auction_id = \? AND user_id = \?`).
		WithArgs("auction_1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	removed, err := repo.RemoveSubscription(ctx, "auction_1", "u2")
	require.NoError(t, err)
	assert.False(t, removed)

	mock.ExpectQuery(`SELECT user_id FROM subscriptions`).
		WithArgs("auction_1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u3"))
	users, err := repo.ListSubscribers(ctx, "auction_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, users)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM auction_status_history`).
		WithArgs("auction_1").
		WillReturnRows(sqlmock.NewRows([]string{"auction_id", "from_status", "to_status", "cause", "changed_at"}).
			AddRow("auction_1", "PENDING", "PENDING", "created", at).
			AddRow("auction_1", "PENDING", "OPEN", "scheduler", at.Add(time.Hour)))

	changes, err := NewMySQLHistoryRepository(db).ListStatusChanges(context.Background(), "auction_1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, domain.AuctionOpen, changes[1].To)
	assert.Equal(t, domain.CauseScheduler, changes[1].Cause)
}

func TestReputationRepository(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT user_id, reputation FROM user_reputations WHERE user_id IN \(\?, \?\)`).
		WithArgs("s1", "s2").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "reputation"}).AddRow("s1", 4.5))

	got, err := NewMySQLReputationRepository(db).Reputations(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"s1": 4.5}, got)

	empty, err := NewMySQLReputationRepository(db).Reputations(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTxCommits(t *testing.T) {
	db, mock := newMockDB(t)
	start := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM auctions WHERE id = \? FOR UPDATE`).
		WithArgs("auction_1").
		WillReturnRows(auctionRow(sqlmock.NewRows(auctionRowColumns), "auction_1", "PENDING", 2, start, start.Add(time.Hour)))
	mock.ExpectExec(`UPDATE auctions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO auction_status_history`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := NewStore(db).WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		auction, err := repos.Auctions.GetAuctionForUpdate(ctx, "auction_1")
		if err != nil {
			return err
		}
		auction.Status = domain.AuctionOpen
		if err := repos.Auctions.UpdateAuction(ctx, auction); err != nil {
			return err
		}
		if auction.Version != 3 {
			return errors.New("version not bumped")
		}
		return repos.History.AppendStatusChange(ctx, &domain.StatusChange{
			AuctionID: auction.ID, From: domain.AuctionPending, To: domain.AuctionOpen, Cause: domain.CauseScheduler, At: start,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := NewStore(db).WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		return domain.ErrInvalidState
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTxRollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	require.PanicsWithValue(t, "boom", func() {
		_ = NewStore(db).WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitFailureIsPersistenceError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err := NewStore(db).WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		return nil
	})
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	db, _ := newMockDB(t)
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("lock timeout")
	}
	require.Error(t, Migrate(context.Background(), db))
}
