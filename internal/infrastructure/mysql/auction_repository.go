package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"freelance-market/internal/domain"
)

const auctionColumns = `id, title, description, owner_id, category_ids, start_date, end_date,
        requested_delivery_days, status, winner_id, version, created_at, updated_at`

type MySQLAuctionRepository struct {
	db DBTX
}

func NewMySQLAuctionRepository(db DBTX) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	categories, err := encodeCategories(auction.CategoryIDs)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = r.db.ExecContext(ctx, query,
		auction.ID, auction.Title, auction.Description, auction.OwnerID, categories,
		auction.StartDate.UTC(), auction.EndDate.UTC(), auction.RequestedDeliveryDays,
		auction.Status.String(), nullString(auction.WinnerID), 1,
		auction.CreatedAt.UTC(), auction.UpdatedAt.UTC())
	if err != nil {
		return mapError("create auction "+auction.ID, err)
	}
	auction.Version = 1
	return nil
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		return nil, mapError("get auction "+auctionID, err)
	}
	return auction, nil
}

func (r *MySQLAuctionRepository) GetAuctionForUpdate(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ? FOR UPDATE`
	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		return nil, mapError("lock auction "+auctionID, err)
	}
	return auction, nil
}

// UpdateAuction writes every mutable column when the stored version still
// matches auction.Version, then bumps the version on both sides.
func (r *MySQLAuctionRepository) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	categories, err := encodeCategories(auction.CategoryIDs)
	if err != nil {
		return err
	}

	query := `
        UPDATE auctions
        SET title = ?, description = ?, category_ids = ?, start_date = ?, end_date = ?,
            requested_delivery_days = ?, status = ?, winner_id = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `
	res, err := r.db.ExecContext(ctx, query,
		auction.Title, auction.Description, categories, auction.StartDate.UTC(), auction.EndDate.UTC(),
		auction.RequestedDeliveryDays, auction.Status.String(), nullString(auction.WinnerID), auction.UpdatedAt.UTC(),
		auction.ID, auction.Version)
	if err != nil {
		return mapError("update auction "+auction.ID, err)
	}

	stale := fmt.Errorf("%w: auction %s changed since version %d", domain.ErrPersistence, auction.ID, auction.Version)
	if err := expectOneRow("update auction "+auction.ID, res, stale); err != nil {
		return err
	}
	auction.Version++
	return nil
}

func (r *MySQLAuctionRepository) DeleteAuction(ctx context.Context, auctionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = ?`, auctionID)
	if err != nil {
		return mapError("delete auction "+auctionID, err)
	}
	return expectOneRow("delete auction "+auctionID, res, domain.ErrNotFound)
}

func (r *MySQLAuctionRepository) ListByStatus(ctx context.Context, status domain.AuctionStatus) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? ORDER BY created_at, id`
	return r.list(ctx, "list auctions by status", query, status.String())
}

func (r *MySQLAuctionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE owner_id = ? ORDER BY created_at, id`
	return r.list(ctx, "list auctions by owner", query, ownerID)
}

func (r *MySQLAuctionRepository) ListDue(ctx context.Context, now time.Time, endingSoonWindow time.Duration) ([]*domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE (status = 'PENDING' AND start_date <= ?)
           OR (status = 'OPEN' AND end_date <= ?)
        ORDER BY created_at, id
    `
	return r.list(ctx, "list due auctions", query, now.UTC(), now.Add(endingSoonWindow).UTC())
}

func (r *MySQLAuctionRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	auctions := []*domain.Auction{}
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		auctions = append(auctions, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return auctions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		auction    domain.Auction
		categories []byte
		status     string
		winner     sql.NullString
	)
	err := row.Scan(
		&auction.ID, &auction.Title, &auction.Description, &auction.OwnerID, &categories,
		&auction.StartDate, &auction.EndDate, &auction.RequestedDeliveryDays,
		&status, &winner, &auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if auction.Status, err = domain.ParseAuctionStatus(status); err != nil {
		return nil, err
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &auction.CategoryIDs); err != nil {
			return nil, fmt.Errorf("decode categories of %s: %w", auction.ID, err)
		}
	}
	auction.WinnerID = winner.String
	return &auction, nil
}

func encodeCategories(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("mysql: encode categories: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
