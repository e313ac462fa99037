package mysql

import (
	"context"

	"freelance-market/internal/domain"
)

// MySQLHistoryRepository appends to auction_status_history. The table has no
// foreign key so the history outlives a deleted auction.
type MySQLHistoryRepository struct {
	db DBTX
}

func NewMySQLHistoryRepository(db DBTX) *MySQLHistoryRepository {
	return &MySQLHistoryRepository{db: db}
}

func (r *MySQLHistoryRepository) AppendStatusChange(ctx context.Context, change *domain.StatusChange) error {
	query := `
        INSERT INTO auction_status_history (auction_id, from_status, to_status, cause, changed_at)
        VALUES (?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		change.AuctionID, change.From.String(), change.To.String(), string(change.Cause), change.At.UTC())
	return mapError("append history of "+change.AuctionID, err)
}

func (r *MySQLHistoryRepository) ListStatusChanges(ctx context.Context, auctionID string) ([]domain.StatusChange, error) {
	query := `
        SELECT auction_id, from_status, to_status, cause, changed_at
        FROM auction_status_history
        WHERE auction_id = ?
        ORDER BY id ASC
    `
	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, mapError("list history of "+auctionID, err)
	}
	defer rows.Close()

	var changes []domain.StatusChange
	for rows.Next() {
		var (
			change   domain.StatusChange
			from, to string
			cause    string
		)
		if err := rows.Scan(&change.AuctionID, &from, &to, &cause, &change.At); err != nil {
			return nil, mapError("list history of "+auctionID, err)
		}
		if change.From, err = domain.ParseAuctionStatus(from); err != nil {
			return nil, mapError("list history of "+auctionID, err)
		}
		if change.To, err = domain.ParseAuctionStatus(to); err != nil {
			return nil, mapError("list history of "+auctionID, err)
		}
		change.Cause = domain.ChangeCause(cause)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list history of "+auctionID, err)
	}
	return changes, nil
}
