package mysql

import (
	"context"

	"freelance-market/internal/domain"
)

type MySQLSubscriptionRepository struct {
	db DBTX
}

func NewMySQLSubscriptionRepository(db DBTX) *MySQLSubscriptionRepository {
	return &MySQLSubscriptionRepository{db: db}
}

func (r *MySQLSubscriptionRepository) AddSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (auction_id, user_id, created_at) VALUES (?, ?, ?)`,
		sub.AuctionID, sub.UserID, sub.CreatedAt.UTC())
	return mapError("subscribe "+sub.UserID+" to "+sub.AuctionID, err)
}

func (r *MySQLSubscriptionRepository) RemoveSubscription(ctx context.Context, auctionID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE auction_id = ? AND user_id = ?`, auctionID, userID)
	if err != nil {
		return false, mapError("unsubscribe "+userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError("unsubscribe "+userID, err)
	}
	return n > 0, nil
}

func (r *MySQLSubscriptionRepository) Exists(ctx context.Context, auctionID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscriptions WHERE auction_id = ? AND user_id = ?)`,
		auctionID, userID).Scan(&exists)
	if err != nil {
		return false, mapError("check subscription of "+userID, err)
	}
	return exists, nil
}

func (r *MySQLSubscriptionRepository) ListSubscribers(ctx context.Context, auctionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM subscriptions WHERE auction_id = ? ORDER BY user_id`, auctionID)
	if err != nil {
		return nil, mapError("list subscribers of "+auctionID, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, mapError("list subscribers of "+auctionID, err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list subscribers of "+auctionID, err)
	}
	return users, nil
}

func (r *MySQLSubscriptionRepository) DeleteByAuction(ctx context.Context, auctionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE auction_id = ?`, auctionID)
	return mapError("drop subscriptions of "+auctionID, err)
}
