package mysql

import (
	"context"

	"freelance-market/internal/domain"
)

const offerColumns = `id, auction_id, seller_id, price, proposed_delivery_days, submitted_at, updated_at`

type MySQLOfferRepository struct {
	db DBTX
}

func NewMySQLOfferRepository(db DBTX) *MySQLOfferRepository {
	return &MySQLOfferRepository{db: db}
}

// CreateOffer relies on the uq_offers_auction_seller key for the one offer
// per seller rule.
func (r *MySQLOfferRepository) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	query := `
        INSERT INTO offers (` + offerColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		offer.ID, offer.AuctionID, offer.SellerID, offer.Price, offer.ProposedDeliveryDays,
		offer.SubmittedAt.UTC(), offer.UpdatedAt.UTC())
	return mapError("create offer "+offer.ID, err)
}

func (r *MySQLOfferRepository) GetOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`
	offer, err := scanOffer(r.db.QueryRowContext(ctx, query, offerID))
	if err != nil {
		return nil, mapError("get offer "+offerID, err)
	}
	return offer, nil
}

func (r *MySQLOfferRepository) UpdateOffer(ctx context.Context, offer *domain.Offer) error {
	query := `
        UPDATE offers
        SET price = ?, proposed_delivery_days = ?, updated_at = ?
        WHERE id = ?
    `
	res, err := r.db.ExecContext(ctx, query, offer.Price, offer.ProposedDeliveryDays, offer.UpdatedAt.UTC(), offer.ID)
	if err != nil {
		return mapError("update offer "+offer.ID, err)
	}
	return expectOneRow("update offer "+offer.ID, res, domain.ErrNotFound)
}

func (r *MySQLOfferRepository) DeleteOffer(ctx context.Context, offerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE id = ?`, offerID)
	if err != nil {
		return mapError("delete offer "+offerID, err)
	}
	return expectOneRow("delete offer "+offerID, res, domain.ErrNotFound)
}

func (r *MySQLOfferRepository) ListByAuction(ctx context.Context, auctionID string) ([]*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE auction_id = ? ORDER BY submitted_at ASC, id ASC`
	return r.list(ctx, "list offers of "+auctionID, query, auctionID)
}

func (r *MySQLOfferRepository) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE seller_id = ? ORDER BY submitted_at ASC, id ASC`
	return r.list(ctx, "list offers by "+sellerID, query, sellerID)
}

func (r *MySQLOfferRepository) ExistsBySeller(ctx context.Context, auctionID, sellerID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM offers WHERE auction_id = ? AND seller_id = ?)`,
		auctionID, sellerID).Scan(&exists)
	if err != nil {
		return false, mapError("check offer of "+sellerID, err)
	}
	return exists, nil
}

func (r *MySQLOfferRepository) CountByAuction(ctx context.Context, auctionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers WHERE auction_id = ?`, auctionID).Scan(&count)
	if err != nil {
		return 0, mapError("count offers of "+auctionID, err)
	}
	return count, nil
}

func (r *MySQLOfferRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.Offer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	offers := []*domain.Offer{}
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return offers, nil
}

func scanOffer(row rowScanner) (*domain.Offer, error) {
	var offer domain.Offer
	err := row.Scan(&offer.ID, &offer.AuctionID, &offer.SellerID, &offer.Price,
		&offer.ProposedDeliveryDays, &offer.SubmittedAt, &offer.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}
