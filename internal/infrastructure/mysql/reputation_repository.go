package mysql

import (
	"context"
	"strings"

	"freelance-market/internal/domain"
)

// MySQLReputationRepository reads seller reputations maintained by the
// review service. It is a domain.ReputationProvider.
type MySQLReputationRepository struct {
	db DBTX
}

func NewMySQLReputationRepository(db DBTX) *MySQLReputationRepository {
	return &MySQLReputationRepository{db: db}
}

func (r *MySQLReputationRepository) Reputations(ctx context.Context, sellerIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(sellerIDs))
	if len(sellerIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(sellerIDs))
	for i, id := range sellerIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sellerIDs)), ", ")
	query := `SELECT user_id, reputation FROM user_reputations WHERE user_id IN (` + placeholders + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("load reputations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID     string
			reputation float64
		)
		if err := rows.Scan(&userID, &reputation); err != nil {
			return nil, mapError("load reputations", err)
		}
		out[userID] = reputation
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("load reputations", err)
	}
	return out, nil
}

var _ domain.ReputationProvider = (*MySQLReputationRepository)(nil)
