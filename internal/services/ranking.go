package services

import (
	"math"
	"sort"

	"freelance-market/internal/config"
	"freelance-market/internal/domain"
)

// ScoringWeights parameterizes the offer score:
//
//	score = Price*priceScore + Delivery*deliveryScore + Reputation*reputationScore
type ScoringWeights struct {
	Price         float64
	Delivery      float64
	Reputation    float64
	DeliveryScale float64
	DeliveryBonus float64
	MaxReputation float64
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Price:         0.4,
		Delivery:      0.4,
		Reputation:    0.2,
		DeliveryScale: 15,
		DeliveryBonus: 0.1,
		MaxReputation: 5,
	}
}

func ScoringWeightsFromConfig(cfg config.RankingConfig) ScoringWeights {
	return ScoringWeights{
		Price:         cfg.PriceWeight,
		Delivery:      cfg.DeliveryWeight,
		Reputation:    cfg.ReputationWeight,
		DeliveryScale: cfg.DeliveryScale,
		DeliveryBonus: cfg.DeliveryBonus,
		MaxReputation: cfg.MaxReputation,
	}
}

// OfferRanker scores the offers of one auction against each other. It holds no state.
type OfferRanker struct {
	weights ScoringWeights
}

func NewOfferRanker(weights ScoringWeights) *OfferRanker {
	return &OfferRanker{weights: weights}
}

// Rank returns offers ordered best first. Sellers missing from reputations score 0 on reputation.
func (r *OfferRanker) Rank(auction *domain.Auction, offers []*domain.Offer, reputations map[string]float64) []domain.RankedOffer {
	if len(offers) == 0 {
		return []domain.RankedOffer{}
	}

	var total float64
	for _, o := range offers {
		total += o.Price
	}
	avg := total / float64(len(offers))

	ranked := make([]domain.RankedOffer, 0, len(offers))
	for _, o := range offers {
		rep := reputations[o.SellerID]
		ro := domain.RankedOffer{
			Offer:            *o,
			PriceScore:       r.PriceScore(o.Price, avg),
			DeliveryScore:    r.DeliveryScore(auction.RequestedDeliveryDays, o.ProposedDeliveryDays),
			ReputationScore:  r.ReputationScore(rep),
			SellerReputation: rep,
		}
		ro.Score = r.weights.Price*ro.PriceScore +
			r.weights.Delivery*ro.DeliveryScore +
			r.weights.Reputation*ro.ReputationScore
		ranked = append(ranked, ro)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Offer.SubmittedAt.Equal(b.Offer.SubmittedAt) {
			return a.Offer.SubmittedAt.Before(b.Offer.SubmittedAt)
		}
		return a.Offer.ID < b.Offer.ID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// PriceScore rewards prices under the average quadratically and decays above it.
func (r *OfferRanker) PriceScore(price, average float64) float64 {
	if price <= 0 || average <= 0 {
		return 0
	}
	ratio := price / average
	if ratio < 1 {
		return 1 - ratio*ratio
	}
	d := ratio - 1
	return 1 / (1 + d*d)
}

func (r *OfferRanker) DeliveryScore(requestedDays, proposedDays int) float64 {
	if requestedDays <= 0 || proposedDays <= 0 {
		return 0
	}
	diff := math.Abs(float64(requestedDays - proposedDays))
	scaled := diff / r.weights.DeliveryScale
	return 1/(1+scaled*scaled) + r.weights.DeliveryBonus
}

func (r *OfferRanker) ReputationScore(reputation float64) float64 {
	if r.weights.MaxReputation <= 0 {
		return 0
	}
	return math.Max(0, math.Min(reputation, r.weights.MaxReputation)) / r.weights.MaxReputation
}
