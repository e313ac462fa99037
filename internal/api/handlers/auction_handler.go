package handlers

import (
	"errors"
	"net/http"
	"time"

	"freelance-market/internal/api/middleware"
	"freelance-market/internal/domain"
	"freelance-market/internal/services"
	"freelance-market/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AuctionHandler struct {
	service *services.AuctionService
	log     logger.Logger
}

type AuctionRequest struct {
	Title                 string    `json:"title"`
	Description           string    `json:"description"`
	CategoryIDs           []string  `json:"category_ids"`
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
	RequestedDeliveryDays int       `json:"requested_delivery_days"`
}

type OfferRequest struct {
	Price                float64 `json:"price"`
	ProposedDeliveryDays int     `json:"proposed_delivery_days"`
}

type WinnerRequest struct {
	WinnerID string `json:"winner_id"`
}

type AuctionResponse struct {
	AuctionID             string    `json:"auction_id"`
	Title                 string    `json:"title"`
	Description           string    `json:"description"`
	OwnerID               string    `json:"owner_id"`
	CategoryIDs           []string  `json:"category_ids"`
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
	RequestedDeliveryDays int       `json:"requested_delivery_days"`
	Status                string    `json:"status"`
	WinnerID              string    `json:"winner_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type StatusChangeResponse struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Cause string    `json:"cause"`
	At    time.Time `json:"at"`
}

type AuctionDetailsResponse struct {
	AuctionResponse
	OfferCount int                    `json:"offer_count"`
	Subscribed bool                   `json:"subscribed"`
	History    []StatusChangeResponse `json:"history"`
}

type OfferResponse struct {
	OfferID              string    `json:"offer_id"`
	AuctionID            string    `json:"auction_id"`
	SellerID             string    `json:"seller_id"`
	Price                float64   `json:"price"`
	ProposedDeliveryDays int       `json:"proposed_delivery_days"`
	SubmittedAt          time.Time `json:"submitted_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type RankedOfferResponse struct {
	OfferResponse
	Rank             int     `json:"rank"`
	Score            float64 `json:"score"`
	PriceScore       float64 `json:"price_score"`
	DeliveryScore    float64 `json:"delivery_score"`
	ReputationScore  float64 `json:"reputation_score"`
	SellerReputation float64 `json:"seller_reputation"`
}

func NewAuctionHandler(service *services.AuctionService, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		service: service,
		log:     log,
	}
}

// Register mounts the auction and offer routes on g. Every route needs the
// X-User-ID header.
func (h *AuctionHandler) Register(g *echo.Group) {
	g.Use(middleware.RequireActor())

	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions", h.ListAuctions)
	g.GET("/auctions/:id", h.GetAuction)
	g.PUT("/auctions/:id", h.UpdateAuction)
	g.DELETE("/auctions/:id", h.DeleteAuction)

	g.GET("/auctions/:id/subscription", h.IsSubscribed)
	g.PUT("/auctions/:id/subscription", h.Subscribe)
	g.DELETE("/auctions/:id/subscription", h.Unsubscribe)

	g.POST("/auctions/:id/winner", h.AssignWinner)

	g.POST("/auctions/:id/offers", h.SubmitOffer)
	g.GET("/auctions/:id/offers", h.ListOffersRanked)
	g.GET("/offers", h.ListMyOffers)
	g.GET("/offers/:id", h.GetOffer)
	g.PUT("/offers/:id", h.UpdateOffer)
	g.DELETE("/offers/:id", h.DeleteOffer)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req AuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	auction, err := h.service.CreateAuction(c.Request().Context(), middleware.Actor(c), req.draft())
	if err != nil {
		return h.fail(c, "Failed to create auction", err)
	}
	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

// ListAuctions filters by ?status= or, with ?owner=me, by the caller's auctions.
func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	var (
		auctions []*domain.Auction
		err      error
	)
	switch {
	case c.QueryParam("owner") == "me":
		auctions, err = h.service.ListByOwner(c.Request().Context(), middleware.Actor(c))
	case c.QueryParam("status") != "":
		status, perr := domain.ParseAuctionStatus(c.QueryParam("status"))
		if perr != nil {
			return h.fail(c, "Failed to list auctions", perr)
		}
		auctions, err = h.service.ListByStatus(c.Request().Context(), status)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "status or owner=me is required"})
	}
	if err != nil {
		return h.fail(c, "Failed to list auctions", err)
	}

	out := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toAuctionResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	details, err := h.service.GetAuctionDetails(c.Request().Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		return h.fail(c, "Failed to get auction", err)
	}

	resp := AuctionDetailsResponse{
		AuctionResponse: toAuctionResponse(&details.Auction),
		OfferCount:      details.OfferCount,
		Subscribed:      details.Subscribed,
		History:         make([]StatusChangeResponse, 0, len(details.History)),
	}
	for _, ch := range details.History {
		resp.History = append(resp.History, StatusChangeResponse{
			From:  ch.From.String(),
			To:    ch.To.String(),
			Cause: string(ch.Cause),
			At:    ch.At,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuctionHandler) UpdateAuction(c echo.Context) error {
	var req AuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	auction, err := h.service.UpdateAuction(c.Request().Context(), middleware.Actor(c), c.Param("id"), req.draft())
	if err != nil {
		return h.fail(c, "Failed to update auction", err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) DeleteAuction(c echo.Context) error {
	if err := h.service.DeleteAuction(c.Request().Context(), middleware.Actor(c), c.Param("id")); err != nil {
		return h.fail(c, "Failed to delete auction", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) IsSubscribed(c echo.Context) error {
	subscribed, err := h.service.IsSubscribed(c.Request().Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		return h.fail(c, "Failed to check subscription", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"subscribed": subscribed})
}

func (h *AuctionHandler) Subscribe(c echo.Context) error {
	if err := h.service.Subscribe(c.Request().Context(), middleware.Actor(c), c.Param("id")); err != nil {
		return h.fail(c, "Failed to subscribe", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) Unsubscribe(c echo.Context) error {
	if err := h.service.Unsubscribe(c.Request().Context(), middleware.Actor(c), c.Param("id")); err != nil {
		return h.fail(c, "Failed to unsubscribe", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) AssignWinner(c echo.Context) error {
	var req WinnerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	auction, err := h.service.AssignWinner(c.Request().Context(), middleware.Actor(c), c.Param("id"), req.WinnerID)
	if err != nil {
		return h.fail(c, "Failed to assign winner", err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) SubmitOffer(c echo.Context) error {
	var req OfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	offer, err := h.service.SubmitOffer(c.Request().Context(), middleware.Actor(c), c.Param("id"), req.draft())
	if err != nil {
		return h.fail(c, "Failed to submit offer", err)
	}
	return c.JSON(http.StatusCreated, toOfferResponse(offer))
}

func (h *AuctionHandler) ListOffersRanked(c echo.Context) error {
	ranked, err := h.service.ListOffersRanked(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "Failed to list offers", err)
	}

	out := make([]RankedOfferResponse, 0, len(ranked))
	for i := range ranked {
		out = append(out, toRankedOfferResponse(&ranked[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuctionHandler) ListMyOffers(c echo.Context) error {
	offers, err := h.service.ListOffersBySeller(c.Request().Context(), middleware.Actor(c))
	if err != nil {
		return h.fail(c, "Failed to list offers", err)
	}

	out := make([]OfferResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferResponse(o))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuctionHandler) GetOffer(c echo.Context) error {
	ranked, err := h.service.GetOffer(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "Failed to get offer", err)
	}
	return c.JSON(http.StatusOK, toRankedOfferResponse(ranked))
}

func (h *AuctionHandler) UpdateOffer(c echo.Context) error {
	var req OfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	offer, err := h.service.UpdateOffer(c.Request().Context(), middleware.Actor(c), c.Param("id"), req.draft())
	if err != nil {
		return h.fail(c, "Failed to update offer", err)
	}
	return c.JSON(http.StatusOK, toOfferResponse(offer))
}

func (h *AuctionHandler) DeleteOffer(c echo.Context) error {
	if err := h.service.DeleteOffer(c.Request().Context(), middleware.Actor(c), c.Param("id")); err != nil {
		return h.fail(c, "Failed to delete offer", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// fail maps a domain error kind to its status code. Only server-side
// failures are logged as errors.
func (h *AuctionHandler) fail(c echo.Context, msg string, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, "error", err, "path", c.Path(), "actor_id", middleware.Actor(c))
		return c.JSON(status, map[string]string{"error": msg})
	}
	h.log.Debug(msg, "error", err, "status", status)
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOwnershipViolation):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateEntity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (r AuctionRequest) draft() domain.AuctionDraft {
	return domain.AuctionDraft{
		Title:                 r.Title,
		Description:           r.Description,
		CategoryIDs:           r.CategoryIDs,
		StartDate:             r.StartDate,
		EndDate:               r.EndDate,
		RequestedDeliveryDays: r.RequestedDeliveryDays,
	}
}

func (r OfferRequest) draft() domain.OfferDraft {
	return domain.OfferDraft{
		Price:                r.Price,
		ProposedDeliveryDays: r.ProposedDeliveryDays,
	}
}

func toAuctionResponse(a *domain.Auction) AuctionResponse {
	categories := a.CategoryIDs
	if categories == nil {
		categories = []string{}
	}
	return AuctionResponse{
		AuctionID:             a.ID,
		Title:                 a.Title,
		Description:           a.Description,
		OwnerID:               a.OwnerID,
		CategoryIDs:           categories,
		StartDate:             a.StartDate,
		EndDate:               a.EndDate,
		RequestedDeliveryDays: a.RequestedDeliveryDays,
		Status:                a.Status.String(),
		WinnerID:              a.WinnerID,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func toOfferResponse(o *domain.Offer) OfferResponse {
	return OfferResponse{
		OfferID:              o.ID,
		AuctionID:            o.AuctionID,
		SellerID:             o.SellerID,
		Price:                o.Price,
		ProposedDeliveryDays: o.ProposedDeliveryDays,
		SubmittedAt:          o.SubmittedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func toRankedOfferResponse(r *domain.RankedOffer) RankedOfferResponse {
	return RankedOfferResponse{
		OfferResponse:    toOfferResponse(&r.Offer),
		Rank:             r.Rank,
		Score:            r.Score,
		PriceScore:       r.PriceScore,
		DeliveryScore:    r.DeliveryScore,
		ReputationScore:  r.ReputationScore,
		SellerReputation: r.SellerReputation,
	}
}
