package handlers

import (
	"net/http"

	"freelance-market/internal/api/middleware"
	"freelance-market/internal/domain"
	"freelance-market/internal/infrastructure/websocket"
	"freelance-market/pkg/logger"

	"github.com/gorilla/mux"
)

// WebSocketHandlers exposes the realtime notification endpoints on a mux router.
type WebSocketHandlers struct {
	wsHandler   *websocket.WebSocketHandler
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandlers(connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{
		wsHandler:   websocket.NewWebSocketHandler(connManager, log),
		connManager: connManager,
		log:         log,
	}
}

func (h *WebSocketHandlers) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.CORSWithLogging(h.log))

	router.HandleFunc("/ws/notifications", h.HandleConnection).Methods(http.MethodGet)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	return router
}

func (h *WebSocketHandlers) HandleConnection(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}

func (h *WebSocketHandlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
