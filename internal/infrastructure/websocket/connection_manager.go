package websocket

import (
	"fmt"
	"sync"

	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"
)

type ConnectionManager struct {
	userConns map[string]map[string]domain.WebSocketConnection // userID -> connID -> connection
	mutex     sync.RWMutex
	log       logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		userConns: make(map[string]map[string]domain.WebSocketConnection),
		log:       log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn domain.WebSocketConnection) error {
	if conn.UserID() == "" {
		return fmt.Errorf("websocket: connection %s has no user", conn.ID())
	}

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	conns := cm.userConns[conn.UserID()]
	if conns == nil {
		conns = make(map[string]domain.WebSocketConnection)
		cm.userConns[conn.UserID()] = conns
	}
	conns[conn.ID()] = conn

	cm.log.Info("Connection registered", "user_id", conn.UserID(), "conn_id", conn.ID())
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if conns, exists := cm.userConns[conn.UserID()]; exists {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(cm.userConns, conn.UserID())
		}
	}

	cm.log.Info("Connection unregistered", "user_id", conn.UserID(), "conn_id", conn.ID())
	return nil
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conns := cm.userConns[userID]
	out := make([]domain.WebSocketConnection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// NotifyUser writes message to every live connection of userID. A user with
// no connection is not an error; the message is dropped.
func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	connections := cm.GetConnectionsForUser(userID)
	if len(connections) == 0 {
		cm.log.Debug("No live connection for user", "user_id", userID)
		return nil
	}

	var failed int
	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			failed++
			cm.log.Error("Failed to send message", "user_id", userID, "conn_id", conn.ID(), "error", err)
		}
	}
	if failed == len(connections) {
		return fmt.Errorf("websocket: all %d connections of %s failed", failed, userID)
	}
	return nil
}

func (cm *ConnectionManager) CloseAll() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for userID, conns := range cm.userConns {
		for id, conn := range conns {
			if err := conn.Close(); err != nil {
				cm.log.Error("Failed to close connection", "user_id", userID, "conn_id", id, "error", err)
			}
		}
	}
	cm.userConns = make(map[string]map[string]domain.WebSocketConnection)
	return nil
}
