//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_websocket.go -package=mocks
package websocket

import (
	"context"

	"chat-realtime/internal/models"
)

// MessageStore persists what the realtime layer must not lose.
type MessageStore interface {
	SaveMessage(ctx context.Context, userID, roomID int, content string) (*models.Message, error)
	ResetUnread(ctx context.Context, userID, roomID int) error
}
