//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_database.go -package=mocks
package database

import (
	"context"

	"chat-realtime/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID int) (*models.Room, error)
	LoadRoom(ctx context.Context, roomID int) (*models.Room, error)
	ListUserRooms(ctx context.Context, userID int) ([]models.RoomSummary, error)
	DeleteRoom(ctx context.Context, roomID, ownerID int) error
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, userID, roomID int, content string) (*models.Message, error)
	LoadRecentMessages(ctx context.Context, roomID, limit int) ([]*models.Message, error)
}

type UnreadRepository interface {
	ResetUnread(ctx context.Context, userID, roomID int) error
}

type MembershipRepository interface {
	AddMembership(ctx context.Context, userID, roomID int) error
	RemoveMembership(ctx context.Context, userID, roomID int) error
	IsMember(ctx context.Context, userID, roomID int) (bool, error)
	GetRoomMembers(ctx context.Context, roomID int) ([]models.Member, error)
}

type FriendRepository interface {
	ListFriendIDs(ctx context.Context, userID int) ([]int, error)
}

type Database interface {
	UserRepository
	RoomRepository
	MessageRepository
	UnreadRepository
	MembershipRepository
	FriendRepository
	Close() error
}
