//go:generate go run go.uber.org/mock/mockgen -source=room_service.go -destination=../mocks/mock_services.go -package=mocks
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/database"
	"chat-realtime/internal/models"
	"chat-realtime/internal/rooms"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
)

// Membership is the realtime side of room membership.
type Membership interface {
	MembershipChanged(ctx context.Context, delta rooms.Delta) error
	Unread(roomID, userID int) (uint, bool)
}

// PresenceReader answers whether a user currently has an open session.
type PresenceReader interface {
	Status(userID int) models.PresenceStatus
}

const defaultHistoryLimit = 50

type RoomService struct {
	db       database.Database
	live     Membership
	presence PresenceReader
	validate *validator.Validate
}

func NewRoomService(db database.Database, live Membership, presence PresenceReader) *RoomService {
	return &RoomService{
		db:       db,
		live:     live,
		presence: presence,
		validate: validator.New(),
	}
}

// publish pushes a committed change to the realtime layer. The database is
// already authoritative, so a failure is reported but not rolled back.
func (s *RoomService) publish(ctx context.Context, delta rooms.Delta) error {
	if err := s.live.MembershipChanged(ctx, delta); err != nil {
		return fmt.Errorf("publish %s for room %d: %w", delta.Kind, delta.RoomID, err)
	}
	return nil
}

func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID int) (*models.Room, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid room: %w", err)
	}
	req.MemberIDs = lo.Uniq(lo.Without(req.MemberIDs, ownerID))

	room, err := s.db.CreateRoom(ctx, req, ownerID)
	if err != nil {
		return nil, err
	}
	return room, s.publish(ctx, rooms.Delta{Kind: rooms.RoomCreated, RoomID: room.ID, Room: room})
}

// ListUserRooms returns the user's rooms with live unread counters where the
// room is already loaded in memory.
func (s *RoomService) ListUserRooms(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	list, err := s.db.ListUserRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if unread, ok := s.live.Unread(list[i].ID, userID); ok {
			list[i].UnreadCount = unread
		}
	}
	return list, nil
}

// DeleteRoom removes the room. Its members are read first so that sessions
// which never joined it still hear about the deletion.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, ownerID int) error {
	members, err := s.db.GetRoomMembers(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.db.DeleteRoom(ctx, roomID, ownerID); err != nil {
		return err
	}
	return s.publish(ctx, rooms.Delta{Kind: rooms.RoomDeleted, RoomID: roomID, Members: members})
}

func (s *RoomService) InviteUser(ctx context.Context, roomID, inviterID int, email string) error {
	room, err := s.db.LoadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != inviterID && !lo.ContainsBy(room.Members, func(m models.Member) bool { return m.UserID == inviterID }) {
		return fmt.Errorf("invite to room %d: %w", roomID, apperr.ErrForbidden)
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("invite %s: %w", email, apperr.ErrUserNotFound)
	}
	if err != nil {
		return err
	}

	if err := s.db.AddMembership(ctx, user.ID, roomID); err != nil {
		return err
	}
	return s.publish(ctx, rooms.Delta{
		Kind:    rooms.MembersAdded,
		RoomID:  roomID,
		Members: []models.Member{{UserID: user.ID, Username: user.Username}},
	})
}

func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID int) error {
	if err := s.requireMember(ctx, userID, roomID); err != nil {
		return err
	}
	if err := s.db.RemoveMembership(ctx, userID, roomID); err != nil {
		return err
	}
	return s.publish(ctx, rooms.Delta{Kind: rooms.MemberRemoved, RoomID: roomID, UserID: userID})
}

func (s *RoomService) GetRoomMembers(ctx context.Context, roomID, userID int) ([]models.Member, error) {
	if err := s.requireMember(ctx, userID, roomID); err != nil {
		return nil, err
	}
	return s.db.GetRoomMembers(ctx, roomID)
}

// GetActiveUsers lists the room members that currently have a session open.
func (s *RoomService) GetActiveUsers(ctx context.Context, roomID, userID int) ([]models.ActiveUser, error) {
	members, err := s.GetRoomMembers(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	active := make([]models.ActiveUser, 0, len(members))
	for _, m := range members {
		if status := s.presence.Status(m.UserID); status == models.StatusOnline {
			active = append(active, models.ActiveUser{ID: m.UserID, Username: m.Username, Status: status})
		}
	}
	return active, nil
}

func (s *RoomService) History(ctx context.Context, roomID, userID, limit int) ([]*models.Message, error) {
	if err := s.requireMember(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	return s.db.LoadRecentMessages(ctx, roomID, limit)
}

func (s *RoomService) requireMember(ctx context.Context, userID, roomID int) error {
	isMember, err := s.db.IsMember(ctx, userID, roomID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !isMember {
		return fmt.Errorf("room %d: %w", roomID, apperr.ErrNotAMember)
	}
	return nil
}
