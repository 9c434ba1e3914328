package database

import (
	"context"
	"errors"
	"fmt"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"
	"chat-realtime/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, username, email, created_at`

	user := &models.User{}
	err = db.pool.QueryRow(ctx, query, req.Username, req.Email, string(hash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Room Repository Implementation
func (db *PostgresDB) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID int) (*models.Room, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var roomID int
	query := `
		INSERT INTO rooms (name, is_group, owner_id, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id`
	if err := tx.QueryRow(ctx, query, req.Name, req.IsGroup, ownerID).Scan(&roomID); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	memberIDs := append([]int{ownerID}, req.MemberIDs...)
	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO memberships (user_id, room_id, unread_count) VALUES ($1, $2, 0)
			ON CONFLICT (user_id, room_id) DO NOTHING`, userID, roomID); err != nil {
			return nil, fmt.Errorf("failed to add member %d: %w", userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return db.LoadRoom(ctx, roomID)
}

// LoadRoom returns the room with its members and their unread counters.
func (db *PostgresDB) LoadRoom(ctx context.Context, roomID int) (*models.Room, error) {
	query := `SELECT id, name, is_group, owner_id, created_at FROM rooms WHERE id = $1`

	room := &models.Room{}
	err := db.pool.QueryRow(ctx, query, roomID).Scan(
		&room.ID, &room.Name, &room.IsGroup, &room.OwnerID, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %d: %w", roomID, apperr.ErrRoomNotFound)
	}
	if err != nil {
		return nil, err
	}

	members, err := db.GetRoomMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Members = members

	return room, nil
}

func (db *PostgresDB) ListUserRooms(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	query := `
		SELECT r.id, r.name, r.is_group, m.unread_count,
		       ARRAY(SELECT o.user_id FROM memberships o WHERE o.room_id = r.id ORDER BY o.user_id)
		FROM rooms r
		JOIN memberships m ON r.id = m.room_id AND m.user_id = $1
		ORDER BY r.name`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.RoomSummary
	for rows.Next() {
		var (
			room      models.RoomSummary
			unread    int32
			memberIDs []int32
		)
		if err := rows.Scan(&room.ID, &room.Name, &room.IsGroup, &unread, &memberIDs); err != nil {
			return nil, err
		}
		room.UnreadCount = uint(max(unread, 0))
		room.MemberIDs = make([]int, len(memberIDs))
		for i, id := range memberIDs {
			room.MemberIDs[i] = int(id)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PostgresDB) DeleteRoom(ctx context.Context, roomID, ownerID int) error {
	var currentOwnerID int
	err := db.pool.QueryRow(ctx, "SELECT owner_id FROM rooms WHERE id = $1", roomID).Scan(&currentOwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("room %d: %w", roomID, apperr.ErrRoomNotFound)
	}
	if err != nil {
		return err
	}

	if currentOwnerID != ownerID {
		return fmt.Errorf("delete room %d: not the room owner: %w", roomID, apperr.ErrForbidden)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM memberships WHERE room_id = $1", roomID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE room_id = $1", roomID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM rooms WHERE id = $1", roomID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Message Repository Implementation

// SaveMessage stores the message and counts it as unread for every other
// member in the same transaction.
func (db *PostgresDB) SaveMessage(ctx context.Context, userID, roomID int, content string) (*models.Message, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	msg := &models.Message{UserID: userID, RoomID: roomID, Content: content}
	query := `
		INSERT INTO messages (user_id, room_id, content, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, query, userID, roomID, content).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE memberships SET unread_count = unread_count + 1
		WHERE room_id = $1 AND user_id <> $2`, roomID, userID); err != nil {
		return nil, fmt.Errorf("failed to count unread: %w", err)
	}

	if err := tx.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", userID).Scan(&msg.Username); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

func (db *PostgresDB) LoadRecentMessages(ctx context.Context, roomID, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.user_id, m.room_id, m.content, u.username, m.created_at
		FROM messages m
		JOIN users u ON m.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.RoomID, &msg.Content, &msg.Username, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

// Unread Repository Implementation
func (db *PostgresDB) ResetUnread(ctx context.Context, userID, roomID int) error {
	query := `UPDATE memberships SET unread_count = 0 WHERE user_id = $1 AND room_id = $2`
	tag, err := db.pool.Exec(ctx, query, userID, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %d: %w", roomID, apperr.ErrNotAMember)
	}
	return nil
}

// Membership Repository Implementation
func (db *PostgresDB) AddMembership(ctx context.Context, userID, roomID int) error {
	query := `
		INSERT INTO memberships (user_id, room_id, unread_count) VALUES ($1, $2, 0)
		ON CONFLICT (user_id, room_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, userID, roomID)
	return err
}

func (db *PostgresDB) RemoveMembership(ctx context.Context, userID, roomID int) error {
	query := `DELETE FROM memberships WHERE user_id = $1 AND room_id = $2`
	_, err := db.pool.Exec(ctx, query, userID, roomID)
	return err
}

func (db *PostgresDB) IsMember(ctx context.Context, userID, roomID int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM memberships WHERE user_id = $1 AND room_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, userID, roomID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) GetRoomMembers(ctx context.Context, roomID int) ([]models.Member, error) {
	query := `
		SELECT u.id, u.username, m.unread_count
		FROM memberships m
		JOIN users u ON m.user_id = u.id
		WHERE m.room_id = $1
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var (
			member models.Member
			unread int32
		)
		if err := rows.Scan(&member.UserID, &member.Username, &unread); err != nil {
			return nil, err
		}
		member.UnreadCount = uint(max(unread, 0))
		members = append(members, member)
	}

	return members, rows.Err()
}

// Friend Repository Implementation
func (db *PostgresDB) ListFriendIDs(ctx context.Context, userID int) ([]int, error) {
	query := `
		SELECT friend_id FROM friendships WHERE user_id = $1
		UNION
		SELECT user_id FROM friendships WHERE friend_id = $1`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
