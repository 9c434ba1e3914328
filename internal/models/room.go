package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the minimal user shape carried on every real-time event.
type Identity struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
}

type Room struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"isGroup"`
	OwnerID   int       `json:"ownerId"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is one entry of a room's member list. UnreadCount is per (room, member).
type Member struct {
	UserID      int    `json:"userId"`
	Username    string `json:"username"`
	UnreadCount uint   `json:"unreadCount"`
}

type Message struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	RoomID    int       `json:"roomId"`
	Content   string    `json:"content"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomSummary is one row of the room list snapshot, seen from one user.
type RoomSummary struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	UnreadCount uint   `json:"unreadCount"`
	MemberIDs   []int  `json:"memberIds"`
}

type ActiveUser struct {
	ID       int            `json:"id"`
	Username string         `json:"username"`
	Status   PresenceStatus `json:"status"`
}

type CreateRoomRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	IsGroup   bool   `json:"isGroup"`
	MemberIDs []int  `json:"memberIds"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
