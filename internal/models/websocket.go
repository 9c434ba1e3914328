package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

// Inbound, client to server.
const (
	EventJoinRoom     EventType = "joinRoom"
	EventLeaveRoom    EventType = "leaveRoom"
	EventSendMessage  EventType = "sendMessage"
	EventTypingPing   EventType = "typingPing"
	EventTypingStop   EventType = "typingStop"
	EventVoiceJoin    EventType = "voiceJoin"
	EventVoiceLeave   EventType = "voiceLeave"
	EventSetMic       EventType = "setMic"
	EventSetDeafen    EventType = "setDeafen"
	EventStartShare   EventType = "startShare"
	EventStopShare    EventType = "stopShare"
	EventMarkRoomRead EventType = "markRoomRead"
	EventSync         EventType = "sync"
)

// Outbound, server to client.
const (
	EventAck               EventType = "ack"
	EventError             EventType = "error"
	EventNewMessage        EventType = "newMessage"
	EventTypingList        EventType = "typingList"
	EventPresenceChanged   EventType = "presenceChanged"
	EventRoomMarkedAsRead  EventType = "roomMarkedAsRead"
	EventRoomCreated       EventType = "roomCreated"
	EventRoomUpdated       EventType = "roomUpdated"
	EventRoomMembersAdded  EventType = "roomMembersAdded"
	EventRoomMemberRemoved EventType = "roomMemberRemoved"
	EventRoomDeleted       EventType = "roomDeleted"
	EventVoiceRoster       EventType = "voiceRoster"
	EventVoiceShareStopped EventType = "voiceShareStopped"
	EventSnapshot          EventType = "snapshot"
)

// Envelope is the single frame shape exchanged in both directions.
// Seq is stamped by the room sequencing point on room broadcasts.
type Envelope struct {
	Type      EventType       `json:"type"`
	Seq       uint64          `json:"seq,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload into a new envelope of type t.
func NewEnvelope(t EventType, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		// payloads are plain structs, this only fails on a programming error
		panic(fmt.Sprintf("models: encode %s payload: %v", t, err))
	}
	return Envelope{Type: t, Payload: raw}
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

type RoomPayload struct {
	RoomID int `json:"roomId" validate:"required,gt=0"`
}

type SendMessagePayload struct {
	RoomID  int    `json:"roomId" validate:"required,gt=0"`
	Content string `json:"content" validate:"required,max=4000"`
}

// VoicePayload addresses the caller's own participant. SessionID, when set,
// must be the caller's session.
type VoicePayload struct {
	RoomID    int    `json:"roomId" validate:"required,gt=0"`
	SessionID string `json:"sessionId,omitempty"`
	On        bool   `json:"on"`
}

type SyncPayload struct {
	RoomIDs []int `json:"roomIds" validate:"dive,gt=0"`
}

type AckPayload struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type NewMessagePayload struct {
	RoomID  int     `json:"roomId"`
	Message Message `json:"message"`
}

type Typer struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type TypingListPayload struct {
	RoomID int     `json:"roomId"`
	Typers []Typer `json:"typers"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "ONLINE"
	StatusOffline PresenceStatus = "OFFLINE"
)

type PresencePayload struct {
	UserID int            `json:"userId"`
	Status PresenceStatus `json:"status"`
}

type RoomReadPayload struct {
	RoomID int `json:"roomId"`
	UserID int `json:"userId"`
}

// RoomChangePayload carries roomCreated, roomUpdated, roomMembersAdded,
// roomMemberRemoved and roomDeleted.
type RoomChangePayload struct {
	RoomID  int          `json:"roomId"`
	Room    *RoomSummary `json:"room,omitempty"`
	UserIDs []int        `json:"userIds,omitempty"`
}

type VoiceParticipant struct {
	RoomID      int    `json:"roomId"`
	SessionID   string `json:"sessionId"`
	UserID      int    `json:"userId"`
	DisplayName string `json:"displayName"`
	MicOn       bool   `json:"micOn"`
	Deafened    bool   `json:"deafened"`
	Sharing     bool   `json:"sharing"`
}

type VoiceRosterPayload struct {
	RoomID       int                `json:"roomId"`
	Participants []VoiceParticipant `json:"participants"`
}

type ShareStoppedPayload struct {
	RoomID    int    `json:"roomId"`
	SessionID string `json:"sessionId"`
	UserID    int    `json:"userId"`
}

// RoomState is the per-room part of a snapshot.
type RoomState struct {
	RoomID       int                `json:"roomId"`
	UnreadCount  uint               `json:"unreadCount"`
	Typers       []Typer            `json:"typers"`
	Participants []VoiceParticipant `json:"participants"`
}

type SnapshotPayload struct {
	Rooms   []RoomState `json:"rooms"`
	TakenAt time.Time   `json:"takenAt"`
}
