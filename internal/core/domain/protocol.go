package domain

import "time"

const (
	TypeHandshake   = "handshake"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSend        = "send"
	TypeAck         = "ack"
	TypeMessage     = "message"
	TypePresence    = "presence"
	TypeError       = "error"
	TypeClosed      = "closed"
)

type AckStatus string

const (
	AckPersisted AckStatus = "persisted"
)

// ClientFrame is any inbound frame from a connected client.
type ClientFrame struct {
	Type        string         `json:"type"`
	RoomID      string         `json:"room_id,omitempty"`
	ClientMsgID string         `json:"client_msg_id,omitempty"`
	Payload     string         `json:"payload,omitempty"`
	Attachment  *AttachmentRef `json:"attachment,omitempty"`
	// Last seq the client has seen for this room; when declared, backfill
	// replays everything above it. Absent means no resume.
	ResumeFrom *int64 `json:"resume_from,omitempty"`
}

// HandshakeResponse is sent once, right after the upgrade.
type HandshakeResponse struct {
	Type         string `json:"type"` // "handshake"
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

// AckMessage is sent only to the sender once its message is durably
// sequenced.
type AckMessage struct {
	Type        string    `json:"type"` // always "ack"
	ClientMsgID string    `json:"client_msg_id"`
	Status      AckStatus `json:"status"`
	Seq         int64     `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatMessage is broadcast to room subscribers.
type ChatMessage struct {
	Type       string         `json:"type"` // "message"
	RoomID     string         `json:"room_id"`
	SenderID   string         `json:"sender_id"`
	Seq        int64          `json:"seq"`
	Payload    string         `json:"payload"`
	Attachment *AttachmentRef `json:"attachment,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PresenceEvent is pushed to a room when its online set changes.
type PresenceEvent struct {
	Type   string   `json:"type"` // "presence"
	RoomID string   `json:"room_id"`
	Online []string `json:"online_user_ids"`
}

// ErrorMessage is a WS-safe error surfaced to one client.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClosedEvent is the final frame before the server closes a connection.
type ClosedEvent struct {
	Type   string `json:"type"` // "closed"
	Reason string `json:"reason"`
}

func ChatMessageFrom(m *Message) ChatMessage {
	return ChatMessage{
		Type:       TypeMessage,
		RoomID:     m.RoomID.String(),
		SenderID:   m.SenderID.String(),
		Seq:        m.Seq,
		Payload:    m.Payload,
		Attachment: m.Attachment,
		CreatedAt:  m.CreatedAt,
	}
}
