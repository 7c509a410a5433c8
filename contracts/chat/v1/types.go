// Package v1 defines the Relay chat wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frame type constants (wire-stable).
const (
	// TypeMessage carries a chat message. Inbound it wraps a send request,
	// outbound it wraps the persisted Message.
	TypeMessage = "message"

	// TypeUserOnline announces that a user's connection came up (server -> all).
	TypeUserOnline = "user_online"
	// TypeUserOffline announces that a user's connection went away (server -> all).
	TypeUserOffline = "user_offline"

	// TypeSubscriptionsAck confirms room auto-subscription (server -> client).
	TypeSubscriptionsAck = "subscriptions_ack"

	// TypeError is a connection-local error notification (server -> client).
	TypeError = "error"
)

// Message kind constants.
const (
	KindText = "text"
	KindFile = "file"
)

// StatusSubscribed is the only subscription ack status.
const StatusSubscribed = "subscribed"

// Message is the canonical chat message shape. Both delivery paths (the
// websocket loop and the one-shot HTTP send) produce this exact shape, so
// clients never need to distinguish the origin.
type Message struct {
	ID                 string    `json:"id"`
	ChatID             string    `json:"chatId"`
	SenderID           string    `json:"senderId"`
	SenderName         string    `json:"senderName"`
	Content            string    `json:"content,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Kind               string    `json:"type"`
	AttachmentURL      string    `json:"attachmentUrl,omitempty"`
	AttachmentFilename string    `json:"attachmentFilename,omitempty"`
}

// Frame is the outbound wire wrapper. The protocol is flat rather than an
// uniform envelope: presence and ack frames carry their fields at top level,
// message frames nest the Message under "data".
type Frame struct {
	Type     string   `json:"type"`
	Data     *Message `json:"data,omitempty"`
	UserID   string   `json:"userId,omitempty"`
	Username string   `json:"username,omitempty"`
	Rooms    []string `json:"rooms,omitempty"`
	Status   string   `json:"status,omitempty"`
	ErrorMsg string   `json:"message,omitempty"`
}

// MessageFrame wraps a Message for delivery.
func MessageFrame(msg Message) Frame {
	m := msg
	return Frame{Type: TypeMessage, Data: &m}
}

// UserOnlineFrame builds a presence-online notification.
func UserOnlineFrame(userID, username string) Frame {
	return Frame{Type: TypeUserOnline, UserID: userID, Username: username}
}

// UserOfflineFrame builds a presence-offline notification.
func UserOfflineFrame(userID, username string) Frame {
	return Frame{Type: TypeUserOffline, UserID: userID, Username: username}
}

// SubscriptionsAckFrame confirms auto-subscription to the given rooms.
func SubscriptionsAckFrame(rooms []string) Frame {
	return Frame{Type: TypeSubscriptionsAck, Rooms: rooms, Status: StatusSubscribed}
}

// ErrorFrame builds a connection-local error notification.
func ErrorFrame(msg string) Frame {
	return Frame{Type: TypeError, ErrorMsg: msg}
}

// Inbound is a client frame read off the websocket.
type Inbound struct {
	Type string      `json:"type"`
	Data InboundData `json:"data"`
}

// InboundData is the payload of an inbound message frame.
type InboundData struct {
	ChatID        string `json:"chatId"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachmentUrl,omitempty"`
}

// Validate checks structural requirements of an inbound message frame.
// Shape errors here are connection-preserving: the caller answers with an
// error frame and keeps serving.
func (in Inbound) Validate() error {
	if strings.TrimSpace(in.Type) == "" {
		return errors.New("missing type")
	}
	if in.Type != TypeMessage {
		return fmt.Errorf("unknown message type: %s", in.Type)
	}
	if strings.TrimSpace(in.Data.ChatID) == "" {
		return errors.New("chatId missing in message data")
	}
	return nil
}
