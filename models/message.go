package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeAudio    MessageType = "audio"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
	TypeTemplate MessageType = "template"
)

type MessageStatus string

const (
	StatusReceived  MessageStatus = "received"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// ParseStatus accepts the delivery statuses the provider reports for outbound messages.
func ParseStatus(s string) (MessageStatus, bool) {
	switch st := MessageStatus(s); st {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return st, true
	}
	return "", false
}

type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	From      string             `bson:"from" json:"from"`
	To        string             `bson:"to" json:"to"`
	MessageID string             `bson:"messageId" json:"messageId"`
	Text      string             `bson:"text,omitempty" json:"text,omitempty"`
	Type      MessageType        `bson:"type" json:"type"`
	MediaID   string             `bson:"mediaId,omitempty" json:"mediaId,omitempty"`
	Status    MessageStatus      `bson:"status" json:"status"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Conversation is derived from the message log, one per peer.
type Conversation struct {
	Peer          string      `bson:"_id" json:"peer"`
	LastMessage   string      `bson:"lastMessage" json:"lastMessage"`
	LastType      MessageType `bson:"lastType" json:"lastType"`
	LastTimestamp time.Time   `bson:"lastTimestamp" json:"lastTimestamp"`
	UnreadCount   int         `bson:"unreadCount" json:"unreadCount"`
}
