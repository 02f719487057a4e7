package domain

import (
	"context"
	"time"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is one immutable text exchange with a client. Ordering by
// CreatedAt is the canonical conversation order.
type Message struct {
	ID         int64     `json:"id"`
	ClientID   int64     `json:"client_id"`
	Direction  Direction `json:"direction"`
	Body       string    `json:"body"`
	OperatorID *int64    `json:"operator_id,omitempty"` // set when an operator authored the reply
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
}

// InboundMessage is what a channel adapter publishes for every message
// a client sends. IdempotencyKey carries the platform's native message
// id so duplicate deliveries can be recognized.
type InboundMessage struct {
	PlatformID     string
	SenderName     string
	Text           string
	IdempotencyKey string
	Timestamp      time.Time
}

// MessageBus carries inbound messages from the channel adapter to the
// engine loop.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}

// Outbound delivers a reply to the client on the messaging platform.
// A delivery error is non-fatal: the engine records it on the Message
// and moves on; retry policy belongs to the adapter.
type Outbound interface {
	Deliver(ctx context.Context, platformID, text string) error
}
