package mailer

import (
	"context"
	"time"
)

// Config controls the async mail pipeline.
type Config struct {
	Enabled       bool
	From          string
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

type Message struct {
	To      string
	Subject string
	HTML    string
	// Text is an optional plain-text alternative.
	Text string
	// Tag identifies the message kind in logs and events (e.g. "verification").
	Tag string
}

// Transport delivers a single message.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, from string, m Message) error
}

type HistoryItem struct {
	At  time.Time
	To  string
	Tag string
}

// MailEvent is emitted on the event bus for mailer lifecycle events.
type MailEvent struct {
	To       string    `json:"to"`
	Tag      string    `json:"tag,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
