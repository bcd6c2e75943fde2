// Package transport defines the messaging platform boundary.
//
// Recipient ids are opaque strings chosen by the adapter. Adapters deliver
// inbound updates on a channel and never call into the engine directly.
package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	// UpdateText is an ordinary text message.
	UpdateText UpdateKind = "text"
	// UpdateStart is the platform's "start chatting" event.
	UpdateStart UpdateKind = "start"
)

type Update struct {
	Kind      UpdateKind
	From      string
	FirstName string
	Username  string
	Body      string
	At        time.Time
}

// Profile is what the platform knows about a user.
type Profile struct {
	ID        string
	FirstName string
	Username  string
	// Timezone is an IANA name such as "Europe/Berlin". It may be empty.
	Timezone string
}

// Sender delivers an ordered list of texts to one recipient.
type Sender interface {
	Send(ctx context.Context, to string, texts []string) error
}

// ProfileSource looks up user profiles.
type ProfileSource interface {
	Profile(ctx context.Context, id string) (Profile, error)
}

type Adapter interface {
	Sender
	ProfileSource
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
