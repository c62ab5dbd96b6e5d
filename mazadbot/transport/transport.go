package transport

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// Payload is a platform-neutral message: the core builds these, an adapter
// turns them into whatever the chat platform wants.
type Payload struct {
	Content     string
	Title       string
	Description string
	Fields      []Field
	Footer      string
	Color       int
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// MessageRef identifies a previously sent message so it can be edited or
// deleted later.
type MessageRef struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

func (r MessageRef) Zero() bool {
	return r.MessageID == 0
}

// Messenger is the outbound contract the auction core depends on.
type Messenger interface {
	Send(ctx context.Context, channelID snowflake.ID, p Payload) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, p Payload) error
	Delete(ctx context.Context, ref MessageRef) error
}

// Error wraps a transport failure. Permission carries whether the failure
// was an authorization rejection rather than a transient fault.
type Error struct {
	Op         string
	Permission bool
	Err        error
}

func (e *Error) Error() string {
	if e.Permission {
		return fmt.Sprintf("transport %s denied: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
