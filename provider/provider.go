// Package provider defines the calls the adapter makes against a chat provider that accepts
// one flattened transcript per request.
package provider

import (
	"context"

	"github.com/skosovsky/chatbridge"
)

// Provider is a chat backend. Implementations must be safe for concurrent use.
type Provider interface {
	// CreateConversation opens a provider-side conversation and returns its id.
	CreateConversation(ctx context.Context, token string) (string, error)
	// DeleteConversation removes a conversation. Callers treat failures as non-fatal.
	DeleteConversation(ctx context.Context, token, chatID string) error
	// Complete sends one chat round and waits for the full reply.
	Complete(ctx context.Context, req Request) (*Reply, error)
	// Stream sends one chat round and returns reply increments in arrival order.
	// The channel is closed after the last event; an event with Err set is always last.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
	// UploadAttachment stores a file provider-side for use as a content part.
	UploadAttachment(ctx context.Context, token string, file Upload) (chatbridge.Attachment, error)
}

// Request is one chat round against an open conversation.
type Request struct {
	Token    string
	Config   *chatbridge.ChatConfig // Config.ChatID must be set
	Messages []chatbridge.ProviderMessage
}

// Reply is a complete provider answer.
type Reply struct {
	Text      string
	Citations []chatbridge.Citation
}

// StreamEvent is one increment of a streamed answer.
type StreamEvent struct {
	Text      string
	Citations []chatbridge.Citation
	Err       error
}

// Upload is a file to store provider-side.
type Upload struct {
	Name     string
	MIMEType string
	Kind     string // chatbridge.PartImage or chatbridge.PartFile
	Data     []byte
}
