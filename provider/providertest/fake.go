// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/provider"
)

// Fake is a scripted provider. Zero-valued hooks return canned successes: conversation ids
// "chat-1", "chat-2"..., an empty reply, and one event per Chunks element.
type Fake struct {
	// Chunks is the scripted reply. Complete joins it; Stream sends one event per element.
	Chunks    []string
	Citations []chatbridge.Citation
	// StreamErr, when set, is sent as the last stream event.
	StreamErr error
	// HoldStream keeps the stream open after the scripted events until ctx is done.
	HoldStream bool

	CreateFunc func(ctx context.Context, token string) (string, error)
	DeleteFunc func(ctx context.Context, token, chatID string) error
	UploadFunc func(ctx context.Context, token string, file provider.Upload) (chatbridge.Attachment, error)
	// CompleteErr fails Complete and Stream before any output.
	CompleteErr error

	mu       sync.Mutex
	created  int
	deleted  []string
	requests []provider.Request
	uploads  []provider.Upload
	deleteCh chan string
}

// CreateConversation implements provider.Provider.
func (f *Fake) CreateConversation(ctx context.Context, token string) (string, error) {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, token)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return fmt.Sprintf("chat-%d", f.created), nil
}

// DeleteConversation implements provider.Provider.
func (f *Fake) DeleteConversation(ctx context.Context, token, chatID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, chatID)
	ch := f.deleteCh
	f.mu.Unlock()
	if ch != nil {
		ch <- chatID
	}
	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, token, chatID)
	}
	return nil
}

// Complete implements provider.Provider.
func (f *Fake) Complete(_ context.Context, req provider.Request) (*provider.Reply, error) {
	f.record(req)
	if f.CompleteErr != nil {
		return nil, f.CompleteErr
	}
	var text string
	for _, c := range f.Chunks {
		text += c
	}
	return &provider.Reply{Text: text, Citations: f.Citations}, nil
}

// Stream implements provider.Provider.
func (f *Fake) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	f.record(req)
	if f.CompleteErr != nil {
		return nil, f.CompleteErr
	}
	ch := make(chan provider.StreamEvent)
	go func() {
		defer close(ch)
		events := make([]provider.StreamEvent, 0, len(f.Chunks)+2)
		for _, c := range f.Chunks {
			events = append(events, provider.StreamEvent{Text: c})
		}
		if len(f.Citations) > 0 {
			events = append(events, provider.StreamEvent{Citations: f.Citations})
		}
		if f.StreamErr != nil {
			events = append(events, provider.StreamEvent{Err: f.StreamErr})
		}
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if f.HoldStream {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// UploadAttachment implements provider.Provider.
func (f *Fake) UploadAttachment(ctx context.Context, token string, file provider.Upload) (chatbridge.Attachment, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, file)
	f.mu.Unlock()
	if f.UploadFunc != nil {
		return f.UploadFunc(ctx, token, file)
	}
	if len(file.Data) == 0 {
		return chatbridge.Attachment{}, errors.New("providertest: empty upload")
	}
	return chatbridge.Attachment{ID: "att-" + file.Name, Type: file.Kind, Name: file.Name}, nil
}

// NotifyDeletes returns a channel receiving every deleted conversation id.
// Call it before the code under test runs.
func (f *Fake) NotifyDeletes() <-chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCh = make(chan string, 16)
	return f.deleteCh
}

// Requests returns the chat rounds received so far.
func (f *Fake) Requests() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.requests...)
}

// Deleted returns the conversation ids deleted so far.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Uploads returns the uploads received so far.
func (f *Fake) Uploads() []provider.Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Upload(nil), f.uploads...)
}

func (f *Fake) record(req provider.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

// Compile-time check that Fake implements provider.Provider.
var _ provider.Provider = (*Fake)(nil)
