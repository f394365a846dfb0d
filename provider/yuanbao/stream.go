package yuanbao

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/provider"
)

const (
	maxLineBytes   = 1 << 20
	maxErrorBody   = 64 << 10
	searchFunction = "web_search"
)

type imageIntention struct {
	NeedIntentionModel bool `json:"needIntentionModel"`
	BackendUpdateFlag  int  `json:"backendUpdateFlag"`
	IntentionStatus    bool `json:"intentionStatus"`
}

type streamOptions struct {
	ImageIntention imageIntention `json:"imageIntention"`
}

type multimedia struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type streamRequest struct {
	Model             string        `json:"model"`
	Prompt            string        `json:"prompt"`
	Plugin            string        `json:"plugin"`
	DisplayPrompt     string        `json:"displayPrompt"`
	DisplayPromptType int           `json:"displayPromptType"`
	Options           streamOptions `json:"options"`
	Multimedia        []multimedia  `json:"multimedia"`
	AgentID           string        `json:"agentId"`
	SupportHint       int           `json:"supportHint"`
	Version           string        `json:"version"`
	ChatModelID       string        `json:"chatModelId"`
	SupportFunctions  []string      `json:"supportFunctions"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
			Name    string `json:"name"`
			Extra   struct {
				WebSearchInfo []chatbridge.Citation `json:"web_search_info"`
			} `json:"extra"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) streamBody(req provider.Request) streamRequest {
	prompt := chatbridge.PromptText(req.Messages)
	media := []multimedia{}
	for _, m := range req.Messages {
		for _, p := range m.Content.Parts {
			if p.Image != "" {
				media = append(media, multimedia{Type: p.Type, ID: p.Image})
			}
		}
	}
	function := ""
	if req.Config.Features.Searching {
		function = "supportInternetSearch"
	}
	return streamRequest{
		Model:             c.cfg.UpstreamModel,
		Prompt:            prompt,
		Plugin:            "Adaptive",
		DisplayPrompt:     prompt,
		DisplayPromptType: 1,
		Options:           streamOptions{ImageIntention: imageIntention{NeedIntentionModel: true, BackendUpdateFlag: 2, IntentionStatus: true}},
		Multimedia:        media,
		AgentID:           c.cfg.AgentID,
		SupportHint:       1,
		Version:           "v2",
		ChatModelID:       req.Config.ModelName,
		SupportFunctions:  []string{function},
	}
}

// Stream implements provider.Provider. Events stop when ctx is done; the body is always closed.
func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	resp, err := c.request(ctx, req.Token).
		SetHeader("Accept", "text/event-stream").
		SetBody(c.streamBody(req)).
		SetDoNotParseResponse(true).
		Post("/api/chat/" + req.Config.ChatID)
	if err != nil {
		return nil, fmt.Errorf("%w: chat stream: %w", provider.ErrTransport, err)
	}
	body := resp.RawBody()
	if resp.IsError() {
		defer body.Close()
		b, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return nil, provider.NewStatusError(providerName, resp.StatusCode(), b)
	}

	ch := make(chan provider.StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()
		c.readEvents(ctx, body, req.Config.ChatID, ch)
	}()
	return ch, nil
}

func (c *Client) readEvents(ctx context.Context, r io.Reader, chatID string, ch chan<- provider.StreamEvent) {
	send := func(ev provider.StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("skipping malformed stream line", zap.String("chat_id", chatID), zap.Error(err))
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			send(provider.StreamEvent{Err: &provider.StatusError{Provider: providerName, StatusCode: http.StatusBadGateway, Message: chunk.Error.Message}})
			return
		}
		for _, choice := range chunk.Choices {
			d := choice.Delta
			var ev provider.StreamEvent
			switch {
			case d.Role == "function" && d.Name == searchFunction:
				ev.Citations = d.Extra.WebSearchInfo
			case d.Role == "function":
				continue
			default:
				ev.Text = d.Content
			}
			if ev.Text == "" && len(ev.Citations) == 0 {
				continue
			}
			if !send(ev) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(provider.StreamEvent{Err: fmt.Errorf("%w: reading stream: %w", provider.ErrTransport, err)})
	}
}
