package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/provider"
	"github.com/skosovsky/chatbridge/transcript"
)

const maxRequestBytes = 32 << 20

func bearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		s.reject(c, chatbridge.Reject(chatbridge.ErrMissingToken))
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
	if err != nil {
		s.reject(c, chatbridge.Reject(fmt.Errorf("%w: %w", chatbridge.ErrInvalidRequest, err)))
		return
	}
	req, err := chatbridge.DecodeRequest(body)
	if err != nil {
		s.reject(c, chatbridge.Reject(err))
		return
	}
	cfg := chatbridge.ResolveConfig(req, s.configOpts...)
	if len(req.Messages) == 0 {
		s.reject(c, chatbridge.Reject(chatbridge.ErrMissingMessages))
		return
	}

	ctx := c.Request.Context()
	log := s.logger.With(zap.String("model", cfg.ModelName), zap.Bool("stream", cfg.Stream))

	attachments, err := s.uploadAttachments(ctx, token, req.Messages, log)
	if err != nil {
		log.Error("attachment upload failed", zap.Error(err))
		s.providerFailure(c, err)
		return
	}
	msgs := transcript.Compact(cfg, req.Messages, attachments, s.compactOpts...)

	chatID, err := s.provider.CreateConversation(ctx, token)
	if err != nil {
		log.Error("create conversation failed", zap.Error(err))
		s.providerFailure(c, err)
		return
	}
	cfg.ChatID = chatID
	defer s.cleanup(ctx, token, chatID)
	log = log.With(zap.String("chat_id", chatID))

	preq := provider.Request{Token: token, Config: cfg, Messages: msgs}
	prompt := chatbridge.PromptText(msgs)
	if cfg.Stream {
		s.stream(c, preq, prompt, log)
		return
	}

	reply, err := s.provider.Complete(ctx, preq)
	if err != nil {
		log.Error("completion failed", zap.Error(err))
		s.providerFailure(c, err)
		return
	}
	out := s.shaper.Complete(cfg, prompt, reply.Text)
	out.Citations = reply.Citations
	c.JSON(http.StatusOK, out)
}

func (s *Server) stream(c *gin.Context, req provider.Request, prompt string, log *zap.Logger) {
	ctx := c.Request.Context()
	events, err := s.provider.Stream(ctx, req)
	if err != nil {
		log.Error("opening stream failed", zap.Error(err))
		s.providerFailure(c, err)
		return
	}
	st := s.shaper.NewStream(req.Config, prompt)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	w := &eventWriter{w: c.Writer}

	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", zap.Error(ctx.Err()))
			return
		case ev, ok := <-events:
			if !ok {
				w.write(st.Finish()...)
				w.done()
				return
			}
			if ev.Err != nil {
				log.Error("stream failed", zap.Error(ev.Err))
				w.write(st.Fail(ev.Err))
				w.done()
				return
			}
			st.AddCitations(ev.Citations...)
			w.write(st.Feed(ev.Text)...)
		}
		if w.err != nil {
			log.Debug("client write failed", zap.Error(w.err))
			return
		}
	}
}

// eventWriter writes server-sent events and remembers the first write error.
type eventWriter struct {
	w   gin.ResponseWriter
	err error
}

func (e *eventWriter) write(chunks ...chatbridge.ChatCompletionChunk) {
	for _, ch := range chunks {
		data, err := json.Marshal(ch)
		if err != nil {
			e.err = err
			return
		}
		e.raw(data)
	}
}

func (e *eventWriter) done() { e.raw([]byte("[DONE]")) }

func (e *eventWriter) raw(data []byte) {
	if e.err != nil {
		return
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		e.err = err
		return
	}
	e.w.Flush()
}

// uploadAttachments loads and uploads the files referenced by the last message, preserving order.
// References that cannot be loaded are skipped; a provider upload failure fails the request.
func (s *Server) uploadAttachments(ctx context.Context, token string, msgs []chatbridge.Message, log *zap.Logger) ([]chatbridge.Attachment, error) {
	if s.loader == nil {
		return nil, nil
	}
	refs := chatbridge.FileURLs(msgs)
	if len(refs) == 0 {
		return nil, nil
	}
	results := make([]*chatbridge.Attachment, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadLimit)
	for i, ref := range refs {
		g.Go(func() error {
			media, err := s.loader.Load(gctx, ref)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Warn("skipping attachment", zap.Int("index", i), zap.Error(err))
				return nil
			}
			att, err := s.provider.UploadAttachment(gctx, token, provider.Upload{
				Name: media.Name, MIMEType: media.MIMEType, Kind: media.Kind, Data: media.Data,
			})
			if err != nil {
				return err
			}
			results[i] = &att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]chatbridge.Attachment, 0, len(results))
	for _, a := range results {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}
