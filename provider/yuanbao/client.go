// Package yuanbao implements provider.Provider against the Yuanbao web chat API.
package yuanbao

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/provider"
)

const providerName = "yuanbao"

// Defaults of the public web endpoint.
const (
	DefaultBaseURL       = "https://yuanbao.tencent.com"
	DefaultAgentID       = "naQivTmsDa"
	DefaultUpstreamModel = "gpt_175B_0404"
	DefaultTimeout       = 60 * time.Second
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Config configures a Client. Zero fields take the defaults above.
type Config struct {
	BaseURL string
	AgentID string
	// UserCookie is the hy_user cookie sent alongside the per-request hy_token.
	UserCookie string
	// UploadURL is the upload-ticket endpoint. Defaults to BaseURL + "/api/resource/genUploadInfo".
	UploadURL     string
	UpstreamModel string
	// Timeout bounds non-streaming calls. Streams are bounded by the request context only.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.AgentID == "" {
		c.AgentID = DefaultAgentID
	}
	if c.UploadURL == "" {
		c.UploadURL = c.BaseURL + "/api/resource/genUploadInfo"
	}
	if c.UpstreamModel == "" {
		c.UpstreamModel = DefaultUpstreamModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client talks to Yuanbao. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRestyClient replaces the underlying HTTP client (e.g. to share a transport).
func WithRestyClient(rc *resty.Client) Option {
	return func(c *Client) {
		if rc != nil {
			c.http = rc
		}
	}
}

// New returns a Client.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{cfg: cfg, http: resty.New(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetBaseURL(cfg.BaseURL).SetHeaders(map[string]string{
		"chat_version":    "v1",
		"x-agentid":       cfg.AgentID,
		"Content-Type":    "application/json",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "zh-CN,zh;q=0.9",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
		"Origin":          DefaultBaseURL,
		"Referer":         DefaultBaseURL,
		"User-Agent":      userAgent,
	})
	return c
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	return c.http.R().SetContext(ctx).SetHeader("Cookie", c.cookie(token))
}

func (c *Client) cookie(token string) string {
	return fmt.Sprintf("hy_user=%s; hy_token=%s", c.cfg.UserCookie, token)
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateConversation implements provider.Provider.
func (c *Client) CreateConversation(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.request(ctx, token).
		SetBody(map[string]string{"agentId": c.cfg.AgentID}).
		Post("/api/user/agent/conversation/create")
	if err != nil {
		return "", fmt.Errorf("%w: create conversation: %w", provider.ErrTransport, err)
	}
	if resp.IsError() {
		return "", provider.NewStatusError(providerName, resp.StatusCode(), resp.Body())
	}
	var out createResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("%w: create conversation: %w", provider.ErrDecode, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: conversation id missing", provider.ErrDecode)
	}
	return out.ID, nil
}

// DeleteConversation implements provider.Provider.
func (c *Client) DeleteConversation(ctx context.Context, token, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.request(ctx, token).
		SetBody(map[string]any{"conversationIds": []string{chatID}, "agentId": c.cfg.AgentID}).
		Post("/api/user/agent/conversation/v1/clear")
	if err != nil {
		return fmt.Errorf("%w: delete conversation: %w", provider.ErrTransport, err)
	}
	if resp.IsError() {
		return provider.NewStatusError(providerName, resp.StatusCode(), resp.Body())
	}
	return nil
}

type featureConfig struct {
	ThinkingEnabled bool `json:"thinking_enabled"`
}

type completeRequest struct {
	ChatID            string                       `json:"chat_id"`
	Model             string                       `json:"model"`
	IncrementalOutput bool                         `json:"incremental_output"`
	ChatType          chatbridge.ChatType          `json:"chat_type"`
	SessionID         string                       `json:"session_id"`
	Stream            bool                         `json:"stream"`
	FeatureConfig     featureConfig                `json:"feature_config"`
	Messages          []chatbridge.ProviderMessage `json:"messages"`
}

type completeResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements provider.Provider.
func (c *Client) Complete(ctx context.Context, req provider.Request) (*provider.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cfg := req.Config
	body := completeRequest{
		ChatID:        cfg.ChatID,
		Model:         cfg.ModelName,
		ChatType:      cfg.ChatType,
		SessionID:     uuid.NewString(),
		FeatureConfig: featureConfig{ThinkingEnabled: cfg.Features.Thinking},
		Messages:      req.Messages,
	}
	resp, err := c.request(ctx, req.Token).SetBody(body).Post("/api/chat/" + cfg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("%w: chat: %w", provider.ErrTransport, err)
	}
	if resp.IsError() {
		return nil, provider.NewStatusError(providerName, resp.StatusCode(), resp.Body())
	}
	var out completeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: chat reply: %w", provider.ErrDecode, err)
	}
	reply := &provider.Reply{}
	if len(out.Choices) > 0 {
		reply.Text = out.Choices[0].Message.Content
	}
	c.logger.Debug("chat reply received", zap.String("chat_id", cfg.ChatID), zap.Int("bytes", len(reply.Text)))
	return reply, nil
}

// Compile-time check that Client implements provider.Provider.
var _ provider.Provider = (*Client)(nil)
