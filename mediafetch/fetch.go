// Package mediafetch loads attachment bytes referenced by chat messages.
// A reference is either a data URI or an https URL; the result carries the bytes, a MIME type,
// a generated file name and the attachment kind expected by the provider upload API.
package mediafetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/skosovsky/chatbridge"
)

const (
	// DefaultMaxBodySize is the default limit for a single attachment (10 MiB).
	DefaultMaxBodySize = 10 << 20

	defaultMIMEType = "application/octet-stream"
)

var (
	// ErrUnsafeScheme is returned when the URL scheme is neither data nor https.
	ErrUnsafeScheme = errors.New("mediafetch: only data and https schemes are allowed")
	// ErrBodyTooLarge is returned when the attachment exceeds the size limit.
	ErrBodyTooLarge = errors.New("mediafetch: attachment exceeds size limit")
	// ErrInvalidDataURI is returned for a malformed data URI.
	ErrInvalidDataURI = errors.New("mediafetch: invalid data URI")
)

// Media is a loaded attachment.
type Media struct {
	Name     string
	MIMEType string
	// Kind is chatbridge.PartImage for image/* types and chatbridge.PartFile otherwise.
	Kind string
	Data []byte
}

// Loader loads attachments. The zero value is not usable; call New.
type Loader struct {
	client   *http.Client
	maxBytes int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for https downloads (e.g. httptest.Server.Client()).
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithMaxBytes sets the per-attachment size limit. Non-positive values keep DefaultMaxBodySize.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// New returns a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{client: http.DefaultClient, maxBytes: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves ref into Media.
func (l *Loader) Load(ctx context.Context, ref string) (Media, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		return l.decodeDataURI(ref)
	}
	return l.fetch(ctx, ref)
}

func (l *Loader) decodeDataURI(ref string) (Media, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return Media{}, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	mimeType := normalize(mediaType)

	var data []byte
	var err error
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		data = []byte(s)
	}
	if err != nil {
		return Media{}, fmt.Errorf("%w: %w", ErrInvalidDataURI, err)
	}
	if int64(len(data)) > l.maxBytes {
		return Media{}, ErrBodyTooLarge
	}
	return newMedia(generatedName(mimeType), mimeType, data), nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (Media, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Media{}, fmt.Errorf("mediafetch: parse URL: %w", err)
	}
	if u.Scheme != "https" {
		return Media{}, ErrUnsafeScheme
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Media{}, fmt.Errorf("mediafetch: new request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("mediafetch: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Media{}, fmt.Errorf("mediafetch: status %s", resp.Status)
	}
	if resp.ContentLength > l.maxBytes {
		return Media{}, ErrBodyTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return Media{}, fmt.Errorf("mediafetch: read body: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return Media{}, ErrBodyTooLarge
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = ""
	}
	mimeType := normalize(resp.Header.Get("Content-Type"))
	if mimeType == defaultMIMEType || mimeType == "" {
		if byExt := mime.TypeByExtension(path.Ext(name)); byExt != "" {
			mimeType = normalize(byExt)
		}
	}
	if name == "" {
		name = generatedName(mimeType)
	}
	return newMedia(name, mimeType, data), nil
}

func newMedia(name, mimeType string, data []byte) Media {
	kind := chatbridge.PartFile
	if strings.HasPrefix(mimeType, "image/") {
		kind = chatbridge.PartImage
	}
	return Media{Name: name, MIMEType: mimeType, Kind: kind, Data: data}
}

// normalize strips parameters and lowercases a media type; empty input yields the octet-stream default.
func normalize(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" {
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = contentType[:i]
		}
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	if mt == "" {
		return defaultMIMEType
	}
	return mt
}

func generatedName(mimeType string) string {
	name := uuid.NewString()
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return name + exts[0]
	}
	return name
}
