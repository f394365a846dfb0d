package yuanbao

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/provider"
)

type uploadTicketRequest struct {
	FileName string `json:"fileName"`
	FileSize int    `json:"fileSize"`
	FileType string `json:"fileType"`
	MIMEType string `json:"mimeType"`
}

type uploadTicket struct {
	ResourceID string `json:"resourceId"`
	UploadURL  string `json:"uploadUrl"`
}

// UploadAttachment implements provider.Provider. The file is uploaded in two steps: an
// upload ticket is requested from Config.UploadURL, then the bytes are PUT to the ticket URL.
func (c *Client) UploadAttachment(ctx context.Context, token string, file provider.Upload) (chatbridge.Attachment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.request(ctx, token).
		SetBody(uploadTicketRequest{FileName: file.Name, FileSize: len(file.Data), FileType: file.Kind, MIMEType: file.MIMEType}).
		Post(c.cfg.UploadURL)
	if err != nil {
		return chatbridge.Attachment{}, fmt.Errorf("%w: upload ticket: %w", provider.ErrTransport, err)
	}
	if resp.IsError() {
		return chatbridge.Attachment{}, provider.NewStatusError(providerName, resp.StatusCode(), resp.Body())
	}
	var ticket uploadTicket
	if err := json.Unmarshal(resp.Body(), &ticket); err != nil {
		return chatbridge.Attachment{}, fmt.Errorf("%w: upload ticket: %w", provider.ErrDecode, err)
	}
	if ticket.ResourceID == "" || ticket.UploadURL == "" {
		return chatbridge.Attachment{}, fmt.Errorf("%w: upload ticket incomplete", provider.ErrDecode)
	}

	put, err := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", file.MIMEType).
		SetBody(file.Data).
		Put(ticket.UploadURL)
	if err != nil {
		return chatbridge.Attachment{}, fmt.Errorf("%w: upload: %w", provider.ErrTransport, err)
	}
	if put.IsError() {
		return chatbridge.Attachment{}, provider.NewStatusError(providerName, put.StatusCode(), put.Body())
	}
	return chatbridge.Attachment{ID: ticket.ResourceID, Type: file.Kind, Name: file.Name}, nil
}
