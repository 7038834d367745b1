package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Attachment is the file payload for a single delivery attempt. Base64
// carries the (possibly watermarked) content.
type Attachment struct {
	Filename string
	Type     string
	Base64   string
}

// Outcome is the gateway's verdict on one delivery. RawResponse is the
// unmodified response body, kept for the audit log even on success.
type Outcome struct {
	Success     bool
	RawResponse string
}

// GatewayClient talks to an UltraMsg-style messaging gateway. Endpoint
// selection is payload-shaped: plain text goes to the chat endpoint, image
// attachments to the image endpoint, everything else to the document
// endpoint.
type GatewayClient struct {
	baseURL    string
	instanceID string
	token      string
	client     *http.Client
}

func NewGatewayClient(baseURL, instanceID, token string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *GatewayClient) Deliver(ctx context.Context, to, body string, att *Attachment) (Outcome, error) {
	mode := "chat"
	form := url.Values{}
	form.Set("to", to)

	switch {
	case att == nil:
		form.Set("body", body)
	case strings.HasPrefix(att.Type, "image/"):
		mode = "image"
		form.Set("image", att.Base64)
		form.Set("caption", body)
	default:
		mode = "document"
		form.Set("document", att.Base64)
		form.Set("filename", att.Filename)
		form.Set("caption", body)
	}

	endpoint := fmt.Sprintf("%s/%s/messages/%s?token=%s", c.baseURL, c.instanceID, mode, url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := Outcome{RawResponse: string(raw)}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, nil
	}

	// Providers report errors in the body with a 2xx status; the body is
	// otherwise opaque and stored as-is.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err == nil {
		if _, hasErr := probe["error"]; hasErr {
			return out, nil
		}
	}

	out.Success = true
	return out, nil
}
