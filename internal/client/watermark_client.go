package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultAlignment is the watermark placement requested for every job.
const DefaultAlignment = "diagonal"

// WatermarkError marks a recipient-scoped watermarking fault. The affected
// recipient is skipped; the rest of the job continues.
type WatermarkError struct {
	Reason string
}

func (e *WatermarkError) Error() string {
	return "watermark: " + e.Reason
}

// WatermarkClient calls the external watermarking service that embeds
// recipient-identifying text into an attachment.
type WatermarkClient struct {
	url    string
	client *http.Client
}

func NewWatermarkClient(url string, timeout time.Duration) *WatermarkClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WatermarkClient{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type watermarkRequest struct {
	DocumentBase64 string `json:"document_base64"`
	FileType       string `json:"file_type"`
	WatermarkText  string `json:"watermark_text"`
	Alignment      string `json:"alignment"`
}

type watermarkResponse struct {
	WatermarkedBase64 string `json:"watermarked_base64"`
	Error             string `json:"error"`
}

// Watermark returns the watermarked content for the given base64 payload.
// Any transport or processing fault is a *WatermarkError.
func (c *WatermarkClient) Watermark(ctx context.Context, content, mimeType, text, alignment string) (string, error) {
	reqBody, err := json.Marshal(watermarkRequest{
		DocumentBase64: content,
		FileType:       mimeType,
		WatermarkText:  text,
		Alignment:      alignment,
	})
	if err != nil {
		return "", &WatermarkError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", &WatermarkError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &WatermarkError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var wr watermarkResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", &WatermarkError{Reason: fmt.Sprintf("unexpected response (status %d): %q", resp.StatusCode, string(body))}
	}

	if resp.StatusCode != http.StatusOK {
		reason := wr.Error
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", &WatermarkError{Reason: reason}
	}
	if wr.WatermarkedBase64 == "" {
		return "", &WatermarkError{Reason: "missing watermarked content in response"}
	}

	return wr.WatermarkedBase64, nil
}
