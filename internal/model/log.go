package model

import "time"

type Status string

const (
	Sent   Status = "sent"
	Failed Status = "failed"
)

// LogEntry records one send attempt. The Response field carries the raw
// gateway body (or the watermark error text) unmodified for audit purposes.
type LogEntry struct {
	Time     time.Time `json:"time"`
	To       string    `json:"to"`
	Filename string    `json:"filename"`
	Message  string    `json:"message"`
	Status   Status    `json:"status"`
	Response string    `json:"response"`
}
