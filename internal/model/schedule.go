package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// NameToken is the placeholder in a message template that is replaced with
// a recipient's resolved display name.
const NameToken = "{name}"

var timePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

type Recipient struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// DisplayName falls back to the phone number when no name was saved.
func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Phone
}

// AttachmentMeta is shared verbatim across all recipients of a job. A
// watermarked per-recipient copy is never written back into the job.
type AttachmentMeta struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Base64   string `json:"base64"`
}

// ScheduleJob is a stored instruction to send a personalized message (plus
// an optional attachment) to a set of recipients at a daily HH:MM time.
type ScheduleJob struct {
	ID         string          `json:"id"`
	Time       string          `json:"time"`
	Recipients []Recipient     `json:"recipients"`
	Message    string          `json:"message"`
	FileMeta   *AttachmentMeta `json:"fileMeta,omitempty"`
	Created    time.Time       `json:"created"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks a job before persistence; invalid jobs are rejected here,
// never at dispatch time. The gateway rejects an empty body, so a blank
// message is normalized to a single space.
func (j *ScheduleJob) Validate() error {
	if !timePattern.MatchString(j.Time) {
		return &ValidationError{Field: "time", Reason: `must match 24-hour "HH:MM"`}
	}
	if len(j.Recipients) == 0 {
		return &ValidationError{Field: "recipients", Reason: "at least one recipient required"}
	}
	for i, r := range j.Recipients {
		if strings.TrimSpace(r.Phone) == "" {
			return &ValidationError{Field: "recipients", Reason: fmt.Sprintf("recipient %d has no phone", i)}
		}
	}
	if strings.TrimSpace(j.Message) == "" {
		j.Message = " "
	}
	if j.FileMeta != nil {
		if j.FileMeta.Filename == "" {
			return &ValidationError{Field: "fileMeta", Reason: "filename is required"}
		}
		if j.FileMeta.Base64 == "" {
			return &ValidationError{Field: "fileMeta", Reason: "base64 content is required"}
		}
	}
	return nil
}
