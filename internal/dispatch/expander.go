package dispatch

import (
	"strings"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
	"github.com/LeventeLantos/schedule-dispatch/internal/template"
)

// Task is one per-recipient send unit. The attachment pointer is shared
// across all tasks of a job; watermarked copies exist only in flight.
type Task struct {
	To         string
	Name       string
	Body       string
	Attachment *model.AttachmentMeta
	Watermark  bool
}

// Expand flattens a job into ordered per-recipient tasks, preserving
// recipient list order. Recipients are not deduplicated.
func Expand(job model.ScheduleJob) []Task {
	watermark := shouldWatermark(job)

	tasks := make([]Task, 0, len(job.Recipients))
	for _, r := range job.Recipients {
		name := r.DisplayName()
		tasks = append(tasks, Task{
			To:         r.Phone,
			Name:       name,
			Body:       template.Personalize(job.Message, name),
			Attachment: job.FileMeta,
			Watermark:  watermark,
		})
	}
	return tasks
}

// shouldWatermark applies the conditional invocation policy: an attachment
// of a recognized type, a template that references the recipient name, and
// a template that is more than the bare token. A token-only template sends
// the literal name as the message with the attachment untouched.
func shouldWatermark(job model.ScheduleJob) bool {
	fm := job.FileMeta
	if fm == nil {
		return false
	}
	if fm.Type != "application/pdf" && !strings.HasPrefix(fm.Type, "image/") {
		return false
	}
	if !template.ContainsToken(job.Message) {
		return false
	}
	if template.IsTokenOnly(job.Message) {
		return false
	}
	return true
}
