package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/LeventeLantos/schedule-dispatch/internal/auditlog"
	"github.com/LeventeLantos/schedule-dispatch/internal/client"
	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

type Deliverer interface {
	Deliver(ctx context.Context, to, body string, att *client.Attachment) (client.Outcome, error)
}

type Watermarker interface {
	Watermark(ctx context.Context, content, mimeType, text, alignment string) (string, error)
}

// Throttler executes send tasks sequentially with an enforced minimum
// spacing between sends. The gateway enforces provider-side throughput
// limits, so the spacing is a hard floor, not a best-effort average.
type Throttler struct {
	gateway     Deliverer
	watermarker Watermarker
	audit       auditlog.AuditLog
	limiter     *rate.Limiter
	log         *slog.Logger
}

func NewThrottler(gateway Deliverer, watermarker Watermarker, audit auditlog.AuditLog, delay time.Duration, log *slog.Logger) *Throttler {
	if delay <= 0 {
		delay = 1200 * time.Millisecond
	}
	return &Throttler{
		gateway:     gateway,
		watermarker: watermarker,
		audit:       audit,
		limiter:     rate.NewLimiter(rate.Every(delay), 1),
		log:         log,
	}
}

// ProcessTasks runs every task to completion in order. Per-recipient
// failures are converted into audit entries and never abort the loop.
// Exactly one LogEntry is recorded per task regardless of outcome.
func (t *Throttler) ProcessTasks(ctx context.Context, tasks []Task) (sent, failed int) {
	for _, task := range tasks {
		if err := t.limiter.Wait(ctx); err != nil {
			failed++
			t.record(ctx, task, "", model.Failed, err.Error())
			continue
		}

		att, filename, err := t.prepare(ctx, task)
		if err != nil {
			// Watermark fault: skip this recipient entirely, no fallback
			// to the un-watermarked original.
			failed++
			t.log.Error("watermarking failed, skipping recipient", "to", task.To, "err", err)
			t.record(ctx, task, filename, model.Failed, err.Error())
			continue
		}

		out, err := t.gateway.Deliver(ctx, task.To, task.Body, att)
		switch {
		case err != nil:
			failed++
			t.log.Error("delivery failed", "to", task.To, "err", err)
			t.record(ctx, task, filename, model.Failed, err.Error())
		case !out.Success:
			failed++
			t.log.Warn("gateway rejected message", "to", task.To)
			t.record(ctx, task, filename, model.Failed, out.RawResponse)
		default:
			sent++
			t.record(ctx, task, filename, model.Sent, out.RawResponse)
		}
	}
	return sent, failed
}

// prepare builds the outbound attachment for a task, watermarking it with
// the recipient's resolved name when the policy asks for it. The returned
// filename is what the audit entry should carry.
func (t *Throttler) prepare(ctx context.Context, task Task) (*client.Attachment, string, error) {
	fm := task.Attachment
	if fm == nil {
		return nil, "", nil
	}

	att := &client.Attachment{
		Filename: fm.Filename,
		Type:     fm.Type,
		Base64:   fm.Base64,
	}
	if !task.Watermark {
		return att, att.Filename, nil
	}

	content, err := t.watermarker.Watermark(ctx, fm.Base64, fm.Type, task.Name, client.DefaultAlignment)
	if err != nil {
		return nil, fm.Filename, err
	}
	att.Base64 = content
	att.Filename = "WM_" + fm.Filename
	return att, att.Filename, nil
}

func (t *Throttler) record(ctx context.Context, task Task, filename string, status model.Status, response string) {
	entry := model.LogEntry{
		Time:     time.Now().UTC(),
		To:       task.To,
		Filename: filename,
		Message:  task.Body,
		Status:   status,
		Response: response,
	}
	if err := t.audit.Record(ctx, entry); err != nil {
		t.log.Error("failed to record audit entry", "to", task.To, "err", err)
	}
}
