package dispatch

import (
	"context"
	"sync"

	"github.com/LeventeLantos/schedule-dispatch/internal/client"
	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

type gatewayCall struct {
	To   string
	Body string
	Att  *client.Attachment
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	rejects map[string]bool  // phones the gateway reports as failed
	errs    map[string]error // phones that fail at the transport level
}

func (g *fakeGateway) Deliver(ctx context.Context, to, body string, att *client.Attachment) (client.Outcome, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{To: to, Body: body, Att: att})
	g.mu.Unlock()

	if err := g.errs[to]; err != nil {
		return client.Outcome{}, err
	}
	if g.rejects[to] {
		return client.Outcome{Success: false, RawResponse: `{"error":"rejected"}`}, nil
	}
	return client.Outcome{Success: true, RawResponse: `{"sent":"true"}`}, nil
}

type watermarkCall struct {
	Content   string
	MimeType  string
	Text      string
	Alignment string
}

type fakeWatermarker struct {
	mu      sync.Mutex
	calls   []watermarkCall
	failFor map[string]bool // resolved names the service fails on
}

func (w *fakeWatermarker) Watermark(ctx context.Context, content, mimeType, text, alignment string) (string, error) {
	w.mu.Lock()
	w.calls = append(w.calls, watermarkCall{Content: content, MimeType: mimeType, Text: text, Alignment: alignment})
	w.mu.Unlock()

	if w.failFor[text] {
		return "", &client.WatermarkError{Reason: "processing fault"}
	}
	return "wm:" + content, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.LogEntry // newest first
}

func (a *memAudit) Record(ctx context.Context, entry model.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append([]model.LogEntry{entry}, a.entries...)
	return nil
}

func (a *memAudit) List(ctx context.Context) ([]model.LogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.LogEntry(nil), a.entries...), nil
}

func (a *memAudit) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
	return nil
}

// oldestFirst reverses the newest-first audit order for assertions that
// follow send order.
func (a *memAudit) oldestFirst() []model.LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.LogEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0; i-- {
		out = append(out, a.entries[i])
	}
	return out
}

type memStore struct {
	mu        sync.Mutex
	jobs      []model.ScheduleJob
	listErr   error
	removeErr error
	removed   [][]string
}

func (s *memStore) List(ctx context.Context) ([]model.ScheduleJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.ScheduleJob(nil), s.jobs...), nil
}

func (s *memStore) Save(ctx context.Context, job *model.ScheduleJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == job.ID {
			s.jobs[i] = *job
			return nil
		}
	}
	s.jobs = append(s.jobs, *job)
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) RemoveAll(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, ids)
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.jobs[:0]
	for _, j := range s.jobs {
		if !drop[j.ID] {
			kept = append(kept, j)
		}
	}
	s.jobs = kept
	return nil
}
