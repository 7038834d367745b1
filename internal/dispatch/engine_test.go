package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

func newTestEngine(st *memStore, gw *fakeGateway, wm *fakeWatermarker, audit *memAudit) *Engine {
	th := NewThrottler(gw, wm, audit, time.Millisecond, testLogger())
	return NewEngine(st, th, testLogger())
}

func fixedClock(hhmm string) func() time.Time {
	t, _ := time.Parse("15:04", hhmm)
	return func() time.Time {
		return time.Date(2026, 9, 1, t.Hour(), t.Minute(), 10, 0, time.Local)
	}
}

func TestEngine_RunDue_NonDueJobsUntouched(t *testing.T) {
	t.Parallel()

	st := &memStore{jobs: []model.ScheduleJob{
		{ID: "j1", Time: "09:30", Recipients: []model.Recipient{{Phone: "+1"}}, Message: "hi"},
		{ID: "j2", Time: "18:00", Recipients: []model.Recipient{{Phone: "+2"}}, Message: "hi"},
	}}
	gw := &fakeGateway{}
	audit := &memAudit{}
	e := newTestEngine(st, gw, &fakeWatermarker{}, audit)
	e.now = fixedClock("12:00")

	res, err := e.RunDue(context.Background())
	if err != nil {
		t.Fatalf("RunDue() error: %v", err)
	}
	if res.JobsRun != 0 || res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("expected empty pass, got %+v", res)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(gw.calls))
	}
	if entries, _ := audit.List(context.Background()); len(entries) != 0 {
		t.Fatalf("expected no log entries, got %d", len(entries))
	}

	jobs, _ := st.List(context.Background())
	if len(jobs) != 2 {
		t.Fatalf("expected store unchanged, got %d jobs", len(jobs))
	}
}

func TestEngine_RunDue_DispatchesAndRemovesDueJob(t *testing.T) {
	t.Parallel()

	st := &memStore{jobs: []model.ScheduleJob{
		{
			ID:   "j1",
			Time: "09:30",
			Recipients: []model.Recipient{
				{Phone: "+1", Name: "Ann"},
				{Phone: "+2", Name: ""},
			},
			Message: "Hi {name}",
		},
		{ID: "j2", Time: "10:00", Recipients: []model.Recipient{{Phone: "+3"}}, Message: "later"},
	}}
	gw := &fakeGateway{}
	audit := &memAudit{}
	e := newTestEngine(st, gw, &fakeWatermarker{}, audit)
	e.now = fixedClock("09:30")

	res, err := e.RunDue(context.Background())
	if err != nil {
		t.Fatalf("RunDue() error: %v", err)
	}
	if res.JobsRun != 1 || res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if len(gw.calls) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(gw.calls))
	}
	if gw.calls[0].To != "+1" || gw.calls[0].Body != "Hi Ann" {
		t.Fatalf("unexpected first delivery: %+v", gw.calls[0])
	}
	if gw.calls[1].To != "+2" || gw.calls[1].Body != "Hi +2" {
		t.Fatalf("unexpected second delivery: %+v", gw.calls[1])
	}

	jobs, _ := st.List(context.Background())
	if len(jobs) != 1 || jobs[0].ID != "j2" {
		t.Fatalf("expected only j2 left, got %+v", jobs)
	}
	if len(st.removed) != 1 || len(st.removed[0]) != 1 || st.removed[0][0] != "j1" {
		t.Fatalf("expected one batch removal of j1, got %+v", st.removed)
	}
}

func TestEngine_WatermarkFailureMidJob_JobStillRemoved(t *testing.T) {
	t.Parallel()

	fm := &model.AttachmentMeta{Filename: "offer.pdf", Type: "application/pdf", Base64: "cGRm"}
	st := &memStore{jobs: []model.ScheduleJob{
		{
			ID:   "j1",
			Time: "09:30",
			Recipients: []model.Recipient{
				{Phone: "+1", Name: "Ann"},
				{Phone: "+2", Name: "Bob"},
				{Phone: "+3", Name: "Cat"},
			},
			Message:  "Hi {name}, see attached",
			FileMeta: fm,
		},
	}}
	gw := &fakeGateway{}
	wm := &fakeWatermarker{failFor: map[string]bool{"Bob": true}}
	audit := &memAudit{}
	e := newTestEngine(st, gw, wm, audit)
	e.now = fixedClock("09:30")

	res, err := e.RunDue(context.Background())
	if err != nil {
		t.Fatalf("RunDue() error: %v", err)
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("expected sent=2 failed=1, got %+v", res)
	}

	entries := audit.oldestFirst()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Status != model.Sent || entries[2].Status != model.Sent {
		t.Fatalf("expected recipients 1 and 3 sent, got %+v", entries)
	}
	if entries[1].To != "+2" || entries[1].Status != model.Failed {
		t.Fatalf("expected +2 failed, got %+v", entries[1])
	}

	jobs, _ := st.List(context.Background())
	if len(jobs) != 0 {
		t.Fatalf("expected job removed despite the failure, got %d jobs", len(jobs))
	}
}

func TestEngine_RunAll_IgnoresTimeCheck(t *testing.T) {
	t.Parallel()

	st := &memStore{jobs: []model.ScheduleJob{
		{ID: "j1", Time: "09:30", Recipients: []model.Recipient{{Phone: "+1"}}, Message: "a"},
		{ID: "j2", Time: "18:00", Recipients: []model.Recipient{{Phone: "+2"}}, Message: "b"},
	}}
	gw := &fakeGateway{}
	e := newTestEngine(st, gw, &fakeWatermarker{}, &memAudit{})
	e.now = fixedClock("00:00")

	res, err := e.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error: %v", err)
	}
	if res.JobsRun != 2 || res.Sent != 2 {
		t.Fatalf("expected both jobs dispatched, got %+v", res)
	}

	jobs, _ := st.List(context.Background())
	if len(jobs) != 0 {
		t.Fatalf("expected empty store after run-all, got %d jobs", len(jobs))
	}
}

func TestEngine_OverlappingPassRejected(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	e := newTestEngine(st, &fakeGateway{}, &fakeWatermarker{}, &memAudit{})
	e.inFlight.Store(true)

	if _, err := e.RunAll(context.Background()); !errors.Is(err, ErrDispatchInProgress) {
		t.Fatalf("expected ErrDispatchInProgress, got %v", err)
	}
	if _, err := e.RunDue(context.Background()); !errors.Is(err, ErrDispatchInProgress) {
		t.Fatalf("expected ErrDispatchInProgress, got %v", err)
	}

	e.inFlight.Store(false)
	if _, err := e.RunAll(context.Background()); err != nil {
		t.Fatalf("expected pass to run after flag cleared, got %v", err)
	}
}

func TestEngine_ListFailureAbortsPass(t *testing.T) {
	t.Parallel()

	st := &memStore{listErr: errors.New("connection lost")}
	gw := &fakeGateway{}
	e := newTestEngine(st, gw, &fakeWatermarker{}, &memAudit{})

	if _, err := e.RunAll(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(gw.calls) != 0 {
		t.Fatalf("expected no deliveries on store failure")
	}
}

func TestEngine_RemovalFailureSurfaces(t *testing.T) {
	t.Parallel()

	st := &memStore{
		jobs:      []model.ScheduleJob{{ID: "j1", Time: "09:30", Recipients: []model.Recipient{{Phone: "+1"}}, Message: "a"}},
		removeErr: errors.New("write failed"),
	}
	e := newTestEngine(st, &fakeGateway{}, &fakeWatermarker{}, &memAudit{})

	if _, err := e.RunAll(context.Background()); err == nil {
		t.Fatalf("expected removal error to surface")
	}

	// Nothing was removed; the job stays visible to the operator.
	jobs, _ := st.List(context.Background())
	if len(jobs) != 1 {
		t.Fatalf("expected job retained on removal failure, got %d", len(jobs))
	}
}

func TestEngine_PendingRecipients(t *testing.T) {
	t.Parallel()

	st := &memStore{jobs: []model.ScheduleJob{
		{ID: "j1", Recipients: []model.Recipient{{Phone: "+1"}, {Phone: "+2"}}},
		{ID: "j2", Recipients: []model.Recipient{{Phone: "+3"}}},
	}}
	e := newTestEngine(st, &fakeGateway{}, &fakeWatermarker{}, &memAudit{})

	jobs, recipients, err := e.PendingRecipients(context.Background())
	if err != nil {
		t.Fatalf("PendingRecipients() error: %v", err)
	}
	if jobs != 2 || recipients != 3 {
		t.Fatalf("expected 2 jobs / 3 recipients, got %d / %d", jobs, recipients)
	}
}

func TestEngine_PassOutlivesCanceledTrigger(t *testing.T) {
	t.Parallel()

	st := &memStore{jobs: []model.ScheduleJob{
		{
			ID:   "j1",
			Time: "09:30",
			Recipients: []model.Recipient{
				{Phone: "+1", Name: "Ann"},
				{Phone: "+2"},
				{Phone: "+3"},
			},
			Message: "Hi {name}",
		},
	}}
	gw := &fakeGateway{}
	audit := &memAudit{}
	e := newTestEngine(st, gw, &fakeWatermarker{}, audit)

	// The caller's context may already be dead when the pass starts, a
	// client disconnect or a scheduler stop. Every recipient must still
	// be attempted, and only then the job removed.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll() error: %v", err)
	}
	if res.JobsRun != 1 || res.Sent != 3 || res.Failed != 0 {
		t.Fatalf("expected a full pass, got %+v", res)
	}
	if len(gw.calls) != 3 {
		t.Fatalf("expected 3 delivery attempts, got %d", len(gw.calls))
	}
	for _, entry := range audit.oldestFirst() {
		if entry.Status != model.Sent {
			t.Fatalf("entry for %s logged %s (%s)", entry.To, entry.Status, entry.Response)
		}
	}
	if jobs, _ := st.List(context.Background()); len(jobs) != 0 {
		t.Fatalf("expected job removed after the pass, got %d left", len(jobs))
	}
}
