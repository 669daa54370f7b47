package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"service_entry_reporter/internal/domain/report"
	"service_entry_reporter/internal/infra/email"
	"service_entry_reporter/internal/infra/lockfile"
	"service_entry_reporter/internal/infra/output"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// a Monday that is also the 1st: weekly and monthly both due
	bothDue = time.Date(2025, time.December, 1, 6, 0, 0, 0, time.Local)
	// a non-1st Monday: weekly only
	weeklyDue = time.Date(2025, time.March, 10, 6, 0, 0, 0, time.Local)
	// a plain Wednesday: nothing due
	nothingDue = time.Date(2025, time.March, 12, 6, 0, 0, 0, time.Local)
)

type fetchResult struct {
	rs  *report.ResultSet
	err error
}

type fakeQuerier struct {
	results []fetchResult
	windows []report.DateWindow
}

func (f *fakeQuerier) FetchWindow(ctx context.Context, w report.DateWindow) (*report.ResultSet, error) {
	f.windows = append(f.windows, w)
	if len(f.results) == 0 {
		return &report.ResultSet{Columns: []string{"ID"}, Rows: [][]string{{"1"}}}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.rs, r.err
}

type fakeSender struct {
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(msg email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeNotifier struct {
	texts []string
}

func (f *fakeNotifier) NotifyRunSummary(text string) error {
	f.texts = append(f.texts, text)
	return nil
}

type harness struct {
	svc     *ReportService
	querier *fakeQuerier
	sender  *fakeSender
	guard   *lockfile.FileGuard
	tracker *output.FileTracker
	dir     string
}

func newHarness(t *testing.T, refDate time.Time, settings RunSettings) *harness {
	t.Helper()
	dir := t.TempDir()
	log := logrus.New()
	log.SetOutput(os.Stderr)

	querier := &fakeQuerier{}
	sender := &fakeSender{}
	guard := lockfile.NewFileGuard(filepath.Join(dir, "run.lock"))
	tracker := output.NewFileTracker(filepath.Join(dir, "output"), refDate, log)
	if settings.Title == "" {
		settings.Title = "Service Entry Report"
	}
	svc := NewReportService(querier, tracker, guard, sender, nil, log, settings)
	return &harness{svc: svc, querier: querier, sender: sender, guard: guard, tracker: tracker, dir: dir}
}

// assertLockReleased verifies the run dropped the lock: a fresh acquire
// must succeed.
func assertLockReleased(t *testing.T, h *harness) {
	t.Helper()
	acquired, err := h.guard.Acquire()
	require.NoError(t, err)
	assert.True(t, acquired, "run must release the lock on every exit path")
	require.NoError(t, h.guard.Release())
}

func TestRunExitsWhenLockHeld(t *testing.T) {
	h := newHarness(t, bothDue, RunSettings{})
	acquired, err := h.guard.Acquire()
	require.NoError(t, err)
	require.True(t, acquired)

	result, err := h.svc.RunOnce(context.Background(), bothDue)
	require.NoError(t, err)
	assert.Equal(t, RunNoop, result.Outcome)
	assert.Empty(t, h.querier.windows, "a locked run must not touch the database")
	assert.Empty(t, h.sender.sent)

	// the foreign lock must survive the aborted run
	_, err = os.Stat(h.guard.Path())
	assert.NoError(t, err)
}

func TestRunNothingDue(t *testing.T) {
	h := newHarness(t, nothingDue, RunSettings{})

	result, err := h.svc.RunOnce(context.Background(), nothingDue)
	require.NoError(t, err)
	assert.Equal(t, RunNoop, result.Outcome)
	assert.Empty(t, h.querier.windows)
	assert.Empty(t, h.sender.sent)
	assertLockReleased(t, h)
}

func TestRunBothDueEndToEnd(t *testing.T) {
	h := newHarness(t, bothDue, RunSettings{})
	h.querier.results = []fetchResult{
		{rs: &report.ResultSet{Columns: []string{"ID"}, Rows: [][]string{{"1"}, {"2"}}}},
		{rs: &report.ResultSet{Columns: []string{"ID"}, Rows: [][]string{{"3"}}}},
	}

	result, err := h.svc.RunOnce(context.Background(), bothDue)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, result.Outcome)
	assert.True(t, result.EmailSent)
	require.Len(t, result.Artifacts, 2)
	assert.Equal(t, report.CategoryWeekly, result.Artifacts[0].Category)
	assert.Equal(t, report.CategoryMonthly, result.Artifacts[1].Category)

	// weekly first, monthly second, with the right windows
	require.Len(t, h.querier.windows, 2)
	assert.Equal(t, time.Date(2025, time.November, 24, 0, 0, 0, 0, time.Local), h.querier.windows[0].Start)
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.Local), h.querier.windows[0].End)
	assert.Equal(t, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.Local), h.querier.windows[1].Start)
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.Local), h.querier.windows[1].End)

	require.Len(t, h.sender.sent, 1)
	msg := h.sender.sent[0]
	assert.Equal(t, "Service Entry Report - Weekly & Monthly - 20251201", msg.Subject)
	assert.Len(t, msg.Attachments, 2)
	assert.Contains(t, msg.TextBody, "Weekly")
	assert.Contains(t, msg.TextBody, "Monthly")

	for _, a := range result.Artifacts {
		_, err := os.Stat(a.FilePath)
		assert.NoError(t, err)
	}
	assertLockReleased(t, h)
}

func TestRunIsIdempotentWithinOneDay(t *testing.T) {
	h := newHarness(t, weeklyDue, RunSettings{})

	first, err := h.svc.RunOnce(context.Background(), weeklyDue)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, first.Outcome)
	require.Len(t, first.Artifacts, 1)
	require.Len(t, h.sender.sent, 1)

	second, err := h.svc.RunOnce(context.Background(), weeklyDue)
	require.NoError(t, err)
	assert.Equal(t, RunNoop, second.Outcome)
	assert.Empty(t, second.Artifacts, "second run must not rebuild today's artifacts")
	assert.Len(t, h.querier.windows, 1, "second run must not query again")
	assert.Len(t, h.sender.sent, 1, "second run must not send another email")
	assertLockReleased(t, h)
}

func TestRunRetriesAfterDeletedOutputs(t *testing.T) {
	h := newHarness(t, weeklyDue, RunSettings{})

	first, err := h.svc.RunOnce(context.Background(), weeklyDue)
	require.NoError(t, err)
	require.Len(t, first.Artifacts, 1)

	// remove both the artifact and the marker: the day becomes retryable
	p := h.tracker.Paths(report.CategoryWeekly)
	require.NoError(t, os.Remove(p.Final))
	require.NoError(t, os.Remove(p.Marker))

	second, err := h.svc.RunOnce(context.Background(), weeklyDue)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, second.Outcome)
	assert.Len(t, h.sender.sent, 2)
}

func TestRunQueryFailureKeepsPriorArtifacts(t *testing.T) {
	h := newHarness(t, bothDue, RunSettings{})
	queryErr := errors.New("relation does not exist")
	h.querier.results = []fetchResult{
		{rs: &report.ResultSet{Columns: []string{"ID"}, Rows: [][]string{{"1"}}}},
		{err: queryErr},
	}

	result, err := h.svc.RunOnce(context.Background(), bothDue)
	require.Error(t, err)
	assert.ErrorIs(t, err, queryErr)
	assert.Equal(t, RunFailed, result.Outcome)
	assert.False(t, result.EmailSent)
	assert.Empty(t, h.sender.sent, "a partial run must not email")

	// weekly survived and is marked done; monthly is retryable
	require.Len(t, result.Artifacts, 1)
	doneWeekly, err := h.tracker.Done(report.CategoryWeekly)
	require.NoError(t, err)
	assert.True(t, doneWeekly)
	doneMonthly, err := h.tracker.Done(report.CategoryMonthly)
	require.NoError(t, err)
	assert.False(t, doneMonthly)

	assertLockReleased(t, h)
}

func TestRunSkipsCompletedCategoryAndRetriesFailedOne(t *testing.T) {
	h := newHarness(t, bothDue, RunSettings{})
	h.querier.results = []fetchResult{
		{rs: &report.ResultSet{Columns: []string{"ID"}, Rows: [][]string{{"1"}}}},
		{err: errors.New("timeout")},
	}
	_, err := h.svc.RunOnce(context.Background(), bothDue)
	require.Error(t, err)

	// next attempt: only monthly runs, and this time it works
	h.querier.results = []fetchResult{
		{rs: &report.ResultSet{Columns: []string{"ID"}, Rows: [][]string{{"9"}}}},
	}
	result, err := h.svc.RunOnce(context.Background(), bothDue)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, result.Outcome)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, report.CategoryMonthly, result.Artifacts[0].Category)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "Service Entry Report - Monthly - 20251201", h.sender.sent[0].Subject)
}

func TestRunSendFailureKeepsArtifacts(t *testing.T) {
	h := newHarness(t, weeklyDue, RunSettings{})
	h.sender.err = email.ErrSend

	result, err := h.svc.RunOnce(context.Background(), weeklyDue)
	require.Error(t, err)
	assert.ErrorIs(t, err, email.ErrSend)
	assert.Equal(t, RunFailed, result.Outcome)
	assert.False(t, result.EmailSent)

	// the durable artifact outlives the failed notification
	require.Len(t, result.Artifacts, 1)
	_, statErr := os.Stat(result.Artifacts[0].FilePath)
	assert.NoError(t, statErr)
	done, err := h.tracker.Done(report.CategoryWeekly)
	require.NoError(t, err)
	assert.True(t, done)
	assertLockReleased(t, h)
}

func TestRunForcedModeUsesSingleReportLayout(t *testing.T) {
	h := newHarness(t, nothingDue, RunSettings{ForcedMode: report.ModeDaily})

	result, err := h.svc.RunOnce(context.Background(), nothingDue)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, result.Outcome)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, report.Category(""), result.Artifacts[0].Category)
	assert.Equal(t, "20250312_QH_ServiceEntry.csv", filepath.Base(result.Artifacts[0].FilePath))

	require.Len(t, h.querier.windows, 1)
	assert.Equal(t, time.Date(2025, time.March, 12, 0, 0, 0, 0, time.Local), h.querier.windows[0].Start)
	assert.Equal(t, time.Date(2025, time.March, 13, 0, 0, 0, 0, time.Local), h.querier.windows[0].End)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "Service Entry Report - 20250312", h.sender.sent[0].Subject)
}

func TestRunFiscalMonthlyWindow(t *testing.T) {
	h := newHarness(t, bothDue, RunSettings{YearStartMonth: time.July})

	result, err := h.svc.RunOnce(context.Background(), bothDue)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, result.Outcome)

	// monthly runs second; with a July anchor it covers the fiscal YTD
	require.Len(t, h.querier.windows, 2)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.Local), h.querier.windows[1].Start)
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.Local), h.querier.windows[1].End)
}

func TestRunNotifierGetsSummary(t *testing.T) {
	h := newHarness(t, weeklyDue, RunSettings{})
	notifier := &fakeNotifier{}
	h.svc.notifier = notifier

	result, err := h.svc.RunOnce(context.Background(), weeklyDue)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, result.Outcome)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "1 artifact(s)")
	assert.Contains(t, notifier.texts[0], result.RunID)
}
