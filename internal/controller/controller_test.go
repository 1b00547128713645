package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"recon-review-gateway/internal/models"
	"recon-review-gateway/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu           sync.Mutex
	batches      []upstream.RawBatch
	records      map[int64][]upstream.RawRecord
	resolveCalls int
	retryCalls   int
	recordCalls  int
	resolveErr   error
}

func (f *fakeAPI) ListBatches(ctx context.Context) ([]upstream.RawBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upstream.RawBatch{}, f.batches...), nil
}

func (f *fakeAPI) GetBatch(ctx context.Context, id int64) (upstream.RawBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if b.ID == id {
			return b, nil
		}
	}
	return upstream.RawBatch{}, fmt.Errorf("batch %d not found", id)
}

func (f *fakeAPI) ListRecords(ctx context.Context, batchID int64, status string, resolved *bool) ([]upstream.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCalls++
	return append([]upstream.RawRecord{}, f.records[batchID]...), nil
}

func (f *fakeAPI) RetryBatch(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryCalls++
	return nil
}

func (f *fakeAPI) ResolveRecord(ctx context.Context, id int64, comment string, resolve bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolveCalls++
	// reflect the mutation so the refetch returns authoritative state
	for batchID, records := range f.records {
		for i := range records {
			if records[i].ID != id {
				continue
			}
			var comments []string
			if len(records[i].ResolutionComment) > 0 {
				_ = json.Unmarshal(records[i].ResolutionComment, &comments)
			}
			comments = append(comments, comment)
			raw, _ := json.Marshal(comments)
			records[i].ResolutionComment = raw
			if resolve {
				records[i].Resolved = true
			}
			f.records[batchID] = records
		}
	}
	return nil
}

func (f *fakeAPI) InvalidateBatch(id int64)        {}
func (f *fakeAPI) InvalidateRecords(batchID int64) {}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notify(level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, level+": "+message)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type recordingNavigator struct {
	mu        sync.Mutex
	redirects int
}

func (n *recordingNavigator) NavigateToList() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects++
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.redirects
}

func rawBatch(id int64, status, created string) upstream.RawBatch {
	return upstream.RawBatch{
		ID:             id,
		Status:         status,
		BackofficeFile: fmt.Sprintf("/files/backoffice_%d.csv", id),
		VendorFile:     fmt.Sprintf("/files/vendor_%d.csv", id),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func rawRecord(id int64, matchStatus string) upstream.RawRecord {
	vendor := fmt.Sprintf(
		`{"core":{"transaction_id":"TX-%d","amount":100,"date":"2024-03-01","description":"payment %d","direction":"Debit"}}`,
		id, id,
	)
	return upstream.RawRecord{ID: id, MatchStatus: matchStatus, VendorData: vendor}
}

func newTestController(fake *fakeAPI) (*Controller, *recordingNotifier, *recordingNavigator) {
	notifier := &recordingNotifier{}
	navigator := &recordingNavigator{}
	ctrl := New(fake, notifier, navigator, 0)
	return ctrl, notifier, navigator
}

func loadedController(t *testing.T, fake *fakeAPI) (*Controller, *recordingNotifier, *recordingNavigator) {
	t.Helper()
	ctrl, notifier, navigator := newTestController(fake)
	require.NoError(t, ctrl.LoadBatches(context.Background()))
	return ctrl, notifier, navigator
}

func TestSyncRouteEntersDetails(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{
			1: {rawRecord(10, "MATCH"), rawRecord(11, "MISMATCH")},
		},
	}
	ctrl, _, navigator := loadedController(t, fake)

	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))

	assert.Equal(t, ViewDetails, ctrl.ViewMode())
	assert.Equal(t, 0, navigator.count())
	assert.Equal(t, "RB-1", ctrl.LastSelectedBatchID())

	batch := ctrl.SelectedBatch()
	require.NotNil(t, batch)
	assert.Equal(t, "RB-1", batch.ID)
	assert.Len(t, batch.Records, 2)
	assert.Equal(t, 50, batch.MatchRate)
}

func TestSyncRouteStaleBatchRedirectsToList(t *testing.T) {
	fake := &fakeAPI{batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")}}
	ctrl, _, navigator := loadedController(t, fake)

	// force details first so the correction is observable
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	require.Equal(t, ViewDetails, ctrl.ViewMode())

	err := ctrl.SyncRoute(context.Background(), "RB-999")

	assert.ErrorIs(t, err, ErrBatchNotFound)
	assert.Equal(t, ViewList, ctrl.ViewMode())
	assert.Nil(t, ctrl.SelectedBatch())
	assert.Equal(t, 1, navigator.count())
}

func TestSyncRouteEmptyMeansListView(t *testing.T) {
	fake := &fakeAPI{batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")}}
	ctrl, _, navigator := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))

	require.NoError(t, ctrl.SyncRoute(context.Background(), ""))

	assert.Equal(t, ViewList, ctrl.ViewMode())
	assert.Equal(t, 0, navigator.count(), "absent route id is not a redirect condition")
}

func TestBackToListClearsSelection(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{1: {rawRecord(10, "MATCH")}},
	}
	ctrl, _, navigator := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	require.NoError(t, ctrl.SelectRecord(10))

	ctrl.BackToList()

	assert.Equal(t, ViewList, ctrl.ViewMode())
	assert.Nil(t, ctrl.SelectedBatch())
	record, open := ctrl.SelectedRecord()
	assert.Nil(t, record)
	assert.False(t, open)
	assert.Equal(t, 1, navigator.count())
}

func TestBatchFilteringBySearchTerm(t *testing.T) {
	fake := &fakeAPI{batches: []upstream.RawBatch{
		rawBatch(7, "COMPLETED", "2024-01-03T00:00:00Z"),
		rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z"),
		rawBatch(2, "FAILED", "2024-01-02T00:00:00Z"),
	}}
	ctrl, _, _ := loadedController(t, fake)

	ctrl.SetSearchTerm("RB-7")
	ctrl.SetBatchStatusFilter("ALL")

	filtered := ctrl.Batches()
	require.Len(t, filtered, 1)
	assert.Equal(t, "RB-7", filtered[0].ID)
}

func TestBatchFilteringByStatusAndFileName(t *testing.T) {
	fake := &fakeAPI{batches: []upstream.RawBatch{
		rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z"),
		rawBatch(2, "FAILED", "2024-01-02T00:00:00Z"),
	}}
	ctrl, _, _ := loadedController(t, fake)

	ctrl.SetBatchStatusFilter("FAILED")
	filtered := ctrl.Batches()
	require.Len(t, filtered, 1)
	assert.Equal(t, "RB-2", filtered[0].ID)

	ctrl.SetBatchStatusFilter("ALL")
	ctrl.SetSearchTerm("vendor_1")
	filtered = ctrl.Batches()
	require.Len(t, filtered, 1)
	assert.Equal(t, "RB-1", filtered[0].ID)
}

func TestBatchSortDefaultIsDateDescending(t *testing.T) {
	fake := &fakeAPI{batches: []upstream.RawBatch{
		rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z"),
		rawBatch(3, "COMPLETED", "2024-01-03T00:00:00Z"),
		rawBatch(2, "COMPLETED", "2024-01-02T00:00:00Z"),
	}}
	ctrl, _, _ := loadedController(t, fake)

	ordered := ctrl.Batches()
	require.Len(t, ordered, 3)
	assert.Equal(t, "RB-3", ordered[0].ID)
	assert.Equal(t, "RB-2", ordered[1].ID)
	assert.Equal(t, "RB-1", ordered[2].ID)
}

func TestBatchSortToggleAndReset(t *testing.T) {
	fake := &fakeAPI{batches: []upstream.RawBatch{
		rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z"),
		rawBatch(2, "COMPLETED", "2024-01-02T00:00:00Z"),
	}}
	ctrl, _, _ := loadedController(t, fake)

	ctrl.SortBy("date")
	assert.Equal(t, "RB-1", ctrl.Batches()[0].ID, "first click sorts ascending")

	ctrl.SortBy("date")
	assert.Equal(t, "RB-2", ctrl.Batches()[0].ID, "second click toggles descending")

	ctrl.SortBy("id")
	assert.Equal(t, "RB-1", ctrl.Batches()[0].ID, "new field resets to ascending")
}

func TestSetSortIsAbsoluteNotAToggle(t *testing.T) {
	fake := &fakeAPI{batches: []upstream.RawBatch{
		rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z"),
		rawBatch(2, "COMPLETED", "2024-01-02T00:00:00Z"),
	}}
	ctrl, _, _ := loadedController(t, fake)

	ctrl.SetSort("date", true)
	first := ctrl.Batches()
	ctrl.SetSort("date", true)
	second := ctrl.Batches()

	require.NotEmpty(t, first)
	assert.Equal(t, "RB-1", first[0].ID)
	assert.Equal(t, first[0].ID, second[0].ID, "repeating the same sort never flips direction")

	ctrl.SetSort("date", false)
	assert.Equal(t, "RB-2", ctrl.Batches()[0].ID)

	ctrl.SetSort("", true)
	assert.Equal(t, "RB-2", ctrl.Batches()[0].ID, "clearing the field restores date descending")
}

func TestResolveRejectsEmptyComment(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{1: {rawRecord(10, "MISMATCH")}},
	}
	ctrl, notifier, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	require.NoError(t, ctrl.SelectRecord(10))

	err := ctrl.ResolveRecord(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyComment)
	assert.Equal(t, 0, fake.resolveCalls, "no network call for an empty comment")
	record, _ := ctrl.SelectedRecord()
	require.NotNil(t, record)
	assert.False(t, record.Resolved)
	assert.Equal(t, 1, notifier.count())
}

func TestResolveAppendsCommentAndMarksResolved(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{1: {rawRecord(10, "MISMATCH")}},
	}
	ctrl, _, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	require.NoError(t, ctrl.SelectRecord(10))

	before, _ := ctrl.SelectedRecord()
	require.NotNil(t, before)
	commentsBefore := len(before.ResolutionComments)

	require.NoError(t, ctrl.ResolveRecord(context.Background(), "checked against ledger"))

	assert.Equal(t, 1, fake.resolveCalls)
	after, open := ctrl.SelectedRecord()
	require.NotNil(t, after)
	assert.True(t, open, "modal stays open across resolution")
	assert.True(t, after.Resolved)
	assert.Len(t, after.ResolutionComments, commentsBefore+1)
	assert.Equal(t, "checked against ledger", after.ResolutionComments[len(after.ResolutionComments)-1])
}

func TestResolveTwiceIsRejected(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{1: {rawRecord(10, "MISMATCH")}},
	}
	ctrl, _, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	require.NoError(t, ctrl.SelectRecord(10))
	require.NoError(t, ctrl.ResolveRecord(context.Background(), "first pass"))

	err := ctrl.ResolveRecord(context.Background(), "second pass")

	assert.ErrorIs(t, err, ErrRecordResolved)
	assert.Equal(t, 1, fake.resolveCalls)
}

func TestCommentDoesNotResolve(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{1: {rawRecord(10, "MISMATCH")}},
	}
	ctrl, _, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	require.NoError(t, ctrl.SelectRecord(10))

	require.NoError(t, ctrl.AddComment(context.Background(), "needs vendor confirmation"))

	record, _ := ctrl.SelectedRecord()
	require.NotNil(t, record)
	assert.False(t, record.Resolved)
	assert.Contains(t, record.ResolutionComments, "needs vendor confirmation")

	// comments are still allowed after resolution
	require.NoError(t, ctrl.ResolveRecord(context.Background(), "resolved now"))
	require.NoError(t, ctrl.AddComment(context.Background(), "post-resolution note"))
	record, _ = ctrl.SelectedRecord()
	assert.Contains(t, record.ResolutionComments, "post-resolution note")
}

func TestResolveFailureLeavesStateUntouched(t *testing.T) {
	fake := &fakeAPI{
		batches:    []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records:    map[int64][]upstream.RawRecord{1: {rawRecord(10, "MISMATCH")}},
		resolveErr: fmt.Errorf("upstream error 503: unavailable"),
	}
	ctrl, notifier, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	require.NoError(t, ctrl.SelectRecord(10))

	err := ctrl.ResolveRecord(context.Background(), "will not land")

	assert.Error(t, err)
	record, _ := ctrl.SelectedRecord()
	require.NotNil(t, record)
	assert.False(t, record.Resolved)
	assert.Empty(t, record.ResolutionComments)
	assert.NotZero(t, notifier.count())
}

func TestRetryBatchRefetches(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "FAILED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{1: {rawRecord(10, "MISSING")}},
	}
	ctrl, _, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))
	callsAfterSync := fake.recordCalls

	require.NoError(t, ctrl.RetryBatch(context.Background()))

	assert.Equal(t, 1, fake.retryCalls)
	assert.Greater(t, fake.recordCalls, callsAfterSync, "retry triggers a records refetch")
}

func TestSelectRecordAndModalMoveTogether(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{1: {rawRecord(10, "MATCH")}},
	}
	ctrl, _, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))

	record, open := ctrl.SelectedRecord()
	assert.Nil(t, record)
	assert.False(t, open)

	require.NoError(t, ctrl.SelectRecord(10))
	record, open = ctrl.SelectedRecord()
	require.NotNil(t, record)
	assert.True(t, open)

	ctrl.CloseRecordModal()
	record, open = ctrl.SelectedRecord()
	assert.Nil(t, record)
	assert.False(t, open)
}

func TestOpenRecordDebounceCoalescesRapidClicks(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{
			1: {rawRecord(10, "MATCH"), rawRecord(11, "MISMATCH")},
		},
	}
	notifier := &recordingNotifier{}
	navigator := &recordingNavigator{}
	ctrl := New(fake, notifier, navigator, 20*time.Millisecond)
	require.NoError(t, ctrl.LoadBatches(context.Background()))
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))

	ctrl.OpenRecord(10)
	ctrl.OpenRecord(10)
	ctrl.OpenRecord(11)

	record, open := ctrl.SelectedRecord()
	assert.Nil(t, record, "nothing opens inside the window")
	assert.False(t, open)

	time.Sleep(60 * time.Millisecond)

	record, open = ctrl.SelectedRecord()
	require.NotNil(t, record)
	assert.True(t, open)
	assert.Equal(t, int64(11), record.ID, "the window collapses to one open of the last record")
}

func TestRecordStatusFilter(t *testing.T) {
	fake := &fakeAPI{
		batches: []upstream.RawBatch{rawBatch(1, "COMPLETED", "2024-01-01T00:00:00Z")},
		records: map[int64][]upstream.RawRecord{
			1: {rawRecord(10, "MATCH"), rawRecord(11, "MISMATCH"), rawRecord(12, "MISSING")},
		},
	}
	ctrl, _, _ := loadedController(t, fake)
	require.NoError(t, ctrl.SyncRoute(context.Background(), "RB-1"))

	assert.Len(t, ctrl.Records(), 3)

	ctrl.SetRecordStatusFilter("UNMATCHED")
	filtered := ctrl.Records()
	require.Len(t, filtered, 1)
	assert.Equal(t, models.StatusUnmatched, filtered[0].Status)
}
