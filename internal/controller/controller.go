package controller

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"recon-review-gateway/internal/config"
	"recon-review-gateway/internal/mapper"
	"recon-review-gateway/internal/models"
	"recon-review-gateway/internal/upstream"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyComment         = errors.New("resolution comment must not be empty")
	ErrBatchNotFound        = errors.New("batch not found")
	ErrRecordNotFound       = errors.New("record not found in selected batch")
	ErrNoBatchSelected      = errors.New("no batch selected")
	ErrNoRecordSelected     = errors.New("no record selected")
	ErrRecordResolved       = errors.New("record is already resolved")
	ErrNoProblematicRecords = errors.New("no problematic records to export")
)

// UpstreamAPI is the slice of the remote access layer the controller
// consumes. The concrete client satisfies it; tests substitute a fake.
type UpstreamAPI interface {
	ListBatches(ctx context.Context) ([]upstream.RawBatch, error)
	GetBatch(ctx context.Context, id int64) (upstream.RawBatch, error)
	ListRecords(ctx context.Context, batchID int64, status string, resolved *bool) ([]upstream.RawRecord, error)
	RetryBatch(ctx context.Context, id int64) error
	ResolveRecord(ctx context.Context, id int64, comment string, resolve bool) error
	InvalidateBatch(id int64)
	InvalidateRecords(batchID int64)
}

// Notifier carries non-blocking user-facing notices (toasts/alerts).
type Notifier interface {
	Notify(level, message string)
}

// Navigator receives redirects the controller issues when the route and
// the loaded data disagree.
type Navigator interface {
	NavigateToList()
}

type logNotifier struct{ log *logrus.Logger }

func (n logNotifier) Notify(level, message string) {
	n.log.WithField("level", level).Info(message)
}

type noopNavigator struct{}

func (noopNavigator) NavigateToList() {}

type ViewMode string

const (
	ViewList    ViewMode = "list"
	ViewDetails ViewMode = "details"
)

// FilterAll disables a status filter.
const FilterAll = "ALL"

// Controller coordinates route state, the remote cache, and local review
// selection so they never drift apart. One instance is one review
// session.
type Controller struct {
	api       UpstreamAPI
	notifier  Notifier
	navigator Navigator
	log       *logrus.Logger

	mu                 sync.Mutex
	viewMode           ViewMode
	batches            []models.Batch
	selectedBatch      *models.Batch
	selectedRecord     *models.Record
	recordModalOpen    bool
	lastSelectedBatch  string
	searchTerm         string
	batchStatusFilter  string
	recordStatusFilter string
	sortField          string
	sortAsc            bool
	hasSortField       bool
	generation         uint64

	openDebounce *debouncer
}

func New(client UpstreamAPI, notifier Notifier, navigator Navigator, debounceWindow time.Duration) *Controller {
	log := config.GetLogger()
	if notifier == nil {
		notifier = logNotifier{log: log}
	}
	if navigator == nil {
		navigator = noopNavigator{}
	}
	return &Controller{
		api:                client,
		notifier:           notifier,
		navigator:          navigator,
		log:                log,
		viewMode:           ViewList,
		batchStatusFilter:  FilterAll,
		recordStatusFilter: FilterAll,
		openDebounce:       newDebouncer(debounceWindow),
	}
}

// LoadBatches refreshes the batch list from upstream. A failure here is
// one of the two genuinely blocking states; callers surface it with a
// retry affordance.
func (c *Controller) LoadBatches(ctx context.Context) error {
	raws, err := c.api.ListBatches(ctx)
	if err != nil {
		config.LogError(c.log, "controller", "LoadBatches", "fetching batch list", nil, err)
		return err
	}

	mapped := make([]models.Batch, 0, len(raws))
	for _, raw := range raws {
		mapped = append(mapped, mapper.MapBatch(raw))
	}

	c.mu.Lock()
	c.batches = mapped
	c.mu.Unlock()
	return nil
}

// SyncRoute reconciles the view mode with the route's batch identifier.
// The route wins unless it references a batch that does not exist, in
// which case list view wins and a redirect is issued.
func (c *Controller) SyncRoute(ctx context.Context, routeBatchID string) error {
	if routeBatchID == "" {
		c.mu.Lock()
		c.toListLocked()
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	batch, ok := c.findBatchLocked(routeBatchID)
	if !ok {
		c.toListLocked()
		c.mu.Unlock()
		c.navigator.NavigateToList()
		return ErrBatchNotFound
	}
	if c.viewMode == ViewDetails && c.selectedBatch != nil && c.selectedBatch.ID == routeBatchID {
		c.mu.Unlock()
		return nil
	}
	gen, numericID := c.enterDetailsLocked(batch)
	c.mu.Unlock()

	c.loadBatchDetail(ctx, numericID, gen)
	return nil
}

// SelectBatch is the user-triggered "View Details" path.
func (c *Controller) SelectBatch(ctx context.Context, batchID string) error {
	c.mu.Lock()
	batch, ok := c.findBatchLocked(batchID)
	if !ok {
		c.mu.Unlock()
		return ErrBatchNotFound
	}
	gen, numericID := c.enterDetailsLocked(batch)
	c.mu.Unlock()

	c.loadBatchDetail(ctx, numericID, gen)
	return nil
}

// BackToList leaves details view: selection cleared, modal closed,
// navigation issued.
func (c *Controller) BackToList() {
	c.mu.Lock()
	c.toListLocked()
	c.mu.Unlock()
	c.navigator.NavigateToList()
}

func (c *Controller) toListLocked() {
	c.viewMode = ViewList
	c.selectedBatch = nil
	c.selectedRecord = nil
	c.recordModalOpen = false
	c.generation++
}

func (c *Controller) enterDetailsLocked(batch models.Batch) (uint64, int64) {
	c.viewMode = ViewDetails
	c.selectedBatch = &batch
	c.lastSelectedBatch = batch.ID
	c.selectedRecord = nil
	c.recordModalOpen = false
	c.generation++
	return c.generation, batch.NumericID
}

func (c *Controller) findBatchLocked(batchID string) (models.Batch, bool) {
	for i := range c.batches {
		if c.batches[i].ID == batchID {
			return c.batches[i], true
		}
	}
	return models.Batch{}, false
}

// loadBatchDetail fetches the batch and its records concurrently. The two
// fetches may resolve in either order; each completion re-checks that the
// selection it was issued for is still current before applying.
func (c *Controller) loadBatchDetail(ctx context.Context, numericID int64, gen uint64) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		raw, err := c.api.GetBatch(ctx, numericID)
		if err != nil {
			config.LogError(c.log, "controller", "loadBatchDetail", "fetching batch", numericID, err)
			c.notifier.Notify("error", "failed to load batch details")
			return
		}
		c.applyBatch(gen, mapper.MapBatch(raw))
	}()

	go func() {
		defer wg.Done()
		raws, err := c.api.ListRecords(ctx, numericID, "", nil)
		if err != nil {
			config.LogError(c.log, "controller", "loadBatchDetail", "fetching records", numericID, err)
			c.notifier.Notify("error", "failed to load batch records")
			return
		}
		records := make([]models.Record, 0, len(raws))
		for _, raw := range raws {
			records = append(records, mapper.MapRecord(raw))
		}
		c.applyRecords(gen, numericID, records)
	}()

	wg.Wait()
}

func (c *Controller) applyBatch(gen uint64, batch models.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.selectedBatch == nil || c.selectedBatch.NumericID != batch.NumericID {
		return
	}
	// Records may have landed first; keep them and recompute the rate.
	existing := c.selectedBatch.Records
	c.selectedBatch = &batch
	c.selectedBatch.AttachRecords(existing)
}

func (c *Controller) applyRecords(gen uint64, numericID int64, records []models.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.selectedBatch == nil || c.selectedBatch.NumericID != numericID {
		return
	}
	c.selectedBatch.AttachRecords(records)

	// Server wins: the authoritative copy replaces any optimistic merge
	// held in the selected record.
	if c.selectedRecord != nil {
		for i := range records {
			if records[i].ID == c.selectedRecord.ID {
				fresh := records[i]
				c.selectedRecord = &fresh
				return
			}
		}
		c.selectedRecord = nil
		c.recordModalOpen = false
	}
}

// RetryBatch re-runs the selected batch upstream, then refetches both the
// batch and its records. No optimistic mutation; failures are advisory.
func (c *Controller) RetryBatch(ctx context.Context) error {
	c.mu.Lock()
	if c.selectedBatch == nil {
		c.mu.Unlock()
		return ErrNoBatchSelected
	}
	numericID := c.selectedBatch.NumericID
	gen := c.generation
	c.mu.Unlock()

	if err := c.api.RetryBatch(ctx, numericID); err != nil {
		config.LogError(c.log, "controller", "RetryBatch", "retrying batch", numericID, err)
		c.notifier.Notify("error", "batch retry failed")
		return err
	}

	c.api.InvalidateBatch(numericID)
	c.api.InvalidateRecords(numericID)
	c.loadBatchDetail(ctx, numericID, gen)
	return nil
}

// ResolveRecord marks the selected record resolved with a mandatory
// comment.
func (c *Controller) ResolveRecord(ctx context.Context, comment string) error {
	return c.annotateSelected(ctx, comment, true)
}

// AddComment appends a comment without resolving.
func (c *Controller) AddComment(ctx context.Context, comment string) error {
	return c.annotateSelected(ctx, comment, false)
}

func (c *Controller) annotateSelected(ctx context.Context, comment string, resolve bool) error {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		c.notifier.Notify("warning", "a comment is required")
		return ErrEmptyComment
	}

	c.mu.Lock()
	if c.selectedRecord == nil || c.selectedBatch == nil {
		c.mu.Unlock()
		return ErrNoRecordSelected
	}
	if resolve && c.selectedRecord.Resolved {
		c.mu.Unlock()
		return ErrRecordResolved
	}
	recordID := c.selectedRecord.ID
	numericID := c.selectedBatch.NumericID
	gen := c.generation
	c.mu.Unlock()

	if err := c.api.ResolveRecord(ctx, recordID, comment, resolve); err != nil {
		config.LogError(c.log, "controller", "annotateSelected", "resolving record", recordID, err)
		c.notifier.Notify("error", "failed to update record")
		return err
	}

	// Optimistic merge into the currently-selected record only; the list
	// copy waits for the authoritative refetch.
	c.mu.Lock()
	if c.selectedRecord != nil && c.selectedRecord.ID == recordID {
		c.selectedRecord.ResolutionComments = append(c.selectedRecord.ResolutionComments, comment)
		if resolve {
			c.selectedRecord.Resolved = true
		}
	}
	c.mu.Unlock()

	c.api.InvalidateRecords(numericID)
	c.refetchRecords(ctx, numericID, gen)
	return nil
}

func (c *Controller) refetchRecords(ctx context.Context, numericID int64, gen uint64) {
	raws, err := c.api.ListRecords(ctx, numericID, "", nil)
	if err != nil {
		config.LogError(c.log, "controller", "refetchRecords", "reconciling records", numericID, err)
		return
	}
	records := make([]models.Record, 0, len(raws))
	for _, raw := range raws {
		records = append(records, mapper.MapRecord(raw))
	}
	c.applyRecords(gen, numericID, records)
}

// OpenRecord opens the detail modal for a record. Rapid repeat triggers
// within the debounce window collapse into one open; selection and modal
// flag always change together.
func (c *Controller) OpenRecord(recordID int64) {
	c.openDebounce.Trigger(func() { _ = c.SelectRecord(recordID) })
}

// SelectRecord opens the record modal immediately: selection and modal
// flag are set together under one lock.
func (c *Controller) SelectRecord(recordID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectedBatch == nil {
		return ErrNoBatchSelected
	}
	for i := range c.selectedBatch.Records {
		if c.selectedBatch.Records[i].ID == recordID {
			selected := c.selectedBatch.Records[i]
			c.selectedRecord = &selected
			c.recordModalOpen = true
			return nil
		}
	}
	return ErrRecordNotFound
}

func (c *Controller) CloseRecordModal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedRecord = nil
	c.recordModalOpen = false
}

func (c *Controller) SetSearchTerm(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchTerm = term
}

func (c *Controller) SetBatchStatusFilter(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == "" {
		status = FilterAll
	}
	c.batchStatusFilter = status
}

func (c *Controller) SetRecordStatusFilter(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == "" {
		status = FilterAll
	}
	c.recordStatusFilter = status
}

// SortBy selects the batch-list sort field. Repeating the field toggles
// direction; a new field resets to ascending.
func (c *Controller) SortBy(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasSortField && c.sortField == field {
		c.sortAsc = !c.sortAsc
		return
	}
	c.sortField = field
	c.sortAsc = true
	c.hasSortField = true
}

// SetSort sets field and direction absolutely, replacing any toggle
// state. An empty field restores the default ordering.
func (c *Controller) SetSort(field string, asc bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if field == "" {
		c.hasSortField = false
		return
	}
	c.sortField = field
	c.sortAsc = asc
	c.hasSortField = true
}

// Batches returns the filtered, sorted batch-list projection.
func (c *Controller) Batches() []models.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	term := strings.ToLower(strings.TrimSpace(c.searchTerm))
	filtered := make([]models.Batch, 0, len(c.batches))
	for i := range c.batches {
		b := c.batches[i]
		if term != "" &&
			!strings.Contains(strings.ToLower(b.ID), term) &&
			!strings.Contains(strings.ToLower(b.BackofficeFile), term) &&
			!strings.Contains(strings.ToLower(b.VendorFile), term) {
			continue
		}
		if c.batchStatusFilter != FilterAll && string(b.Status) != c.batchStatusFilter {
			continue
		}
		filtered = append(filtered, b)
	}

	c.sortBatchesLocked(filtered)
	return filtered
}

func (c *Controller) sortBatchesLocked(batches []models.Batch) {
	if !c.hasSortField {
		sort.SliceStable(batches, func(i, j int) bool {
			return batches[i].CreatedAt.After(batches[j].CreatedAt)
		})
		return
	}

	less := func(i, j int) bool {
		switch c.sortField {
		case "records":
			return batches[i].RecordCount < batches[j].RecordCount
		case "matchRate":
			return batches[i].MatchRate < batches[j].MatchRate
		case "date":
			return batches[i].CreatedAt.Before(batches[j].CreatedAt)
		case "status":
			return strings.Compare(string(batches[i].Status), string(batches[j].Status)) < 0
		default:
			return strings.Compare(batches[i].ID, batches[j].ID) < 0
		}
	}
	sort.SliceStable(batches, func(i, j int) bool {
		if c.sortAsc {
			return less(i, j)
		}
		return less(j, i)
	})
}

// Records returns the selected batch's records filtered by the record
// status filter.
func (c *Controller) Records() []models.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectedBatch == nil {
		return []models.Record{}
	}
	if c.recordStatusFilter == FilterAll {
		out := make([]models.Record, len(c.selectedBatch.Records))
		copy(out, c.selectedBatch.Records)
		return out
	}
	out := make([]models.Record, 0, len(c.selectedBatch.Records))
	for i := range c.selectedBatch.Records {
		if string(c.selectedBatch.Records[i].Status) == c.recordStatusFilter {
			out = append(out, c.selectedBatch.Records[i])
		}
	}
	return out
}

func (c *Controller) ViewMode() ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMode
}

func (c *Controller) SelectedBatch() *models.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectedBatch == nil {
		return nil
	}
	copied := *c.selectedBatch
	return &copied
}

func (c *Controller) SelectedRecord() (*models.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectedRecord == nil {
		return nil, false
	}
	copied := *c.selectedRecord
	return &copied, c.recordModalOpen
}

func (c *Controller) LastSelectedBatchID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSelectedBatch
}

// ExportIssues serializes the selected batch's problematic records to
// CSV. With nothing to export the user is informed and no file is
// produced.
func (c *Controller) ExportIssues(now time.Time) (string, []byte, error) {
	c.mu.Lock()
	if c.selectedBatch == nil {
		c.mu.Unlock()
		return "", nil, ErrNoBatchSelected
	}
	batchID := c.selectedBatch.ID
	problematic := make([]models.Record, 0, len(c.selectedBatch.Records))
	for i := range c.selectedBatch.Records {
		if c.selectedBatch.Records[i].Status != models.StatusMatched {
			problematic = append(problematic, c.selectedBatch.Records[i])
		}
	}
	c.mu.Unlock()

	if len(problematic) == 0 {
		c.notifier.Notify("info", "no problematic records to export")
		return "", nil, ErrNoProblematicRecords
	}

	filename, data := BuildIssueCSV(batchID, problematic, now)
	return filename, data, nil
}
