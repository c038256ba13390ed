package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/decision"
	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/library"
)

var ErrItemNotFound = errors.New("queue item not found")

// Store persists active queue items across restarts.
type Store interface {
	SaveItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context) ([]Item, error)
}

// ImportHandler runs the import pipeline for a completed download. The
// item's OutputPath points at the client's finished files.
type ImportHandler interface {
	HandleCompleted(ctx context.Context, item Item) error
}

// FailureHandler reacts to a terminally failed item, typically by
// blocklisting the release and retrying the next-best candidate.
type FailureHandler interface {
	HandleFailed(ctx context.Context, item Item)
}

type trackedItem struct {
	mu   sync.Mutex
	item Item
	gone bool // removed from the active set
}

// Tracker owns the active queue. Each item's transitions are serialized by a
// per-item lock; the tracker lock only guards the map.
type Tracker struct {
	mu    sync.RWMutex
	items map[string]*trackedItem

	router       *downloader.Router
	store        Store
	importer     ImportHandler
	onFailed     FailureHandler
	historySink  history.Sink
	stallTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger

	handlerWG sync.WaitGroup
}

type Options struct {
	Router       *downloader.Router
	Store        Store
	Importer     ImportHandler
	OnFailed     FailureHandler
	History      history.Sink
	StallTimeout time.Duration
}

func NewTracker(opts Options, logger zerolog.Logger) *Tracker {
	sink := opts.History
	if sink == nil {
		sink = history.NopSink{}
	}
	return &Tracker{
		items:        make(map[string]*trackedItem),
		router:       opts.Router,
		store:        opts.Store,
		importer:     opts.Importer,
		onFailed:     opts.OnFailed,
		historySink:  sink,
		stallTimeout: opts.StallTimeout,
		now:          time.Now,
		logger:       logger.With().Str("component", "queue").Logger(),
	}
}

// Bind attaches the import and failure handlers. The engine implements both
// but is constructed after the tracker, so they arrive late. Must be called
// before polling starts.
func (t *Tracker) Bind(importer ImportHandler, onFailed FailureHandler) {
	t.importer = importer
	t.onFailed = onFailed
}

// Load restores persisted items. Items saved mid-import are demoted to
// Downloading so the next poll re-runs the import.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	items, err := t.store.ListItems(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range items {
		if item.State.Terminal() {
			continue
		}
		if item.State == StateImporting {
			item.State = StateDownloading
		}
		t.items[item.ID] = &trackedItem{item: item}
	}
	t.logger.Debug().Int("items", len(t.items)).Msg("queue restored")
	return nil
}

// Dispatch submits an accepted candidate to the client for its protocol and
// enqueues the resulting transfer. A submission failure creates no queue
// entry and is retryable by re-ranking the remaining candidates.
func (t *Tracker) Dispatch(ctx context.Context, dec decision.Decision, target *library.Target) (Item, error) {
	candidate := dec.Candidate
	client, err := t.router.ClientFor(candidate.Protocol)
	if err != nil {
		return Item{}, err
	}

	downloadID, err := client.Submit(ctx, candidate.PayloadRef)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %s: %v", downloader.ErrSubmitFailed, client.Name(), err)
	}

	now := t.now()
	item := Item{
		ID:             downloadID,
		TargetID:       target.ID,
		Release:        candidate,
		State:          StateQueued,
		TotalBytes:     candidate.Size,
		RemainingBytes: candidate.Size,
		AddedAt:        now,
		UpdatedAt:      now,
		LastProgressAt: now,
	}

	if t.store != nil {
		if err := t.store.SaveItem(ctx, item); err != nil {
			return Item{}, err
		}
	}

	t.mu.Lock()
	t.items[item.ID] = &trackedItem{item: item}
	t.mu.Unlock()

	t.logger.Info().
		Str("title", candidate.Title).
		Str("target", string(target.ID)).
		Str("client", client.Name()).
		Str("downloadId", downloadID).
		Msg("release grabbed")
	t.historySink.Emit(history.Event{
		Type:     history.EventGrabbed,
		TargetID: target.ID,
		Title:    candidate.Title,
		Indexer:  candidate.Indexer,
	})
	return item, nil
}

// PollOnce polls the download client for every active item and advances
// state machines. Imports and failure handlers run asynchronously so one
// item's filesystem work or re-search never blocks tracking of the rest.
func (t *Tracker) PollOnce(ctx context.Context) {
	for _, ti := range t.active() {
		t.pollItem(ctx, ti)
	}
}

func (t *Tracker) active() []*trackedItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*trackedItem, 0, len(t.items))
	for _, ti := range t.items {
		out = append(out, ti)
	}
	return out
}

func (t *Tracker) pollItem(ctx context.Context, ti *trackedItem) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if ti.gone || ti.item.State.Terminal() || ti.item.State == StateImporting {
		return
	}

	client, err := t.router.ClientFor(ti.item.Release.Protocol)
	if err != nil {
		t.failLocked(ctx, ti, err.Error())
		return
	}

	progress, err := client.PollStatus(ctx, ti.item.ID)
	if err != nil {
		if errors.Is(err, downloader.ErrDownloadNotFound) {
			t.failLocked(ctx, ti, "download removed from client")
			return
		}
		// Transient client trouble surfaces as a warning, not a transition.
		ti.item.Warning = err.Error()
		ti.item.UpdatedAt = t.now()
		return
	}
	ti.item.Warning = progress.Warning

	switch progress.State {
	case downloader.TransferQueued:
		ti.item.UpdatedAt = t.now()

	case downloader.TransferDownloading:
		if ti.item.State == StateQueued || ti.item.State == StatePaused {
			if !t.transitionLocked(ctx, ti, StateDownloading) {
				return
			}
		}
		t.applyProgressLocked(ti, progress)

	case downloader.TransferPaused:
		if ti.item.State == StateQueued || ti.item.State == StateDownloading {
			t.transitionLocked(ctx, ti, StatePaused)
		}

	case downloader.TransferCompleted:
		// A transfer can finish before the first downloading poll.
		if ti.item.State == StateQueued || ti.item.State == StatePaused {
			if !t.transitionLocked(ctx, ti, StateDownloading) {
				return
			}
		}
		ti.item.RemainingBytes = 0
		ti.item.OutputPath = progress.OutputPath
		if t.transitionLocked(ctx, ti, StateImporting) {
			t.startImport(ctx, ti)
		}

	case downloader.TransferError:
		t.failLocked(ctx, ti, progress.ErrorMessage)
		return
	}

	if ti.item.State == StateDownloading && t.stallTimeout > 0 &&
		t.now().Sub(ti.item.LastProgressAt) > t.stallTimeout {
		t.failLocked(ctx, ti, "stalled: no progress within timeout")
		return
	}

	t.saveLocked(ctx, ti)
}

func (t *Tracker) applyProgressLocked(ti *trackedItem, progress downloader.Progress) {
	now := t.now()
	if progress.TotalBytes > 0 {
		ti.item.TotalBytes = progress.TotalBytes
	}
	if progress.RemainingBytes != ti.item.RemainingBytes {
		ti.item.LastProgressAt = now
	}
	ti.item.RemainingBytes = progress.RemainingBytes
	ti.item.ETA = progress.ETA
	ti.item.UpdatedAt = now
}

// startImport runs the import pipeline in its own goroutine. The caller must
// hold ti.mu and have already moved the item to Importing.
func (t *Tracker) startImport(ctx context.Context, ti *trackedItem) {
	item := ti.item
	t.handlerWG.Add(1)
	go func() {
		defer t.handlerWG.Done()
		err := t.importer.HandleCompleted(ctx, item)

		ti.mu.Lock()
		defer ti.mu.Unlock()
		if ti.gone || ti.item.State != StateImporting {
			return
		}
		if err != nil {
			t.failLocked(ctx, ti, fmt.Sprintf("import failed: %v", err))
			return
		}
		if t.transitionLocked(ctx, ti, StateCompleted) {
			t.historySink.Emit(history.Event{
				Type:     history.EventImported,
				TargetID: ti.item.TargetID,
				Title:    ti.item.Release.Title,
			})
			t.removeLocked(ctx, ti)
		}
	}()
}

// WaitHandlers blocks until in-flight imports and failure handlers finish.
// Used on shutdown so neither is abandoned half-done.
func (t *Tracker) WaitHandlers() {
	t.handlerWG.Wait()
}

// Pause suspends a queued or downloading item.
func (t *Tracker) Pause(ctx context.Context, id string) error {
	ti, err := t.get(id)
	if err != nil {
		return err
	}
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if !CanTransition(ti.item.State, StatePaused) {
		return &ErrInvalidTransition{From: ti.item.State, To: StatePaused}
	}
	if client, err := t.router.ClientFor(ti.item.Release.Protocol); err == nil {
		if err := client.Pause(ctx, id); err != nil {
			return err
		}
	}
	t.transitionLocked(ctx, ti, StatePaused)
	t.saveLocked(ctx, ti)
	return nil
}

// Resume reactivates a paused item.
func (t *Tracker) Resume(ctx context.Context, id string) error {
	ti, err := t.get(id)
	if err != nil {
		return err
	}
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.item.State != StatePaused {
		return &ErrInvalidTransition{From: ti.item.State, To: StateDownloading}
	}
	if client, err := t.router.ClientFor(ti.item.Release.Protocol); err == nil {
		if err := client.Resume(ctx, id); err != nil {
			return err
		}
	}
	next := StateQueued
	if ti.item.TotalBytes > 0 && ti.item.RemainingBytes < ti.item.TotalBytes {
		next = StateDownloading
	}
	ti.item.LastProgressAt = t.now()
	t.transitionLocked(ctx, ti, next)
	t.saveLocked(ctx, ti)
	return nil
}

// Cancel removes an item at the user's request. The transfer is aborted on
// the client. A user cancellation is not a release quality failure, so the
// release is only blocklisted when asked for.
func (t *Tracker) Cancel(ctx context.Context, id string, blocklist bool) error {
	ti, err := t.get(id)
	if err != nil {
		return err
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.gone || ti.item.State.Terminal() {
		return nil
	}

	if client, err := t.router.ClientFor(ti.item.Release.Protocol); err == nil {
		if err := client.Remove(ctx, id); err != nil && !errors.Is(err, downloader.ErrDownloadNotFound) {
			t.logger.Warn().Err(err).Str("downloadId", id).Msg("failed to remove download from client")
		}
	}

	if blocklist {
		t.failLocked(ctx, ti, "cancelled by user")
		return nil
	}
	t.removeLocked(ctx, ti)
	return nil
}

// Snapshot returns a copy of the active set, oldest first.
func (t *Tracker) Snapshot() []Item {
	items := make([]Item, 0)
	for _, ti := range t.active() {
		ti.mu.Lock()
		if !ti.gone {
			items = append(items, ti.item)
		}
		ti.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// Get returns a copy of one active item.
func (t *Tracker) Get(id string) (Item, error) {
	ti, err := t.get(id)
	if err != nil {
		return Item{}, err
	}
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.item, nil
}

func (t *Tracker) get(id string) (*trackedItem, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ti, ok := t.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return ti, nil
}

// transitionLocked applies a validated state change. Caller holds ti.mu.
func (t *Tracker) transitionLocked(_ context.Context, ti *trackedItem, to State) bool {
	from := ti.item.State
	if !CanTransition(from, to) {
		t.logger.Error().
			Str("downloadId", ti.item.ID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("rejected queue transition")
		return false
	}
	ti.item.State = to
	ti.item.UpdatedAt = t.now()
	t.logger.Debug().
		Str("downloadId", ti.item.ID).
		Str("title", ti.item.Release.Title).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("queue transition")
	return true
}

// failLocked forces the item to Failed from any non-terminal state, drops it
// from the active set, and schedules the failure handler. The handler can
// trigger a re-search and new dispatches, so it runs in its own goroutine
// rather than under the item lock or inside the poll loop.
func (t *Tracker) failLocked(ctx context.Context, ti *trackedItem, reason string) {
	if ti.gone || ti.item.State.Terminal() {
		return
	}
	ti.item.Error = reason
	ti.item.State = StateFailed
	ti.item.UpdatedAt = t.now()

	t.logger.Warn().
		Str("downloadId", ti.item.ID).
		Str("title", ti.item.Release.Title).
		Str("reason", reason).
		Msg("download failed")
	t.historySink.Emit(history.Event{
		Type:     history.EventFailed,
		TargetID: ti.item.TargetID,
		Title:    ti.item.Release.Title,
		Indexer:  ti.item.Release.Indexer,
		Detail:   reason,
	})
	t.removeLocked(ctx, ti)

	if t.onFailed != nil {
		item := ti.item
		t.handlerWG.Add(1)
		go func() {
			defer t.handlerWG.Done()
			t.onFailed.HandleFailed(ctx, item)
		}()
	}
}

// removeLocked drops the item from the active set and store. Caller holds
// ti.mu.
func (t *Tracker) removeLocked(ctx context.Context, ti *trackedItem) {
	ti.gone = true
	t.mu.Lock()
	delete(t.items, ti.item.ID)
	t.mu.Unlock()
	if t.store != nil {
		if err := t.store.DeleteItem(ctx, ti.item.ID); err != nil {
			t.logger.Warn().Err(err).Str("downloadId", ti.item.ID).Msg("failed to delete queue item")
		}
	}
}

func (t *Tracker) saveLocked(ctx context.Context, ti *trackedItem) {
	if t.store == nil || ti.gone {
		return
	}
	if err := t.store.SaveItem(ctx, ti.item); err != nil {
		t.logger.Warn().Err(err).Str("downloadId", ti.item.ID).Msg("failed to persist queue item")
	}
}
