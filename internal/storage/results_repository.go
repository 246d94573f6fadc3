package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

const (
	resultDocument   = "result"
	progressDocument = "progress"
)

type cacheEntry struct {
	result   *models.ScanResult
	progress *models.ProgressEvent
	touched  time.Time
}

// ResultsRepository stores scan snapshots and the latest progress event of
// each scan. Reads are served from an in-memory cache backed by LocalStorage.
// Every save is a full snapshot; the last write wins.
type ResultsRepository struct {
	storage  *LocalStorage
	logger   *logrus.Logger
	mu       sync.RWMutex
	cache    map[string]*cacheEntry
	cacheTTL time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewResultsRepository(storage *LocalStorage, cacheTTL time.Duration, logger *logrus.Logger) *ResultsRepository {
	if logger == nil {
		logger = logrus.New()
	}
	rr := &ResultsRepository{
		storage:  storage,
		logger:   logger,
		cache:    make(map[string]*cacheEntry),
		cacheTTL: cacheTTL,
		stop:     make(chan struct{}),
	}
	if cacheTTL > 0 {
		go rr.cleanupCache()
	}
	return rr
}

func (rr *ResultsRepository) Close() error {
	rr.stopOnce.Do(func() { close(rr.stop) })
	return rr.storage.Close()
}

func (rr *ResultsRepository) entry(id string) *cacheEntry {
	e, ok := rr.cache[id]
	if !ok {
		e = &cacheEntry{}
		rr.cache[id] = e
	}
	e.touched = time.Now()
	return e
}

func (rr *ResultsRepository) SaveScanResult(ctx context.Context, result *models.ScanResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	snapshot := result.Clone()

	rr.mu.Lock()
	defer rr.mu.Unlock()
	if err := rr.storage.WriteJSON(snapshot.ID, resultDocument, snapshot); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	rr.entry(snapshot.ID).result = snapshot
	return nil
}

// GetScanResult returns a copy of the latest snapshot or ErrNotFound.
func (rr *ResultsRepository) GetScanResult(ctx context.Context, id string) (*models.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rr.mu.RLock()
	if e, ok := rr.cache[id]; ok && e.result != nil {
		r := e.result.Clone()
		rr.mu.RUnlock()
		return r, nil
	}
	rr.mu.RUnlock()

	var r models.ScanResult
	if err := rr.storage.ReadJSON(id, resultDocument, &r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("scan %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	rr.mu.Lock()
	if e := rr.entry(id); e.result == nil {
		e.result = r.Clone()
	}
	rr.mu.Unlock()
	return &r, nil
}

func (rr *ResultsRepository) UpdateProgress(ctx context.Context, id string, event models.ProgressEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.ScanID = id

	rr.mu.Lock()
	defer rr.mu.Unlock()
	if err := rr.storage.WriteJSON(id, progressDocument, event); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	rr.entry(id).progress = &event
	return nil
}

func (rr *ResultsRepository) GetProgress(ctx context.Context, id string) (*models.ProgressEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rr.mu.RLock()
	if e, ok := rr.cache[id]; ok && e.progress != nil {
		p := *e.progress
		rr.mu.RUnlock()
		return &p, nil
	}
	rr.mu.RUnlock()

	var p models.ProgressEvent
	if err := rr.storage.ReadJSON(id, progressDocument, &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("progress for scan %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// List returns every stored scan, newest first.
func (rr *ResultsRepository) List(ctx context.Context) ([]*models.ScanResult, error) {
	ids, err := rr.storage.ListScanIDs()
	if err != nil {
		return nil, err
	}
	results := make([]*models.ScanResult, 0, len(ids))
	for _, id := range ids {
		r, err := rr.GetScanResult(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			rr.logger.Warnf("Failed to load scan %s: %v", id, err)
			continue
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].StartTime.After(results[j].StartTime) })
	return results, nil
}

func (rr *ResultsRepository) FindByStatus(ctx context.Context, status models.ScanStatus) ([]*models.ScanResult, error) {
	all, err := rr.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.ScanResult
	for _, r := range all {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (rr *ResultsRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rr.mu.Lock()
	delete(rr.cache, id)
	rr.mu.Unlock()
	return rr.storage.Delete(id)
}

func (rr *ResultsRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	all, err := rr.List(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string]int)
	findings := 0
	for _, r := range all {
		byStatus[string(r.Status)]++
		findings += r.Summary.Total
	}

	rr.mu.RLock()
	cached := len(rr.cache)
	rr.mu.RUnlock()

	return map[string]interface{}{
		"total_scans":       len(all),
		"total_findings":    findings,
		"results_by_status": byStatus,
		"cached_results":    cached,
		"cache_ttl":         rr.cacheTTL.String(),
	}, nil
}

// cleanupCache evicts idle entries of finished scans. Running scans stay
// cached so progress polling never touches the disk.
func (rr *ResultsRepository) cleanupCache() {
	ticker := time.NewTicker(rr.cacheTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-rr.stop:
			return
		case <-ticker.C:
			rr.evictIdle(time.Now().Add(-rr.cacheTTL))
		}
	}
}

func (rr *ResultsRepository) evictIdle(cutoff time.Time) int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	evicted := 0
	for id, e := range rr.cache {
		if e.result != nil && !e.result.Status.Terminal() {
			continue
		}
		if e.touched.Before(cutoff) {
			delete(rr.cache, id)
			evicted++
		}
	}
	return evicted
}
