package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

func newRepo(t *testing.T, compression bool) (*ResultsRepository, string) {
	t.Helper()
	dir := t.TempDir()
	ls, err := NewLocalStorage(dir, compression, 0, nil)
	require.NoError(t, err)
	rr := NewResultsRepository(ls, 0, nil)
	t.Cleanup(func() { _ = rr.Close() })
	return rr, dir
}

func newResult(id string, start time.Time) *models.ScanResult {
	return models.NewScanResult(id, models.ScanRequest{URL: "https://example.com"}, start)
}

func TestSaveAndGetScanResult(t *testing.T) {
	for _, compression := range []bool{false, true} {
		rr, dir := newRepo(t, compression)
		ctx := context.Background()

		r := newResult("scan-1", time.Now().UTC())
		r.SetFindings([]models.Finding{{KeyType: "GitHub Token", Location: "HTML", Severity: models.SeverityHigh, LineNumber: 1, Confidence: 0.8}})
		require.NoError(t, rr.SaveScanResult(ctx, r))

		name := "result.json"
		if compression {
			name += ".gz"
		}
		assert.FileExists(t, filepath.Join(dir, "results", "scan-1", name))

		got, err := rr.GetScanResult(ctx, "scan-1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Summary.High)

		// a fresh repository over the same directory reads from disk
		ls2, err := NewLocalStorage(dir, compression, 0, nil)
		require.NoError(t, err)
		fromDisk, err := NewResultsRepository(ls2, 0, nil).GetScanResult(ctx, "scan-1")
		require.NoError(t, err)
		assert.Equal(t, r.URL, fromDisk.URL)
		assert.Len(t, fromDisk.Findings, 1)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	rr, _ := newRepo(t, false)
	ctx := context.Background()

	r := newResult("scan-2", time.Now())
	require.NoError(t, rr.SaveScanResult(ctx, r))
	r.Status = models.StatusFailed

	got, err := rr.GetScanResult(ctx, "scan-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScanning, got.Status)
}

func TestLastWriteWins(t *testing.T) {
	rr, dir := newRepo(t, false)
	ctx := context.Background()

	r := newResult("scan-3", time.Now())
	require.NoError(t, rr.SaveScanResult(ctx, r))
	end := time.Now()
	r.Status = models.StatusCompleted
	r.EndTime = &end
	require.NoError(t, rr.SaveScanResult(ctx, r))

	ls, err := NewLocalStorage(dir, false, 0, nil)
	require.NoError(t, err)
	got, err := NewResultsRepository(ls, 0, nil).GetScanResult(ctx, "scan-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	entries, err := os.ReadDir(filepath.Join(dir, "results", "scan-3"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSaveRejectsInvalidResult(t *testing.T) {
	rr, _ := newRepo(t, false)
	r := newResult("scan-4", time.Now())
	r.Status = models.StatusCompleted
	assert.Error(t, rr.SaveScanResult(context.Background(), r))
}

func TestNotFound(t *testing.T) {
	rr, _ := newRepo(t, false)
	ctx := context.Background()

	_, err := rr.GetScanResult(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = rr.GetProgress(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = rr.GetScanResult(ctx, "../etc")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestProgress(t *testing.T) {
	rr, dir := newRepo(t, false)
	ctx := context.Background()

	require.NoError(t, rr.UpdateProgress(ctx, "scan-5", models.ProgressEvent{Stage: "fetching", Progress: 10, Message: "Fetching website content"}))
	require.NoError(t, rr.UpdateProgress(ctx, "scan-5", models.ProgressEvent{Stage: "analyzing", Progress: 30, Message: "Analyzing HTML content"}))

	p, err := rr.GetProgress(ctx, "scan-5")
	require.NoError(t, err)
	assert.Equal(t, 30, p.Progress)
	assert.Equal(t, "scan-5", p.ScanID)
	assert.False(t, p.Timestamp.IsZero())

	ls, err := NewLocalStorage(dir, false, 0, nil)
	require.NoError(t, err)
	p, err = NewResultsRepository(ls, 0, nil).GetProgress(ctx, "scan-5")
	require.NoError(t, err)
	assert.Equal(t, "analyzing", p.Stage)
}

func TestListAndStats(t *testing.T) {
	rr, _ := newRepo(t, false)
	ctx := context.Background()
	base := time.Now()

	older := newResult("a", base.Add(-time.Hour))
	newer := newResult("b", base)
	end := base.Add(time.Second)
	newer.Status = models.StatusCompleted
	newer.EndTime = &end
	require.NoError(t, rr.SaveScanResult(ctx, older))
	require.NoError(t, rr.SaveScanResult(ctx, newer))

	all, err := rr.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)

	done, err := rr.FindByStatus(ctx, models.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, done, 1)

	stats, err := rr.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["total_scans"])

	require.NoError(t, rr.Delete(ctx, "a"))
	_, err = rr.GetScanResult(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConcurrentSaves(t *testing.T) {
	rr, _ := newRepo(t, false)
	ctx := context.Background()
	r := newResult("scan-6", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			snap := r.Clone()
			snap.TotalChecks = n
			assert.NoError(t, rr.SaveScanResult(ctx, snap))
			_, _ = rr.GetScanResult(ctx, "scan-6")
		}(i)
	}
	wg.Wait()

	got, err := rr.GetScanResult(ctx, "scan-6")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScanning, got.Status)
}

func TestEvictIdleKeepsRunningScans(t *testing.T) {
	rr, _ := newRepo(t, false)
	ctx := context.Background()

	running := newResult("run", time.Now())
	done := newResult("done", time.Now())
	end := time.Now()
	done.Status = models.StatusCompleted
	done.EndTime = &end
	require.NoError(t, rr.SaveScanResult(ctx, running))
	require.NoError(t, rr.SaveScanResult(ctx, done))

	assert.Equal(t, 1, rr.evictIdle(time.Now().Add(time.Minute)))
	_, err := rr.GetScanResult(ctx, "done")
	assert.NoError(t, err)
}

func TestRemoveExpired(t *testing.T) {
	dir := t.TempDir()
	ls, err := NewLocalStorage(dir, false, 0, nil)
	require.NoError(t, err)
	require.NoError(t, ls.WriteJSON("old", "result", map[string]string{"a": "b"}))

	assert.Equal(t, 1, ls.removeExpired(time.Now().Add(time.Hour)))
	ids, err := ls.ListScanIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCleanScanKeepsEmptyArrays(t *testing.T) {
	for _, compression := range []bool{false, true} {
		rr, dir := newRepo(t, compression)
		ctx := context.Background()

		r := newResult("clean", time.Now().UTC())
		require.NoError(t, rr.SaveScanResult(ctx, r))

		cached, err := rr.GetScanResult(ctx, "clean")
		require.NoError(t, err)
		raw, err := json.Marshal(cached)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"findings":[]`)

		ls, err := NewLocalStorage(dir, compression, 0, nil)
		require.NoError(t, err)
		fromDisk, err := NewResultsRepository(ls, 0, nil).GetScanResult(ctx, "clean")
		require.NoError(t, err)
		raw, err = json.Marshal(fromDisk)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"findings":[]`)
	}
}

func TestCompressionSwitchDoesNotShadowNewWrites(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	gz, err := NewLocalStorage(dir, true, 0, nil)
	require.NoError(t, err)
	r := newResult("switch", time.Now())
	require.NoError(t, NewResultsRepository(gz, 0, nil).SaveScanResult(ctx, r))

	plain, err := NewLocalStorage(dir, false, 0, nil)
	require.NoError(t, err)
	end := time.Now()
	r.Status = models.StatusCompleted
	r.EndTime = &end
	require.NoError(t, NewResultsRepository(plain, 0, nil).SaveScanResult(ctx, r))

	assert.NoFileExists(t, filepath.Join(dir, "results", "switch", "result.json.gz"))
	assert.FileExists(t, filepath.Join(dir, "results", "switch", "result.json"))

	for _, compression := range []bool{false, true} {
		ls, err := NewLocalStorage(dir, compression, 0, nil)
		require.NoError(t, err)
		got, err := NewResultsRepository(ls, 0, nil).GetScanResult(ctx, "switch")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
	}
}
