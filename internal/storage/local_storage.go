package storage

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("not found")

const resultsDir = "results"

// LocalStorage keeps one directory per scan holding JSON snapshots. Every
// write replaces the whole document atomically (temp file, fsync, rename),
// so readers only ever observe complete snapshots.
type LocalStorage struct {
	baseDir     string
	logger      *logrus.Logger
	mu          sync.RWMutex
	compression bool
	retention   time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewLocalStorage(baseDir string, compression bool, retention time.Duration, logger *logrus.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(filepath.Join(baseDir, resultsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	ls := &LocalStorage{
		baseDir:     baseDir,
		logger:      logger,
		compression: compression,
		retention:   retention,
		stop:        make(chan struct{}),
	}
	if retention > 0 {
		go ls.cleanupOldFiles()
	}
	return ls, nil
}

func (ls *LocalStorage) Close() error {
	ls.stopOnce.Do(func() { close(ls.stop) })
	return nil
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (ls *LocalStorage) scanDir(scanID string) string {
	return filepath.Join(ls.baseDir, resultsDir, scanID)
}

func (ls *LocalStorage) documentPath(scanID, name string) string {
	p := filepath.Join(ls.scanDir(scanID), name+".json")
	if ls.compression {
		p += ".gz"
	}
	return p
}

// WriteJSON atomically replaces the named document of a scan.
func (ls *LocalStorage) WriteJSON(scanID, name string, v interface{}) error {
	if !validID(scanID) {
		return fmt.Errorf("invalid scan id %q", scanID)
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	dir := ls.scanDir(scanID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create scan directory: %w", err)
	}
	finalPath := ls.documentPath(scanID, name)

	tmpFile, err := os.CreateTemp(dir, "."+name+"_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	fail := func(step string, err error) error {
		tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("%s: %w", step, err)
	}

	var w io.Writer = tmpFile
	var gzw *gzip.Writer
	if ls.compression {
		gzw = gzip.NewWriter(tmpFile)
		w = gzw
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail("encode "+name, err)
	}
	if gzw != nil {
		if err := gzw.Close(); err != nil {
			return fail("close gzip", err)
		}
	}
	if err := tmpFile.Sync(); err != nil {
		return fail("sync temp file", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), finalPath); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("atomic rename: %w", err)
	}
	// Drop the copy in the other format so a stale file never shadows this one.
	stale := filepath.Join(dir, name+".json")
	if !ls.compression {
		stale += ".gz"
	}
	if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
		ls.logger.WithError(err).WithField("path", stale).Warn("Failed to remove stale snapshot")
	}

	ls.logger.WithFields(logrus.Fields{"scan_id": scanID, "document": name}).Debug("Snapshot written")
	return nil
}

// ReadJSON decodes the named document, accepting either compressed or plain
// files so the compression setting can change between runs.
func (ls *LocalStorage) ReadJSON(scanID, name string, v interface{}) error {
	if !validID(scanID) {
		return ErrNotFound
	}
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	base := filepath.Join(ls.scanDir(scanID), name+".json")
	for _, candidate := range []string{base + ".gz", base} {
		f, err := os.Open(candidate)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		defer f.Close()

		var r io.Reader = f
		if strings.HasSuffix(candidate, ".gz") {
			gzr, err := gzip.NewReader(f)
			if err != nil {
				return fmt.Errorf("gzip reader: %w", err)
			}
			defer gzr.Close()
			r = gzr
		}
		if err := json.NewDecoder(r).Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		return nil
	}
	return ErrNotFound
}

func (ls *LocalStorage) ListScanIDs() ([]string, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(ls.baseDir, resultsDir))
	if err != nil {
		return nil, fmt.Errorf("read results directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func (ls *LocalStorage) Delete(scanID string) error {
	if !validID(scanID) {
		return ErrNotFound
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if err := os.RemoveAll(ls.scanDir(scanID)); err != nil {
		return fmt.Errorf("remove scan %s: %w", scanID, err)
	}
	return nil
}

func (ls *LocalStorage) GetStorageStats() (map[string]interface{}, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var size int64
	files := 0
	err := filepath.Walk(ls.baseDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
			files++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calculate dir size: %w", err)
	}

	return map[string]interface{}{
		"base_dir":            ls.baseDir,
		"total_size_bytes":    size,
		"total_size_human":    fmt.Sprintf("%.2f MB", float64(size)/1024.0/1024.0),
		"file_count":          files,
		"compression_enabled": ls.compression,
		"retention_period":    ls.retention.String(),
	}, nil
}

func (ls *LocalStorage) cleanupOldFiles() {
	interval := ls.retention / 4
	if interval > 24*time.Hour {
		interval = 24 * time.Hour
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ls.stop:
			return
		case <-ticker.C:
			ls.removeExpired(time.Now().Add(-ls.retention))
		}
	}
}

// removeExpired deletes scan directories whose newest file predates cutoff.
func (ls *LocalStorage) removeExpired(cutoff time.Time) int {
	ids, err := ls.ListScanIDs()
	if err != nil {
		ls.logger.Warnf("Failed to list scans for cleanup: %v", err)
		return 0
	}
	removed := 0
	for _, id := range ids {
		newest, err := newestModTime(ls.scanDir(id))
		if err != nil || !newest.Before(cutoff) {
			continue
		}
		if err := ls.Delete(id); err != nil {
			ls.logger.Warnf("Failed to remove expired scan %s: %v", id, err)
			continue
		}
		ls.logger.Infof("Removed expired scan: %s", id)
		removed++
	}
	return removed
}

func newestModTime(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	var newest time.Time
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest, nil
}
