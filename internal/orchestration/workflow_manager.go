package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

type Stage string

const (
	StageCreated     Stage = "created"
	StageFetching    Stage = "fetching"
	StageAnalyzing   Stage = "analyzing"
	StageScanningJS  Stage = "scanning_js"
	StageScanningCSS Stage = "scanning_css"
	StageProbing     Stage = "probing"
	StageGenerating  Stage = "generating_recommendation"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

type checkpoint struct {
	Progress int
	Message  string
}

var checkpoints = map[Stage]checkpoint{
	StageCreated:     {0, "Scan queued"},
	StageFetching:    {10, "Fetching website content"},
	StageAnalyzing:   {30, "Analyzing HTML content"},
	StageScanningJS:  {50, "Scanning JavaScript files"},
	StageScanningCSS: {70, "Scanning CSS files"},
	StageProbing:     {80, "Running active security tests"},
	StageGenerating:  {90, "Generating AI recommendations"},
	StageCompleted:   {100, "Scan completed"},
	StageFailed:      {100, "Scan failed"},
}

// transitions lists the forward moves of the scan state machine. Failed is
// reachable from every non-terminal stage.
var transitions = map[Stage][]Stage{
	StageCreated:     {StageFetching},
	StageFetching:    {StageAnalyzing},
	StageAnalyzing:   {StageScanningJS},
	StageScanningJS:  {StageScanningCSS},
	StageScanningCSS: {StageProbing, StageGenerating},
	StageProbing:     {StageGenerating},
	StageGenerating:  {StageCompleted},
}

func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

func (s Stage) canMoveTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Workflow tracks one scan through its stages and publishes a progress event
// at every checkpoint.
type Workflow struct {
	scanID string
	store  Store
	logger *logrus.Entry
	now    func() time.Time
	mu     sync.Mutex
	stage  Stage
}

func NewWorkflow(scanID string, store Store, logger *logrus.Entry) *Workflow {
	return &Workflow{
		scanID: scanID,
		store:  store,
		logger: logger,
		now:    time.Now,
		stage:  StageCreated,
	}
}

func (w *Workflow) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// Advance moves to next and records its checkpoint. A non-empty message
// replaces the default one. Progress write failures are logged only.
func (w *Workflow) Advance(ctx context.Context, next Stage, message string) error {
	w.mu.Lock()
	if !w.stage.canMoveTo(next) {
		cur := w.stage
		w.mu.Unlock()
		return fmt.Errorf("illegal scan transition %s -> %s", cur, next)
	}
	w.stage = next
	w.mu.Unlock()

	cp := checkpoints[next]
	if message == "" {
		message = cp.Message
	}
	w.publish(ctx, next, cp.Progress, message)
	return nil
}

func (w *Workflow) publish(ctx context.Context, stage Stage, progress int, message string) {
	event := models.ProgressEvent{
		ScanID:    w.scanID,
		Stage:     string(stage),
		Progress:  progress,
		Message:   message,
		Timestamp: w.now().UTC(),
	}
	if err := w.store.UpdateProgress(ctx, w.scanID, event); err != nil {
		w.logger.WithError(err).Warn("Failed to record scan progress")
		return
	}
	w.logger.WithFields(logrus.Fields{"stage": stage, "progress": progress}).Info(message)
}
