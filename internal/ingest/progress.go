package ingest

import (
	"sync"
	"time"
)

// Status is the overall state of an ingestion run.
type Status string

const (
	// StatusRunning indicates ingestion is in progress.
	StatusRunning Status = "running"
	// StatusReady indicates ingestion is complete.
	StatusReady Status = "ready"
	// StatusError indicates ingestion failed.
	StatusError Status = "error"
)

// Snapshot is an immutable view of ingestion progress.
type Snapshot struct {
	Status         string  `json:"status"`
	FilesTotal     int     `json:"files_total"`
	FilesDone      int     `json:"files_done"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress tracks a directory ingestion run. Safe for concurrent use:
// the ingest loop updates it while other goroutines poll Snapshot.
type Progress struct {
	mu sync.RWMutex

	status        Status
	filesTotal    int
	filesDone     int
	chunksIndexed int
	startTime     time.Time
	errorMessage  string
}

// NewProgress creates a progress tracker in the running state.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusRunning,
		startTime: time.Now(),
	}
}

// Begin records the number of files to process.
func (p *Progress) Begin(totalFiles int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesTotal = totalFiles
}

// FileDone records one processed file and its chunk count.
func (p *Progress) FileDone(chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesDone++
	p.chunksIndexed += chunks
}

// SetError marks the run as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the run as complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// Running reports whether the run is still in progress.
func (p *Progress) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRunning
}

// Snapshot returns an immutable copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesDone) / float64(p.filesTotal) * 100.0
	}

	return Snapshot{
		Status:         string(p.status),
		FilesTotal:     p.filesTotal,
		FilesDone:      p.filesDone,
		ChunksIndexed:  p.chunksIndexed,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
