// Package progress tracks batch load progress and fans it out to the CLI
// progress bar and to streaming HTTP clients.
package progress

import (
	"math"
	"sync"

	"github.com/dl-alexandre/bimview/internal/types"
)

// Tracker holds the progress of one batch. The aggregate fraction never
// decreases between Start calls.
type Tracker struct {
	mu  sync.RWMutex
	cur types.LoadProgress
}

// NewTracker creates a tracker with no batch in flight
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start resets the tracker for a batch of total files
func (t *Tracker) Start(total int) types.LoadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = types.LoadProgress{TotalFiles: total}
	return t.cur
}

// SetFileFraction records how far the current file has got. Values are
// clamped to [0, 1] and a value below the current one is ignored.
func (t *Tracker) SetFileFraction(f float64) types.LoadProgress {
	switch {
	case math.IsNaN(f) || f < 0:
		f = 0
	case f > 1:
		f = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur.CompletedFiles < t.cur.TotalFiles && f > t.cur.CurrentFileFraction {
		t.cur.CurrentFileFraction = f
	}
	return t.cur
}

// CompleteFile counts the current file as done, whatever its outcome
func (t *Tracker) CompleteFile() types.LoadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur.CompletedFiles < t.cur.TotalFiles {
		t.cur.CompletedFiles++
	}
	t.cur.CurrentFileFraction = 0
	return t.cur
}

// Finish marks every file complete
func (t *Tracker) Finish() types.LoadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.CompletedFiles = t.cur.TotalFiles
	t.cur.CurrentFileFraction = 0
	return t.cur
}

// Snapshot returns the current progress
func (t *Tracker) Snapshot() types.LoadProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}

// Percentage returns the aggregate progress in [0, 100]
func Percentage(p types.LoadProgress) float64 {
	return p.Fraction() * 100
}
