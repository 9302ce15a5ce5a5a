package progress

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter shows progress to a user
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
	SetDescription(desc string)
}

// CLIProgress renders a progress bar on a terminal
type CLIProgress struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a progress bar writing to w, or stderr when w is nil
func NewCLIProgress(w io.Writer) *CLIProgress {
	if w == nil {
		w = os.Stderr
	}
	return &CLIProgress{w: w}
}

// Start initializes the progress bar with total steps and description.
func (p *CLIProgress) Start(total int64, description string) {
	w := p.w
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to current.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(p.w, "\nError: %v\n", err)
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// NoOpProgress discards progress, for quiet and JSON output.
type NoOpProgress struct{}

func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int64, description string) {}
func (p *NoOpProgress) Update(current int64)                  {}
func (p *NoOpProgress) Finish()                               {}
func (p *NoOpProgress) Error(err error)                       {}
func (p *NoOpProgress) SetDescription(desc string)            {}

// Render drives r from batch events until the batch finishes, events is
// closed or ctx is done. The bar counts percent, 0 to 100.
func Render(ctx context.Context, events <-chan Event, r Reporter) {
	started := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !started && ev.Type != EventBatchStarted {
				// a replayed event from an earlier batch
				continue
			}
			switch ev.Type {
			case EventBatchStarted:
				started = true
				r.Start(100, fmt.Sprintf("Loading %d files", ev.Progress.TotalFiles))
			case EventFileStarted:
				r.SetDescription(ev.File)
			case EventProgress, EventFileFinished:
				r.Update(int64(ev.Percentage))
			case EventBatchFinished:
				r.Update(100)
				r.Finish()
				return
			}
		}
	}
}
