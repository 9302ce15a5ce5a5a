package progress

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Monotonic(t *testing.T) {
	tr := NewTracker()
	tr.Start(4)

	var last float64
	check := func(p types.LoadProgress) {
		t.Helper()
		f := p.Fraction()
		assert.GreaterOrEqual(t, f, last)
		last = f
	}

	check(tr.SetFileFraction(0.5))
	check(tr.SetFileFraction(0.2)) // ignored
	assert.Equal(t, 0.5, tr.Snapshot().CurrentFileFraction)
	check(tr.SetFileFraction(math.NaN()))
	check(tr.SetFileFraction(7))
	check(tr.CompleteFile())
	check(tr.CompleteFile())
	check(tr.SetFileFraction(0.9))
	check(tr.CompleteFile())
	check(tr.CompleteFile())
	check(tr.CompleteFile()) // past the end

	p := tr.Snapshot()
	assert.Equal(t, 4, p.CompletedFiles)
	assert.Equal(t, 100.0, Percentage(p))

	tr.Start(2)
	assert.Equal(t, 0.0, Percentage(tr.Snapshot()))
	assert.Equal(t, 100.0, Percentage(tr.Finish()))
}

func TestPercentage_EmptyBatch(t *testing.T) {
	assert.Equal(t, 100.0, Percentage(types.LoadProgress{}))
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(2)
	ch, unsubscribe := b.Subscribe()

	b.Publish(NewEvent(EventBatchStarted, "b1", types.LoadProgress{TotalFiles: 2}))
	b.Publish(NewEvent(EventProgress, "b1", types.LoadProgress{TotalFiles: 2, CompletedFiles: 1}))
	b.Publish(NewEvent(EventProgress, "b1", types.LoadProgress{TotalFiles: 2, CompletedFiles: 2}))

	// the oldest queued event gives way to the newest
	ev := <-ch
	assert.Equal(t, 50.0, ev.Percentage)
	ev = <-ch
	assert.Equal(t, 100.0, ev.Percentage)
	assert.Equal(t, int64(1), b.Dropped())

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 100.0, last.Percentage)

	// late subscribers start from the latest event
	late, stop := b.Subscribe()
	assert.Equal(t, 100.0, (<-late).Percentage)
	stop()
	stop()
	_, open := <-late
	assert.False(t, open)

	unsubscribe()
	b.Close()
	b.Publish(NewEvent(EventProgress, "b1", types.LoadProgress{}))
	closed, _ := b.Subscribe()
	_, open = <-closed
	assert.False(t, open)
}

func TestBroadcaster_SlowSubscriberGetsFinalEvent(t *testing.T) {
	b := NewBroadcaster(4)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(NewEvent(EventBatchStarted, "b1", types.LoadProgress{TotalFiles: 1}))
	for i := 0; i < 500; i++ {
		b.Publish(NewEvent(EventProgress, "b1", types.LoadProgress{TotalFiles: 1, CurrentFileFraction: float64(i) / 500}))
	}
	b.Publish(NewEvent(EventBatchFinished, "b1", types.LoadProgress{TotalFiles: 1, CompletedFiles: 1}))

	var got []Event
	for len(ch) > 0 {
		got = append(got, <-ch)
	}
	require.Len(t, got, 4)
	assert.Equal(t, EventBatchFinished, got[len(got)-1].Type)
	assert.Equal(t, 100.0, got[len(got)-1].Percentage)
	assert.Equal(t, int64(498), b.Dropped())
}

type recorder struct {
	calls []string
	max   int64
}

func (r *recorder) Start(total int64, description string) { r.calls = append(r.calls, "start:"+description) }
func (r *recorder) Update(current int64)                  { r.max = current }
func (r *recorder) Finish()                               { r.calls = append(r.calls, "finish") }
func (r *recorder) Error(err error)                       { r.calls = append(r.calls, "error") }
func (r *recorder) SetDescription(desc string)            { r.calls = append(r.calls, "file:"+desc) }

func TestRender(t *testing.T) {
	events := make(chan Event, 8)
	total := types.LoadProgress{TotalFiles: 2}
	events <- NewEvent(EventBatchFinished, "old", total) // replayed from a previous batch
	events <- NewEvent(EventBatchStarted, "b1", total)
	fs := NewEvent(EventFileStarted, "b1", total)
	fs.File = "AR1.ifc"
	events <- fs
	events <- NewEvent(EventFileFinished, "b1", types.LoadProgress{TotalFiles: 2, CompletedFiles: 1})
	events <- NewEvent(EventBatchFinished, "b1", types.LoadProgress{TotalFiles: 2, CompletedFiles: 2})

	r := &recorder{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	Render(ctx, events, r)

	assert.Equal(t, []string{"start:Loading 2 files", "file:AR1.ifc", "finish"}, r.calls)
	assert.Equal(t, int64(100), r.max)
}

func TestCLIProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgress(&buf)
	p.Update(10) // before Start is a no-op
	p.Start(100, "Loading")
	p.SetDescription("AR1.ifc")
	p.Update(50)
	p.Finish()
	p.Error(errors.New("boom"))
	assert.Contains(t, buf.String(), "Error: boom")

	var n Reporter = NewNoOpProgress()
	n.Start(1, "x")
	n.Finish()
}
