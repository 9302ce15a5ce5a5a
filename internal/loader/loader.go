// Package loader runs load batches: it downloads each selected file in
// order, parses it, styles it and hands the model to the scene, isolating
// per-file failures from the rest of the batch.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dl-alexandre/bimview/internal/assets"
	"github.com/dl-alexandre/bimview/internal/auth"
	"github.com/dl-alexandre/bimview/internal/browse"
	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/metrics"
	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/progress"
	"github.com/dl-alexandre/bimview/internal/scene"
	"github.com/dl-alexandre/bimview/internal/store"
	"github.com/dl-alexandre/bimview/internal/styling"
	"github.com/dl-alexandre/bimview/internal/types"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/google/uuid"
)

// State is where the loader is in its batch cycle
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateLoading    State = "loading"
	StateFinalizing State = "finalizing"
)

// Share of a file's progress spent downloading; parsing covers the rest
const downloadShare = 0.6

// Config wires a Loader to its collaborators. Tokens, Styles, Events and
// Logger are optional.
type Config struct {
	Store    store.FileStore
	Cache    *browse.FolderCache
	Tokens   auth.TokenProvider
	Resolver *assets.Resolver
	Parsers  *model.Registry
	Styles   *styling.Policy
	Scene    *scene.Manager
	Tracker  *progress.Tracker
	Events   *progress.Broadcaster
	Logger   logging.Logger
}

// Loader runs one batch at a time
type Loader struct {
	cfg     Config
	logger  logging.Logger
	buffers sync.Pool

	running sync.Mutex

	stateMu sync.RWMutex
	state   State
	current int
}

// New creates a loader
func New(cfg Config) *Loader {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoOpLogger()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = progress.NewTracker()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = assets.NewResolver(utils.DefaultSupportedExtensions, assets.MatchExact)
	}
	return &Loader{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateIdle,
		buffers: sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

// State returns the current state and, while loading, the index of the
// file being processed
func (l *Loader) State() (State, int) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state, l.current
}

func (l *Loader) setState(s State, i int) {
	l.stateMu.Lock()
	l.state = s
	l.current = i
	l.stateMu.Unlock()
}

// Busy reports whether a batch is in flight
func (l *Loader) Busy() bool {
	s, _ := l.State()
	return s != StateIdle
}

// Request describes one batch
type Request struct {
	DriveID  string
	Files    []types.SelectedFile
	Viewport scene.Viewport
}

// Load runs a batch. It returns an error only when the batch as a whole
// could not run or was cut short: another batch is in flight, no token,
// no scene, cancellation, or the store rejected the session mid-batch. In
// the last two cases the partial report is returned alongside the error.
// Individual file failures are recorded in the report.
func (l *Loader) Load(ctx context.Context, req Request) (*types.BatchReport, error) {
	if !l.running.TryLock() {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeBatchInProgress,
			"a load batch is already in progress").Build())
	}
	defer l.running.Unlock()
	defer l.setState(StateIdle, 0)

	started := time.Now()
	batchID := uuid.New().String()
	logger := l.logger.WithTraceID(batchID)
	report := &types.BatchReport{BatchID: batchID, Files: make([]types.FileReport, 0, len(req.Files))}

	metrics.BatchStarted()
	l.setState(StatePreparing, 0)
	l.publish(progress.NewEvent(progress.EventBatchStarted, batchID, l.cfg.Tracker.Start(len(req.Files))))
	logger.Info("Batch started", logging.F("files", len(req.Files)), logging.F("drive", req.DriveID))

	if l.cfg.Tokens != nil {
		if _, err := l.cfg.Tokens.Token(ctx); err != nil {
			logger.Error("Token acquisition failed", logging.F("error", err.Error()))
			return l.abort(report, started, authFailure(err))
		}
	}

	if err := l.cfg.Scene.Init(req.Viewport); err != nil {
		logger.Error("Scene initialization failed", logging.F("error", err.Error()))
		return l.abort(report, started, err)
	}
	l.cfg.Scene.Clear()

	siblings := l.siblingListings(ctx, req, logger)

	var batchErr error
	for i, file := range req.Files {
		if batchErr == nil {
			if err := ctx.Err(); err != nil {
				batchErr = utils.NewAppError(utils.NewCLIError(utils.ErrCodeCancelled, "load cancelled").
					WithContext("completedFiles", i).
					Build())
				logger.Warn("Batch cancelled", logging.F("remaining", len(req.Files)-i))
			}
		}
		if batchErr != nil {
			report.Files = append(report.Files, skipped(file, batchErr))
			continue
		}

		l.setState(StateLoading, i)
		l.publish(l.fileEvent(progress.EventFileStarted, batchID, file.Name))

		fr, err := l.loadFile(ctx, req.DriveID, file, siblings[file.ParentFolderID], batchID, logger)
		report.Files = append(report.Files, fr)

		p := l.cfg.Tracker.CompleteFile()
		ev := progress.NewEvent(progress.EventFileFinished, batchID, p)
		ev.File, ev.Status = file.Name, fr.Status
		if fr.Error != nil {
			ev.Message = fr.Error.Message
		}
		l.publish(ev)

		if err != nil && utils.IsAuthError(err) {
			logger.Error("Store rejected credentials, aborting batch", logging.F("file", file.Name), logging.F("error", err.Error()))
			batchErr = err
		}
	}

	l.setState(StateFinalizing, 0)
	cam := l.cfg.Scene.FitToContent()
	diag := l.cfg.Scene.LogDiagnostics()

	for _, f := range report.Files {
		switch f.Status {
		case types.FileStatusLoaded:
			report.Loaded++
		case types.FileStatusFailed:
			report.Failed++
		case types.FileStatusSkipped:
			report.Skipped++
		}
	}
	report.Bounds = diag.Bounds
	report.Camera = cam.Summary()
	report.Progress = progress.Percentage(l.cfg.Tracker.Finish())
	report.DurationMs = time.Since(started).Milliseconds()

	metrics.BatchFinished(time.Since(started), diag.Vertices)
	done := progress.NewEvent(progress.EventBatchFinished, batchID, l.cfg.Tracker.Snapshot())
	done.Message = fmt.Sprintf("%d loaded, %d failed, %d skipped", report.Loaded, report.Failed, report.Skipped)
	l.publish(done)

	logger.Info("Batch finished",
		logging.F("loaded", report.Loaded),
		logging.F("failed", report.Failed),
		logging.F("skipped", report.Skipped),
		logging.F("durationMs", report.DurationMs),
	)
	return report, batchErr
}

// abort ends a batch that never reached its files
func (l *Loader) abort(report *types.BatchReport, started time.Time, err error) (*types.BatchReport, error) {
	metrics.BatchFinished(time.Since(started), 0)
	ev := progress.NewEvent(progress.EventBatchFinished, report.BatchID, l.cfg.Tracker.Finish())
	ev.Message = err.Error()
	l.publish(ev)
	return nil, err
}

func authFailure(err error) error {
	if utils.IsAuthError(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
		fmt.Sprintf("could not acquire an access token: %v", err)).Build())
}

// siblingListings fetches each distinct parent folder once. A failed
// listing only costs the files in it their companions.
func (l *Loader) siblingListings(ctx context.Context, req Request, logger logging.Logger) map[string][]types.RemoteNode {
	out := make(map[string][]types.RemoteNode)
	for _, f := range req.Files {
		if _, seen := out[f.ParentFolderID]; seen || f.ParentFolderID == "" {
			continue
		}
		listing, err := l.cfg.Cache.Get(ctx, req.DriveID, f.ParentFolderID)
		if err != nil {
			logger.Warn("Sibling listing failed", logging.F("folder", f.ParentFolderID), logging.F("error", err.Error()))
			out[f.ParentFolderID] = nil
			continue
		}
		out[f.ParentFolderID] = listing.Nodes
	}
	return out
}

func (l *Loader) fileEvent(typ progress.EventType, batchID, file string) progress.Event {
	ev := progress.NewEvent(typ, batchID, l.cfg.Tracker.Snapshot())
	ev.File = file
	return ev
}

func (l *Loader) publish(ev progress.Event) {
	if l.cfg.Events != nil {
		l.cfg.Events.Publish(ev)
	}
}

func (l *Loader) getBuffer() *bytes.Buffer {
	buf := l.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer recycles buf. Oversized buffers are dropped so one huge model
// does not pin its memory for the rest of the session.
func (l *Loader) putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 64<<20 {
		return
	}
	buf.Reset()
	l.buffers.Put(buf)
}

// loadFile runs download, resolve, parse, style and insert for one file.
// The returned error is the one recorded in the report.
func (l *Loader) loadFile(ctx context.Context, driveID string, file types.SelectedFile, siblings []types.RemoteNode, batchID string, logger logging.Logger) (fr types.FileReport, err error) {
	started := time.Now()
	fr = types.FileReport{ID: file.ID, Name: file.Name}

	defer func() {
		fr.DurationMs = time.Since(started).Milliseconds()
		if err != nil {
			cliErr := utils.AsCLIError(err)
			fr.Status = types.FileStatusFailed
			fr.Error = &cliErr
			logger.Warn("File failed", logging.F("file", file.Name), logging.F("code", cliErr.Code), logging.F("error", cliErr.Message))
		}
		metrics.RecordFile(fr.Format, string(fr.Status))
	}()

	res, err := l.cfg.Resolver.Resolve(file, siblings)
	if err != nil {
		return fr, err
	}
	fr.Format = string(res.Format)
	for _, w := range res.Warnings {
		fr.Warnings = append(fr.Warnings, w.Message)
		logger.Warn("Companion missing", logging.F("file", file.Name), logging.F("code", w.Code), logging.F("message", w.Message))
	}

	primary := l.getBuffer()
	defer l.putBuffer(primary)

	size := sizeOf(file.ID, siblings)
	w := &progressWriter{w: primary, total: size, report: func(frac float64) {
		l.publish(l.progressEvent(batchID, file.Name, frac*downloadShare))
	}}
	if _, err = l.cfg.Store.FetchContent(ctx, driveID, file.ID, w); err != nil {
		return fr, err
	}
	metrics.RecordDownload(int64(primary.Len()))
	l.publish(l.progressEvent(batchID, file.Name, downloadShare))

	if err = assets.Verify(file.Name, res.Format, primary.Bytes()); err != nil {
		return fr, err
	}

	var auxiliary []byte
	var auxiliaryName string
	if res.Auxiliary != nil {
		aux := l.getBuffer()
		defer l.putBuffer(aux)
		if _, auxErr := l.cfg.Store.FetchContent(ctx, driveID, res.Auxiliary.ID, aux); auxErr != nil {
			if utils.IsAuthError(auxErr) {
				return fr, auxErr
			}
			msg := fmt.Sprintf("%s: companion %s could not be downloaded: %v", file.Name, res.Auxiliary.Name, auxErr)
			fr.Warnings = append(fr.Warnings, msg)
			logger.Warn("Companion download failed", logging.F("file", file.Name), logging.F("companion", res.Auxiliary.Name), logging.F("error", auxErr.Error()))
		} else {
			metrics.RecordDownload(int64(aux.Len()))
			auxiliary = aux.Bytes()
			auxiliaryName = res.Auxiliary.Name
		}
	}

	parser, err := l.cfg.Parsers.For(res.Format)
	if err != nil {
		return fr, utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnsupportedFormat, err.Error()).
			WithContext("file", file.Name).
			Build())
	}

	parseStarted := time.Now()
	mdl, err := parser.Parse(ctx, model.Input{Name: file.Name, Data: primary.Bytes(), Auxiliary: auxiliary, AuxiliaryName: auxiliaryName})
	metrics.RecordParse(fr.Format, time.Since(parseStarted))
	if err != nil {
		if utils.ErrorCode(err) == utils.ErrCodeUnknown {
			err = model.NewParseError(file.Name, res.Format, err)
		}
		return fr, err
	}
	if mdl == nil {
		return fr, model.NewParseError(file.Name, res.Format, errors.New("parser returned no model"))
	}
	if mdl.Name == "" {
		mdl.Name = file.Name
	}
	fr.Warnings = append(fr.Warnings, mdl.Warnings...)

	if l.cfg.Styles.Apply(file.Name, mdl) {
		logger.Debug("Applied color rule", logging.F("file", file.Name))
	}

	if err = l.cfg.Scene.Add(mdl); err != nil {
		mdl.Dispose()
		return fr, err
	}

	fr.Status = types.FileStatusLoaded
	fr.Meshes = len(mdl.Meshes)
	fr.Vertices = mdl.VertexCount()
	logger.Info("File loaded",
		logging.F("file", file.Name),
		logging.F("format", fr.Format),
		logging.F("meshes", fr.Meshes),
		logging.F("vertices", fr.Vertices),
	)
	return fr, nil
}

func (l *Loader) progressEvent(batchID, file string, frac float64) progress.Event {
	ev := progress.NewEvent(progress.EventProgress, batchID, l.cfg.Tracker.SetFileFraction(frac))
	ev.File = file
	return ev
}

func skipped(file types.SelectedFile, cause error) types.FileReport {
	cliErr := utils.AsCLIError(cause)
	metrics.RecordFile("unknown", string(types.FileStatusSkipped))
	return types.FileReport{
		ID:     file.ID,
		Name:   file.Name,
		Status: types.FileStatusSkipped,
		Error:  &cliErr,
	}
}

func sizeOf(id string, siblings []types.RemoteNode) int64 {
	for _, s := range siblings {
		if s.ID == id {
			return s.Size
		}
	}
	return 0
}

// progressWriter reports the downloaded fraction when the size is known,
// at most once per percent so large downloads do not flood subscribers
type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	reported int
	report   func(float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.total <= 0 {
		return n, err
	}
	frac := float64(p.written) / float64(p.total)
	if frac > 1 {
		frac = 1
	}
	if step := int(frac * 100); step > p.reported {
		p.reported = step
		p.report(frac)
	}
	return n, err
}
