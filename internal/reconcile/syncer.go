package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"paperbridge/internal/codec"
	"paperbridge/internal/models"
	"paperbridge/internal/retry"
	"paperbridge/internal/workdir"
)

// Library is the subset of the library API the pipelines use.
type Library interface {
	ItemsByTag(ctx context.Context, tags ...string) ([]models.LibraryItem, error)
	Item(ctx context.Context, key string) (models.LibraryItem, error)
	Children(ctx context.Context, key string) ([]models.Attachment, error)
	DownloadFile(ctx context.Context, key string, w io.Writer) error
	AddTags(ctx context.Context, item *models.LibraryItem, tags ...models.Tag) error
	RemoveTag(ctx context.Context, items []*models.LibraryItem, tag models.Tag) error
	ItemTemplate(ctx context.Context, itemType, linkMode string) (map[string]any, error)
	CreateAttachment(ctx context.Context, parentKey string, tmpl map[string]any) (string, error)
	UploadAttachment(ctx context.Context, parentKey, filename, localPath string) (string, error)
	DeleteItem(ctx context.Context, key string, version int) error
}

// Device is the device bridge.
type Device interface {
	List(ctx context.Context, folder string) ([]models.DeviceEntry, error)
	Stat(ctx context.Context, entryPath string) (models.DeviceMetadata, error)
	Download(ctx context.Context, entryPath, dir string) (string, error)
	Upload(ctx context.Context, localPath, folder string) error
}

// RemoteStore is the file store behind the library's attachments when the
// library syncs files over WebDAV.
type RemoteStore interface {
	Upload(ctx context.Context, remote, localPath string) error
	Download(ctx context.Context, remote, localPath string) error
}

// Recorder receives one entry per transfer outcome.
type Recorder interface {
	Record(ctx context.Context, t models.Transfer) error
}

// Event reports progress through a batch.
type Event struct {
	Direction models.Direction
	Index     int
	Total     int
	Document  string
}

// Options wires a Syncer. Library, Device and WorkArea are required.
type Options struct {
	Library     Library
	Device      Device
	RemoteStore RemoteStore
	Renderer    codec.Renderer
	WorkArea    *workdir.Area
	Retrier     *retry.Retrier
	Recorder    Recorder
	Logger      *slog.Logger

	UnreadPath string
	ReadPath   string
	RunID      string

	Progress func(Event)
	Now      func() time.Time
}

// Syncer runs the push and pull pipelines sequentially.
type Syncer struct {
	lib      Library
	device   Device
	remote   RemoteStore
	renderer codec.Renderer
	area     *workdir.Area
	retrier  *retry.Retrier
	recorder Recorder
	logger   *slog.Logger

	unreadPath string
	readPath   string
	runID      string

	progress func(Event)
	now      func() time.Time
}

// New validates opts and returns a Syncer.
func New(opts Options) (*Syncer, error) {
	if opts.Library == nil {
		return nil, fmt.Errorf("library client is required")
	}
	if opts.Device == nil {
		return nil, fmt.Errorf("device bridge is required")
	}
	if opts.WorkArea == nil {
		return nil, fmt.Errorf("work area is required")
	}
	if opts.UnreadPath == "" || opts.ReadPath == "" {
		return nil, fmt.Errorf("unread and read device paths are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retrier := opts.Retrier
	if retrier == nil {
		retrier = retry.New(retry.DefaultMaxAttempts, retry.DefaultDelay, logger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}

	return &Syncer{
		lib:        opts.Library,
		device:     opts.Device,
		remote:     opts.RemoteStore,
		renderer:   opts.Renderer,
		area:       opts.WorkArea,
		retrier:    retrier,
		recorder:   opts.Recorder,
		logger:     logger,
		unreadPath: opts.UnreadPath,
		readPath:   opts.ReadPath,
		runID:      opts.RunID,
		progress:   opts.Progress,
		now:        now,
	}, nil
}

// Failure describes one document that did not complete.
type Failure struct {
	Direction models.Direction `json:"direction"`
	ItemKey   string           `json:"item_key,omitempty"`
	Document  string           `json:"document"`
	Step      string           `json:"step,omitempty"`
	Err       error            `json:"-"`
	Message   string           `json:"error"`
}

// Report counts the outcomes of a pass.
type Report struct {
	Pushed   int       `json:"pushed"`
	Pulled   int       `json:"pulled"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failed returns the number of failed documents.
func (r Report) Failed() int {
	return len(r.Failures)
}

func (r *Report) merge(other Report) {
	r.Pushed += other.Pushed
	r.Pulled += other.Pulled
	r.Skipped += other.Skipped
	r.Failures = append(r.Failures, other.Failures...)
}

func (s *Syncer) fail(ctx context.Context, report *Report, dir models.Direction, itemKey, document string, err error) {
	step := stepOf(err)
	s.logger.Error("transfer failed",
		"direction", dir,
		"item", itemKey,
		"document", document,
		"step", step,
		"error", err,
	)
	report.Failures = append(report.Failures, Failure{
		Direction: dir,
		ItemKey:   itemKey,
		Document:  document,
		Step:      step,
		Err:       err,
		Message:   err.Error(),
	})
	s.record(ctx, models.Transfer{
		Direction: dir,
		ItemKey:   itemKey,
		Document:  document,
		Outcome:   models.OutcomeFailed,
		Step:      step,
		Detail:    err.Error(),
	})
}

func (s *Syncer) skip(ctx context.Context, report *Report, dir models.Direction, itemKey, document, step, reason string) {
	report.Skipped++
	s.record(ctx, models.Transfer{
		Direction: dir,
		ItemKey:   itemKey,
		Document:  document,
		Outcome:   models.OutcomeSkipped,
		Step:      step,
		Detail:    reason,
	})
}

func (s *Syncer) succeed(ctx context.Context, dir models.Direction, itemKey, document string) {
	s.record(ctx, models.Transfer{
		Direction: dir,
		ItemKey:   itemKey,
		Document:  document,
		Outcome:   models.OutcomeOK,
	})
}

// record forwards t to the recorder. Journal failures never affect a transfer.
func (s *Syncer) record(ctx context.Context, t models.Transfer) {
	if s.recorder == nil {
		return
	}
	t.RunID = s.runID
	if t.At.IsZero() {
		t.At = s.now()
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), t); err != nil {
		s.logger.Warn("journal write failed", "document", t.Document, "error", err)
	}
}

func (s *Syncer) report(dir models.Direction, index, total int, document string) {
	if s.progress == nil {
		return
	}
	s.progress(Event{Direction: dir, Index: index, Total: total, Document: document})
}
