// Package editor implements the image pane of the segment editor: a zoomable
// view of a baseline image with its segment polygons, the drawing and
// selection gestures over it, the service round trips that persist segment
// changes, and the bus handlers that keep it in step with other panes.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang/geo/r2"

	"github.com/menta2k/read-segments/pkg/bus"
	"github.com/menta2k/read-segments/pkg/entity"
	"github.com/menta2k/read-segments/pkg/filters"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/overlay"
	"github.com/menta2k/read-segments/pkg/render"
	"github.com/menta2k/read-segments/pkg/service"
	"github.com/menta2k/read-segments/pkg/viewport"
)

// SegMode is the drawing state of a pane.
type SegMode int

const (
	ModeDone SegMode = iota
	ModePath
	ModeRect
)

func (m SegMode) String() string {
	switch m {
	case ModePath:
		return "path"
	case ModeRect:
		return "rect"
	default:
		return "done"
	}
}

// OrderMode is the state of the manual numbering workflow.
type OrderMode int

const (
	OrderOff OrderMode = iota
	OrderOn
	OrderSetting
	OrderResetting
)

func (m OrderMode) String() string {
	switch m {
	case OrderOn:
		return "on"
	case OrderSetting:
		return "setting"
	case OrderResetting:
		return "resetting"
	default:
		return "off"
	}
}

// Service persists segment changes. *service.Client implements it.
type Service interface {
	SaveSegments(ctx context.Context, recs []service.SegmentRecord) (*service.SaveResult, error)
	SaveSyllableLinks(ctx context.Context, recs []service.SyllableRecord) (*service.SaveResult, error)
	SaveSegmentMappings(ctx context.Context, recs []service.SegmentRecord) (*service.SaveResult, error)
	DeleteSegment(ctx context.Context, id int) (*service.CommandResponse, error)
	SetOrdinal(ctx context.Context, segID, ord int) (*service.CommandResponse, error)
	ClearOrdinals(ctx context.Context, blnID int) (*service.CommandResponse, error)
	LinkOrderedSegments(ctx context.Context, req service.LinkOrderedRequest) (*service.CommandResponse, error)
}

// Notifier shows blocking messages to the user.
type Notifier interface {
	Alert(msg string)
	Confirm(msg string) bool
}

// Renderer receives a frame every time the pane changes.
type Renderer interface {
	Render(f render.Frame)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(f render.Frame)

// Render implements Renderer.
func (fn RenderFunc) Render(f render.Frame) { fn(f) }

// logNotifier alerts through the logger and confirms everything.
type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) Alert(msg string) { n.logger.Warn("alert", "message", msg) }

func (n logNotifier) Confirm(msg string) bool {
	n.logger.Info("confirm", "message", msg, "answer", true)
	return true
}

// Options configures an ImageEditor.
type Options struct {
	ID              string
	BaselineID      int
	ImageWidth      int
	ImageHeight     int
	ContainerWidth  int
	ContainerHeight int

	Viewport        viewport.Config
	CrossSize       int
	CloseTolerance  float64
	DefaultRectSize int
	SyncScroll      bool

	Cache    *entity.Cache
	Bus      *bus.Bus
	Service  Service
	Notifier Notifier
	Renderer Renderer
	Logger   *slog.Logger
	// Context bounds requests started from bus events. Defaults to Background.
	Context context.Context
}

// ImageEditor is one image pane. Its methods are safe for concurrent use.
// Bus events are published only after the pane's state lock is released.
type ImageEditor struct {
	id    string
	blnID int

	cache    *entity.Cache
	bus      *bus.Bus
	svc      Service
	notifier Notifier
	renderer Renderer
	logger   *slog.Logger
	locks    *keyLocks

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	crossSize  int
	closeTol   float64
	syncScroll bool

	mu sync.Mutex
	vp *viewport.Viewport
	ov *overlay.Overlay

	segMode   SegMode
	path      []geometry.Point
	drawing   bool
	rectStart r2.Point
	dragNav   bool
	lastMouse r2.Point
	navDrag   bool
	navOffset r2.Point

	rectW, rectH int
	pending      []string
	newCounter   int

	orderMode       OrderMode
	nextOrdinal     int
	linkMode        bool
	autoLink        bool
	linkSource      string
	autoLinkOrdMode bool
	showAll         bool

	cmds []filters.Command
	fade filters.FadeTable
}

// New creates a pane for a baseline image and loads the baseline's
// persisted segments from the cache as hidden entries.
func New(opts Options) (*ImageEditor, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("editor: id is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("editor: cache is required")
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("editor: service is required")
	}
	cfg := opts.Viewport
	if cfg == (viewport.Config{}) {
		cfg = viewport.DefaultConfig()
	}
	vp, err := viewport.New(cfg, opts.ImageWidth, opts.ImageHeight, opts.ContainerWidth, opts.ContainerHeight)
	if err != nil {
		return nil, fmt.Errorf("editor: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pane", opts.ID)
	notifier := opts.Notifier
	if notifier == nil {
		notifier = logNotifier{logger: logger}
	}
	base := opts.Context
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)

	e := &ImageEditor{
		id:          opts.ID,
		blnID:       opts.BaselineID,
		cache:       opts.Cache,
		bus:         opts.Bus,
		svc:         opts.Service,
		notifier:    notifier,
		renderer:    opts.Renderer,
		logger:      logger,
		locks:       newKeyLocks(),
		ctx:         ctx,
		cancel:      cancel,
		crossSize:   opts.CrossSize,
		closeTol:    opts.CloseTolerance,
		syncScroll:  opts.SyncScroll,
		vp:          vp,
		ov:          overlay.New(),
		rectW:       opts.DefaultRectSize,
		rectH:       opts.DefaultRectSize,
		nextOrdinal: 1,
		fade:        filters.FadeTable{},
	}
	if e.crossSize <= 0 {
		e.crossSize = 10
	}
	if e.closeTol <= 0 {
		e.closeTol = 3
	}
	if e.rectW <= 0 {
		e.rectW, e.rectH = 20, 20
	}

	e.loadSegments()
	e.syncNextOrdinal()
	if e.bus != nil {
		e.unsubscribe = e.bus.Subscribe(e.id, e.handleEvent)
	}
	logger.Debug("image editor ready", "baseline", e.blnID, "segments", e.ov.Len())
	return e, nil
}

// Close detaches the pane from the bus and cancels its pending requests.
func (e *ImageEditor) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	e.cancel()
}

// ID returns the pane id used as the bus sender.
func (e *ImageEditor) ID() string { return e.id }

// BaselineID returns the baseline shown by the pane.
func (e *ImageEditor) BaselineID() int { return e.blnID }

func (e *ImageEditor) loadSegments() {
	ids := map[int]struct{}{}
	if bln, ok := e.cache.Baseline(e.blnID); ok {
		for _, id := range bln.SegIDs {
			ids[id] = struct{}{}
		}
	}
	for _, id := range e.cache.SegmentIDs() {
		seg, _ := e.cache.Segment(id)
		for _, b := range seg.BaselineIDs {
			if b == e.blnID {
				ids[id] = struct{}{}
			}
		}
	}
	for _, id := range e.cache.SegmentIDs() {
		if _, ok := ids[id]; !ok {
			continue
		}
		seg, _ := e.cache.Segment(id)
		e.addSegmentLocked(seg)
	}
}

// addSegmentLocked projects a cached segment into the overlay. Segments
// without image geometry are skipped.
func (e *ImageEditor) addSegmentLocked(seg entity.Segment) bool {
	poly := seg.Boundary.First()
	if !poly.Valid() {
		e.logger.Debug("segment without boundary", "segment", seg.GID())
		return false
	}
	e.ov.Add(poly, seg.GID(), false, seg.SclIDs, seg.CenterPoint(), seg.Ordinal)
	return true
}

// syncNextOrdinal refreshes entry ordinals from the cache and sets the next
// ordinal to one past the largest.
func (e *ImageEditor) syncNextOrdinal() {
	highest := 0
	for _, seg := range e.ov.All() {
		if id, ok := persistedID(seg.Label); ok {
			if cached, found := e.cache.Segment(id); found {
				seg.Ordinal = cached.Ordinal
			}
		}
		highest = max(highest, seg.Ordinal)
	}
	e.nextOrdinal = highest + 1
}

// persistedID returns the numeric id of a "segN" label.
func persistedID(label string) (int, bool) {
	prefix, id, err := entity.ParseGID(label)
	if err != nil || prefix != entity.TypeSegment {
		return 0, false
	}
	return id, true
}

// publish sends ev from this pane. Callers must not hold e.mu.
func (e *ImageEditor) publish(ev bus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *ImageEditor) from() bus.From { return bus.From{ID: e.id} }

// State is a read-only snapshot of the pane.
type State struct {
	SegMode         SegMode
	OrderMode       OrderMode
	NextOrdinal     int
	LinkMode        bool
	AutoLink        bool
	LinkSource      string
	AutoLinkOrdMode bool
	ShowAll         bool
	Selected        []string
	Path            []geometry.Point
	Pending         []string
	Segments        int
	RectSize        [2]int
	Percent         int
	Loc             r2.Point
	NavVisible      bool
	NavPosition     [2]int
}

// State returns a snapshot of the pane.
func (e *ImageEditor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	nav := e.vp.NavPosition()
	return State{
		SegMode:         e.segMode,
		OrderMode:       e.orderMode,
		NextOrdinal:     e.nextOrdinal,
		LinkMode:        e.linkMode,
		AutoLink:        e.autoLink,
		LinkSource:      e.linkSource,
		AutoLinkOrdMode: e.autoLinkOrdMode,
		ShowAll:         e.showAll,
		Selected:        e.ov.Selected(),
		Path:            append([]geometry.Point(nil), e.path...),
		Pending:         append([]string(nil), e.pending...),
		Segments:        e.ov.Len(),
		RectSize:        [2]int{e.rectW, e.rectH},
		Percent:         e.vp.Percent(),
		Loc:             e.vp.Loc(),
		NavVisible:      e.vp.NavVisible(),
		NavPosition:     [2]int{nav.X, nav.Y},
	}
}

// Segment returns a copy of the overlay entry for label.
func (e *ImageEditor) Segment(label string) (overlay.Segment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seg := e.ov.ByLabel(label)
	if seg == nil {
		return overlay.Segment{}, false
	}
	cp := *seg
	cp.LinkIDs = append([]int(nil), seg.LinkIDs...)
	return cp, true
}

// Labels returns the overlay labels in index order.
func (e *ImageEditor) Labels() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	labels := make([]string, 0, e.ov.Len())
	for _, seg := range e.ov.All() {
		labels = append(labels, seg.Label)
	}
	return labels
}

// CanvasPoint maps an image point to canvas pixels at the current view.
func (e *ImageEditor) CanvasPoint(x, y float64) r2.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vp.ImageToCanvas(x, y)
}

// Validate checks the overlay index invariant.
func (e *ImageEditor) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ov.Validate()
}
