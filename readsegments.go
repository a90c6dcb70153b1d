// Package readsegments ties the segment editor together: one shared entity
// cache, one bus and one service client, with any number of image panes
// opened over them.
//
// Basic usage:
//
//	ws, err := readsegments.New(readsegments.Options{
//		ServiceOptions: service.Options{BaseURL: "https://example.org/read", DB: "kanjur"},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ws.Close()
//
//	if err := ws.Merge(delta); err != nil {
//		log.Fatal(err)
//	}
//	pane, err := ws.OpenEditor("img1", blnID, 2400, 800, readsegments.PaneOptions{
//		ContainerWidth: 1200, ContainerHeight: 600,
//	})
//
// Panes talk to each other and to transcription panes only through the bus,
// so anything else that subscribes with Bus().Subscribe takes part in
// linking, selection and scroll synchronization.
package readsegments

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"

	"github.com/menta2k/read-segments/pkg/bus"
	"github.com/menta2k/read-segments/pkg/editor"
	"github.com/menta2k/read-segments/pkg/entity"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/service"
)

// Version of the segment editor library
const Version = "1.0.0"

// workspaceSender is the bus sender id of events the workspace publishes.
const workspaceSender = "workspace"

// Options configures a Workspace.
type Options struct {
	// Service persists changes. When nil a *service.Client is built from
	// ServiceOptions.
	Service        editor.Service
	ServiceOptions service.Options

	// Cache is shared by every pane. Nil creates an empty one.
	Cache    *entity.Cache
	Notifier editor.Notifier
	Logger   *slog.Logger

	// Pane holds the settings every opened pane starts from. Its identity,
	// image and collaborator fields are ignored.
	Pane editor.Options
}

// PaneOptions are the per-pane settings of OpenEditor.
type PaneOptions struct {
	ContainerWidth  int
	ContainerHeight int
	Renderer        editor.Renderer
}

// Proposer suggests segment polygons for an image. *detection.Detector
// implements it.
type Proposer interface {
	Propose(ctx context.Context, img image.Image) ([]geometry.Polygon, error)
}

// Workspace owns the collaborators shared by a set of panes.
type Workspace struct {
	cache    *entity.Cache
	bus      *bus.Bus
	svc      editor.Service
	notifier editor.Notifier
	logger   *slog.Logger
	pane     editor.Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	editors map[string]*editor.ImageEditor
}

// New creates a workspace.
func New(opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	svc := opts.Service
	if svc == nil {
		so := opts.ServiceOptions
		if so.Logger == nil {
			so.Logger = logger
		}
		client, err := service.NewClient(so)
		if err != nil {
			return nil, fmt.Errorf("workspace: %w", err)
		}
		svc = client
	}
	cache := opts.Cache
	if cache == nil {
		cache = entity.NewCache()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Workspace{
		cache:    cache,
		bus:      bus.New(logger),
		svc:      svc,
		notifier: opts.Notifier,
		logger:   logger,
		pane:     opts.Pane,
		ctx:      ctx,
		cancel:   cancel,
		editors:  make(map[string]*editor.ImageEditor),
	}, nil
}

// Cache returns the shared entity cache.
func (w *Workspace) Cache() *entity.Cache { return w.cache }

// Bus returns the shared bus.
func (w *Workspace) Bus() *bus.Bus { return w.bus }

// Merge applies a service delta to the cache and tells every pane which
// entities changed.
func (w *Workspace) Merge(d *entity.Delta) error {
	if d.Empty() {
		return nil
	}
	gids, err := w.cache.Merge(d)
	if len(gids) > 0 {
		w.bus.Publish(bus.EntitiesChanged{From: bus.From{ID: workspaceSender}, GIDs: gids})
	}
	if err != nil {
		return fmt.Errorf("workspace: merge entities: %w", err)
	}
	return nil
}

// OpenEditor creates a pane for a baseline image of imageW x imageH pixels.
// Pane ids must be unique within the workspace.
func (w *Workspace) OpenEditor(id string, baselineID, imageW, imageH int, opts PaneOptions) (*editor.ImageEditor, error) {
	if id == workspaceSender {
		return nil, fmt.Errorf("workspace: pane id %q is reserved", id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.editors[id]; ok {
		return nil, fmt.Errorf("workspace: pane %q already open", id)
	}

	eo := w.pane
	eo.ID = id
	eo.BaselineID = baselineID
	eo.ImageWidth = imageW
	eo.ImageHeight = imageH
	eo.ContainerWidth = opts.ContainerWidth
	eo.ContainerHeight = opts.ContainerHeight
	eo.Renderer = opts.Renderer
	eo.Cache = w.cache
	eo.Bus = w.bus
	eo.Service = w.svc
	eo.Notifier = w.notifier
	eo.Logger = w.logger
	eo.Context = w.ctx

	ed, err := editor.New(eo)
	if err != nil {
		return nil, err
	}
	w.editors[id] = ed
	w.logger.Info("pane opened", "pane", id, "baseline", baselineID)
	return ed, nil
}

// Editor returns the open pane with the given id.
func (w *Workspace) Editor(id string) (*editor.ImageEditor, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ed, ok := w.editors[id]
	return ed, ok
}

// Editors returns the open panes ordered by id.
func (w *Workspace) Editors() []*editor.ImageEditor {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*editor.ImageEditor, 0, len(w.editors))
	for _, ed := range w.editors {
		out = append(out, ed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// CloseEditor detaches and forgets one pane.
func (w *Workspace) CloseEditor(id string) {
	w.mu.Lock()
	ed, ok := w.editors[id]
	delete(w.editors, id)
	w.mu.Unlock()
	if ok {
		ed.Close()
	}
}

// ProposeSegments asks p for polygons on img and adds them to pane id as
// unsaved entries. It returns the number added.
func (w *Workspace) ProposeSegments(ctx context.Context, id string, img image.Image, p Proposer) (int, error) {
	ed, ok := w.Editor(id)
	if !ok {
		return 0, fmt.Errorf("workspace: no pane %q", id)
	}
	polys, err := p.Propose(ctx, img)
	if err != nil {
		return 0, err
	}
	n := ed.AddProposals(polys)
	w.logger.Debug("proposals added", "pane", id, "proposed", len(polys), "added", n)
	return n, nil
}

// Close closes every pane and cancels requests they started from bus events.
func (w *Workspace) Close() {
	w.mu.Lock()
	eds := w.editors
	w.editors = make(map[string]*editor.ImageEditor)
	w.mu.Unlock()
	for _, ed := range eds {
		ed.Close()
	}
	w.cancel()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
