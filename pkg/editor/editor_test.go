package editor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/menta2k/read-segments/pkg/bus"
	"github.com/menta2k/read-segments/pkg/entity"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/render"
	"github.com/menta2k/read-segments/pkg/service"
)

// fakeService records requests and answers from its fields.
type fakeService struct {
	mu    sync.Mutex
	calls []string

	saveResult *service.SaveResult
	saveErr    error
	cmdResult  *service.CommandResponse
	cmdErr     error

	savedSegs  [][]service.SegmentRecord
	savedScls  [][]service.SyllableRecord
	deletedIDs []int
	ordinals   [][2]int
	linkReqs   []service.LinkOrderedRequest
}

func (f *fakeService) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeService) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeService) save() (*service.SaveResult, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if f.saveResult != nil {
		return f.saveResult, nil
	}
	return &service.SaveResult{}, nil
}

func (f *fakeService) command() (*service.CommandResponse, error) {
	if f.cmdErr != nil {
		return nil, f.cmdErr
	}
	if f.cmdResult != nil {
		return f.cmdResult, nil
	}
	return &service.CommandResponse{Success: true}, nil
}

func (f *fakeService) SaveSegments(ctx context.Context, recs []service.SegmentRecord) (*service.SaveResult, error) {
	f.record("SaveSegments")
	f.savedSegs = append(f.savedSegs, recs)
	return f.save()
}

func (f *fakeService) SaveSyllableLinks(ctx context.Context, recs []service.SyllableRecord) (*service.SaveResult, error) {
	f.record("SaveSyllableLinks")
	f.savedScls = append(f.savedScls, recs)
	return f.save()
}

func (f *fakeService) SaveSegmentMappings(ctx context.Context, recs []service.SegmentRecord) (*service.SaveResult, error) {
	f.record("SaveSegmentMappings")
	f.savedSegs = append(f.savedSegs, recs)
	return f.save()
}

func (f *fakeService) DeleteSegment(ctx context.Context, id int) (*service.CommandResponse, error) {
	f.record("DeleteSegment")
	f.deletedIDs = append(f.deletedIDs, id)
	return f.command()
}

func (f *fakeService) SetOrdinal(ctx context.Context, segID, ord int) (*service.CommandResponse, error) {
	f.record("SetOrdinal")
	f.ordinals = append(f.ordinals, [2]int{segID, ord})
	return f.command()
}

func (f *fakeService) ClearOrdinals(ctx context.Context, blnID int) (*service.CommandResponse, error) {
	f.record("ClearOrdinals")
	return f.command()
}

func (f *fakeService) LinkOrderedSegments(ctx context.Context, req service.LinkOrderedRequest) (*service.CommandResponse, error) {
	f.record("LinkOrderedSegments")
	f.linkReqs = append(f.linkReqs, req)
	return f.command()
}

type fakeNotifier struct {
	alerts  []string
	confirm bool
}

func (n *fakeNotifier) Alert(msg string) { n.alerts = append(n.alerts, msg) }

func (n *fakeNotifier) Confirm(msg string) bool { return n.confirm }

// recorder is a bus subscriber standing in for another pane.
type recorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *recorder) handle(ev bus.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) last() bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	ed    *ImageEditor
	svc   *fakeService
	note  *fakeNotifier
	cache *entity.Cache
	bus   *bus.Bus
	other *recorder
}

const (
	square10 = "((100,100),(200,100),(200,200),(100,200))"
	square11 = "((300,100),(400,100),(400,200),(300,200))"
)

// newFixture opens a 1000x1000 pane on baseline 3 holding seg10, linked to
// scl5, and the unlinked seg11. Canvas and image coordinates coincide.
func newFixture(t *testing.T, blnID int) *fixture {
	t.Helper()
	cache := entity.NewCache()
	cache.PutBaseline(entity.Baseline{ID: 3, SegIDs: []int{10, 11}})
	cache.PutSegment(entity.Segment{ID: 10, BaselineIDs: []int{3}, Boundary: entity.Boundary{geometry.NewPolygon(square10)}, SclIDs: []int{5}})
	cache.PutSegment(entity.Segment{ID: 11, BaselineIDs: []int{3}, Boundary: entity.Boundary{geometry.NewPolygon(square11)}})
	cache.PutSyllable(entity.SyllableCluster{ID: 5, SegID: 10})

	f := &fixture{
		svc:   &fakeService{},
		note:  &fakeNotifier{confirm: true},
		cache: cache,
		bus:   bus.New(nil),
		other: &recorder{},
	}
	f.bus.Subscribe("syl", f.other.handle)
	ed, err := New(Options{
		ID:          "img1",
		BaselineID:  blnID,
		ImageWidth:  1000,
		ImageHeight: 1000,
		Cache:       cache,
		Bus:         f.bus,
		Service:     f.svc,
		Notifier:    f.note,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ed.Close)
	f.ed = ed
	return f
}

func TestNewLoadsBaselineSegments(t *testing.T) {
	f := newFixture(t, 3)
	if got := f.ed.Labels(); !slices.Equal(got, []string{"seg10", "seg11"}) {
		t.Fatalf("labels = %v", got)
	}
	seg, ok := f.ed.Segment("seg10")
	if !ok || !seg.Hidden || !seg.Linked() {
		t.Errorf("seg10 = %+v", seg)
	}
	if st := f.ed.State(); st.NextOrdinal != 1 || st.SegMode != ModeDone {
		t.Errorf("state = %+v", st)
	}
	if err := f.ed.Validate(); err != nil {
		t.Error(err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{ID: "x", ImageWidth: 10, ImageHeight: 10}); err == nil {
		t.Error("expected error without cache")
	}
	if _, err := New(Options{ID: "x", Cache: entity.NewCache(), ImageWidth: 10, ImageHeight: 10}); err == nil {
		t.Error("expected error without service")
	}
}

func dragRect(ed *ImageEditor, x0, y0, x1, y1 float64) {
	ed.MouseDown(MouseEvent{X: x0, Y: y0})
	ed.MouseMove(MouseEvent{X: x1, Y: y1})
	ed.MouseUp(MouseEvent{X: x1, Y: y1})
}

func TestRubberBandSetsPathAndStampSize(t *testing.T) {
	f := newFixture(t, 3)
	dragRect(f.ed, 500, 500, 600, 560)
	st := f.ed.State()
	want := []geometry.Point{{X: 500, Y: 500}, {X: 600, Y: 500}, {X: 600, Y: 560}, {X: 500, Y: 560}}
	if !slices.Equal(st.Path, want) || st.SegMode != ModeDone {
		t.Errorf("path = %v mode %v", st.Path, st.SegMode)
	}
	if st.RectSize != [2]int{100, 60} {
		t.Errorf("rect size = %v", st.RectSize)
	}

	dragRect(f.ed, 10, 10, 11, 11)
	if st := f.ed.State(); len(st.Path) != 0 {
		t.Errorf("tiny drag kept path %v", st.Path)
	}
}

func TestShiftClickStampsClampedRect(t *testing.T) {
	f := newFixture(t, 3)
	f.ed.Click(context.Background(), MouseEvent{X: 995, Y: 5, Mods: ModShift})
	st := f.ed.State()
	want := []geometry.Point{{X: 980, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 20}, {X: 980, Y: 20}}
	if !slices.Equal(st.Path, want) {
		t.Errorf("path = %v", st.Path)
	}
}

func TestShiftWithOtherModifiers(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.ed.Click(ctx, MouseEvent{X: 150, Y: 150, Mods: ModShift | ModCtrl})
	if st := f.ed.State(); len(st.Path) != 0 || len(st.Selected) != 1 || st.Selected[0] != "seg10" {
		t.Errorf("shift+ctrl should select, state = %+v", st)
	}
	f.ed.Click(ctx, MouseEvent{X: 600, Y: 600, Mods: ModShift | ModAlt})
	if st := f.ed.State(); st.SegMode != ModePath || !slices.Equal(st.Path, []geometry.Point{{X: 600, Y: 600}}) {
		t.Errorf("shift+alt should start a path, state = %+v", st)
	}
}

func TestFreehandPathCloses(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.ed.Click(ctx, MouseEvent{X: 300, Y: 300, Mods: ModAlt})
	f.ed.Click(ctx, MouseEvent{X: 400, Y: 300})
	f.ed.Click(ctx, MouseEvent{X: 400, Y: 400})
	if st := f.ed.State(); st.SegMode != ModePath || len(st.Path) != 3 {
		t.Fatalf("state = %v %v", st.SegMode, st.Path)
	}
	f.ed.Click(ctx, MouseEvent{X: 302, Y: 301})
	if st := f.ed.State(); st.SegMode != ModeDone || len(st.Path) != 3 {
		t.Errorf("path not closed: %v %v", st.SegMode, st.Path)
	}
}

func savedRow(t *testing.T, id int, poly geometry.Polygon) *service.SaveResult {
	t.Helper()
	pos, err := json.Marshal(poly.PGLiteral())
	if err != nil {
		t.Fatal(err)
	}
	return &service.SaveResult{Segment: &service.TableResult{
		Success: true,
		Columns: []string{"seg_id", "seg_baseline_ids", "seg_image_pos", "seg_layer"},
		Records: [][]json.RawMessage{{
			json.RawMessage(strconv.Itoa(id)), json.RawMessage(`"{3}"`), json.RawMessage(pos), json.RawMessage(`1`),
		}},
		TempIDMap: map[string]service.ID{"new1": service.ID(id)},
	}}
}

func TestSavePolygonPromotesTempLabel(t *testing.T) {
	f := newFixture(t, 3)
	dragRect(f.ed, 500, 500, 600, 560)
	poly := geometry.PolygonFromPoints(f.ed.State().Path)
	f.svc.saveResult = savedRow(t, 57, poly)

	if err := f.ed.SavePolygon(context.Background()); err != nil {
		t.Fatalf("SavePolygon: %v", err)
	}
	rec := f.svc.savedSegs[0][0]
	if rec.ID != "new1" || rec.BaselineIDs != "{3}" || rec.Layer != 1 || rec.VisibilityIDs != "{3}" || rec.ImagePos != poly.PGLiteral() {
		t.Errorf("record = %+v", rec)
	}
	st := f.ed.State()
	if len(st.Pending) != 0 || !slices.Equal(st.Selected, []string{"seg57"}) {
		t.Errorf("state = %+v", st)
	}
	if got := f.ed.Labels(); got[len(got)-1] != "seg57" {
		t.Errorf("labels = %v", got)
	}
	seg, ok := f.cache.Segment(57)
	if !ok || !seg.Boundary.First().Equal(poly) {
		t.Errorf("cached = %+v", seg)
	}
	if bln, _ := f.cache.Baseline(3); !slices.Contains(bln.SegIDs, 57) {
		t.Errorf("baseline segIDs = %v", bln.SegIDs)
	}
	if err := f.ed.Validate(); err != nil {
		t.Error(err)
	}
}

func TestSavePolygonAnswersLinkRequest(t *testing.T) {
	f := newFixture(t, 3)
	f.bus.Publish(bus.LinkRequested{From: bus.From{ID: "syl"}, Source: "scl9"})
	dragRect(f.ed, 500, 500, 600, 560)
	f.svc.saveResult = savedRow(t, 57, geometry.PolygonFromPoints(f.ed.State().Path))

	if err := f.ed.SavePolygon(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, ok := f.other.last().(bus.LinkResponse)
	if !ok || resp.Target != "seg57" {
		t.Errorf("last event = %#v", f.other.last())
	}
	if f.ed.State().LinkMode {
		t.Error("link mode should be cleared")
	}
}

func TestSavePolygonRejections(t *testing.T) {
	f := newFixture(t, 0)
	dragRect(f.ed, 500, 500, 600, 560)
	if err := f.ed.SavePolygon(context.Background()); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("err = %v, want ErrNoBaseline", err)
	}

	f = newFixture(t, 3)
	if err := f.ed.SavePolygon(context.Background()); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}
	if f.svc.called("SaveSegments") != 0 {
		t.Error("rejected save reached the service")
	}
}

func TestSavePolygonFailureKeepsPending(t *testing.T) {
	f := newFixture(t, 3)
	f.svc.saveErr = &service.Error{Endpoint: "services/saveEntityData.php", Messages: []string{"boom"}}
	dragRect(f.ed, 500, 500, 600, 560)

	if err := f.ed.SavePolygon(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if st := f.ed.State(); !slices.Equal(st.Pending, []string{"new1"}) {
		t.Errorf("pending = %v", st.Pending)
	}
	if len(f.note.alerts) != 1 {
		t.Errorf("alerts = %v", f.note.alerts)
	}
}

func TestSavePolygonBusy(t *testing.T) {
	f := newFixture(t, 3)
	dragRect(f.ed, 500, 500, 600, 560)

	release, ok := f.ed.locks.tryAcquire("new1")
	if !ok {
		t.Fatal("lock not acquired")
	}
	defer release()
	if err := f.ed.SavePolygon(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	if f.svc.called("SaveSegments") != 0 {
		t.Error("busy save reached the service")
	}
}

func TestAddProposals(t *testing.T) {
	f := newFixture(t, 3)
	n := f.ed.AddProposals([]geometry.Polygon{
		geometry.NewBoundingBoxFromRect(10, 10, 30, 20).Polygon(),
		{},
	})
	if n != 1 {
		t.Fatalf("added %d", n)
	}
	seg, ok := f.ed.Segment("new1")
	if !ok || seg.Hidden {
		t.Errorf("new1 = %+v", seg)
	}
}

func TestDoubleClickSelectsAndPublishes(t *testing.T) {
	f := newFixture(t, 3)
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	if st := f.ed.State(); !slices.Equal(st.Selected, []string{"seg11"}) || st.RectSize != [2]int{100, 100} {
		t.Errorf("state = %+v", st)
	}
	sel, ok := f.other.last().(bus.SelectionChanged)
	if !ok || !slices.Equal(sel.IDs, []string{"seg11"}) {
		t.Errorf("last event = %#v", f.other.last())
	}

	f.ed.DoubleClick(MouseEvent{X: 150, Y: 150, Mods: ModCtrl})
	if st := f.ed.State(); len(st.Selected) != 2 {
		t.Errorf("selected = %v", st.Selected)
	}
}

func TestDeleteSelectedSegment(t *testing.T) {
	f := newFixture(t, 3)
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	if err := f.ed.DeleteSelectedSegment(context.Background()); err != nil {
		t.Fatalf("DeleteSelectedSegment: %v", err)
	}
	if !slices.Equal(f.svc.deletedIDs, []int{11}) {
		t.Errorf("deleted = %v", f.svc.deletedIDs)
	}
	if _, ok := f.ed.Segment("seg11"); ok {
		t.Error("seg11 still in overlay")
	}
	if _, ok := f.cache.Segment(11); ok {
		t.Error("seg11 still cached")
	}
	if err := f.ed.Validate(); err != nil {
		t.Error(err)
	}
}

func TestDeleteRejections(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	if err := f.ed.DeleteSelectedSegment(ctx); !errors.Is(err, ErrNoSelection) {
		t.Errorf("err = %v, want ErrNoSelection", err)
	}

	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	f.ed.DoubleClick(MouseEvent{X: 150, Y: 150, Mods: ModCtrl})
	if err := f.ed.DeleteSelectedSegment(ctx); !errors.Is(err, ErrMultipleSelection) {
		t.Errorf("err = %v, want ErrMultipleSelection", err)
	}
	if len(f.note.alerts) != 1 {
		t.Errorf("alerts = %v", f.note.alerts)
	}

	f.note.confirm = false
	f.ed.DoubleClick(MouseEvent{X: 150, Y: 150})
	if err := f.ed.DeleteSelectedSegment(ctx); err != nil {
		t.Errorf("declined delete returned %v", err)
	}
	if f.svc.called("DeleteSegment") != 0 {
		t.Error("declined delete reached the service")
	}
}

func TestReplacePolygon(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	dragRect(f.ed, 300, 100, 450, 250)

	if err := f.ed.ReplacePolygon(ctx); err != nil {
		t.Fatalf("ReplacePolygon: %v", err)
	}
	want := geometry.NewPolygon("((300,100),(450,100),(450,250),(300,250))")
	if rec := f.svc.savedSegs[0][0]; rec.ID != "11" || rec.ImagePos != want.PGLiteral() {
		t.Errorf("record = %+v", rec)
	}
	if seg, _ := f.cache.Segment(11); !seg.Boundary.First().Equal(want) {
		t.Errorf("cache boundary = %v", seg.Boundary)
	}
	if seg, _ := f.ed.Segment("seg11"); !seg.Polygon.Equal(want) {
		t.Errorf("overlay polygon = %v", seg.Polygon)
	}
}

func TestReplacePolygonRejections(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	if err := f.ed.ReplacePolygon(ctx); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}

	f.cache.UpdateSegment(11, func(s *entity.Segment) { s.Readonly = true })
	dragRect(f.ed, 300, 100, 450, 250)
	if err := f.ed.ReplacePolygon(ctx); !errors.Is(err, ErrReadonly) {
		t.Errorf("err = %v, want ErrReadonly", err)
	}
}

func TestOrderingNumbersClickedSegments(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	if err := f.ed.ToggleOrderMode(ctx, false); err != nil {
		t.Fatal(err)
	}
	if f.ed.State().OrderMode != OrderOn || f.svc.called("ClearOrdinals") != 0 {
		t.Fatalf("mode = %v", f.ed.State().OrderMode)
	}
	if err := f.ed.Click(ctx, MouseEvent{X: 150, Y: 150}); err != nil {
		t.Fatal(err)
	}
	if err := f.ed.Click(ctx, MouseEvent{X: 350, Y: 150}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(f.svc.ordinals, [][2]int{{10, 1}, {11, 2}}) {
		t.Errorf("ordinals = %v", f.svc.ordinals)
	}
	if seg, _ := f.cache.Segment(11); seg.Ordinal != 2 {
		t.Errorf("cached ordinal = %d", seg.Ordinal)
	}
	if st := f.ed.State(); st.NextOrdinal != 3 || st.OrderMode != OrderOn {
		t.Errorf("state = %+v", st)
	}
	frame := f.ed.Frame()
	if !frame.ShowOrdinals || len(frame.Polygons) != 2 || frame.Polygons[1].Ordinal != 2 {
		t.Errorf("frame polygons = %+v", frame.Polygons)
	}

	f.ed.ToggleOrderMode(ctx, false)
	if err := f.ed.ToggleOrderMode(ctx, false); err != nil {
		t.Fatal(err)
	}
	if f.svc.called("ClearOrdinals") != 1 {
		t.Error("restart should clear ordinals")
	}
	if st := f.ed.State(); st.NextOrdinal != 1 || st.OrderMode != OrderOn {
		t.Errorf("state after reset = %+v", st)
	}
}

func TestOrderingContinuesOverNumberedSegments(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.cache.UpdateSegment(10, func(s *entity.Segment) { s.Ordinal = 1 })
	f.cache.UpdateSegment(11, func(s *entity.Segment) { s.Ordinal = 2 })
	if err := f.ed.ToggleOrderMode(ctx, true); err != nil {
		t.Fatal(err)
	}
	if st := f.ed.State(); st.NextOrdinal != 3 {
		t.Fatalf("next ordinal = %d, want 3", st.NextOrdinal)
	}
	f.ed.Click(ctx, MouseEvent{X: 150, Y: 150})
	f.ed.Click(ctx, MouseEvent{X: 350, Y: 150})

	if !slices.Equal(f.svc.ordinals, [][2]int{{10, 3}, {11, 4}}) {
		t.Errorf("ordinals = %v", f.svc.ordinals)
	}
	for id, want := range map[int]int{10: 3, 11: 4} {
		if seg, _ := f.cache.Segment(id); seg.Ordinal != want {
			t.Errorf("seg%d cached ordinal = %d, want %d", id, seg.Ordinal, want)
		}
	}
	if st := f.ed.State(); st.NextOrdinal != 5 {
		t.Errorf("next ordinal = %d, want 5", st.NextOrdinal)
	}
}

func TestOrdinalFromServerDelta(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.ed.ToggleOrderMode(ctx, false)
	f.svc.cmdResult = &service.CommandResponse{
		Success: true,
		Entities: &entity.Delta{Update: map[string]map[string]json.RawMessage{
			"seg": {"10": json.RawMessage(`{"ordinal":7}`)},
		}},
	}
	if err := f.ed.Click(ctx, MouseEvent{X: 150, Y: 150}); err != nil {
		t.Fatal(err)
	}
	if seg, _ := f.cache.Segment(10); seg.Ordinal != 7 {
		t.Errorf("cached ordinal = %d, want 7", seg.Ordinal)
	}
	if frame := f.ed.Frame(); len(frame.Polygons) == 0 || frame.Polygons[0].Ordinal != 7 {
		t.Errorf("frame polygons = %+v", frame.Polygons)
	}
	if st := f.ed.State(); st.NextOrdinal != 2 {
		t.Errorf("next ordinal = %d, want 2", st.NextOrdinal)
	}
}

func TestOrderingFailureAlerts(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.ed.ToggleOrderMode(ctx, true)
	f.svc.cmdErr = &service.Error{Messages: []string{"denied"}}
	if err := f.ed.Click(ctx, MouseEvent{X: 150, Y: 150}); err == nil {
		t.Error("expected error")
	}
	if st := f.ed.State(); st.OrderMode != OrderOn || st.NextOrdinal != 1 {
		t.Errorf("state = %+v", st)
	}
	if len(f.note.alerts) != 1 {
		t.Errorf("alerts = %v", f.note.alerts)
	}
}

func TestLinkSegmentToSyllable(t *testing.T) {
	f := newFixture(t, 3)
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	if err := f.ed.RequestLink(); err != nil {
		t.Fatal(err)
	}
	if req, ok := f.other.last().(bus.LinkRequested); !ok || req.Source != "seg11" {
		t.Fatalf("last event = %#v", f.other.last())
	}

	f.bus.Publish(bus.LinkResponse{From: bus.From{ID: "syl"}, Target: "scl5"})

	if recs := f.svc.savedScls; len(recs) != 1 || recs[0][0].ID != "5" || recs[0][0].SegmentID != "11" {
		t.Errorf("saved = %+v", recs)
	}
	if seg, _ := f.cache.Segment(11); !slices.Equal(seg.SclIDs, []int{5}) {
		t.Errorf("seg11 sclIDs = %v", seg.SclIDs)
	}
	if seg, _ := f.cache.Segment(10); len(seg.SclIDs) != 0 {
		t.Errorf("seg10 sclIDs = %v", seg.SclIDs)
	}
	if scl, _ := f.cache.Syllable(5); scl.SegID != 11 {
		t.Errorf("scl5 segID = %d", scl.SegID)
	}
	if seg, _ := f.ed.Segment("seg10"); seg.Linked() {
		t.Error("seg10 should be unlinked")
	}
	done, ok := f.other.last().(bus.LinkCompleted)
	if !ok || done.Source != "seg11" || done.Target != "scl5" || done.OldTarget != "seg10" {
		t.Errorf("last event = %#v", f.other.last())
	}
}

func TestLinkFromTranscriptionSegmentKeepsScratch(t *testing.T) {
	f := newFixture(t, 3)
	f.cache.PutSegment(entity.Segment{ID: 90, StringPos: [][]int{{1, 4}}, SclIDs: []int{6}})
	f.cache.PutSyllable(entity.SyllableCluster{ID: 6, SegID: 90})
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	f.ed.RequestLink()

	f.bus.Publish(bus.LinkResponse{From: bus.From{ID: "syl"}, Target: "scl6"})

	rec := f.svc.savedScls[0][0]
	var scratch map[string]any
	if err := json.Unmarshal([]byte(rec.Scratch), &scratch); err != nil || scratch["tranSeg"] != "seg90" {
		t.Errorf("scratch = %q", rec.Scratch)
	}
	if done, _ := f.other.last().(bus.LinkCompleted); done.OldTarget != "" {
		t.Errorf("old target = %q", done.OldTarget)
	}
}

func TestLinkReadonlySyllableAborts(t *testing.T) {
	f := newFixture(t, 3)
	f.cache.PutSyllable(entity.SyllableCluster{ID: 7, Readonly: true})
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	f.ed.RequestLink()
	f.bus.Publish(bus.LinkResponse{From: bus.From{ID: "syl"}, Target: "scl7"})

	if _, ok := f.other.last().(bus.LinkAborted); !ok {
		t.Errorf("last event = %#v", f.other.last())
	}
	if f.svc.called("SaveSyllableLinks") != 0 {
		t.Error("aborted link reached the service")
	}
}

func TestLinkSegmentToSegment(t *testing.T) {
	f := newFixture(t, 3)
	f.cache.PutSegment(entity.Segment{ID: 40, BaselineIDs: []int{8}, Boundary: entity.Boundary{geometry.NewPolygon(square10)}})
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	f.ed.RequestLink()
	f.bus.Publish(bus.LinkResponse{From: bus.From{ID: "img2"}, Target: "seg40"})

	recs := f.svc.savedSegs[0]
	if len(recs) != 2 || recs[0].MappedSegIDs != "{40}" || recs[1].MappedSegIDs != "{11}" {
		t.Errorf("records = %+v", recs)
	}
	if seg, _ := f.cache.Segment(40); !slices.Equal(seg.MappedSegIDs, []int{11}) {
		t.Errorf("seg40 mapped = %v", seg.MappedSegIDs)
	}

	f.bus.Publish(bus.SelectionChanged{From: bus.From{ID: "img2"}, IDs: []string{"seg40"}})
	if st := f.ed.State(); !slices.Equal(st.Selected, []string{"seg11"}) {
		t.Errorf("mirrored selection = %v", st.Selected)
	}
}

func TestLinkModeAnswersDoubleClick(t *testing.T) {
	f := newFixture(t, 3)
	f.bus.Publish(bus.LinkRequested{From: bus.From{ID: "syl"}, Source: "scl9", AutoAdvance: true})
	if st := f.ed.State(); !st.LinkMode || !st.AutoLink {
		t.Fatalf("state = %+v", st)
	}
	f.ed.DoubleClick(MouseEvent{X: 350, Y: 150})
	if resp, ok := f.other.last().(bus.LinkResponse); !ok || resp.Target != "seg11" {
		t.Errorf("last event = %#v", f.other.last())
	}

	f.cache.UpdateSegment(11, func(s *entity.Segment) { s.SclIDs = []int{9} })
	f.bus.Publish(bus.LinkCompleted{From: bus.From{ID: "syl"}, Source: "scl9", Target: "seg11"})
	if seg, _ := f.ed.Segment("seg11"); !slices.Equal(seg.LinkIDs, []int{9}) {
		t.Errorf("links = %v", seg.LinkIDs)
	}
	if _, ok := f.other.last().(bus.AutoLinkAdvance); !ok {
		t.Errorf("last event = %#v", f.other.last())
	}
}

func TestSyllableHighlightAndSelection(t *testing.T) {
	f := newFixture(t, 3)
	f.bus.Publish(bus.SyllableEntered{From: bus.From{ID: "syl"}, IDs: []string{"scl5"}})
	if seg, _ := f.ed.Segment("seg10"); !seg.Hilite {
		t.Error("seg10 not highlighted")
	}
	f.bus.Publish(bus.SyllableLeft{From: bus.From{ID: "syl"}, IDs: []string{"scl5"}})
	if seg, _ := f.ed.Segment("seg10"); seg.Hilite {
		t.Error("seg10 still highlighted")
	}

	f.bus.Publish(bus.SelectionChanged{From: bus.From{ID: "syl"}, IDs: []string{"scl5"}})
	if st := f.ed.State(); !slices.Equal(st.Selected, []string{"seg10"}) {
		t.Errorf("selected = %v", st.Selected)
	}
}

func TestAutoLinkByOrder(t *testing.T) {
	f := newFixture(t, 3)
	if err := f.ed.RequestAutoLinkByOrder(); !errors.Is(err, ErrNotOrdered) {
		t.Errorf("err = %v, want ErrNotOrdered", err)
	}

	f.cache.UpdateSegment(10, func(s *entity.Segment) { s.Ordinal = 1 })
	if err := f.ed.RequestAutoLinkByOrder(); err != nil {
		t.Fatal(err)
	}
	if req, ok := f.other.last().(bus.AutoLinkOrdRequest); !ok || req.BaselineID != 3 {
		t.Fatalf("last event = %#v", f.other.last())
	}

	f.bus.Publish(bus.AutoLinkOrdReturn{From: bus.From{ID: "syl"}, BaselineID: 3, EditionID: 2})
	if len(f.svc.linkReqs) != 1 || f.svc.linkReqs[0].EditionID != 2 || !slices.Equal(f.svc.linkReqs[0].BaselineIDs, []int{3}) {
		t.Errorf("requests = %+v", f.svc.linkReqs)
	}
	if done, ok := f.other.last().(bus.AutoLinkOrdComplete); !ok || done.EditionID != 2 {
		t.Errorf("last event = %#v", f.other.last())
	}
	if f.ed.State().AutoLinkOrdMode {
		t.Error("auto link mode not cleared")
	}
}

func TestAutoLinkOrdAbort(t *testing.T) {
	f := newFixture(t, 3)
	f.cache.UpdateSegment(10, func(s *entity.Segment) { s.Ordinal = 4 })
	f.ed.RequestAutoLinkByOrder()
	f.bus.Publish(bus.AutoLinkOrdAbort{From: bus.From{ID: "syl"}, BaselineID: 3})
	if f.ed.State().AutoLinkOrdMode {
		t.Error("abort ignored")
	}
	f.bus.Publish(bus.AutoLinkOrdReturn{From: bus.From{ID: "syl"}, BaselineID: 3, EditionID: 2})
	if f.svc.called("LinkOrderedSegments") != 0 {
		t.Error("return after abort reached the service")
	}
}

func TestEntitiesChangedRefreshesOverlay(t *testing.T) {
	f := newFixture(t, 3)
	f.cache.PutSegment(entity.Segment{ID: 12, BaselineIDs: []int{3}, Boundary: entity.Boundary{geometry.NewPolygon("((500,500),(600,500),(600,600))")}})
	f.cache.RemoveSegment(11)
	f.cache.UpdateSegment(10, func(s *entity.Segment) { s.Ordinal = 3 })

	f.bus.Publish(bus.EntitiesChanged{From: bus.From{ID: "img2"}, GIDs: []string{"seg10", "seg11", "seg12"}})

	if got := f.ed.Labels(); !slices.Equal(got, []string{"seg10", "seg12"}) {
		t.Errorf("labels = %v", got)
	}
	if seg, _ := f.ed.Segment("seg10"); seg.Ordinal != 3 {
		t.Errorf("ordinal = %d", seg.Ordinal)
	}
}

func TestSynchronizeScrollsToAnchor(t *testing.T) {
	f := newFixture(t, 3)
	for range 21 {
		f.ed.ZoomIn()
	}
	f.bus.Publish(bus.Synchronize{From: bus.From{ID: "img2"}, AnchorSegID: "seg10", VisFraction: 0.5})

	b := geometry.NewPolygon(square10).Bounds()
	want := (float64(b.Min.Y) + 0.5*float64(b.Dy())) * 100 / 1000
	if got := f.ed.State().Loc.Y; math.Abs(got-want) > 1e-9 {
		t.Errorf("loc.Y = %v, want %v", got, want)
	}
}

func TestSelfEventsIgnored(t *testing.T) {
	f := newFixture(t, 3)
	f.ed.handleEvent(bus.LinkRequested{From: bus.From{ID: "img1"}, Source: "scl1"})
	if f.ed.State().LinkMode {
		t.Error("pane reacted to its own event")
	}
}

func TestKeysAndZoom(t *testing.T) {
	f := newFixture(t, 3)
	start := f.ed.State().Percent
	if err := f.ed.KeyPress(context.Background(), '+', 0); err != nil {
		t.Fatal(err)
	}
	if got := f.ed.State().Percent; got >= start {
		t.Errorf("zoom in: %d -> %d", start, got)
	}
	if !f.ed.KeyDown("m", ModCtrl) || f.ed.State().NavVisible {
		t.Error("ctrl+m should hide the nav panel")
	}
	pos := f.ed.State().NavPosition
	f.ed.KeyDown(ArrowDown, ModCtrl)
	if got := f.ed.State().NavPosition; got[1] != pos[1]+navStepVertical {
		t.Errorf("nav position %v -> %v", pos, got)
	}
	if f.ed.KeyDown("x", 0) {
		t.Error("unused key reported handled")
	}
}

func TestImageCommands(t *testing.T) {
	f := newFixture(t, 3)
	var frames []render.Frame
	f.ed.renderer = RenderFunc(func(fr render.Frame) { frames = append(frames, fr) })

	if err := f.ed.RunCommandString("s,r"); err != nil {
		t.Fatal(err)
	}
	if got := f.ed.CommandString(); got != "S,R" {
		t.Errorf("commands = %q", got)
	}
	if len(frames) == 0 || frames[len(frames)-1].Commands != "S,R" {
		t.Error("frame not redrawn with commands")
	}
	if err := f.ed.RunCommandString("Q"); err == nil {
		t.Error("expected error for unknown command")
	}
	f.ed.ClearImageCommands()
	if got := f.ed.CommandString(); got != "" {
		t.Errorf("commands after clear = %q", got)
	}
}

func TestKeyLocks(t *testing.T) {
	k := newKeyLocks()
	release, ok := k.tryAcquire("a", "b")
	if !ok {
		t.Fatal("first acquire failed")
	}
	if _, ok := k.tryAcquire("b", "c"); ok {
		t.Error("overlapping acquire succeeded")
	}
	if _, ok := k.tryAcquire("c"); !ok {
		t.Error("disjoint acquire failed")
	}
	release()
	release()
	if _, ok := k.tryAcquire("a"); !ok {
		t.Error("acquire after release failed")
	}
}
