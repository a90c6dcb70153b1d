package overlay

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/menta2k/read-segments/pkg/geometry"
)

func square(x, y, side int) geometry.Polygon {
	return geometry.PolygonFromPoints([]geometry.Point{
		{X: x, Y: y}, {X: x + side, Y: y}, {X: x + side, Y: y + side}, {X: x, Y: y + side},
	})
}

func TestAddAssignsDenseIndices(t *testing.T) {
	o := New()
	for i := 1; i <= 3; i++ {
		if idx := o.Add(square(i*20, 0, 10), fmt.Sprintf("seg%d", i), false, nil, nil, 0); idx != i {
			t.Errorf("Add #%d returned %d", i, idx)
		}
	}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	if seg := o.At(2); seg == nil || seg.Label != "seg2" {
		t.Errorf("At(2) = %+v", seg)
	}
	if o.At(0) != nil || o.At(4) != nil {
		t.Error("out of range At should be nil")
	}
}

func TestAddColorsByLinkState(t *testing.T) {
	o := New()
	o.Add(square(0, 0, 5), "seg1", true, nil, nil, 0)
	o.Add(square(0, 0, 5), "seg2", true, []int{7}, nil, 0)
	if c := o.ByLabel("seg1").Color; c != ColorUnlinked {
		t.Errorf("unlinked color = %s", c)
	}
	if c := o.ByLabel("seg2").Color; c != ColorLinked {
		t.Errorf("linked color = %s", c)
	}
}

func TestRemoveKeepsLookupConsistent(t *testing.T) {
	o := New()
	for i := 1; i <= 5; i++ {
		o.Add(square(i*20, 0, 10), fmt.Sprintf("seg%d", i), true, nil, nil, 0)
	}
	o.Select("seg4")
	if !o.Remove("seg2") {
		t.Fatal("Remove returned false")
	}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	if o.Index("seg2") != 0 {
		t.Error("removed label still indexed")
	}
	if o.Index("seg4") != 3 {
		t.Errorf("seg4 index = %d, want 3", o.Index("seg4"))
	}
	if !o.IsSelected("seg4") {
		t.Error("selection lost after re-index")
	}
	if o.Remove("seg2") {
		t.Error("second Remove should report false")
	}

	o.Add(square(0, 0, 3), "new1", true, nil, nil, 0)
	o.Remove("new1")
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestRelabelInPlace(t *testing.T) {
	o := New()
	o.Add(square(0, 0, 5), "seg1", true, nil, nil, 0)
	o.Add(square(10, 0, 5), "new1", true, nil, nil, 0)
	o.Select("new1")
	if !o.Relabel("new1", "seg42") {
		t.Fatal("Relabel failed")
	}
	if o.Index("seg42") != 2 || o.Index("new1") != 0 {
		t.Errorf("indices after relabel: seg42=%d new1=%d", o.Index("seg42"), o.Index("new1"))
	}
	if !o.IsSelected("seg42") {
		t.Error("selection did not follow relabel")
	}
	if o.Relabel("seg42", "seg1") {
		t.Error("relabel onto an existing label should fail")
	}
}

func TestHitTest(t *testing.T) {
	o := New()
	o.Add(square(0, 0, 10), "seg1", true, nil, nil, 0)
	o.Add(square(5, 5, 10), "seg2", true, nil, nil, 0)
	o.Add(square(100, 100, 10), "seg3", true, nil, nil, 0)

	if got := o.HitTest(2, 2); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("HitTest(2,2) = %v", got)
	}
	if got := o.HitTest(7, 7); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("HitTest(7,7) = %v", got)
	}
	if got := o.HitTest(50, 50); len(got) != 0 {
		t.Errorf("HitTest(50,50) = %v, want none", got)
	}
}

func TestDedupeSelection(t *testing.T) {
	o := New()
	o.Add(square(0, 0, 10), "seg1", true, nil, nil, 0)
	o.Add(square(0, 0, 10), "seg2", true, nil, nil, 0)
	o.Add(square(2, 2, 4), "seg3", true, nil, nil, 0)
	for _, l := range []string{"seg1", "seg2", "seg3"} {
		o.Select(l)
	}
	o.DedupeSelection()
	if got := o.Selected(); !reflect.DeepEqual(got, []string{"seg1", "seg3"}) {
		t.Errorf("selection after dedupe = %v", got)
	}
}

func TestRemoveLinkTurnsRed(t *testing.T) {
	o := New()
	o.Add(square(0, 0, 10), "seg1", true, []int{3, 4}, nil, 0)
	seg := o.ByLabel("seg1")
	seg.RemoveLink(3)
	if seg.Color != ColorLinked {
		t.Errorf("still linked, color = %s", seg.Color)
	}
	seg.RemoveLink(4)
	if seg.Color != ColorUnlinked || seg.Linked() {
		t.Errorf("fully unlinked segment color = %s", seg.Color)
	}
}

func TestCenterSuppliedOrDerived(t *testing.T) {
	o := New()
	c := geometry.Point{X: 1, Y: 1}
	o.Add(square(0, 0, 10), "seg1", true, nil, &c, 0)
	seg := o.ByLabel("seg1")
	if seg.Center() != c {
		t.Errorf("supplied center = %v", seg.Center())
	}
	seg.SetPolygon(square(10, 10, 10))
	if seg.Center() != (geometry.Point{X: 15, Y: 15}) {
		t.Errorf("derived center = %v", seg.Center())
	}
}

func TestFindVisible(t *testing.T) {
	o := New()
	o.Add(square(0, 0, 10), "seg1", true, nil, nil, 0)
	o.Add(square(80, 0, 10), "seg2", true, nil, nil, 0)
	o.Add(square(500, 500, 10), "seg3", true, nil, nil, 0)
	visible := r2.RectFromPoints(r2.Point{X: 0, Y: 0}, r2.Point{X: 100, Y: 100})

	if seg := o.FindVisible(visible, TopRight); seg == nil || seg.Label != "seg2" {
		t.Errorf("top right = %+v", seg)
	}
	if seg := o.FindVisible(visible, TopLeft); seg == nil || seg.Label != "seg1" {
		t.Errorf("top left = %+v", seg)
	}
	empty := r2.RectFromPoints(r2.Point{X: 200, Y: 200}, r2.Point{X: 300, Y: 300})
	if seg := o.FindVisible(empty, TopRight); seg != nil {
		t.Errorf("expected nothing visible, got %s", seg.Label)
	}
}

func TestStroke(t *testing.T) {
	o := New()
	o.Add(square(0, 0, 10), "seg1", false, nil, nil, 0)
	o.Add(square(0, 0, 10), "seg2", true, []int{1}, nil, 0)
	hidden, shown := o.ByLabel("seg1"), o.ByLabel("seg2")

	if _, _, vis := o.Stroke(hidden, DrawMode{}); vis {
		t.Error("hidden segment should not be drawn")
	}
	if _, _, vis := o.Stroke(hidden, DrawMode{ShowAll: true}); !vis {
		t.Error("show all should reveal hidden segment")
	}
	o.Select("seg2")
	if c, w, _ := o.Stroke(shown, DrawMode{}); c != ColorHighlight || w != 3 {
		t.Errorf("selected stroke = %s/%d", c, w)
	}
	if c, w, _ := o.Stroke(shown, DrawMode{Ordering: true}); c != ColorOrdering || w != 1 {
		t.Errorf("ordering stroke = %s/%d", c, w)
	}
}
