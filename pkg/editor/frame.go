package editor

import (
	"image"

	"github.com/menta2k/read-segments/pkg/filters"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/overlay"
	"github.com/menta2k/read-segments/pkg/render"
)

// Frame returns the current drawing state of the pane.
func (e *ImageEditor) Frame() render.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameLocked()
}

// Redraw hands the current frame to the renderer.
func (e *ImageEditor) Redraw() {
	if e.renderer == nil {
		return
	}
	e.renderer.Render(e.Frame())
}

func (e *ImageEditor) drawMode() overlay.DrawMode {
	return overlay.DrawMode{
		ShowAll:  e.showAll,
		LinkMode: e.linkMode,
		Ordering: e.orderMode != OrderOff,
	}
}

func (e *ImageEditor) frameLocked() render.Frame {
	canvas := e.vp.CanvasSize()
	nav := e.vp.NavSize()
	sx, sy := e.vp.Scales()
	mode := e.drawMode()

	f := render.Frame{
		Canvas:       image.Pt(canvas.W, canvas.H),
		Source:       e.vp.SourceRect(),
		Offset:       e.vp.Offset(),
		ScaleX:       sx,
		ScaleY:       sy,
		ShowOrdinals: mode.Ordering,
		Path:         append([]geometry.Point(nil), e.path...),
		PathDone:     e.segMode == ModeDone,
		PathOpen:     e.segMode == ModePath,
		CrossSize:    e.crossSize,
		Nav: render.Nav{
			Visible:  e.vp.NavVisible(),
			Pos:      e.vp.NavPosition(),
			Size:     image.Pt(nav.W, nav.H),
			Viewport: e.vp.NavRect(),
			Opacity:  e.vp.NavOpacity(),
		},
		Commands: filters.FormatCommands(e.cmds),
	}
	for _, seg := range e.ov.All() {
		c, width, visible := e.ov.Stroke(seg, mode)
		if !visible {
			continue
		}
		p := render.Polygon{
			Label:  seg.Label,
			Points: seg.Polygon.Points(),
			Color:  c.NRGBA(),
			Width:  width,
			Center: seg.Center(),
		}
		if mode.Ordering {
			p.Ordinal = seg.Ordinal
		}
		f.Polygons = append(f.Polygons, p)
	}
	return f
}
