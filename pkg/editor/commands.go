package editor

import (
	"fmt"
	"image"

	"github.com/menta2k/read-segments/pkg/filters"
)

// ApplyFilter pushes one processor onto the image command stack.
func (e *ImageEditor) ApplyFilter(cmd filters.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("editor: unknown image command %q", byte(cmd))
	}
	e.mu.Lock()
	e.cmds = append(e.cmds, cmd)
	e.mu.Unlock()
	e.Redraw()
	return nil
}

// CommandString returns the image command stack as "S,R,...".
func (e *ImageEditor) CommandString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return filters.FormatCommands(e.cmds)
}

// RunCommandString replaces the command stack with the commands in s. An
// empty string leaves the stack alone.
func (e *ImageEditor) RunCommandString(s string) error {
	if s == "" {
		return nil
	}
	cmds, err := filters.ParseCommands(s)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cmds = cmds
	e.mu.Unlock()
	e.Redraw()
	return nil
}

// ClearImageCommands empties the command stack and the fade samples.
func (e *ImageEditor) ClearImageCommands() {
	e.mu.Lock()
	e.cmds = nil
	e.fade = filters.FadeTable{}
	e.mu.Unlock()
	e.Redraw()
}

// SampleFade adds the colors of img inside the drawn path's bounding box
// to the pane's fade table and returns a copy of it. It fails when nothing
// is drawn and nothing was sampled before.
func (e *ImageEditor) SampleFade(img image.Image) (filters.FadeTable, error) {
	e.mu.Lock()
	if len(e.path) > 0 {
		r := image.Rectangle{Min: image.Pt(e.path[0].X, e.path[0].Y), Max: image.Pt(e.path[0].X+1, e.path[0].Y+1)}
		for _, p := range e.path[1:] {
			r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
		}
		e.fade.Sample(img, r)
	}
	table := e.fade.Clone()
	e.mu.Unlock()

	if table.Len() == 0 {
		e.notifier.Alert("Please drag select an area of the image to fade")
		return nil, ErrInvalidPath
	}
	return table, nil
}
