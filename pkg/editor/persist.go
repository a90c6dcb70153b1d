package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/read-segments/pkg/bus"
	"github.com/menta2k/read-segments/pkg/entity"
	"github.com/menta2k/read-segments/pkg/geometry"
	"github.com/menta2k/read-segments/pkg/overlay"
	"github.com/menta2k/read-segments/pkg/service"
)

const (
	segmentLayer      = 1
	segmentVisibility = "{3}"
)

// addPendingLocked adds p as a visible unsaved "newN" entry.
func (e *ImageEditor) addPendingLocked(p geometry.Polygon) string {
	e.newCounter++
	label := fmt.Sprintf("new%d", e.newCounter)
	e.ov.Add(p, label, true, nil, nil, 0)
	e.pending = append(e.pending, label)
	return label
}

func (e *ImageEditor) isPendingLocked(label string) bool {
	for _, l := range e.pending {
		if l == label {
			return true
		}
	}
	return false
}

func (e *ImageEditor) dropPendingLocked(label string) {
	for i, l := range e.pending {
		if l == label {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// fail logs a failed request and alerts the user with the server messages.
func (e *ImageEditor) fail(op string, err error) {
	e.logger.Warn("request failed", "op", op, "error", err)
	msg := err.Error()
	var svcErr *service.Error
	if errors.As(err, &svcErr) && len(svcErr.Messages) > 0 {
		msg = strings.Join(svcErr.Messages, "\n")
	}
	e.notifier.Alert(fmt.Sprintf("Error while trying to %s: %s", op, msg))
}

// merge folds a service delta into the cache and returns the touched ids.
func (e *ImageEditor) merge(d *entity.Delta) []string {
	gids, err := e.cache.Merge(d)
	if err != nil {
		e.logger.Warn("entity merge", "error", err)
	}
	return gids
}

// SavePolygon persists every unsaved entry of the pane. A closed or
// rectangular pending path is committed as a new entry first. Saved
// entries take their permanent "segN" label in place and become selected.
// A pane waiting for a link target answers it with the first saved segment.
func (e *ImageEditor) SavePolygon(ctx context.Context) error {
	e.mu.Lock()
	if e.blnID <= 0 {
		e.mu.Unlock()
		e.logger.Warn("save rejected", "reason", "no baseline")
		return ErrNoBaseline
	}
	if e.segMode == ModeDone && len(e.path) > 2 {
		if poly := geometry.PolygonFromPoints(e.path); poly.Valid() {
			e.addPendingLocked(poly)
		}
		e.path = nil
	}
	if len(e.pending) == 0 {
		e.mu.Unlock()
		e.logger.Warn("save rejected", "reason", "nothing to save")
		return ErrInvalidPath
	}
	labels := append([]string(nil), e.pending...)
	recs := make([]service.SegmentRecord, 0, len(labels))
	for _, label := range labels {
		seg := e.ov.ByLabel(label)
		recs = append(recs, service.SegmentRecord{
			ID:            label,
			BaselineIDs:   service.PGIntArray([]int{e.blnID}),
			ImagePos:      seg.Polygon.PGLiteral(),
			Layer:         segmentLayer,
			VisibilityIDs: segmentVisibility,
		})
	}
	e.mu.Unlock()
	e.Redraw()

	release, ok := e.locks.tryAcquire(labels...)
	if !ok {
		return ErrBusy
	}
	defer release()

	res, err := e.svc.SaveSegments(ctx, recs)
	if res == nil {
		e.fail("save segments", err)
		return err
	}

	var saved []string
	if res.Segment != nil {
		e.mu.Lock()
		for row := range res.Segment.Records {
			if gid, ok := e.applySavedRowLocked(res.Segment, row); ok {
				saved = append(saved, gid)
			}
		}
		if len(saved) > 0 {
			e.ov.ClearSelection()
			for _, gid := range saved {
				e.ov.Select(gid)
			}
		}
		e.mu.Unlock()
	}
	gids := e.merge(res.Entities)

	var out []bus.Event
	e.mu.Lock()
	if e.linkMode && len(saved) > 0 {
		e.linkMode = false
		out = append(out, bus.LinkResponse{From: e.from(), Target: saved[0]})
	}
	e.mu.Unlock()
	if len(gids) > 0 {
		out = append(out, bus.EntitiesChanged{From: e.from(), GIDs: gids})
	}
	for _, ev := range out {
		e.publish(ev)
	}
	if err != nil {
		e.fail("save segments", err)
		e.Redraw()
		return err
	}
	e.logger.Info("segments saved", "count", len(saved))
	e.Redraw()
	return nil
}

// applySavedRowLocked stores one saved row in the cache and promotes the
// matching overlay entry. It returns the entry's global id.
func (e *ImageEditor) applySavedRowLocked(t *service.TableResult, row int) (string, bool) {
	id, ok := t.Int(row, "seg_id")
	if !ok {
		return "", false
	}
	seg := entity.Segment{ID: id, Layer: segmentLayer}
	if s, ok := t.String(row, "seg_baseline_ids"); ok {
		seg.BaselineIDs = service.ParsePGIntArray(s)
	}
	if len(seg.BaselineIDs) == 0 {
		seg.BaselineIDs = []int{e.blnID}
	}
	if s, ok := t.String(row, "seg_image_pos"); ok {
		seg.Boundary = entity.ParseBoundary(s)
	}
	if layer, ok := t.Int(row, "seg_layer"); ok {
		seg.Layer = layer
	}
	if old, found := e.cache.Segment(id); found {
		seg.SclIDs = old.SclIDs
		seg.MappedSegIDs = old.MappedSegIDs
		seg.Ordinal = old.Ordinal
	}
	e.cache.PutSegment(seg)
	for _, b := range seg.BaselineIDs {
		e.cache.AddSegmentToBaseline(b, id)
	}

	gid := seg.GID()
	if tmp, ok := t.TempLabel(id); ok && e.ov.Relabel(tmp, gid) {
		e.dropPendingLocked(tmp)
	} else if e.ov.ByLabel(gid) == nil {
		e.addSegmentLocked(seg)
	}
	if entry := e.ov.ByLabel(gid); entry != nil {
		entry.Color = overlay.ColorUnlinked
		entry.Hidden = true
		if len(seg.SclIDs) > 0 {
			entry.SetLinks(seg.SclIDs)
		}
	}
	return gid, true
}

// selectedOneLocked returns the single selected label or the matching
// rejection.
func (e *ImageEditor) selectedOneLocked() (string, error) {
	sel := e.ov.Selected()
	switch len(sel) {
	case 0:
		return "", ErrNoSelection
	case 1:
		return sel[0], nil
	default:
		return "", ErrMultipleSelection
	}
}

// ReplacePolygon gives the one selected segment the geometry of the drawn
// path.
func (e *ImageEditor) ReplacePolygon(ctx context.Context) error {
	e.mu.Lock()
	label, err := e.selectedOneLocked()
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("replace rejected", "reason", err)
		return err
	}
	if e.segMode != ModeDone || len(e.path) < 3 {
		e.mu.Unlock()
		e.logger.Warn("replace rejected", "reason", "no closed path")
		return ErrInvalidPath
	}
	poly := geometry.PolygonFromPoints(e.path)
	if !poly.Valid() {
		e.mu.Unlock()
		return ErrInvalidPath
	}
	if e.isPendingLocked(label) {
		e.ov.ByLabel(label).SetPolygon(poly)
		e.path = nil
		e.mu.Unlock()
		e.Redraw()
		return nil
	}
	id, ok := persistedID(label)
	e.mu.Unlock()
	if !ok {
		return ErrNoSelection
	}
	if cached, found := e.cache.Segment(id); found && cached.Readonly {
		e.logger.Warn("replace rejected", "segment", label, "reason", "readonly")
		return ErrReadonly
	}

	release, ok := e.locks.tryAcquire(label)
	if !ok {
		return ErrBusy
	}
	defer release()

	res, err := e.svc.SaveSegments(ctx, []service.SegmentRecord{{
		ID:       strconv.Itoa(id),
		ImagePos: poly.PGLiteral(),
	}})
	if err != nil {
		e.fail("replace segment", err)
		return err
	}

	e.cache.UpdateSegment(id, func(s *entity.Segment) {
		s.Boundary = entity.Boundary{poly}
		s.Center = nil
	})
	e.mu.Lock()
	if entry := e.ov.ByLabel(label); entry != nil {
		entry.SetPolygon(poly)
	}
	e.path = nil
	e.mu.Unlock()

	gids := e.merge(res.Entities)
	if len(gids) > 0 {
		e.publish(bus.EntitiesChanged{From: e.from(), GIDs: gids})
	}
	e.Redraw()
	return nil
}

// DeleteSelectedSegment removes the one selected segment. Linked segments
// are only deleted after the user confirms.
func (e *ImageEditor) DeleteSelectedSegment(ctx context.Context) error {
	e.mu.Lock()
	label, err := e.selectedOneLocked()
	if err != nil {
		e.mu.Unlock()
		if errors.Is(err, ErrMultipleSelection) {
			e.notifier.Alert("Multiple segments selected, please select only one segment to delete")
		}
		e.logger.Warn("delete rejected", "reason", err)
		return err
	}
	if e.isPendingLocked(label) {
		e.ov.Remove(label)
		e.dropPendingLocked(label)
		e.mu.Unlock()
		e.Redraw()
		return nil
	}
	linked := e.ov.ByLabel(label).Linked()
	e.mu.Unlock()

	id, ok := persistedID(label)
	if !ok {
		return ErrNoSelection
	}
	if cached, found := e.cache.Segment(id); found && cached.Readonly {
		e.logger.Warn("delete rejected", "segment", label, "reason", "readonly")
		return ErrReadonly
	}
	if linked && !e.notifier.Confirm("Segment is linked to a syllable, are you sure you want to delete it?") {
		return nil
	}

	release, ok := e.locks.tryAcquire(label)
	if !ok {
		return ErrBusy
	}
	defer release()

	res, err := e.svc.DeleteSegment(ctx, id)
	if err != nil {
		e.fail("delete segment", err)
		return err
	}

	e.mu.Lock()
	e.ov.Remove(label)
	e.mu.Unlock()
	e.cache.RemoveSegment(id)
	gids := e.merge(res.Entities)
	e.publish(bus.EntitiesChanged{From: e.from(), GIDs: appendUnique(gids, label)})
	e.logger.Info("segment deleted", "segment", label)
	e.Redraw()
	return nil
}

// ToggleOrderMode switches manual numbering on or off. Turning it on
// without continueNumbering clears the baseline's ordinals first, unless
// none are set.
func (e *ImageEditor) ToggleOrderMode(ctx context.Context, continueNumbering bool) error {
	e.mu.Lock()
	if e.linkMode {
		e.mu.Unlock()
		return ErrLinkMode
	}
	e.syncNextOrdinal()
	if e.orderMode != OrderOff {
		e.orderMode = OrderOff
		e.mu.Unlock()
		e.Redraw()
		return nil
	}
	if continueNumbering || e.nextOrdinal == 1 {
		e.orderMode = OrderOn
		e.mu.Unlock()
		e.Redraw()
		return nil
	}
	e.orderMode = OrderResetting
	e.mu.Unlock()
	return e.clearOrdinals(ctx)
}

func (e *ImageEditor) clearOrdinals(ctx context.Context) error {
	key := entity.FormatGID(entity.TypeBaseline, e.blnID)
	release, ok := e.locks.tryAcquire(key)
	if !ok {
		e.mu.Lock()
		e.orderMode = OrderOff
		e.mu.Unlock()
		return ErrBusy
	}
	defer release()

	res, err := e.svc.ClearOrdinals(ctx, e.blnID)
	if err != nil {
		e.mu.Lock()
		e.orderMode = OrderOff
		e.mu.Unlock()
		e.fail("clear segment ordinals", err)
		e.Redraw()
		return err
	}
	gids := e.merge(res.Entities)

	e.mu.Lock()
	for _, seg := range e.ov.All() {
		if id, ok := persistedID(seg.Label); ok {
			e.cache.UpdateSegment(id, func(s *entity.Segment) { s.Ordinal = 0 })
		}
		seg.Ordinal = 0
	}
	e.nextOrdinal = 1
	e.orderMode = OrderOn
	e.mu.Unlock()

	if len(gids) > 0 {
		e.publish(bus.EntitiesChanged{From: e.from(), GIDs: gids})
	}
	e.Redraw()
	return nil
}

// setSegmentOrdinal gives label the next ordinal.
func (e *ImageEditor) setSegmentOrdinal(ctx context.Context, label string) error {
	id, ok := persistedID(label)
	if !ok {
		e.logger.Warn("ordinal rejected", "segment", label, "reason", "unsaved")
		return fmt.Errorf("%w: %s is not saved", ErrNoSelection, label)
	}
	release, ok := e.locks.tryAcquire(label)
	if !ok {
		return ErrBusy
	}
	defer release()

	e.mu.Lock()
	if e.orderMode != OrderOn {
		e.mu.Unlock()
		return nil
	}
	e.orderMode = OrderSetting
	ord := e.nextOrdinal
	e.mu.Unlock()

	res, err := e.svc.SetOrdinal(ctx, id, ord)
	if err != nil {
		e.mu.Lock()
		e.orderMode = OrderOn
		e.mu.Unlock()
		e.fail("set segment ordinal", err)
		return err
	}
	gids := e.merge(res.Entities)
	sent := ord
	if got, found := res.Entities.SegmentOrdinal(id); found {
		ord = got
	} else {
		e.cache.UpdateSegment(id, func(s *entity.Segment) { s.Ordinal = ord })
	}

	e.mu.Lock()
	if entry := e.ov.ByLabel(label); entry != nil {
		entry.Ordinal = ord
	}
	e.nextOrdinal = sent + 1
	e.orderMode = OrderOn
	e.mu.Unlock()

	e.publish(bus.EntitiesChanged{From: e.from(), GIDs: appendUnique(gids, label)})
	e.Redraw()
	return nil
}

// RequestAutoLinkByOrder asks the edition panes to link the numbered
// segments of this baseline in order.
func (e *ImageEditor) RequestAutoLinkByOrder() error {
	e.mu.Lock()
	e.syncNextOrdinal()
	if e.nextOrdinal <= 1 {
		e.mu.Unlock()
		e.notifier.Alert("Please order segments first")
		return ErrNotOrdered
	}
	e.autoLinkOrdMode = true
	ev := bus.AutoLinkOrdRequest{From: e.from(), BaselineID: e.blnID, Mode: e.ov.SelectedCount()}
	e.mu.Unlock()
	e.publish(ev)
	return nil
}

// RequestLink asks the other panes to pick a link target for the selected
// segment. Relinking a linked segment needs confirmation.
func (e *ImageEditor) RequestLink() error {
	e.mu.Lock()
	label, err := e.selectedOneLocked()
	if err == nil {
		if _, ok := persistedID(label); !ok {
			err = ErrNoSelection
		}
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}
	linked := e.ov.ByLabel(label).Linked()
	e.mu.Unlock()

	if linked && !e.notifier.Confirm("Segment is already linked, do you want to relink it?") {
		return nil
	}
	e.mu.Lock()
	e.linkSource = label
	e.mu.Unlock()
	e.publish(bus.LinkRequested{From: e.from(), Source: label})
	e.Redraw()
	return nil
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
