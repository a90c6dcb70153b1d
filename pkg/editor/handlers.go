package editor

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/menta2k/read-segments/pkg/bus"
	"github.com/menta2k/read-segments/pkg/entity"
	"github.com/menta2k/read-segments/pkg/service"
)

// handleEvent dispatches bus events from other panes.
func (e *ImageEditor) handleEvent(ev bus.Event) {
	if ev.Sender() == e.id {
		return
	}
	e.logger.Debug("event", "name", bus.Name(ev), "from", ev.Sender())
	switch ev := ev.(type) {
	case bus.LinkRequested:
		e.onLinkRequested(ev)
	case bus.LinkResponse:
		e.onLinkResponse(ev)
	case bus.LinkCompleted:
		e.onLinkCompleted(ev)
	case bus.LinkRemoved:
		e.onLinkRemoved(ev)
	case bus.LinkAborted:
		e.onLinkAborted(ev)
	case bus.SelectionChanged:
		e.onSelectionChanged(ev)
	case bus.SyllableEntered:
		e.setHilite(ev.IDs, true)
	case bus.SyllableLeft:
		e.setHilite(ev.IDs, false)
	case bus.Synchronize:
		e.onSynchronize(ev)
	case bus.AutoLinkOrdReturn:
		e.onAutoLinkOrdReturn(ev)
	case bus.AutoLinkOrdAbort:
		e.onAutoLinkOrdAbort(ev)
	case bus.EntitiesChanged:
		e.onEntitiesChanged(ev)
	}
}

// labelsForLocked maps a global id from another pane to overlay labels:
// the entry itself, the segments mapped to a foreign segment, or the
// segment a syllable is linked to.
func (e *ImageEditor) labelsForLocked(gid string) []string {
	if e.ov.ByLabel(gid) != nil {
		return []string{gid}
	}
	prefix, id, err := entity.ParseGID(gid)
	if err != nil {
		return nil
	}
	var labels []string
	switch prefix {
	case entity.TypeSegment:
		if seg, ok := e.cache.Segment(id); ok {
			for _, m := range seg.MappedSegIDs {
				if l := entity.FormatGID(entity.TypeSegment, m); e.ov.ByLabel(l) != nil {
					labels = append(labels, l)
				}
			}
		}
	case entity.TypeSyllable:
		if scl, ok := e.cache.Syllable(id); ok && scl.SegID > 0 {
			if l := entity.FormatGID(entity.TypeSegment, scl.SegID); e.ov.ByLabel(l) != nil {
				labels = append(labels, l)
			}
		}
	}
	return labels
}

func (e *ImageEditor) onLinkRequested(ev bus.LinkRequested) {
	e.mu.Lock()
	e.linkMode = true
	e.autoLink = ev.AutoAdvance
	e.mu.Unlock()
	e.Redraw()
}

func (e *ImageEditor) onLinkAborted(ev bus.LinkAborted) {
	e.mu.Lock()
	e.linkMode = false
	if e.linkSource == ev.Source || ev.Source == "" {
		e.linkSource = ""
	}
	e.mu.Unlock()
	e.Redraw()
}

// onLinkResponse stores the link between the pending link source and the
// entity picked in another pane.
func (e *ImageEditor) onLinkResponse(ev bus.LinkResponse) {
	e.mu.Lock()
	source := e.linkSource
	e.linkSource = ""
	e.mu.Unlock()
	srcID, ok := persistedID(source)
	if !ok {
		return
	}
	prefix, tgtID, err := entity.ParseGID(ev.Target)
	if err != nil {
		e.logger.Warn("link response", "target", ev.Target, "error", err)
		return
	}

	release, ok := e.locks.tryAcquire(source)
	if !ok {
		e.abortLink(source, ev.Target, "link already in progress")
		return
	}
	defer release()

	switch prefix {
	case entity.TypeSegment:
		e.linkSegments(srcID, tgtID)
	case entity.TypeSyllable:
		e.linkSyllable(srcID, tgtID)
	default:
		e.abortLink(source, ev.Target, "cannot link to "+prefix)
	}
}

func (e *ImageEditor) abortLink(source, target, reason string) {
	e.logger.Warn("link aborted", "source", source, "target", target, "reason", reason)
	e.publish(bus.LinkAborted{From: e.from(), Source: source, Target: target})
}

// linkSegments maps two segments of different baselines onto each other.
func (e *ImageEditor) linkSegments(srcID, tgtID int) {
	srcGID := entity.FormatGID(entity.TypeSegment, srcID)
	tgtGID := entity.FormatGID(entity.TypeSegment, tgtID)
	src, ok1 := e.cache.Segment(srcID)
	tgt, ok2 := e.cache.Segment(tgtID)
	if !ok1 || !ok2 || src.Readonly || tgt.Readonly || srcID == tgtID {
		e.abortLink(srcGID, tgtGID, "segment missing or readonly")
		return
	}
	srcMapped := appendUniqueInt(src.MappedSegIDs, tgtID)
	tgtMapped := appendUniqueInt(tgt.MappedSegIDs, srcID)

	res, err := e.svc.SaveSegmentMappings(e.ctx, []service.SegmentRecord{
		{ID: strconv.Itoa(srcID), MappedSegIDs: service.PGIntArray(srcMapped)},
		{ID: strconv.Itoa(tgtID), MappedSegIDs: service.PGIntArray(tgtMapped)},
	})
	if err != nil {
		e.fail("link segments", err)
		e.publish(bus.LinkAborted{From: e.from(), Source: srcGID, Target: tgtGID})
		return
	}
	e.cache.UpdateSegment(srcID, func(s *entity.Segment) { s.MappedSegIDs = srcMapped })
	e.cache.UpdateSegment(tgtID, func(s *entity.Segment) { s.MappedSegIDs = tgtMapped })
	e.merge(res.Entities)
	e.publish(bus.LinkCompleted{From: e.from(), Source: srcGID, Target: tgtGID})
	e.Redraw()
}

// linkSyllable links a segment to a syllable cluster, moving the syllable
// off the segment it was linked to. A syllable leaving a transcription
// segment remembers it in its scratch data.
func (e *ImageEditor) linkSyllable(segID, sclID int) {
	segGID := entity.FormatGID(entity.TypeSegment, segID)
	sclGID := entity.FormatGID(entity.TypeSyllable, sclID)
	scl, _ := e.cache.Syllable(sclID)
	if scl.Readonly {
		e.abortLink(segGID, sclGID, "syllable readonly")
		return
	}
	rec := service.SyllableRecord{ID: strconv.Itoa(sclID), SegmentID: strconv.Itoa(segID)}
	var oldGID string
	oldID := scl.SegID
	if oldID > 0 && oldID != segID {
		old, found := e.cache.Segment(oldID)
		if found && old.IsTranscriptionSegment() {
			scratch := scl.ScratchMap()
			scratch["tranSeg"] = old.GID()
			if b, err := json.Marshal(scratch); err == nil {
				rec.Scratch = string(b)
			}
			oldID = 0
		} else {
			oldGID = entity.FormatGID(entity.TypeSegment, oldID)
		}
	} else {
		oldID = 0
	}

	res, err := e.svc.SaveSyllableLinks(e.ctx, []service.SyllableRecord{rec})
	if err != nil {
		e.fail("link syllable", err)
		e.publish(bus.LinkAborted{From: e.from(), Source: segGID, Target: sclGID})
		return
	}

	var links []int
	e.cache.UpdateSegment(segID, func(s *entity.Segment) {
		s.SclIDs = appendUniqueInt(s.SclIDs, sclID)
		links = append([]int(nil), s.SclIDs...)
	})
	if !e.cache.UpdateSyllable(sclID, func(s *entity.SyllableCluster) {
		s.SegID = segID
		if rec.Scratch != "" {
			s.Scratch = rec.Scratch
		}
	}) {
		e.cache.PutSyllable(entity.SyllableCluster{ID: sclID, SegID: segID, Scratch: rec.Scratch})
	}
	if oldID > 0 {
		e.cache.UpdateSegment(oldID, func(s *entity.Segment) {
			s.SclIDs = slices.DeleteFunc(s.SclIDs, func(v int) bool { return v == sclID })
		})
	}
	if len(links) == 0 {
		links = []int{sclID}
	}

	e.mu.Lock()
	if entry := e.ov.ByLabel(segGID); entry != nil {
		entry.SetLinks(links)
	}
	if oldGID != "" {
		if entry := e.ov.ByLabel(oldGID); entry != nil {
			entry.RemoveLink(sclID)
		}
	}
	e.mu.Unlock()

	e.merge(res.Entities)
	e.publish(bus.LinkCompleted{From: e.from(), Source: segGID, Target: sclGID, OldTarget: oldGID})
	e.Redraw()
}

// linkPair splits a link event into its segment and syllable ids.
func linkPair(a, b string) (segGID string, sclID int, ok bool) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		p1, _, err1 := entity.ParseGID(pair[0])
		p2, id, err2 := entity.ParseGID(pair[1])
		if err1 == nil && err2 == nil && p1 == entity.TypeSegment && p2 == entity.TypeSyllable {
			return pair[0], id, true
		}
	}
	return "", 0, false
}

// onLinkCompleted recolors the segment a link was stored for by another
// pane and drops the link from the segment it replaced.
func (e *ImageEditor) onLinkCompleted(ev bus.LinkCompleted) {
	var out bus.Event
	e.mu.Lock()
	if segGID, sclID, ok := linkPair(ev.Source, ev.Target); ok {
		if entry := e.ov.ByLabel(segGID); entry != nil {
			var links []int
			if id, ok := persistedID(segGID); ok {
				if seg, found := e.cache.Segment(id); found {
					links = seg.SclIDs
				}
			}
			entry.SetLinks(appendUniqueInt(links, sclID))
		}
		if ev.OldTarget != "" {
			if entry := e.ov.ByLabel(ev.OldTarget); entry != nil {
				entry.RemoveLink(sclID)
			}
		}
	}
	e.linkMode = false
	if e.autoLink {
		e.autoLink = false
		out = bus.AutoLinkAdvance{From: e.from(), Source: ev.Source, Target: ev.Target}
	}
	e.mu.Unlock()

	if out != nil {
		e.publish(out)
	}
	e.Redraw()
}

func (e *ImageEditor) onLinkRemoved(ev bus.LinkRemoved) {
	segGID, sclID, ok := linkPair(ev.Source, ev.Target)
	if !ok {
		return
	}
	e.mu.Lock()
	if entry := e.ov.ByLabel(segGID); entry != nil {
		entry.RemoveLink(sclID)
	}
	e.mu.Unlock()
	e.Redraw()
}

// onSelectionChanged mirrors the selection of another pane.
func (e *ImageEditor) onSelectionChanged(ev bus.SelectionChanged) {
	e.mu.Lock()
	if e.autoLinkOrdMode {
		e.mu.Unlock()
		return
	}
	e.ov.ClearSelection()
	for _, gid := range ev.IDs {
		for _, label := range e.labelsForLocked(gid) {
			e.ov.Select(label)
		}
	}
	e.linkMode = false
	e.mu.Unlock()
	e.Redraw()
}

func (e *ImageEditor) setHilite(gids []string, on bool) {
	e.mu.Lock()
	for _, gid := range gids {
		for _, label := range e.labelsForLocked(gid) {
			e.ov.SetHilite(e.ov.Index(label), on)
		}
	}
	e.mu.Unlock()
	e.Redraw()
}

// onSynchronize scrolls so the anchor segment sits at the top of the view.
func (e *ImageEditor) onSynchronize(ev bus.Synchronize) {
	e.mu.Lock()
	labels := e.labelsForLocked(ev.AnchorSegID)
	if len(labels) == 0 {
		e.mu.Unlock()
		return
	}
	b := e.ov.ByLabel(labels[0]).Polygon.Bounds()
	e.vp.MoveToImagePosY(float64(b.Min.Y) + ev.VisFraction*float64(b.Dy()))
	e.mu.Unlock()
	e.Redraw()
}

func (e *ImageEditor) onAutoLinkOrdAbort(ev bus.AutoLinkOrdAbort) {
	e.mu.Lock()
	if ev.BaselineID == e.blnID {
		e.autoLinkOrdMode = false
	}
	e.mu.Unlock()
}

// onAutoLinkOrdReturn links the numbered segments of the baseline to the
// edition picked in another pane.
func (e *ImageEditor) onAutoLinkOrdReturn(ev bus.AutoLinkOrdReturn) {
	e.mu.Lock()
	if !e.autoLinkOrdMode || ev.BaselineID != e.blnID {
		e.mu.Unlock()
		return
	}
	var segIDs []int
	for _, label := range e.ov.Selected() {
		if id, ok := persistedID(label); ok {
			segIDs = append(segIDs, id)
		}
	}
	e.mu.Unlock()

	done := bus.AutoLinkOrdComplete{From: e.from(), BaselineID: e.blnID, EditionID: ev.EditionID}
	defer func() {
		e.mu.Lock()
		e.autoLinkOrdMode = false
		e.mu.Unlock()
		e.publish(done)
		e.Redraw()
	}()

	res, err := e.svc.LinkOrderedSegments(e.ctx, service.LinkOrderedRequest{
		EditionID:   ev.EditionID,
		BaselineIDs: []int{e.blnID},
		SclIDs:      ev.SclIDs,
		SegIDs:      segIDs,
	})
	if err != nil {
		e.fail("link ordered segments", err)
		return
	}
	gids := e.merge(res.Entities)

	e.mu.Lock()
	if e.orderMode == OrderOn {
		e.orderMode = OrderOff
	}
	for _, gid := range gids {
		id, ok := persistedID(gid)
		if !ok {
			continue
		}
		entry := e.ov.ByLabel(gid)
		seg, found := e.cache.Segment(id)
		if entry != nil && found {
			entry.SetLinks(seg.SclIDs)
		}
	}
	e.mu.Unlock()
	if len(gids) > 0 {
		e.publish(bus.EntitiesChanged{From: e.from(), GIDs: gids})
	}
}

// onEntitiesChanged refreshes entries from records another pane merged
// into the cache.
func (e *ImageEditor) onEntitiesChanged(ev bus.EntitiesChanged) {
	e.mu.Lock()
	changed := false
	for _, gid := range ev.GIDs {
		id, ok := persistedID(gid)
		if !ok {
			continue
		}
		seg, found := e.cache.Segment(id)
		entry := e.ov.ByLabel(gid)
		switch {
		case !found && entry != nil:
			e.ov.Remove(gid)
			changed = true
		case found && entry != nil:
			entry.SetLinks(seg.SclIDs)
			entry.Ordinal = seg.Ordinal
			if p := seg.Boundary.First(); p.Valid() && !p.Equal(entry.Polygon) {
				entry.SetPolygon(p)
			}
			changed = true
		case found && slices.Contains(seg.BaselineIDs, e.blnID):
			changed = e.addSegmentLocked(seg) || changed
		}
	}
	e.mu.Unlock()
	if changed {
		e.Redraw()
	}
}

func appendUniqueInt(s []int, v int) []int {
	if slices.Contains(s, v) {
		return s
	}
	return append(append([]int(nil), s...), v)
}
