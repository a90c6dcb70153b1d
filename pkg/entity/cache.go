package entity

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
)

// Delta is the entity change set returned by the services. Each section is
// keyed by entity type prefix and then by numeric id.
type Delta struct {
	Insert     map[string]map[string]json.RawMessage `json:"insert,omitempty"`
	Update     map[string]map[string]json.RawMessage `json:"update,omitempty"`
	RemoveProp map[string]map[string][]string        `json:"removeprop,omitempty"`
}

// Empty reports whether d carries no changes.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.Insert) == 0 && len(d.Update) == 0 && len(d.RemoveProp) == 0)
}

// SegmentOrdinal returns the ordinal the delta sets on segment id, if any.
func (d *Delta) SegmentOrdinal(id int) (int, bool) {
	if d == nil {
		return 0, false
	}
	raw, ok := d.Update["seg"][strconv.Itoa(id)]
	if !ok {
		return 0, false
	}
	var rec struct {
		Ordinal *int `json:"ordinal"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Ordinal == nil {
		return 0, false
	}
	return *rec.Ordinal, true
}

// Cache is the shared store of persisted records. One cache is created per
// workspace and handed by pointer to every pane. Reads return copies.
type Cache struct {
	mu        sync.RWMutex
	segments  map[int]*Segment
	syllables map[int]*SyllableCluster
	baselines map[int]*Baseline
	// other keeps records of types the editor does not model, field by field.
	other map[string]map[int]map[string]json.RawMessage

	lmu       sync.Mutex
	listeners []func(gids []string)
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		segments:  make(map[int]*Segment),
		syllables: make(map[int]*SyllableCluster),
		baselines: make(map[int]*Baseline),
		other:     make(map[string]map[int]map[string]json.RawMessage),
	}
}

// OnMerge registers fn to receive the global ids touched by every Merge.
func (c *Cache) OnMerge(fn func(gids []string)) {
	c.lmu.Lock()
	c.listeners = append(c.listeners, fn)
	c.lmu.Unlock()
}

// Segment returns a copy of segment id.
func (c *Cache) Segment(id int) (Segment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.segments[id]
	if !ok {
		return Segment{}, false
	}
	return *s.clone(), true
}

// SegmentIDs returns all cached segment ids in ascending order.
func (c *Cache) SegmentIDs() []int {
	c.mu.RLock()
	ids := make([]int, 0, len(c.segments))
	for id := range c.segments {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// PutSegment stores s, replacing any record with the same id.
func (c *Cache) PutSegment(s Segment) {
	c.mu.Lock()
	c.segments[s.ID] = s.clone()
	c.mu.Unlock()
}

// UpdateSegment applies fn to the stored segment in place.
func (c *Cache) UpdateSegment(id int, fn func(*Segment)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.segments[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// RemoveSegment drops segment id and detaches it from its baselines.
func (c *Cache) RemoveSegment(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.segments, id)
	for _, b := range c.baselines {
		b.SegIDs = removeInt(b.SegIDs, id)
	}
}

// Syllable returns a copy of syllable cluster id.
func (c *Cache) Syllable(id int) (SyllableCluster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.syllables[id]
	if !ok {
		return SyllableCluster{}, false
	}
	return *s, true
}

// PutSyllable stores s.
func (c *Cache) PutSyllable(s SyllableCluster) {
	c.mu.Lock()
	c.syllables[s.ID] = &s
	c.mu.Unlock()
}

// UpdateSyllable applies fn to the stored syllable cluster in place.
func (c *Cache) UpdateSyllable(id int, fn func(*SyllableCluster)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.syllables[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Baseline returns a copy of baseline id.
func (c *Cache) Baseline(id int) (Baseline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.baselines[id]
	if !ok {
		return Baseline{}, false
	}
	return *b.clone(), true
}

// PutBaseline stores b.
func (c *Cache) PutBaseline(b Baseline) {
	c.mu.Lock()
	c.baselines[b.ID] = b.clone()
	c.mu.Unlock()
}

// AddSegmentToBaseline appends segID to the baseline's segment list once.
func (c *Cache) AddSegmentToBaseline(blnID, segID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.baselines[blnID]
	if !ok {
		return
	}
	for _, id := range b.SegIDs {
		if id == segID {
			return
		}
	}
	b.SegIDs = append(b.SegIDs, segID)
}

// Raw returns the fields of a record of a type the cache does not model.
func (c *Cache) Raw(prefix string, id int) (map[string]json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.other[prefix][id]
	if !ok {
		return nil, false
	}
	cp := make(map[string]json.RawMessage, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp, true
}

// Merge folds d into the cache. Inserts and updates only overwrite the
// fields they carry; removeprop clears the named fields. Listeners receive
// the touched global ids after the cache is unlocked.
func (c *Cache) Merge(d *Delta) ([]string, error) {
	if d.Empty() {
		return nil, nil
	}
	touched := make(map[string]struct{})
	var errs []error

	c.mu.Lock()
	for _, section := range []map[string]map[string]json.RawMessage{d.Insert, d.Update} {
		for prefix, recs := range section {
			for key, raw := range recs {
				id, err := strconv.Atoi(key)
				if err != nil {
					errs = append(errs, fmt.Errorf("entity: bad %s id %q", prefix, key))
					continue
				}
				if err := c.mergeRecord(prefix, id, raw); err != nil {
					errs = append(errs, err)
					continue
				}
				touched[FormatGID(prefix, id)] = struct{}{}
			}
		}
	}
	for prefix, recs := range d.RemoveProp {
		for key, fields := range recs {
			id, err := strconv.Atoi(key)
			if err != nil {
				errs = append(errs, fmt.Errorf("entity: bad %s id %q", prefix, key))
				continue
			}
			c.removeProps(prefix, id, fields)
			touched[FormatGID(prefix, id)] = struct{}{}
		}
	}
	c.mu.Unlock()

	gids := make([]string, 0, len(touched))
	for g := range touched {
		gids = append(gids, g)
	}
	sort.Strings(gids)

	c.lmu.Lock()
	listeners := slices.Clone(c.listeners)
	c.lmu.Unlock()
	for _, fn := range listeners {
		fn(gids)
	}

	if len(errs) > 0 {
		return gids, fmt.Errorf("entity: merge: %v", errs)
	}
	return gids, nil
}

// mergeRecord decodes raw over the existing record so absent fields keep
// their current values. Callers hold c.mu.
func (c *Cache) mergeRecord(prefix string, id int, raw json.RawMessage) error {
	switch prefix {
	case TypeSegment:
		s, ok := c.segments[id]
		if !ok {
			s = &Segment{}
		}
		if err := json.Unmarshal(raw, s); err != nil {
			return fmt.Errorf("entity: decode seg%d: %w", id, err)
		}
		s.ID = id
		c.segments[id] = s
	case TypeSyllable:
		s, ok := c.syllables[id]
		if !ok {
			s = &SyllableCluster{}
		}
		if err := json.Unmarshal(raw, s); err != nil {
			return fmt.Errorf("entity: decode scl%d: %w", id, err)
		}
		s.ID = id
		c.syllables[id] = s
	case TypeBaseline:
		b, ok := c.baselines[id]
		if !ok {
			b = &Baseline{}
		}
		if err := json.Unmarshal(raw, b); err != nil {
			return fmt.Errorf("entity: decode bln%d: %w", id, err)
		}
		b.ID = id
		c.baselines[id] = b
	default:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("entity: decode %s%d: %w", prefix, id, err)
		}
		recs, ok := c.other[prefix]
		if !ok {
			recs = make(map[int]map[string]json.RawMessage)
			c.other[prefix] = recs
		}
		rec, ok := recs[id]
		if !ok {
			rec = make(map[string]json.RawMessage)
			recs[id] = rec
		}
		for k, v := range fields {
			rec[k] = v
		}
	}
	return nil
}

// removeProps clears fields of one record. Callers hold c.mu.
func (c *Cache) removeProps(prefix string, id int, fields []string) {
	for _, f := range fields {
		switch prefix {
		case TypeSegment:
			if s, ok := c.segments[id]; ok {
				s.clearField(f)
			}
		case TypeSyllable:
			if s, ok := c.syllables[id]; ok {
				s.clearField(f)
			}
		case TypeBaseline:
			if b, ok := c.baselines[id]; ok {
				b.clearField(f)
			}
		default:
			delete(c.other[prefix][id], f)
		}
	}
}

func removeInt(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
