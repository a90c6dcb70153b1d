// Package entity holds the typed records the segment editor reads from the
// shared entity cache: segments, syllable clusters and baselines, addressed
// by global ids such as "seg12".
package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/read-segments/pkg/geometry"
)

// Entity type prefixes.
const (
	TypeSegment  = "seg"
	TypeSyllable = "scl"
	TypeBaseline = "bln"
)

// ParseGID splits a global id such as "seg12" into its 3-letter prefix and
// numeric id.
func ParseGID(gid string) (prefix string, id int, err error) {
	if len(gid) < 4 {
		return "", 0, fmt.Errorf("entity: malformed gid %q", gid)
	}
	id, err = strconv.Atoi(gid[3:])
	if err != nil {
		return "", 0, fmt.Errorf("entity: malformed gid %q: %w", gid, err)
	}
	return gid[:3], id, nil
}

// FormatGID joins a prefix and id.
func FormatGID(prefix string, id int) string {
	return prefix + strconv.Itoa(id)
}

// Boundary is the polygon list of a segment. It decodes from either a JSON
// array of [[x,y],...] polygons or a Postgres polygon array literal.
type Boundary []geometry.Polygon

// UnmarshalJSON implements json.Unmarshaler.
func (b *Boundary) UnmarshalJSON(data []byte) error {
	var polys []geometry.Polygon
	if err := json.Unmarshal(data, &polys); err == nil {
		*b = polys
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("entity: boundary must be a polygon array or literal: %w", err)
	}
	*b = ParseBoundary(s)
	return nil
}

// ParseBoundary reads a Postgres polygon array literal or a bare polygon string.
func ParseBoundary(s string) Boundary {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return Boundary(geometry.ParsePGPolygons(s))
	}
	if p := geometry.NewPolygon(s); p.Valid() {
		return Boundary{p}
	}
	return nil
}

// First returns the first polygon, or an unset polygon.
func (b Boundary) First() geometry.Polygon {
	if len(b) == 0 {
		return geometry.Polygon{}
	}
	return b[0]
}

// Segment is a persisted image region.
type Segment struct {
	ID           int      `json:"id"`
	BaselineIDs  []int    `json:"baselineIDs,omitempty"`
	Boundary     Boundary `json:"boundary,omitempty"`
	Center       []int    `json:"center,omitempty"`
	Layer        int      `json:"layer,omitempty"`
	SurfaceID    int      `json:"surfaceID,omitempty"`
	Ordinal      int      `json:"ordinal,omitempty"`
	SclIDs       []int    `json:"sclIDs,omitempty"`
	MappedSegIDs []int    `json:"mappedSegIDs,omitempty"`
	StringPos    [][]int  `json:"stringpos,omitempty"`
	Readonly     bool     `json:"readonly,omitempty"`
}

// GID returns the global id.
func (s Segment) GID() string { return FormatGID(TypeSegment, s.ID) }

// CenterPoint returns the stored center, or nil.
func (s Segment) CenterPoint() *geometry.Point {
	if len(s.Center) != 2 {
		return nil
	}
	return &geometry.Point{X: s.Center[0], Y: s.Center[1]}
}

// IsTranscriptionSegment reports whether the segment marks a string position
// in a transcription rather than an image region.
func (s Segment) IsTranscriptionSegment() bool {
	return len(s.StringPos) > 0
}

func (s Segment) clone() *Segment {
	c := s
	c.BaselineIDs = append([]int(nil), s.BaselineIDs...)
	c.Boundary = nil
	for _, poly := range s.Boundary {
		c.Boundary = append(c.Boundary, geometry.PolygonFromPoints(poly.Points()))
	}
	c.Center = append([]int(nil), s.Center...)
	c.SclIDs = append([]int(nil), s.SclIDs...)
	c.MappedSegIDs = append([]int(nil), s.MappedSegIDs...)
	c.StringPos = append([][]int(nil), s.StringPos...)
	return &c
}

func (s *Segment) clearField(name string) {
	switch name {
	case "baselineIDs":
		s.BaselineIDs = nil
	case "boundary":
		s.Boundary = nil
	case "center":
		s.Center = nil
	case "layer":
		s.Layer = 0
	case "surfaceID":
		s.SurfaceID = 0
	case "ordinal":
		s.Ordinal = 0
	case "sclIDs":
		s.SclIDs = nil
	case "mappedSegIDs":
		s.MappedSegIDs = nil
	case "stringpos":
		s.StringPos = nil
	case "readonly":
		s.Readonly = false
	}
}

// SyllableCluster is a transcription unit a segment can be linked to.
type SyllableCluster struct {
	ID       int    `json:"id"`
	SegID    int    `json:"segID,omitempty"`
	Scratch  string `json:"scratch,omitempty"`
	Readonly bool   `json:"readonly,omitempty"`
}

// GID returns the global id.
func (s SyllableCluster) GID() string { return FormatGID(TypeSyllable, s.ID) }

// ScratchMap decodes the free-form scratch JSON, returning an empty map on
// missing or malformed content.
func (s SyllableCluster) ScratchMap() map[string]any {
	m := map[string]any{}
	if s.Scratch != "" {
		_ = json.Unmarshal([]byte(s.Scratch), &m)
	}
	return m
}

func (s *SyllableCluster) clearField(name string) {
	switch name {
	case "segID":
		s.SegID = 0
	case "scratch":
		s.Scratch = ""
	case "readonly":
		s.Readonly = false
	}
}

// Baseline is an imaged surface that owns segments.
type Baseline struct {
	ID        int    `json:"id"`
	URL       string `json:"url,omitempty"`
	SegIDs    []int  `json:"segIDs,omitempty"`
	SurfaceID int    `json:"surfaceID,omitempty"`
}

// GID returns the global id.
func (b Baseline) GID() string { return FormatGID(TypeBaseline, b.ID) }

func (b Baseline) clone() *Baseline {
	c := b
	c.SegIDs = append([]int(nil), b.SegIDs...)
	return &c
}

func (b *Baseline) clearField(name string) {
	switch name {
	case "url":
		b.URL = ""
	case "segIDs":
		b.SegIDs = nil
	case "surfaceID":
		b.SurfaceID = 0
	}
}
