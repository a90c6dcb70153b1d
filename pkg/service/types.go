package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/read-segments/pkg/entity"
)

// ID decodes an id sent either as a JSON number or as a numeric string.
type ID int

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("service: id %s is not numeric", data)
	}
	*id = ID(n)
	return nil
}

// Error is an application-level failure reported by a service endpoint.
type Error struct {
	Endpoint string
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("service %s: request failed", e.Endpoint)
	}
	return fmt.Sprintf("service %s: %s", e.Endpoint, strings.Join(e.Messages, "; "))
}

// SegmentRecord is one row of a segment save. ID is either a numeric id or
// a temporary "newN" label for rows not yet persisted.
type SegmentRecord struct {
	ID            string `json:"seg_id"`
	BaselineIDs   string `json:"seg_baseline_ids,omitempty"`
	ImagePos      string `json:"seg_image_pos,omitempty"`
	Layer         int    `json:"seg_layer,omitempty"`
	VisibilityIDs string `json:"seg_visibility_ids,omitempty"`
	MappedSegIDs  string `json:"seg_mapped_seg_ids,omitempty"`
}

// SyllableRecord is one row of a syllable cluster save.
type SyllableRecord struct {
	ID        string `json:"scl_id"`
	SegmentID string `json:"scl_segment_id,omitempty"`
	Scratch   string `json:"scl_scratch,omitempty"`
}

// SaveRequest groups rows by entity type.
type SaveRequest struct {
	Seg []SegmentRecord  `json:"seg,omitempty"`
	Scl []SyllableRecord `json:"scl,omitempty"`
}

// TableResult is the per-table part of a save response.
type TableResult struct {
	Success   bool                `json:"success"`
	Columns   []string            `json:"columns"`
	Records   [][]json.RawMessage `json:"records"`
	TempIDMap map[string]ID       `json:"tempIDMap"`
	Errors    []string            `json:"errors"`
}

// Column returns the index of name in Columns, or -1.
func (t *TableResult) Column(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns the raw cell of row for column name.
func (t *TableResult) Value(row int, name string) (json.RawMessage, bool) {
	col := t.Column(name)
	if col < 0 || row < 0 || row >= len(t.Records) || col >= len(t.Records[row]) {
		return nil, false
	}
	return t.Records[row][col], true
}

// Int decodes the cell of row for column name as an id.
func (t *TableResult) Int(row int, name string) (int, bool) {
	raw, ok := t.Value(row, name)
	if !ok {
		return 0, false
	}
	var id ID
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return int(id), true
}

// String decodes the cell of row for column name as a string.
func (t *TableResult) String(row int, name string) (string, bool) {
	raw, ok := t.Value(row, name)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.Trim(string(raw), `"`), true
	}
	return s, true
}

// TempLabel returns the temporary label that was assigned realID, if any.
func (t *TableResult) TempLabel(realID int) (string, bool) {
	if t == nil {
		return "", false
	}
	for tmp, id := range t.TempIDMap {
		if int(id) == realID {
			return tmp, true
		}
	}
	return "", false
}

// Failed reports whether the table carries errors or was not saved.
func (t *TableResult) Failed() bool {
	return t != nil && (!t.Success || len(t.Errors) > 0)
}

// SaveResult is the reply of saveEntityData.
type SaveResult struct {
	Segment         *TableResult  `json:"segment"`
	SyllableCluster *TableResult  `json:"syllablecluster"`
	Entities        *entity.Delta `json:"entities"`
	Error           string        `json:"error"`
}

// CommandResponse is the reply of the command style endpoints.
type CommandResponse struct {
	Success       bool          `json:"success"`
	Entities      *entity.Delta `json:"entities"`
	Errors        []string      `json:"errors"`
	Error         string        `json:"error"`
	EditionHealth string        `json:"editionHealth"`
}

func (r *CommandResponse) messages() []string {
	msgs := append([]string(nil), r.Errors...)
	if r.Error != "" {
		msgs = append(msgs, r.Error)
	}
	return msgs
}

// LinkOrderedRequest asks the service to link numbered segments of the
// baselines to the syllables of an edition in reading order.
type LinkOrderedRequest struct {
	EditionID   int
	BaselineIDs []int
	SclIDs      []int
	SegIDs      []int
}

// PGIntArray renders ids as a Postgres integer array literal such as {1,2}.
func PGIntArray(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ParsePGIntArray reads a Postgres integer array literal such as {1,2}.
// Non-numeric members are skipped.
func ParsePGIntArray(s string) []int {
	s = strings.Trim(strings.TrimSpace(s), "{}")
	if s == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}
