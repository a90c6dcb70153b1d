package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/read-segments/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInlineComment = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeModelJSON removes code fences, comments, and trailing commas from
// a model reply and keeps only its outermost object or array.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInlineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	open, close := "{", "}"
	if a, o := strings.Index(raw, "["), strings.Index(raw, "{"); a >= 0 && (o < 0 || a < o) {
		open, close = "[", "]"
	}
	if start := strings.Index(raw, open); start >= 0 {
		if end := strings.LastIndex(raw, close); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ParseRegionResult reads {"regions":[...]} or a bare region array from a
// model reply. Replies that are not usable JSON give an empty result with
// a description saying why. Regions without area are dropped.
func ParseRegionResult(raw string) *types.RegionResult {
	raw = SanitizeModelJSON(raw)

	var result types.RegionResult
	switch {
	case strings.HasPrefix(raw, "{"):
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return &types.RegionResult{Description: "Failed to parse model response"}
		}
	case strings.HasPrefix(raw, "["):
		if err := json.Unmarshal([]byte(raw), &result.Regions); err != nil {
			return &types.RegionResult{Description: "Failed to parse model response"}
		}
	default:
		return &types.RegionResult{Description: "Model returned non-JSON response"}
	}

	kept := result.Regions[:0]
	for _, r := range result.Regions {
		if r.Box.W > 0 && r.Box.H > 0 {
			kept = append(kept, r)
		}
	}
	result.Regions = kept
	return &result
}
