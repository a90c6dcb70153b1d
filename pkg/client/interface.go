package client

import (
	"context"

	"github.com/menta2k/read-segments/pkg/types"
)

// VisionClient is a vision model backend that can locate text regions.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectRegions(ctx context.Context, model, prompt, imgB64 string) (*types.RegionResult, error)
}
