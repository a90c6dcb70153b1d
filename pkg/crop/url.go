// Package crop builds crop service URLs for segment boundaries and
// implements the crop service itself: loading baseline images, cutting out
// boxes or polygons, making thumbnails and encoding the result.
package crop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/menta2k/read-segments/pkg/geometry"
)

// CroppedImageURL returns the crop service URL showing boundary of the
// image at imageURL. Boundary may be a geometry.BoundingBox, a
// geometry.Polygon or a []geometry.Polygon. An unusable boundary yields
// imageURL itself.
func CroppedImageURL(servicePath, imageURL string, boundary any) string {
	base := servicePath + "?url=" + imageURL
	switch b := boundary.(type) {
	case geometry.BoundingBox:
		if b.Valid() {
			return base + fmt.Sprintf("&x=%d&y=%d&w=%d&h=%d", b.XOffset(), b.YOffset(), b.Width(), b.Height())
		}
	case *geometry.BoundingBox:
		if b != nil {
			return CroppedImageURL(servicePath, imageURL, *b)
		}
	case geometry.Polygon:
		if b.Valid() {
			return base + "&polygons=[" + b.JSON() + "]"
		}
	case []geometry.Polygon:
		if len(b) > 0 && b[0].Valid() {
			data, err := json.Marshal(b)
			if err == nil {
				return base + "&polygons=" + string(data)
			}
		}
	}
	return imageURL
}

// ThumbName returns the file name of the thumbnail stored beside filename.
func ThumbName(filename string) string {
	if i := strings.LastIndexByte(filename, '/'); i >= 0 {
		return filename[:i+1] + "th" + filename[i+1:]
	}
	return "th" + filename
}
