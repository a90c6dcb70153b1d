package crop

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/menta2k/read-segments/pkg/filters"
	"github.com/menta2k/read-segments/pkg/geometry"
)

// Handler serves crops of baseline images:
//
//	GET ?url=<image>&x=&y=&w=&h=[&cmd=S,R][&thumb=1]
//	GET ?url=<image>&polygons=[[[x,y],...],...][&cmd=...][&thumb=1]
//
// Without a box or polygons the whole image is served.
type Handler struct {
	Loader     *Loader
	Format     Format
	Encode     EncodeOptions
	ThumbWidth int
	Logger     *slog.Logger
}

type badRequest struct{ error }

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out, err := h.render(r)
	if err != nil {
		status := http.StatusBadGateway
		var br badRequest
		if errors.As(err, &br) {
			status = http.StatusBadRequest
		}
		h.logger().Warn("crop failed", "query", r.URL.RawQuery, "status", status, "error", err)
		http.Error(w, err.Error(), status)
		return
	}

	format := h.Format
	if format == "" {
		format = FormatJPEG
	}
	var buf bytes.Buffer
	if err := Encode(&buf, out, format, h.Encode); err != nil {
		h.logger().Error("encode failed", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if r.Method == http.MethodGet {
		w.Write(buf.Bytes())
	}
}

func (h *Handler) render(r *http.Request) (image.Image, error) {
	q := r.URL.Query()
	src := q.Get("url")
	if src == "" {
		return nil, badRequest{errors.New("missing url")}
	}
	if h.Loader == nil {
		return nil, errors.New("crop: no image loader")
	}

	var polys []geometry.Polygon
	var box image.Rectangle
	hasBox := false
	if p := q.Get("polygons"); p != "" {
		if err := json.Unmarshal([]byte(p), &polys); err != nil {
			return nil, badRequest{fmt.Errorf("bad polygons: %v", err)}
		}
	} else if q.Has("x") || q.Has("w") {
		var vals [4]int
		for i, key := range []string{"x", "y", "w", "h"} {
			v, err := strconv.Atoi(q.Get(key))
			if err != nil {
				return nil, badRequest{fmt.Errorf("bad %s: %q", key, q.Get(key))}
			}
			vals[i] = v
		}
		bb := geometry.NewBoundingBoxFromRect(vals[0], vals[1], vals[2], vals[3])
		if !bb.Valid() {
			return nil, badRequest{errors.New("invalid box")}
		}
		box, hasBox = bb.Rect(), true
	}

	img, err := h.Loader.Load(r.Context(), src)
	if err != nil {
		return nil, err
	}

	var out image.Image = img
	switch {
	case len(polys) > 0:
		if out, err = Polygons(img, polys); err != nil {
			return nil, badRequest{err}
		}
	case hasBox:
		if out, err = Box(img, box); err != nil {
			return nil, badRequest{err}
		}
	}
	if cmd := q.Get("cmd"); cmd != "" {
		if out, err = filters.Apply(out, cmd); err != nil {
			return nil, badRequest{err}
		}
	}
	if q.Get("thumb") != "" {
		out = Thumbnail(out, h.ThumbWidth)
	}
	return out, nil
}
