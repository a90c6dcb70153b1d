package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientValidatesURL(t *testing.T) {
	if _, err := NewClient("localhost", nil); err == nil {
		t.Error("expected error without scheme")
	}
	if _, err := NewClient("http://localhost:11434/api/chat", nil); err != nil {
		t.Errorf("NewClient: %v", err)
	}
}

func TestDetectRegions(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		body, _ := json.Marshal(map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": `{"regions":[{"label":"l1","box":{"x":0.1,"y":0.1,"w":0.2,"h":0.1}}]}`},
			"done":    true,
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(append(body, '\n'))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := base64.StdEncoding.EncodeToString([]byte("not really an image"))
	res, err := c.DetectRegions(context.Background(), "minicpm-v4", "find lines", img)
	if err != nil {
		t.Fatalf("DetectRegions: %v", err)
	}
	if gotModel != "minicpm-v4" || len(res.Regions) != 1 || res.Regions[0].Label != "l1" {
		t.Errorf("model %q result %+v", gotModel, res)
	}

	if _, err := c.DetectRegions(context.Background(), "m", "p", "%%%"); err == nil {
		t.Error("expected error for bad base64")
	}
}
