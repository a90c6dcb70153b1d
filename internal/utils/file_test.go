package utils

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "dir/c.png", "d.webp"} {
		if !IsImageFile(name) {
			t.Errorf("IsImageFile(%q) = false", name)
		}
	}
	for _, name := range []string{"a.txt", "noext", "x.tiff"} {
		if IsImageFile(name) {
			t.Errorf("IsImageFile(%q) = true", name)
		}
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	got := GenerateOutputFilename("/img/page12.png", "out", "", "_segments", "")
	if got != filepath.Join("out", "page12_segments.png") {
		t.Errorf("got %q", got)
	}
	got = GenerateOutputFilename("page12", "out", "th", "", "")
	if got != filepath.Join("out", "thpage12.jpg") {
		t.Errorf("got %q", got)
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := EnsureDir(sub); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{filepath.Join(dir, "a.png"), filepath.Join(sub, "b.jpg"), filepath.Join(dir, "notes.txt")} {
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.png"), filepath.Join(sub, "b.jpg")}
	if !slices.Equal(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
	if !DirExists(sub) || DirExists(want[0]) || !FileExists(want[0]) || FileExists(sub) {
		t.Error("exists checks disagree")
	}
}
