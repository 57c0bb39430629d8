package sprites

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"
)

// encodeTestPNG returns a w x h PNG filled with c.
func encodeTestPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeImage_PNG(t *testing.T) {
	img, strip, err := DecodeImage("hero.png", encodeTestPNG(t, 10, 6, color.RGBA{B: 255, A: 255}))
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if strip != nil {
		t.Error("plain images carry no strip info")
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 6 {
		t.Errorf("bounds = %v, want 10x6", img.Bounds())
	}
}

func TestDecodeImage_InvalidFormat(t *testing.T) {
	if _, _, err := DecodeImage("hero.png", []byte("not an image")); err == nil {
		t.Error("expected error for garbage data")
	}
	if _, _, err := DecodeImage("hero.aseprite", []byte("not an image")); err == nil {
		t.Error("expected error for garbage aseprite data")
	}
}

func TestFileLoader_Load(t *testing.T) {
	loader := FileLoader{FS: fstest.MapFS{
		"images/hero.png": {Data: encodeTestPNG(t, 8, 4, color.RGBA{R: 255, A: 255})},
	}}

	tex, err := loader.Load(context.Background(), "./images/hero.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tex.Width() != 8 || tex.Height() != 4 || tex.Image() == nil {
		t.Errorf("texture = %dx%d image=%v", tex.Width(), tex.Height(), tex.Image() != nil)
	}
}

func TestFileLoader_Errors(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.png": {Data: []byte("garbage")},
		"hero.png":   {Data: encodeTestPNG(t, 2, 2, color.White)},
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		loader FileLoader
		ctx    context.Context
		path   string
		is     error
	}{
		{"missing", FileLoader{FS: fsys}, context.Background(), "nope.png", fs.ErrNotExist},
		{"undecodable", FileLoader{FS: fsys}, context.Background(), "broken.png", nil},
		{"canceled", FileLoader{FS: fsys}, canceled, "hero.png", context.Canceled},
		{"no file system", FileLoader{}, context.Background(), "hero.png", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := tt.loader.Load(tt.ctx, tt.path)
			if tex != nil {
				t.Error("expected nil texture")
			}
			var loadErr *ResourceLoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("error = %v, want *ResourceLoadError", err)
			}
			if loadErr.Path != tt.path {
				t.Errorf("path = %q, want %q", loadErr.Path, tt.path)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want it to wrap %v", err, tt.is)
			}
		})
	}
}

func TestIsTextureFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.png":       true,
		"b.PNG":       true,
		"c.webp":      true,
		"d.bmp":       true,
		"e.aseprite":  true,
		"f.ase":       true,
		"sprites.yml": false,
		"notes.txt":   false,
		"noext":       false,
	} {
		if got := IsTextureFile(name); got != want {
			t.Errorf("IsTextureFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCleanAssetPath(t *testing.T) {
	for in, want := range map[string]string{
		"hero.png":           "hero.png",
		"./hero.png":         "hero.png",
		"/images/hero.png":   "images/hero.png",
		"images//hero.png":   "images/hero.png",
		"images/../hero.png": "hero.png",
	} {
		if got := cleanAssetPath(in); got != want {
			t.Errorf("cleanAssetPath(%q) = %q, want %q", in, got, want)
		}
	}
}
