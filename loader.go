package sprites

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Loader fetches textures by path.
type Loader interface {
	Load(ctx context.Context, path string) (*Texture, error)
}

// FileLoader decodes textures from a file system. PNG, JPEG, GIF, BMP and
// WebP are decoded as single images; .ase and .aseprite files are flattened
// into a horizontal frame strip.
type FileLoader struct {
	FS fs.FS
}

// NewFileLoader returns a FileLoader rooted at dir.
func NewFileLoader(dir string) FileLoader {
	return FileLoader{FS: os.DirFS(dir)}
}

type decoded struct {
	img   image.Image
	strip *StripInfo
	err   error
}

// Load reads and decodes path. Decoding runs on its own goroutine; Load
// returns early with ctx's error if ctx is done first.
func (l FileLoader) Load(ctx context.Context, name string) (*Texture, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ResourceLoadError{Path: name, Err: err}
	}
	if l.FS == nil {
		return nil, &ResourceLoadError{Path: name, Err: errors.New("file loader has no file system")}
	}

	done := make(chan decoded, 1)
	go func() {
		img, strip, err := l.decodeFile(name)
		done <- decoded{img: img, strip: strip, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &ResourceLoadError{Path: name, Err: ctx.Err()}
	case d := <-done:
		if d.err != nil {
			return nil, &ResourceLoadError{Path: name, Err: d.err}
		}
		tex := NewTextureFromImage(d.img)
		tex.Strip = d.strip
		return tex, nil
	}
}

func (l FileLoader) decodeFile(name string) (image.Image, *StripInfo, error) {
	data, err := fs.ReadFile(l.FS, cleanAssetPath(name))
	if err != nil {
		return nil, nil, err
	}
	return DecodeImage(name, data)
}

// DecodeImage decodes data according to the extension of name.
func DecodeImage(name string, data []byte) (image.Image, *StripInfo, error) {
	if isAsepriteFile(name) {
		ase, err := ParseAseprite(data)
		if err != nil {
			return nil, nil, err
		}
		return ase.Strip(), ase.StripInfo(), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil, nil
}

func isAsepriteFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".ase" || ext == ".aseprite"
}

// IsTextureFile reports whether name has an extension FileLoader can decode.
func IsTextureFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".ase", ".aseprite":
		return true
	}
	return false
}

func cleanAssetPath(p string) string {
	p = filepath.ToSlash(p)
	p = path.Clean(p)
	return strings.TrimPrefix(p, "/")
}

// loadTexture runs loader and makes sure every failure surfaces as a
// *ResourceLoadError.
func loadTexture(ctx context.Context, loader Loader, name string) (*Texture, error) {
	if loader == nil {
		return nil, &ResourceLoadError{Path: name, Err: errors.New("nil loader")}
	}
	tex, err := loader.Load(ctx, name)
	if err != nil {
		var rle *ResourceLoadError
		if errors.As(err, &rle) {
			return nil, err
		}
		return nil, &ResourceLoadError{Path: name, Err: err}
	}
	if tex == nil {
		return nil, &ResourceLoadError{Path: name, Err: errors.New("loader returned no texture")}
	}
	return tex, nil
}
