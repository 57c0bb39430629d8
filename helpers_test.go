package sprites

import (
	"context"
	"io/fs"
	"math"
	"sync"
)

// newTestTexture returns a texture with dimensions but no GPU image, which is
// all the sprite logic looks at.
func newTestTexture(w, h int) *Texture {
	return &Texture{width: w, height: h}
}

// recordingRenderer keeps every quad it is asked to draw.
type recordingRenderer struct {
	textures []*Texture
	quads    []Quad
}

func (r *recordingRenderer) DrawQuad(tex *Texture, q Quad) {
	r.textures = append(r.textures, tex)
	r.quads = append(r.quads, q)
}

// fakeLoader serves textures of fixed sizes by path.
type fakeLoader struct {
	mu    sync.Mutex
	sizes map[string][2]int
	err   error
	calls map[string]int
}

func newFakeLoader(sizes map[string][2]int) *fakeLoader {
	return &fakeLoader{sizes: sizes, calls: make(map[string]int)}
}

func (l *fakeLoader) Load(ctx context.Context, path string) (*Texture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[path]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.err != nil {
		return nil, l.err
	}
	size, ok := l.sizes[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return newTestTexture(size[0], size[1]), nil
}

func (l *fakeLoader) callCount(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[path]
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
