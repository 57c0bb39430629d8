package sprites

import (
	"context"
	"errors"
)

// Bundle holds the sprites built from a Manifest, in manifest order.
type Bundle struct {
	entries  []bundleEntry
	byName   map[string]int
	animated []*AnimatedSprite
}

type bundleEntry struct {
	name     string
	path     string
	static   *Sprite
	animated *AnimatedSprite
}

func newBundle() *Bundle {
	return &Bundle{byName: make(map[string]int)}
}

func (b *Bundle) add(e ManifestEntry, s *Sprite, a *AnimatedSprite) {
	b.byName[e.Name] = len(b.entries)
	b.entries = append(b.entries, bundleEntry{
		name:     e.Name,
		path:     cleanAssetPath(e.Path),
		static:   s,
		animated: a,
	})
	if a != nil {
		b.animated = append(b.animated, a)
	}
}

// Len returns the number of sprites.
func (b *Bundle) Len() int {
	return len(b.entries)
}

// Sprite returns the static sprite called name, or nil.
func (b *Bundle) Sprite(name string) *Sprite {
	i, ok := b.byName[name]
	if !ok {
		return nil
	}
	return b.entries[i].static
}

// Animated returns the animated sprite called name, or nil.
func (b *Bundle) Animated(name string) *AnimatedSprite {
	i, ok := b.byName[name]
	if !ok {
		return nil
	}
	return b.entries[i].animated
}

// Update advances every animated sprite by dt seconds.
func (b *Bundle) Update(dt float64) {
	for _, a := range b.animated {
		a.Update(dt)
	}
}

// Draw draws every sprite in manifest order, so later entries end up on top.
func (b *Bundle) Draw(r Renderer) {
	for _, e := range b.entries {
		if e.animated != nil {
			e.animated.Draw(r)
			continue
		}
		e.static.Draw(r)
	}
}

// Uses reports whether any sprite draws the texture at path.
func (b *Bundle) Uses(path string) bool {
	path = cleanAssetPath(path)
	for _, e := range b.entries {
		if e.path == path {
			return true
		}
	}
	return false
}

// Reload loads path again and hands the new texture to every sprite that uses
// it. Each sprite gets its own texture. It returns the number of sprites
// updated. A sprite whose new atlas no longer fits keeps its old texture and
// the error is reported.
func (b *Bundle) Reload(ctx context.Context, loader Loader, path string) (int, error) {
	path = cleanAssetPath(path)
	var errs []error
	n := 0
	for _, e := range b.entries {
		if e.path != path {
			continue
		}
		tex, err := loadTexture(ctx, loader, e.path)
		if err != nil {
			return n, errors.Join(append(errs, err)...)
		}
		if e.animated != nil {
			err = e.animated.SetTexture(tex)
		} else {
			err = e.static.SetTexture(tex)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
