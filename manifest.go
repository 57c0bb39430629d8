package sprites

import (
	"context"
	"fmt"
	"io/fs"
	"math"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// maxParallelLoads bounds concurrent texture loads during Build.
const maxParallelLoads = 4

// Manifest lists the sprites a scene needs.
//
// Example:
//
//	sprites:
//	  - name: logo
//	    path: logo.png
//	    position: {x: 16, y: 16}
//	    scale: 2
//	  - name: bat
//	    path: bat.png
//	    animated: true
//	    frame_size: {x: 16, y: 16}
//	    frame_count: 4
//	    frame_speed: 8
type Manifest struct {
	Sprites []ManifestEntry `yaml:"sprites"`
}

// ManifestEntry describes one sprite.
type ManifestEntry struct {
	Name     string  `yaml:"name"`
	Path     string  `yaml:"path"`
	Position Vec2    `yaml:"position"`
	Scale    float64 `yaml:"scale"`

	Animated   bool    `yaml:"animated"`
	Rotation   float64 `yaml:"rotation"`
	FrameSize  Vec2    `yaml:"frame_size"`
	FrameCount int     `yaml:"frame_count"`
	FrameSpeed float64 `yaml:"frame_speed"`
}

// UnmarshalYAML accepts both {x: 1, y: 2} and [1, 2].
func (v *Vec2) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var xy []float64
		if err := node.Decode(&xy); err != nil {
			return err
		}
		if len(xy) != 2 {
			return fmt.Errorf("line %d: expected [x, y], got %d values", node.Line, len(xy))
		}
		v.X, v.Y = xy[0], xy[1]
		return nil
	}
	var m struct {
		X float64 `yaml:"x"`
		Y float64 `yaml:"y"`
	}
	if err := node.Decode(&m); err != nil {
		return err
	}
	v.X, v.Y = m.X, m.Y
	return nil
}

// LoadManifest reads and validates a YAML manifest from fsys.
func LoadManifest(fsys fs.FS, name string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, cleanAssetPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read sprite manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML. A scale of 0 means 1.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse sprite manifest: %w", err)
	}
	for i := range m.Sprites {
		if m.Sprites[i].Scale == 0 {
			m.Sprites[i].Scale = 1
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the fields that can be checked before textures are loaded.
// Frame fields left at zero are allowed; they must then come from the
// texture's strip information.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Sprites))
	for i, e := range m.Sprites {
		field := func(f string) string {
			return fmt.Sprintf("sprites[%d].%s", i, f)
		}
		if e.Name == "" {
			return configErrorf(field("name"), "required")
		}
		if seen[e.Name] {
			return configErrorf(field("name"), "duplicate %q", e.Name)
		}
		seen[e.Name] = true
		if e.Path == "" {
			return configErrorf(field("path"), "required")
		}
		if !(e.Scale > 0) || math.IsInf(e.Scale, 0) {
			return configErrorf(field("scale"), "must be a positive finite number, got %v", e.Scale)
		}
		if !e.Animated {
			continue
		}
		if e.FrameCount < 0 {
			return configErrorf(field("frame_count"), "must not be negative, got %d", e.FrameCount)
		}
		if e.FrameSpeed < 0 || math.IsInf(e.FrameSpeed, 0) || math.IsNaN(e.FrameSpeed) {
			return configErrorf(field("frame_speed"), "must be a positive finite number, got %v", e.FrameSpeed)
		}
		if e.FrameSize.X < 0 || e.FrameSize.Y < 0 {
			return configErrorf(field("frame_size"), "must not be negative")
		}
	}
	return nil
}

func (e ManifestEntry) animatedOptions() AnimatedSpriteOptions {
	return AnimatedSpriteOptions{
		Position:   e.Position,
		Scale:      e.Scale,
		Rotation:   e.Rotation,
		FrameSize:  e.FrameSize,
		FrameCount: e.FrameCount,
		FrameSpeed: e.FrameSpeed,
	}
}

// Build loads every entry through loader, a few at a time. Either every
// sprite is built or an error is returned; no partial Bundle escapes.
func (m *Manifest) Build(ctx context.Context, loader Loader) (*Bundle, error) {
	type built struct {
		static   *Sprite
		animated *AnimatedSprite
	}
	results := make([]built, len(m.Sprites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, e := range m.Sprites {
		g.Go(func() error {
			tex, err := loadTexture(gctx, loader, cleanAssetPath(e.Path))
			if err != nil {
				return err
			}
			if e.Animated {
				a, err := NewAnimatedSpriteFromTexture(tex, e.animatedOptions())
				if err != nil {
					return fmt.Errorf("sprite %q: %w", e.Name, err)
				}
				results[i].animated = a
				return nil
			}
			s, err := NewSpriteFromTexture(tex, e.Position, e.Scale)
			if err != nil {
				return fmt.Errorf("sprite %q: %w", e.Name, err)
			}
			results[i].static = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := newBundle()
	for i, e := range m.Sprites {
		b.add(e, results[i].static, results[i].animated)
	}
	return b, nil
}
