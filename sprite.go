package sprites

import (
	"context"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// Sprite draws a whole texture at a position with a uniform scale.
type Sprite struct {
	texture  *Texture
	Position Vec2
	Scale    float64
}

// NewSprite loads the texture at path and returns a sprite that draws it with
// nearest-neighbour sampling.
func NewSprite(ctx context.Context, loader Loader, path string, position Vec2, scale float64) (*Sprite, error) {
	if err := validateScale(scale); err != nil {
		return nil, err
	}
	tex, err := loadTexture(ctx, loader, path)
	if err != nil {
		return nil, err
	}
	return NewSpriteFromTexture(tex, position, scale)
}

// NewSpriteFromTexture builds a sprite around an already loaded texture. The
// texture is switched to nearest-neighbour sampling.
func NewSpriteFromTexture(tex *Texture, position Vec2, scale float64) (*Sprite, error) {
	if tex == nil {
		return nil, configErrorf("texture", "nil")
	}
	if err := validateScale(scale); err != nil {
		return nil, err
	}
	tex.SetFilter(ebiten.FilterNearest)
	return &Sprite{texture: tex, Position: position, Scale: scale}, nil
}

// Texture returns the texture the sprite draws.
func (s *Sprite) Texture() *Texture {
	return s.texture
}

// SetTexture replaces the texture, e.g. after the file changed on disk.
func (s *Sprite) SetTexture(tex *Texture) error {
	if tex == nil {
		return configErrorf("texture", "nil")
	}
	tex.SetFilter(ebiten.FilterNearest)
	s.texture = tex
	return nil
}

// Draw submits the whole texture at Position, sized Scale times its native
// dimensions.
func (s *Sprite) Draw(r Renderer) {
	r.DrawQuad(s.texture, Quad{
		Position: s.Position,
		Size:     s.texture.Size().Scale(s.Scale),
		Tint:     Opaque,
	})
}

// SetPosition moves the sprite to p.
func (s *Sprite) SetPosition(p Vec2) {
	s.Position = p
}

// MoveBy offsets the sprite by d.
func (s *Sprite) MoveBy(d Vec2) {
	s.Position = s.Position.Add(d)
}

func validateScale(scale float64) error {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return configErrorf("scale", "must be a positive finite number, got %v", scale)
	}
	return nil
}
