package sprites

import (
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/colornames"
)

// Opaque is the tint every sprite draws with.
var Opaque color.Color = colornames.White

// Quad is a single textured quad submission.
type Quad struct {
	Position Vec2
	Size     Vec2
	Rotation float64 // degrees, about the quad centre
	Source   *Rect   // nil draws the whole texture
	Tint     color.Color
}

// Renderer submits textured quads.
type Renderer interface {
	DrawQuad(tex *Texture, q Quad)
}

// ScreenRenderer draws onto an Ebitengine image, usually the screen passed to
// Game.Draw.
type ScreenRenderer struct {
	Target *ebiten.Image
}

// DrawQuad implements Renderer.
func (r ScreenRenderer) DrawQuad(tex *Texture, q Quad) {
	if r.Target == nil || tex == nil || tex.Image() == nil {
		return
	}
	src := tex.Image()
	if q.Source != nil {
		src = src.SubImage(q.Source.Image()).(*ebiten.Image)
	}
	r.Target.DrawImage(src, quadOptions(tex, q))
}

// quadOptions maps q onto draw options for a source image of the quad's
// source size.
func quadOptions(tex *Texture, q Quad) *ebiten.DrawImageOptions {
	sw, sh := tex.Size().X, tex.Size().Y
	if q.Source != nil {
		sw, sh = q.Source.W, q.Source.H
	}

	op := &ebiten.DrawImageOptions{}
	op.Filter = tex.Filter()
	if sw > 0 && sh > 0 {
		op.GeoM.Scale(q.Size.X/sw, q.Size.Y/sh)
	}
	if q.Rotation != 0 {
		op.GeoM.Translate(-q.Size.X/2, -q.Size.Y/2)
		op.GeoM.Rotate(q.Rotation * math.Pi / 180)
		op.GeoM.Translate(q.Size.X/2, q.Size.Y/2)
	}
	op.GeoM.Translate(q.Position.X, q.Position.Y)

	tint := q.Tint
	if tint == nil {
		tint = Opaque
	}
	op.ColorScale.ScaleWithColor(tint)
	return op
}
