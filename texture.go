package sprites

import (
	"image"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// Texture is a loaded image together with the filter used when sampling it.
type Texture struct {
	image  *ebiten.Image
	width  int
	height int
	filter ebiten.Filter

	// Strip is set when the texture was built from an animation source
	// (an Aseprite file) whose frames were laid out left to right.
	Strip *StripInfo
}

// StripInfo describes a horizontal frame strip.
type StripInfo struct {
	FrameWidth  int
	FrameHeight int
	FrameCount  int
	Durations   []time.Duration
	Tags        []AnimationTag
}

// FrameSpeed converts the average frame duration to frames per second.
// It returns 0 when the strip carries no usable durations.
func (s *StripInfo) FrameSpeed() float64 {
	if s == nil || len(s.Durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.Durations {
		total += d
	}
	if total <= 0 {
		return 0
	}
	avg := total.Seconds() / float64(len(s.Durations))
	return 1 / avg
}

// NewTexture wraps an Ebitengine image. The filter defaults to linear until
// SetFilter is called.
func NewTexture(img *ebiten.Image) *Texture {
	b := img.Bounds()
	return &Texture{
		image:  img,
		width:  b.Dx(),
		height: b.Dy(),
		filter: ebiten.FilterLinear,
	}
}

// NewTextureFromImage uploads a decoded image.
func NewTextureFromImage(img image.Image) *Texture {
	return NewTexture(ebiten.NewImageFromImage(img))
}

// Image returns the underlying Ebitengine image.
func (t *Texture) Image() *ebiten.Image {
	return t.image
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int {
	return t.width
}

// Height returns the texture height in pixels.
func (t *Texture) Height() int {
	return t.height
}

// Size returns the native dimensions as a Vec2.
func (t *Texture) Size() Vec2 {
	return Vec2{X: float64(t.width), Y: float64(t.height)}
}

// Filter returns the sampling filter applied at draw time.
func (t *Texture) Filter() ebiten.Filter {
	return t.filter
}

// SetFilter configures sampling. Pixel art uses ebiten.FilterNearest so
// scaled frames keep hard edges.
func (t *Texture) SetFilter(f ebiten.Filter) {
	t.filter = f
}
