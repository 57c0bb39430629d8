package sprites

import (
	"context"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// AnimatedSpriteOptions configures an AnimatedSprite. Zero frame fields are
// filled from the texture's StripInfo when it has one.
type AnimatedSpriteOptions struct {
	Position   Vec2
	Scale      float64
	Rotation   float64 // degrees
	FrameSize  Vec2
	FrameCount int
	FrameSpeed float64 // frames per second
}

// AnimatedSprite plays a horizontal strip of frames back and forth: 0, 1, …,
// n-1, n-2, …, 0, 1, … It never jumps from the last frame back to the first.
type AnimatedSprite struct {
	texture *Texture

	Position   Vec2
	Scale      float64
	Rotation   float64
	frameSize  Vec2
	frameCount int
	frameSpeed float64

	currentFrame int
	frameTimer   float64
	reversed     bool
}

// NewAnimatedSprite loads the atlas at path and returns a sprite positioned on
// frame 0, playing forward.
func NewAnimatedSprite(ctx context.Context, loader Loader, path string, opts AnimatedSpriteOptions) (*AnimatedSprite, error) {
	if err := validateScale(opts.Scale); err != nil {
		return nil, err
	}
	tex, err := loadTexture(ctx, loader, path)
	if err != nil {
		return nil, err
	}
	return NewAnimatedSpriteFromTexture(tex, opts)
}

// NewAnimatedSpriteFromTexture builds an animated sprite around an already
// loaded atlas.
func NewAnimatedSpriteFromTexture(tex *Texture, opts AnimatedSpriteOptions) (*AnimatedSprite, error) {
	if tex == nil {
		return nil, configErrorf("texture", "nil")
	}
	opts = opts.withStripDefaults(tex.Strip)
	if err := opts.validate(tex); err != nil {
		return nil, err
	}
	tex.SetFilter(ebiten.FilterNearest)
	return &AnimatedSprite{
		texture:    tex,
		Position:   opts.Position,
		Scale:      opts.Scale,
		Rotation:   opts.Rotation,
		frameSize:  opts.FrameSize,
		frameCount: opts.FrameCount,
		frameSpeed: opts.FrameSpeed,
	}, nil
}

func (o AnimatedSpriteOptions) withStripDefaults(strip *StripInfo) AnimatedSpriteOptions {
	if strip == nil {
		return o
	}
	if o.FrameSize == (Vec2{}) {
		o.FrameSize = Vec2{X: float64(strip.FrameWidth), Y: float64(strip.FrameHeight)}
	}
	if o.FrameCount == 0 {
		o.FrameCount = strip.FrameCount
	}
	if o.FrameSpeed == 0 {
		o.FrameSpeed = strip.FrameSpeed()
	}
	return o
}

func (o AnimatedSpriteOptions) validate(tex *Texture) error {
	if err := validateScale(o.Scale); err != nil {
		return err
	}
	if o.FrameCount < 1 {
		return configErrorf("frame_count", "must be at least 1, got %d", o.FrameCount)
	}
	if !(o.FrameSpeed > 0) || math.IsInf(o.FrameSpeed, 0) {
		return configErrorf("frame_speed", "must be a positive finite number, got %v", o.FrameSpeed)
	}
	if !(o.FrameSize.X > 0) || !(o.FrameSize.Y > 0) {
		return configErrorf("frame_size", "must be positive, got %vx%v", o.FrameSize.X, o.FrameSize.Y)
	}
	if o.FrameSize != o.FrameSize.Round() {
		return configErrorf("frame_size", "must be whole pixels, got %vx%v", o.FrameSize.X, o.FrameSize.Y)
	}
	if need := o.FrameSize.X * float64(o.FrameCount); float64(tex.Width()) < need {
		return configErrorf("frame_count", "%d frames of width %v need %v pixels, atlas is %d wide",
			o.FrameCount, o.FrameSize.X, need, tex.Width())
	}
	if float64(tex.Height()) < o.FrameSize.Y {
		return configErrorf("frame_size", "frame height %v exceeds atlas height %d", o.FrameSize.Y, tex.Height())
	}
	return nil
}

// Update advances the frame timer by dt seconds. Once a full frame period has
// accumulated the sprite steps exactly one frame and the timer restarts at
// zero; leftover time is dropped, so a long stall never skips frames.
// Negative or NaN dt is ignored.
func (a *AnimatedSprite) Update(dt float64) {
	if !(dt >= 0) {
		return
	}
	a.frameTimer += dt
	if a.frameTimer < 1/a.frameSpeed {
		return
	}
	a.frameTimer = 0
	a.step()
}

// step moves one frame in the current direction. Reaching either end of the
// strip flips the direction, so each end frame is shown for one step only.
func (a *AnimatedSprite) step() {
	if !a.reversed {
		a.currentFrame++
		if a.currentFrame >= a.frameCount-1 {
			a.currentFrame = a.frameCount - 1
			a.reversed = true
		}
		return
	}

	if a.currentFrame > 0 {
		a.currentFrame--
	}
	if a.currentFrame == 0 {
		a.reversed = false
	}
}

// Reset returns to frame 0, playing forward, with an empty timer.
func (a *AnimatedSprite) Reset() {
	a.currentFrame = 0
	a.frameTimer = 0
	a.reversed = false
}

// SourceRect is the atlas region of the current frame.
func (a *AnimatedSprite) SourceRect() Rect {
	return Rect{
		X: float64(a.currentFrame) * a.frameSize.X,
		Y: 0,
		W: a.frameSize.X,
		H: a.frameSize.Y,
	}
}

// Draw submits the current frame at Position rounded to whole pixels.
func (a *AnimatedSprite) Draw(r Renderer) {
	src := a.SourceRect()
	r.DrawQuad(a.texture, Quad{
		Position: a.Position.Round(),
		Size:     a.frameSize.Scale(a.Scale),
		Rotation: a.Rotation,
		Source:   &src,
		Tint:     Opaque,
	})
}

// SetPosition moves the sprite to p.
func (a *AnimatedSprite) SetPosition(p Vec2) {
	a.Position = p
}

// MoveBy offsets the sprite by d.
func (a *AnimatedSprite) MoveBy(d Vec2) {
	a.Position = a.Position.Add(d)
}

// SetTexture swaps the atlas while keeping playback state. The new atlas must
// still hold every frame.
func (a *AnimatedSprite) SetTexture(tex *Texture) error {
	if tex == nil {
		return configErrorf("texture", "nil")
	}
	opts := AnimatedSpriteOptions{
		Scale:      a.Scale,
		FrameSize:  a.frameSize,
		FrameCount: a.frameCount,
		FrameSpeed: a.frameSpeed,
	}
	if err := opts.validate(tex); err != nil {
		return err
	}
	tex.SetFilter(ebiten.FilterNearest)
	a.texture = tex
	return nil
}

// Texture returns the strip atlas currently drawn.
func (a *AnimatedSprite) Texture() *Texture { return a.texture }

// FrameSize returns the size of one frame in atlas pixels.
func (a *AnimatedSprite) FrameSize() Vec2 { return a.frameSize }

// FrameCount returns the number of frames in the strip.
func (a *AnimatedSprite) FrameCount() int { return a.frameCount }

// FrameSpeed returns the playback rate in frames per second.
func (a *AnimatedSprite) FrameSpeed() float64 { return a.frameSpeed }

// CurrentFrame returns the index of the frame Draw shows.
func (a *AnimatedSprite) CurrentFrame() int { return a.currentFrame }

// FrameTimer returns the seconds accumulated toward the next step.
func (a *AnimatedSprite) FrameTimer() float64 { return a.frameTimer }

// Reversed reports whether playback is heading toward frame 0.
func (a *AnimatedSprite) Reversed() bool { return a.reversed }
