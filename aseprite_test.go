package sprites

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image/color"
	"strings"
	"testing"
	"time"
)

type testChunk struct {
	typ  WORD
	data []byte
}

// aseBuilder writes minimal Aseprite documents for the tests.
type aseBuilder struct {
	width, height int
	depth         WORD
	flags         DWORD
	speed         WORD
	transparent   BYTE
	frames        [][]testChunk
	durations     []WORD
}

func (b *aseBuilder) frame(duration WORD, chunks ...testChunk) *aseBuilder {
	b.frames = append(b.frames, chunks)
	b.durations = append(b.durations, duration)
	return b
}

func (b *aseBuilder) bytes(t *testing.T) []byte {
	t.Helper()
	var body bytes.Buffer
	for i, chunks := range b.frames {
		var cb bytes.Buffer
		for _, c := range chunks {
			mustWrite(t, &cb, DWORD(len(c.data)+6))
			mustWrite(t, &cb, c.typ)
			cb.Write(c.data)
		}
		mustWrite(t, &body, FrameHeader{
			BytesInFrame:  DWORD(16 + cb.Len()),
			MagicNumber:   MagicNumberFrame,
			OldChunkCount: WORD(len(chunks)),
			FrameDuration: b.durations[i],
		})
		body.Write(cb.Bytes())
	}

	var out bytes.Buffer
	mustWrite(t, &out, Header{
		FileSize:          DWORD(128 + body.Len()),
		MagicNumberHeader: MagicNumber,
		FrameCount:        WORD(len(b.frames)),
		Width:             WORD(b.width),
		Height:            WORD(b.height),
		ColorDepth:        b.depth,
		Flags:             b.flags,
		Speed:             b.speed,
		TransparentIdx:    b.transparent,
	})
	out.Write(body.Bytes())
	return out.Bytes()
}

func mustWrite(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		t.Fatalf("binary.Write: %v", err)
	}
}

func writeString(t *testing.T, buf *bytes.Buffer, s string) {
	mustWrite(t, buf, WORD(len(s)))
	buf.WriteString(s)
}

func layerChunk(t *testing.T, flags, typ, level WORD, opacity BYTE, name string) testChunk {
	var buf bytes.Buffer
	for _, v := range []any{flags, typ, level, WORD(0), WORD(0), WORD(0), opacity, [3]BYTE{}} {
		mustWrite(t, &buf, v)
	}
	writeString(t, &buf, name)
	return testChunk{typ: ChunkLayer, data: buf.Bytes()}
}

func celChunk(t *testing.T, layer WORD, x, y SHORT, celType CelDataType, payload []byte) testChunk {
	var buf bytes.Buffer
	mustWrite(t, &buf, celHeader{
		LayerIndex:   layer,
		XPosition:    x,
		YPosition:    y,
		OpacityLevel: 255,
		CelType:      celType,
	})
	buf.Write(payload)
	return testChunk{typ: ChunkCel, data: buf.Bytes()}
}

func rawCel(t *testing.T, layer WORD, x, y SHORT, w, h WORD, pixels []byte) testChunk {
	var buf bytes.Buffer
	mustWrite(t, &buf, w)
	mustWrite(t, &buf, h)
	buf.Write(pixels)
	return celChunk(t, layer, x, y, RawImageData, buf.Bytes())
}

func compressedCel(t *testing.T, layer WORD, w, h WORD, pixels []byte) testChunk {
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write(pixels); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	mustWrite(t, &buf, w)
	mustWrite(t, &buf, h)
	buf.Write(z.Bytes())
	return celChunk(t, layer, 0, 0, CompressedImageData, buf.Bytes())
}

func linkedCel(t *testing.T, layer, frame WORD) testChunk {
	var buf bytes.Buffer
	mustWrite(t, &buf, frame)
	return celChunk(t, layer, 0, 0, LinkedCelData, buf.Bytes())
}

func tagsChunk(t *testing.T, name string, from, to WORD, dir LoopAnimationDirection) testChunk {
	var buf bytes.Buffer
	mustWrite(t, &buf, WORD(1))
	mustWrite(t, &buf, [8]BYTE{})
	for _, v := range []any{from, to, dir, WORD(0), [6]BYTE{}, [3]BYTE{}, BYTE(0)} {
		mustWrite(t, &buf, v)
	}
	writeString(t, &buf, name)
	return testChunk{typ: ChunkTags, data: buf.Bytes()}
}

func paletteChunk(t *testing.T, colors ...[4]BYTE) testChunk {
	var buf bytes.Buffer
	mustWrite(t, &buf, DWORD(len(colors)))
	mustWrite(t, &buf, DWORD(0))
	mustWrite(t, &buf, DWORD(len(colors)-1))
	mustWrite(t, &buf, [8]BYTE{})
	for _, c := range colors {
		mustWrite(t, &buf, WORD(0))
		mustWrite(t, &buf, c)
	}
	return testChunk{typ: ChunkPalette, data: buf.Bytes()}
}

type oldPacket struct {
	skip   BYTE
	colors [][3]BYTE
}

func oldPaletteChunk(t *testing.T, packets ...oldPacket) testChunk {
	var buf bytes.Buffer
	mustWrite(t, &buf, WORD(len(packets)))
	for _, p := range packets {
		mustWrite(t, &buf, p.skip)
		mustWrite(t, &buf, BYTE(len(p.colors)))
		mustWrite(t, &buf, p.colors)
	}
	return testChunk{typ: ChunkOldPalette, data: buf.Bytes()}
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	blank = color.RGBA{}
)

func TestParseAseprite_RGBAStrip(t *testing.T) {
	b := &aseBuilder{width: 2, height: 1, depth: ColorDepthRGBA, flags: 1, speed: 50}
	b.frame(100,
		layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "body"),
		tagsChunk(t, "idle", 0, 2, PingPong),
		rawCel(t, 0, 0, 0, 2, 1, []byte{255, 0, 0, 255, 0, 0, 255, 255}),
	)
	b.frame(100, compressedCel(t, 0, 2, 1, []byte{0, 255, 0, 255, 0, 0, 0, 0}))
	b.frame(0, linkedCel(t, 0, 0))

	ase, err := ParseAseprite(b.bytes(t))
	if err != nil {
		t.Fatalf("ParseAseprite: %v", err)
	}

	if len(ase.Frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(ase.Frames))
	}
	wantDurations := []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond}
	for i, d := range wantDurations {
		if ase.Durations[i] != d {
			t.Errorf("duration[%d] = %v, want %v", i, ase.Durations[i], d)
		}
	}
	if len(ase.Tags) != 1 || ase.Tags[0].Name != "idle" || ase.Tags[0].Direction != PingPong || ase.Tags[0].To != 2 {
		t.Errorf("tags = %+v", ase.Tags)
	}

	strip := ase.Strip()
	if strip.Bounds().Dx() != 6 || strip.Bounds().Dy() != 1 {
		t.Fatalf("strip size = %v, want 6x1", strip.Bounds())
	}
	want := []color.RGBA{red, blue, green, blank, red, blue}
	for x, c := range want {
		if got := strip.RGBAAt(x, 0); got != c {
			t.Errorf("strip pixel %d = %v, want %v", x, got, c)
		}
	}

	info := ase.StripInfo()
	if info.FrameWidth != 2 || info.FrameHeight != 1 || info.FrameCount != 3 {
		t.Errorf("strip info = %+v", info)
	}
	if fps := info.FrameSpeed(); fps < 11.99 || fps > 12.01 {
		t.Errorf("frame speed = %v, want 12", fps)
	}
}

func TestParseAseprite_HiddenLayers(t *testing.T) {
	b := &aseBuilder{width: 2, height: 1, depth: ColorDepthRGBA}
	b.frame(100,
		layerChunk(t, 0, LayerTypeGroup, 0, 255, "hidden group"),
		layerChunk(t, LayerFlagVisible, LayerTypeNormal, 1, 255, "child"),
		layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "top"),
		rawCel(t, 1, 0, 0, 1, 1, []byte{255, 0, 0, 255}),
		rawCel(t, 2, 1, 0, 1, 1, []byte{0, 0, 255, 255}),
	)

	ase, err := ParseAseprite(b.bytes(t))
	if err != nil {
		t.Fatalf("ParseAseprite: %v", err)
	}
	frame := ase.Frames[0]
	if got := frame.RGBAAt(0, 0); got != blank {
		t.Errorf("pixel under hidden group = %v, want transparent", got)
	}
	if got := frame.RGBAAt(1, 0); got != blue {
		t.Errorf("visible pixel = %v, want blue", got)
	}
}

func TestParseAseprite_Indexed(t *testing.T) {
	b := &aseBuilder{width: 3, height: 1, depth: ColorDepthIndexed, transparent: 0}
	b.frame(100,
		paletteChunk(t, [4]BYTE{0, 0, 0, 255}, [4]BYTE{255, 0, 0, 255}, [4]BYTE{0, 255, 0, 255}),
		layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "layer"),
		rawCel(t, 0, 0, 0, 3, 1, []byte{0, 1, 2}),
	)

	ase, err := ParseAseprite(b.bytes(t))
	if err != nil {
		t.Fatalf("ParseAseprite: %v", err)
	}
	want := []color.RGBA{blank, red, green}
	for x, c := range want {
		if got := ase.Frames[0].RGBAAt(x, 0); got != c {
			t.Errorf("pixel %d = %v, want %v", x, got, c)
		}
	}
}

func TestParseAseprite_OldPalette(t *testing.T) {
	layer := layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "layer")

	t.Run("skip counts", func(t *testing.T) {
		b := &aseBuilder{width: 3, height: 1, depth: ColorDepthIndexed}
		b.frame(100,
			oldPaletteChunk(t,
				oldPacket{skip: 1, colors: [][3]BYTE{{255, 0, 0}}},
				oldPacket{skip: 1, colors: [][3]BYTE{{0, 255, 0}}},
			),
			layer,
			rawCel(t, 0, 0, 0, 3, 1, []byte{1, 3, 2}),
		)
		ase, err := ParseAseprite(b.bytes(t))
		if err != nil {
			t.Fatalf("ParseAseprite: %v", err)
		}
		want := []color.RGBA{red, green, blank}
		for x, c := range want {
			if got := ase.Frames[0].RGBAAt(x, 0); got != c {
				t.Errorf("pixel %d = %v, want %v", x, got, c)
			}
		}
	})

	t.Run("ignored after new palette", func(t *testing.T) {
		b := &aseBuilder{width: 1, height: 1, depth: ColorDepthIndexed}
		b.frame(100,
			paletteChunk(t, [4]BYTE{0, 0, 0, 255}, [4]BYTE{0, 0, 255, 255}),
			oldPaletteChunk(t, oldPacket{skip: 1, colors: [][3]BYTE{{255, 0, 0}}}),
			layer,
			rawCel(t, 0, 0, 0, 1, 1, []byte{1}),
		)
		ase, err := ParseAseprite(b.bytes(t))
		if err != nil {
			t.Fatalf("ParseAseprite: %v", err)
		}
		if got := ase.Frames[0].RGBAAt(0, 0); got != blue {
			t.Errorf("pixel = %v, want blue from the 0x2019 palette", got)
		}
	})

	t.Run("entries past index 255 dropped", func(t *testing.T) {
		b := &aseBuilder{width: 1, height: 1, depth: ColorDepthIndexed}
		b.frame(100,
			oldPaletteChunk(t,
				oldPacket{skip: 255, colors: [][3]BYTE{{255, 0, 0}, {0, 255, 0}}},
				oldPacket{skip: 200, colors: [][3]BYTE{{0, 0, 255}}},
			),
			layer,
			rawCel(t, 0, 0, 0, 1, 1, []byte{255}),
		)
		ase, err := ParseAseprite(b.bytes(t))
		if err != nil {
			t.Fatalf("ParseAseprite: %v", err)
		}
		if got := ase.Frames[0].RGBAAt(0, 0); got != red {
			t.Errorf("pixel = %v, want red", got)
		}
	})
}

func TestParseAseprite_Grayscale(t *testing.T) {
	b := &aseBuilder{width: 2, height: 1, depth: ColorDepthGrayscale}
	b.frame(100,
		layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "layer"),
		rawCel(t, 0, 0, 0, 2, 1, []byte{200, 255, 50, 128}),
	)

	ase, err := ParseAseprite(b.bytes(t))
	if err != nil {
		t.Fatalf("ParseAseprite: %v", err)
	}
	if got, want := ase.Frames[0].RGBAAt(0, 0), (color.RGBA{R: 200, G: 200, B: 200, A: 255}); got != want {
		t.Errorf("opaque pixel = %v, want %v", got, want)
	}
	// Frames are premultiplied, so value 50 at alpha 128 is stored as about 25.
	got := ase.Frames[0].RGBAAt(1, 0)
	if got.A != 128 || got.R != got.G || got.G != got.B || got.R < 24 || got.R > 26 {
		t.Errorf("translucent pixel = %v, want gray 25 at alpha 128", got)
	}
}

func TestParseAseprite_LayerOpacity(t *testing.T) {
	b := &aseBuilder{width: 1, height: 1, depth: ColorDepthRGBA, flags: 1}
	b.frame(100,
		layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 128, "ghost"),
		rawCel(t, 0, 0, 0, 1, 1, []byte{255, 0, 0, 255}),
	)

	ase, err := ParseAseprite(b.bytes(t))
	if err != nil {
		t.Fatalf("ParseAseprite: %v", err)
	}
	got := ase.Frames[0].RGBAAt(0, 0)
	if got.A < 127 || got.A > 129 || got.G != 0 || got.B != 0 {
		t.Errorf("pixel = %v, want half-transparent red", got)
	}
}

func TestParseAseprite_Errors(t *testing.T) {
	valid := (&aseBuilder{width: 1, height: 1, depth: ColorDepthRGBA}).
		frame(100, layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "l")).
		bytes(t)

	badMagic := bytes.Clone(valid)
	badMagic[4] = 0

	badFrameSize := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(badFrameSize[128:], 99)

	var hugePalette bytes.Buffer
	mustWrite(t, &hugePalette, DWORD(0xF0000000))
	mustWrite(t, &hugePalette, DWORD(0))
	mustWrite(t, &hugePalette, DWORD(0))
	mustWrite(t, &hugePalette, [8]BYTE{})
	mustWrite(t, &hugePalette, WORD(0))
	mustWrite(t, &hugePalette, [4]BYTE{255, 0, 0, 255})

	var zeros bytes.Buffer
	zw := zlib.NewWriter(&zeros)
	if _, err := zw.Write(make([]byte, 1<<16)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	var bomb bytes.Buffer
	mustWrite(t, &bomb, WORD(1))
	mustWrite(t, &bomb, WORD(1))
	bomb.Write(zeros.Bytes())

	rgba := func(w, h int) *aseBuilder {
		return &aseBuilder{width: w, height: h, depth: ColorDepthRGBA}
	}
	layer := layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "l")

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "reading header"},
		{"bad magic", badMagic, "invalid magic number"},
		{"truncated", valid[:len(valid)-3], "exceeds remaining"},
		{"frame size mismatch", badFrameSize, "frame size mismatch"},
		{"no frames", (&aseBuilder{width: 1, height: 1, depth: ColorDepthRGBA}).bytes(t), "no frames"},
		{"bad depth", (&aseBuilder{width: 1, height: 1, depth: 24}).frame(0).bytes(t), "unknown color depth"},
		{"huge palette", (&aseBuilder{width: 1, height: 1, depth: ColorDepthIndexed}).
			frame(0, testChunk{typ: ChunkPalette, data: hugePalette.Bytes()}).bytes(t), "palette size"},
		{"wide canvas", rgba(9000, 1).frame(0).bytes(t), "exceeds 8192 pixels per side"},
		{"huge strip", rgba(8192, 8192).frame(0).frame(0).bytes(t), "frames of 8192x8192"},
		{"oversized cel", rgba(1, 1).frame(0, layer, rawCel(t, 0, 0, 0, 9000, 1, nil)).bytes(t), "cel 9000x1"},
		{"oversized zlib output", rgba(1, 1).frame(0, layer, celChunk(t, 0, 0, 0, CompressedImageData, bomb.Bytes())).bytes(t),
			"decompressed data exceeds 4 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAseprite(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestDecodeImage_Aseprite(t *testing.T) {
	data := (&aseBuilder{width: 4, height: 2, depth: ColorDepthRGBA}).
		frame(250, layerChunk(t, LayerFlagVisible, LayerTypeNormal, 0, 255, "l")).
		frame(250).
		bytes(t)

	img, strip, err := DecodeImage("walk.aseprite", data)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 2 {
		t.Errorf("strip bounds = %v, want 8x2", img.Bounds())
	}
	if strip == nil || strip.FrameCount != 2 || strip.FrameSpeed() != 4 {
		t.Errorf("strip info = %+v", strip)
	}
}
