package sprites

import (
	"bytes"
	"cmp"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"slices"
	"time"

	"golang.org/x/image/draw"
)

// Constants
const (
	// Magic number (0xA5E0)
	MagicNumber = 0xA5E0
	// Magic number (0xF1FA)
	MagicNumberFrame = 0xF1FA

	// Color depth (bits per pixel)
	ColorDepthRGBA      WORD = 32
	ColorDepthGrayscale WORD = 16
	ColorDepthIndexed   WORD = 8
)

// Limits on sizes read from the file. Anything larger is rejected before it
// is allocated.
const (
	maxPaletteSize = 256
	maxCanvasSide  = 8192
	maxStripPixels = 64 << 20
)

// Chunk types this reader understands. Everything else is skipped.
const (
	ChunkOldPalette WORD = 0x0004
	ChunkLayer      WORD = 0x2004
	ChunkCel        WORD = 0x2005
	ChunkTags       WORD = 0x2018
	ChunkPalette    WORD = 0x2019
)

// Define the ASE header structure (128 bytes)
type Header struct {
	FileSize          DWORD    // File size (4 bytes)
	MagicNumberHeader WORD     // Magic number (0xA5E0) (2 bytes)
	FrameCount        WORD     // Number of frames (2 bytes)
	Width             WORD     // Width in pixels (2 bytes)
	Height            WORD     // Height in pixels (2 bytes)
	ColorDepth        WORD     // Color depth (bits per pixel) (32 bpp = RGBA, 16 bpp = Grayscale, 8 bpp = Indexed) (2 bytes)
	Flags             DWORD    // Flags: 1 = Layer opacity has valid value (4 bytes)
	Speed             WORD     // Speed (milliseconds between frames, deprecated in favour of the frame header duration) (2 bytes)
	Reserved1         DWORD    // Reserved (set to 0)  (4 bytes)
	Reserved2         DWORD    // Reserved (set to 0) (4 bytes)
	TransparentIdx    BYTE     // Palette entry (index) which represents transparent color in all non-background layers (only for Indexed sprites) (1 byte)
	IgnoreBytes       [3]BYTE  // Ignore these bytes (3 bytes)
	NumColors         WORD     // Number of colors (0 means 256 for old sprites format) (2 bytes)
	PixelWidth        BYTE     // Pixel width (pixel ratio is "pixel width/pixel height") (1 byte)
	PixelHeight       BYTE     // Pixel height (1 byte)
	GridX             SHORT    // X position of the grid (2 bytes)
	GridY             SHORT    // Y position of the grid (2 bytes)
	GridWidth         WORD     // Grid width (zero if there is no grid) (2 bytes)
	GridHeight        WORD     // Grid height (zero if there is no grid) (2 bytes)
	FutureUse         [84]BYTE // For future use (set to zero) (84 bytes)
}

// IsLayerOpacityValid reports whether layer opacity should be applied.
func (h Header) IsLayerOpacityValid() bool {
	return h.Flags&1 != 0
}

func (h Header) bytesPerPixel() (int, error) {
	switch h.ColorDepth {
	case ColorDepthRGBA:
		return 4, nil
	case ColorDepthGrayscale:
		return 2, nil
	case ColorDepthIndexed:
		return 1, nil
	}
	return 0, fmt.Errorf("unknown color depth: %d", h.ColorDepth)
}

type Frame struct {
	Header FrameHeader
	Chunks []Chunk
}

// FrameHeader represents the structure of a frame header (16 bytes)
type FrameHeader struct {
	BytesInFrame  DWORD   // Bytes in frame (4 bytes)
	MagicNumber   WORD    // Magic number (0xF1FA) (2 bytes)
	OldChunkCount WORD    // Old chunk count; 0xFFFF means the new field must be used (2 bytes)
	FrameDuration WORD    // Frame duration in milliseconds (2 bytes)
	Reserved      [2]BYTE // Reserved (set to 0) (2 bytes)
	NewChunkCount DWORD   // New chunk count; 0 means use the old field (4 bytes)
}

// NumberOfChunks returns the number of chunks in the frame
func (fh *FrameHeader) NumberOfChunks() uint32 {
	if fh.OldChunkCount == 0xFFFF {
		return fh.NewChunkCount
	}
	if fh.NewChunkCount == 0 {
		return uint32(fh.OldChunkCount)
	}
	return fh.NewChunkCount
}

// Chunk represents the structure of a chunk
type Chunk struct {
	ChunkSize DWORD  // Size of the chunk (4 bytes)
	ChunkType WORD   // Type of the chunk (2 bytes)
	ChunkData []BYTE // Data of the chunk (variable length)
}

// IsValid checks if the chunk size is valid
func (c *Chunk) IsValid() bool {
	// 4 bytes for ChunkSize + 2 bytes for ChunkType
	return c.ChunkSize >= 6
}

// checkFrameSize checks if the total chunk size plus frame header size equals BytesInFrame
func checkFrameSize(totalChunkSize uint32, frameHeader *FrameHeader) error {
	const frameHeaderSize = 16
	if totalChunkSize+frameHeaderSize != frameHeader.BytesInFrame {
		return fmt.Errorf("frame size mismatch: expected %d, got %d", frameHeader.BytesInFrame, totalChunkSize+frameHeaderSize)
	}
	return nil
}

// readAsepriteFile reads the header, frame headers and raw chunks.
func readAsepriteFile(r *bytes.Reader) (*Header, []Frame, error) {
	header := &Header{}
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	if header.MagicNumberHeader != MagicNumber {
		return nil, nil, fmt.Errorf("invalid magic number: 0x%X", header.MagicNumberHeader)
	}
	if header.FrameCount == 0 {
		return nil, nil, errors.New("file has no frames")
	}
	if header.Width == 0 || header.Height == 0 {
		return nil, nil, fmt.Errorf("invalid canvas size: %dx%d", header.Width, header.Height)
	}
	if header.Width > maxCanvasSide || header.Height > maxCanvasSide {
		return nil, nil, fmt.Errorf("canvas %dx%d exceeds %d pixels per side", header.Width, header.Height, maxCanvasSide)
	}
	if px := int(header.Width) * int(header.Height) * int(header.FrameCount); px > maxStripPixels {
		return nil, nil, fmt.Errorf("%d frames of %dx%d exceed %d pixels", header.FrameCount, header.Width, header.Height, maxStripPixels)
	}

	frames := make([]Frame, 0, header.FrameCount)
	for i := 0; i < int(header.FrameCount); i++ {
		frameHeader := FrameHeader{}
		if err := binary.Read(r, binary.LittleEndian, &frameHeader); err != nil {
			return nil, nil, fmt.Errorf("reading frame %d header: %w", i, err)
		}
		if frameHeader.MagicNumber != MagicNumberFrame {
			return nil, nil, fmt.Errorf("frame %d: invalid magic number: 0x%X", i, frameHeader.MagicNumber)
		}

		var chunks []Chunk
		var totalChunkSize uint32
		for j := 0; j < int(frameHeader.NumberOfChunks()); j++ {
			chunk := Chunk{}
			if err := binary.Read(r, binary.LittleEndian, &chunk.ChunkSize); err != nil {
				return nil, nil, err
			}
			if err := binary.Read(r, binary.LittleEndian, &chunk.ChunkType); err != nil {
				return nil, nil, err
			}
			if !chunk.IsValid() {
				return nil, nil, fmt.Errorf("invalid chunk detected: size %d", chunk.ChunkSize)
			}
			// 6 bytes are already read (4 bytes for ChunkSize + 2 bytes for ChunkType)
			n := int64(chunk.ChunkSize) - 6
			if n > int64(r.Len()) {
				return nil, nil, fmt.Errorf("chunk 0x%04X: size %d exceeds remaining %d bytes", chunk.ChunkType, chunk.ChunkSize, r.Len())
			}
			chunk.ChunkData = make([]BYTE, n)
			if _, err := io.ReadFull(r, chunk.ChunkData); err != nil {
				return nil, nil, err
			}

			chunks = append(chunks, chunk)
			totalChunkSize += chunk.ChunkSize
		}

		if err := checkFrameSize(totalChunkSize, &frameHeader); err != nil {
			return nil, nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, Frame{Header: frameHeader, Chunks: chunks})
	}

	return header, frames, nil
}

// Function to decompress ZLIB data. Output longer than limit bytes is an error.
func decompressZlib(data []byte, limit int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("input data is empty")
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, io.LimitReader(r, int64(limit)+1)); err != nil {
		return nil, fmt.Errorf("failed to copy decompressed data: %w", err)
	}
	if out.Len() > limit {
		return nil, fmt.Errorf("decompressed data exceeds %d bytes", limit)
	}
	return out.Bytes(), nil
}

type Packet struct {
	NumberOfPalEntriesToSkipFromTheLastPacket BYTE // Number of palette entries to skip from the last packet (start from 0)
	NumberOfColorsInThisPacket                BYTE // Number of colors in this packet (0 means 256 colors)
	Colors                                    [][3]BYTE
}

type Chunk0x0004 struct {
	NumberOfPackets WORD // Number of packets in this chunk
	Packets         []Packet
}

func parseChunk0x0004(data []byte) (*Chunk0x0004, error) {
	reader := bytes.NewReader(data)
	var chunk Chunk0x0004

	if err := binary.Read(reader, binary.LittleEndian, &chunk.NumberOfPackets); err != nil {
		return nil, err
	}

	chunk.Packets = make([]Packet, chunk.NumberOfPackets)
	for i := range chunk.Packets {
		packet := &chunk.Packets[i]
		if err := binary.Read(reader, binary.LittleEndian, &packet.NumberOfPalEntriesToSkipFromTheLastPacket); err != nil {
			return nil, err
		}
		if err := binary.Read(reader, binary.LittleEndian, &packet.NumberOfColorsInThisPacket); err != nil {
			return nil, err
		}
		n := int(packet.NumberOfColorsInThisPacket)
		if n == 0 {
			n = 256
		}
		packet.Colors = make([][3]BYTE, n)
		if err := binary.Read(reader, binary.LittleEndian, packet.Colors); err != nil {
			return nil, err
		}
	}

	return &chunk, nil
}

// apply writes the packets into palette, growing it as needed. Entries past
// the last palette index are dropped.
func (c *Chunk0x0004) apply(palette []color.NRGBA) []color.NRGBA {
	idx := 0
	for _, packet := range c.Packets {
		idx += int(packet.NumberOfPalEntriesToSkipFromTheLastPacket)
		for _, rgb := range packet.Colors {
			if idx >= maxPaletteSize {
				return palette
			}
			palette = growPalette(palette, idx+1)
			palette[idx] = color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
			idx++
		}
	}
	return palette
}

type PaletteEntry struct {
	Flags WORD // 1 = has name (2 bytes)
	Red   BYTE
	Green BYTE
	Blue  BYTE
	Alpha BYTE
	Name  STRING // only present when Flags&1
}

type Chunk0x2019 struct {
	NewPaletteSize DWORD   // New palette size, total number of entries (4 bytes)
	FirstColor     DWORD   // First color index to change (4 bytes)
	LastColor      DWORD   // Last color index to change (4 bytes)
	Reserved       [8]BYTE // Reserved (set to 0) (8 bytes)
	Entries        []PaletteEntry
}

func parseChunk0x2019(data []byte) (*Chunk0x2019, error) {
	r := bytes.NewReader(data)

	chunk := &Chunk0x2019{}
	if err := binary.Read(r, binary.LittleEndian, &chunk.NewPaletteSize); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &chunk.FirstColor); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &chunk.LastColor); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &chunk.Reserved); err != nil {
		return nil, err
	}
	if chunk.NewPaletteSize > maxPaletteSize {
		return nil, fmt.Errorf("palette size %d exceeds %d entries", chunk.NewPaletteSize, maxPaletteSize)
	}
	if chunk.LastColor < chunk.FirstColor || chunk.LastColor >= maxPaletteSize {
		return nil, fmt.Errorf("invalid palette range %d..%d", chunk.FirstColor, chunk.LastColor)
	}

	for i := chunk.FirstColor; i <= chunk.LastColor; i++ {
		entry := PaletteEntry{}
		if err := binary.Read(r, binary.LittleEndian, &entry.Flags); err != nil {
			return nil, err
		}
		rgba := [4]BYTE{}
		if err := binary.Read(r, binary.LittleEndian, &rgba); err != nil {
			return nil, err
		}
		entry.Red, entry.Green, entry.Blue, entry.Alpha = rgba[0], rgba[1], rgba[2], rgba[3]
		if entry.Flags&1 != 0 {
			name, err := readSTRING(r)
			if err != nil {
				return nil, err
			}
			entry.Name = name
		}
		chunk.Entries = append(chunk.Entries, entry)
	}

	return chunk, nil
}

func (c *Chunk0x2019) apply(palette []color.NRGBA) []color.NRGBA {
	palette = growPalette(palette, int(c.NewPaletteSize))
	for i, e := range c.Entries {
		idx := int(c.FirstColor) + i
		palette = growPalette(palette, idx+1)
		palette[idx] = color.NRGBA{R: e.Red, G: e.Green, B: e.Blue, A: e.Alpha}
	}
	return palette
}

func growPalette(p []color.NRGBA, n int) []color.NRGBA {
	n = min(n, maxPaletteSize)
	if n <= len(p) {
		return p
	}
	return append(p, make([]color.NRGBA, n-len(p))...)
}

// Layer flags
const (
	LayerFlagVisible    = 1
	LayerFlagBackground = 8
	LayerFlagReference  = 64
)

// Layer types
const (
	LayerTypeNormal  WORD = 0
	LayerTypeGroup   WORD = 1
	LayerTypeTilemap WORD = 2
)

// Chunk0x2004 describes one layer. Layers are numbered in the order their
// chunks appear in the first frame.
type Chunk0x2004 struct {
	Flags         WORD    // Flags (2 bytes)
	Type          WORD    // Layer type (2 bytes)
	ChildLevel    WORD    // Layer child level (2 bytes)
	DefaultWidth  WORD    // Ignored (2 bytes)
	DefaultHeight WORD    // Ignored (2 bytes)
	BlendMode     WORD    // Blend mode, only normal is composited (2 bytes)
	Opacity       BYTE    // Opacity, valid when the header flag is set (1 byte)
	Reserved      [3]BYTE // For future (set to zero) (3 bytes)
	Name          STRING  // Layer name (variable length)
}

func parseChunk0x2004(data []byte) (*Chunk0x2004, error) {
	r := bytes.NewReader(data)

	chunk := &Chunk0x2004{}
	fixed := []any{&chunk.Flags, &chunk.Type, &chunk.ChildLevel, &chunk.DefaultWidth,
		&chunk.DefaultHeight, &chunk.BlendMode, &chunk.Opacity, &chunk.Reserved}
	for _, field := range fixed {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, err
		}
	}
	name, err := readSTRING(r)
	if err != nil {
		return nil, err
	}
	chunk.Name = name
	return chunk, nil
}

// CelDataType represents the type of data in the cel.
type CelDataType WORD

const (
	RawImageData CelDataType = iota
	LinkedCelData
	CompressedImageData
	CompressedTilemapData
)

// celHeader is the fixed 16-byte prefix of a cel chunk.
type celHeader struct {
	LayerIndex   WORD        // Layer index (2 bytes) // 2 bytes so far
	XPosition    SHORT       // X position (2 bytes) // 4 bytes so far
	YPosition    SHORT       // Y position (2 bytes) // 6 bytes so far
	OpacityLevel BYTE        // Opacity level (0-255) (1 byte) // 7 bytes so far
	CelType      CelDataType // Cel Type (2 bytes) // 9 bytes so far
	ZIndex       SHORT       // Z-Index (2 bytes) // 11 bytes so far
	Reserved     [5]BYTE     // Reserved for future use (5 bytes) // 16 bytes so far
}

// Chunk0x2005 determines where to put a cel in the specified layer/frame.
type Chunk0x2005 struct {
	celHeader
	Data []byte // Data of the chunk (variable length)
}

func parseChunk0x2005(data []byte) (*Chunk0x2005, error) {
	r := bytes.NewReader(data)

	chunk := &Chunk0x2005{}
	if err := binary.Read(r, binary.LittleEndian, &chunk.celHeader); err != nil {
		return nil, err
	}
	chunk.Data = data[binary.Size(chunk.celHeader):]
	if len(chunk.Data) < 2 {
		return nil, fmt.Errorf("cel data too short: %d bytes", len(chunk.Data))
	}
	return chunk, nil
}

func (c *Chunk0x2005) dimensions() (int, int, error) {
	if len(c.Data) < 4 {
		return 0, 0, fmt.Errorf("cel data too short: %d bytes", len(c.Data))
	}
	w := int(binary.LittleEndian.Uint16(c.Data[0:2]))
	h := int(binary.LittleEndian.Uint16(c.Data[2:4]))
	return w, h, nil
}

// LoopAnimationDirection represents the direction of the loop animation.
type LoopAnimationDirection BYTE

const (
	Forward         LoopAnimationDirection = iota // 0 = forward
	Reverse                                       // 1 = reverse
	PingPong                                      // 2 = ping-pong
	PingPongReverse                               // 3 = ping-pong reverse
)

func (d LoopAnimationDirection) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	case PingPong:
		return "ping-pong"
	case PingPongReverse:
		return "ping-pong reverse"
	}
	return fmt.Sprintf("direction(%d)", BYTE(d))
}

// RepeatTimes represents the repeat times for the animation section.
type RepeatTimes WORD

const (
	Infinite RepeatTimes = iota // 0 = plays infinite in UI, once on export
	Once                        // 1 = Plays once (for ping-pong, it plays just in one direction)
	Twice                       // 2 = Plays twice (for ping-pong, once in each direction)
)

type Tag struct {
	FromFrame          WORD                   // Frame where the tag starts (2 bytes)
	ToFrame            WORD                   // Frame where the tag ends (2 bytes)
	AnimationDirection LoopAnimationDirection // Loop animation direction (1 byte)
	Repeat             RepeatTimes            // Repeat N times (2 bytes)
	Reserved           [6]BYTE                // For future (set to zero) (6 bytes)
	Deprecated         [3]BYTE                // Deprecated tag color (3 bytes)
	ExtraByte          BYTE                   // Extra byte (1 byte)
	TagName            STRING                 // Tag name (variable length)
}

type Chunk0x2018 struct {
	NumberOfTags WORD    // 2 bytes
	Reserved     [8]BYTE // 8 bytes
	Tags         []Tag   // Tags (variable length)
}

func parseChunk0x2018(data []byte) (*Chunk0x2018, error) {
	r := bytes.NewReader(data)

	chunk := &Chunk0x2018{}
	if err := binary.Read(r, binary.LittleEndian, &chunk.NumberOfTags); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &chunk.Reserved); err != nil {
		return nil, err
	}

	for i := 0; i < int(chunk.NumberOfTags); i++ {
		tag := Tag{}
		fixed := []any{&tag.FromFrame, &tag.ToFrame, &tag.AnimationDirection, &tag.Repeat,
			&tag.Reserved, &tag.Deprecated, &tag.ExtraByte}
		for _, field := range fixed {
			if err := binary.Read(r, binary.LittleEndian, field); err != nil {
				return nil, err
			}
		}
		name, err := readSTRING(r)
		if err != nil {
			return nil, err
		}
		tag.TagName = name
		chunk.Tags = append(chunk.Tags, tag)
	}

	return chunk, nil
}

// AnimationTag is a named frame range from an Aseprite file.
type AnimationTag struct {
	Name      string
	From, To  int
	Direction LoopAnimationDirection
	Repeat    int
}

// AsepriteFile is a decoded Aseprite document with every frame flattened.
type AsepriteFile struct {
	Width, Height int
	Frames        []*image.RGBA
	Durations     []time.Duration
	Tags          []AnimationTag
}

type layerInfo struct {
	Chunk0x2004
	visible bool // own flag combined with every parent group
}

type cel struct {
	layer   int
	x, y    int
	zIndex  int
	opacity BYTE
	img     *image.NRGBA
}

// ParseAseprite decodes an .ase/.aseprite document.
func ParseAseprite(data []byte) (*AsepriteFile, error) {
	header, frames, err := readAsepriteFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bpp, err := header.bytesPerPixel()
	if err != nil {
		return nil, err
	}

	ase := &AsepriteFile{
		Width:  int(header.Width),
		Height: int(header.Height),
	}

	// Palette, layers and tags first: cels depend on them.
	var palette []color.NRGBA
	var layers []layerInfo
	seenNewPalette := false
	for _, frame := range frames {
		for _, chunk := range frame.Chunks {
			switch chunk.ChunkType {
			case ChunkPalette:
				p, err := parseChunk0x2019(chunk.ChunkData)
				if err != nil {
					return nil, fmt.Errorf("parsing 0x2019 chunk: %w", err)
				}
				palette = p.apply(palette)
				seenNewPalette = true
			case ChunkOldPalette:
				if seenNewPalette {
					continue
				}
				p, err := parseChunk0x0004(chunk.ChunkData)
				if err != nil {
					return nil, fmt.Errorf("parsing 0x0004 chunk: %w", err)
				}
				palette = p.apply(palette)
			case ChunkLayer:
				l, err := parseChunk0x2004(chunk.ChunkData)
				if err != nil {
					return nil, fmt.Errorf("parsing 0x2004 chunk: %w", err)
				}
				layers = append(layers, layerInfo{Chunk0x2004: *l})
			case ChunkTags:
				t, err := parseChunk0x2018(chunk.ChunkData)
				if err != nil {
					return nil, fmt.Errorf("parsing 0x2018 chunk: %w", err)
				}
				for _, tag := range t.Tags {
					ase.Tags = append(ase.Tags, AnimationTag{
						Name:      tag.TagName.String(),
						From:      int(tag.FromFrame),
						To:        int(tag.ToFrame),
						Direction: tag.AnimationDirection,
						Repeat:    int(tag.Repeat),
					})
				}
			}
		}
	}
	resolveLayerVisibility(layers)

	dec := celDecoder{header: header, bpp: bpp, palette: palette, layers: layers}
	cels := make([]map[int]cel, len(frames))
	for i, frame := range frames {
		cels[i] = make(map[int]cel)
		d := time.Duration(frame.Header.FrameDuration) * time.Millisecond
		if d == 0 {
			d = time.Duration(header.Speed) * time.Millisecond
		}
		ase.Durations = append(ase.Durations, d)

		for _, chunk := range frame.Chunks {
			if chunk.ChunkType != ChunkCel {
				continue
			}
			celChunk, err := parseChunk0x2005(chunk.ChunkData)
			if err != nil {
				return nil, fmt.Errorf("frame %d: parsing 0x2005 chunk: %w", i, err)
			}
			c, ok, err := dec.decode(celChunk, cels[:i])
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			if ok {
				cels[i][c.layer] = c
			}
		}

		ase.Frames = append(ase.Frames, dec.composite(ase.Width, ase.Height, cels[i]))
	}

	return ase, nil
}

// resolveLayerVisibility hides layers whose parent group is hidden.
func resolveLayerVisibility(layers []layerInfo) {
	var parents []bool // parents[level] = visibility of the latest group at that level
	for i := range layers {
		l := &layers[i]
		level := int(l.ChildLevel)
		visible := l.Flags&LayerFlagVisible != 0 && l.Flags&LayerFlagReference == 0
		if level > 0 && level <= len(parents) {
			visible = visible && parents[level-1]
		}
		l.visible = visible
		if l.Type == LayerTypeGroup {
			parents = append(parents[:min(level, len(parents))], visible)
		}
	}
}

type celDecoder struct {
	header  *Header
	bpp     int
	palette []color.NRGBA
	layers  []layerInfo
}

// decode turns a cel chunk into pixels. Tilemap cels and cels on unknown
// layers are skipped (ok == false).
func (d celDecoder) decode(c *Chunk0x2005, previous []map[int]cel) (cel, bool, error) {
	layer := int(c.LayerIndex)
	out := cel{
		layer:   layer,
		x:       int(c.XPosition),
		y:       int(c.YPosition),
		zIndex:  int(c.ZIndex),
		opacity: c.OpacityLevel,
	}

	switch c.CelType {
	case LinkedCelData:
		src := int(binary.LittleEndian.Uint16(c.Data[0:2]))
		if src >= len(previous) {
			return cel{}, false, fmt.Errorf("linked cel points to frame %d", src)
		}
		linked, ok := previous[src][layer]
		if !ok {
			return cel{}, false, nil
		}
		linked.zIndex = out.zIndex
		return linked, true, nil

	case RawImageData, CompressedImageData:
		w, h, err := c.dimensions()
		if err != nil {
			return cel{}, false, err
		}
		if w > maxCanvasSide || h > maxCanvasSide {
			return cel{}, false, fmt.Errorf("cel %dx%d exceeds %d pixels per side", w, h, maxCanvasSide)
		}
		pixels := c.Data[4:]
		if c.CelType == CompressedImageData {
			pixels, err = decompressZlib(pixels, w*h*d.bpp)
			if err != nil {
				return cel{}, false, fmt.Errorf("error decompressing image data: %w", err)
			}
		}
		if len(pixels) < w*h*d.bpp {
			return cel{}, false, fmt.Errorf("cel has %d bytes of pixels, need %d", len(pixels), w*h*d.bpp)
		}
		out.img = d.pixelsToImage(pixels, w, h, d.isBackground(layer))
		return out, true, nil
	}

	return cel{}, false, nil
}

func (d celDecoder) isBackground(layer int) bool {
	return layer < len(d.layers) && d.layers[layer].Flags&LayerFlagBackground != 0
}

func (d celDecoder) pixelsToImage(pixels []byte, w, h int, background bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		p := pixels[i*d.bpp : (i+1)*d.bpp]
		var c color.NRGBA
		switch d.bpp {
		case 4:
			c = color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
		case 2:
			c = color.NRGBA{R: p[0], G: p[0], B: p[0], A: p[1]}
		case 1:
			idx := p[0]
			if idx == d.header.TransparentIdx && !background {
				continue
			}
			if int(idx) < len(d.palette) {
				c = d.palette[idx]
			}
		}
		o := i * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// composite flattens a frame's cels bottom to top.
func (d celDecoder) composite(w, h int, cels map[int]cel) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))

	ordered := make([]cel, 0, len(cels))
	for _, c := range cels {
		ordered = append(ordered, c)
	}
	// Same ordering Aseprite uses: layer index plus z-index, ties broken by z-index.
	slices.SortFunc(ordered, func(a, b cel) int {
		if oa, ob := a.layer+a.zIndex, b.layer+b.zIndex; oa != ob {
			return cmp.Compare(oa, ob)
		}
		return cmp.Compare(a.zIndex, b.zIndex)
	})

	for _, c := range ordered {
		if c.layer >= len(d.layers) || !d.layers[c.layer].visible {
			continue
		}
		alpha := int(c.opacity)
		if d.header.IsLayerOpacityValid() {
			alpha = alpha * int(d.layers[c.layer].Opacity) / 255
		}
		if alpha == 0 {
			continue
		}
		dst := c.img.Bounds().Add(image.Pt(c.x, c.y))
		mask := image.NewUniform(color.Alpha{A: uint8(alpha)})
		draw.DrawMask(canvas, dst, c.img, image.Point{}, mask, image.Point{}, draw.Over)
	}
	return canvas
}

// Strip lays every frame out left to right in a single row.
func (f *AsepriteFile) Strip() *image.RGBA {
	strip := image.NewRGBA(image.Rect(0, 0, f.Width*len(f.Frames), f.Height))
	for i, frame := range f.Frames {
		dst := image.Rect(i*f.Width, 0, (i+1)*f.Width, f.Height)
		draw.Draw(strip, dst, frame, image.Point{}, draw.Src)
	}
	return strip
}

// StripInfo describes the layout produced by Strip.
func (f *AsepriteFile) StripInfo() *StripInfo {
	return &StripInfo{
		FrameWidth:  f.Width,
		FrameHeight: f.Height,
		FrameCount:  len(f.Frames),
		Durations:   slices.Clone(f.Durations),
		Tags:        slices.Clone(f.Tags),
	}
}
