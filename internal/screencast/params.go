package screencast

// Buffer-shape negotiation constants.
const (
	defaultBuffers = 4
	minBuffers     = 2
	maxBuffers     = 32
	bufferAlign    = 16

	// metaHeaderSize is the fixed wire size of a slot metadata header.
	metaHeaderSize = 32

	// dmabufChunkPlaceholder replaces a zero chunk size on DMA-BUF slots.
	// Some consumers validate frame validity via chunk size instead of the
	// corruption flag, and would misread a true zero as invalid.
	dmabufChunkPlaceholder = 9
)

// Param is a negotiable parameter object advertised to the bus.
type Param interface {
	isParam()
}

// Fraction is a framerate as a rational number.
type Fraction struct {
	Num   uint32
	Denom uint32
}

// Rectangle is a fixed frame geometry.
type Rectangle struct {
	Width  uint32
	Height uint32
}

// FractionRange is a range choice with a preferred default.
type FractionRange struct {
	Default Fraction
	Min     Fraction
	Max     Fraction
}

// IntRange is a range choice with a preferred default.
type IntRange struct {
	Default int
	Min     int
	Max     int
}

// ModifierChoice is a mandatory modifier property. Values[0] is the
// preferred default. DontFixate keeps the enumeration open so the bus
// answers with the full set instead of fixating a single value.
type ModifierChoice struct {
	Values     []uint64
	DontFixate bool
}

// FormatParam is one candidate video format.
type FormatParam struct {
	Format VideoFormat

	// AltFormats, when non-empty, turns the format into an enumeration
	// choice. The first entry is the default.
	AltFormats []VideoFormat

	// Modifier is present only on the DMA-BUF candidate.
	Modifier *ModifierChoice

	Size Rectangle

	// Framerate 0/1 advertises variable rate; MaxFramerate bounds it.
	Framerate    Fraction
	MaxFramerate FractionRange
}

// BufferParam is the buffer-shape requirement published after format
// negotiation.
type BufferParam struct {
	Buffers IntRange
	Blocks  int

	// Size and Stride are hints, omitted when zero.
	Size   uint32
	Stride uint32

	Align        int
	DataTypeMask uint32
}

// MetaHeaderParam asks the bus to attach a metadata header to each slot.
type MetaHeaderParam struct {
	Size uint32
}

func (FormatParam) isParam()     {}
func (BufferParam) isParam()     {}
func (MetaHeaderParam) isParam() {}

// buildFormat builds one candidate format from the producer's reported
// geometry. Modifiers apply to the DMA-BUF path only; when none are given
// and a non-alpha variant exists, the format is offered as an enumeration
// so consumers that cannot sample alpha still match.
func buildFormat(codec FormatCodec, info FrameInfo, framerate uint32, modifiers []uint64) FormatParam {
	format := codec.ToConsumerFormat(info.DRMFormat)
	withoutAlpha := codec.StripAlpha(format)

	p := FormatParam{
		Format:    format,
		Size:      Rectangle{Width: info.Width, Height: info.Height},
		Framerate: Fraction{Num: 0, Denom: 1},
		MaxFramerate: FractionRange{
			Default: Fraction{Num: framerate, Denom: 1},
			Min:     Fraction{Num: 1, Denom: 1},
			Max:     Fraction{Num: framerate, Denom: 1},
		},
	}

	// Modifiers are defined only in combination with their exact format,
	// so the stripped-alpha alternative is not offered alongside them.
	if len(modifiers) == 0 && withoutAlpha != FormatUnknown {
		p.AltFormats = []VideoFormat{format, withoutAlpha}
	}

	switch {
	case len(modifiers) == 1 && modifiers[0] == ModifierInvalid:
		// Only implicit modifiers are supported; a single mandatory value
		// skips the fixation round.
		p.Modifier = &ModifierChoice{Values: []uint64{ModifierInvalid}}
	case len(modifiers) > 0:
		p.Modifier = &ModifierChoice{Values: modifiers, DontFixate: true}
	}

	return p
}

// buildBuffers builds the buffer-shape parameter published back to the bus
// once the format is fixated.
func buildBuffers(blocks int, size, stride uint32, dataType DataType) BufferParam {
	return BufferParam{
		Buffers:      IntRange{Default: defaultBuffers, Min: minBuffers, Max: maxBuffers},
		Blocks:       blocks,
		Size:         size,
		Stride:       stride,
		Align:        bufferAlign,
		DataTypeMask: dataType.Mask(),
	}
}

// buildCandidates builds the initial candidate format set. With a GPU
// allocator available the DMA-BUF candidate is listed before the memfd
// fallback; the bus picks among equally scored alternatives in listed
// order, so ordering expresses preference.
func (s *Session) buildCandidates() []Param {
	if s.ctx.GPUAvailable() {
		gpu := s.frameInfo[StorageDMABuf]
		shm := s.frameInfo[StorageMemFd]
		return []Param{
			buildFormat(s.codec, gpu, s.framerate, []uint64{ModifierInvalid}),
			buildFormat(s.codec, shm, s.framerate, nil),
		}
	}
	shm := s.frameInfo[StorageMemFd]
	return []Param{
		buildFormat(s.codec, shm, s.framerate, nil),
	}
}
