package screencast

// VideoFormat is a consumer-bus pixel format code.
type VideoFormat uint32

// Raw video formats understood by the bus. Values follow the bus wire enum.
const (
	FormatUnknown VideoFormat = 0
	FormatRGBx    VideoFormat = 7
	FormatBGRx    VideoFormat = 8
	FormatXRGB    VideoFormat = 9
	FormatXBGR    VideoFormat = 10
	FormatRGBA    VideoFormat = 11
	FormatBGRA    VideoFormat = 12
	FormatARGB    VideoFormat = 13
	FormatABGR    VideoFormat = 14
	FormatRGB     VideoFormat = 15
	FormatBGR     VideoFormat = 16
	FormatNV12    VideoFormat = 23
)

// fourcc packs a DRM format code from its character tag.
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// DRM fourcc codes reported by the capture producer.
var (
	DRMFormatARGB8888 = fourcc('A', 'R', '2', '4')
	DRMFormatXRGB8888 = fourcc('X', 'R', '2', '4')
	DRMFormatABGR8888 = fourcc('A', 'B', '2', '4')
	DRMFormatXBGR8888 = fourcc('X', 'B', '2', '4')
	DRMFormatNV12     = fourcc('N', 'V', '1', '2')
)

// ModifierInvalid is the implicit-modifier sentinel: the buffer layout is
// negotiated out-of-band instead of being enumerated.
const ModifierInvalid uint64 = 0x00ffffffffffffff

// FormatCodec translates producer pixel-format codes to bus format codes.
// Implementations are pure mappings with no side effects.
type FormatCodec interface {
	// ToConsumerFormat maps a DRM fourcc to the bus format code, or
	// FormatUnknown when the fourcc is not supported.
	ToConsumerFormat(drmFormat uint32) VideoFormat

	// StripAlpha returns the non-alpha variant of a bus format, or
	// FormatUnknown when none exists.
	StripAlpha(format VideoFormat) VideoFormat
}

type defaultCodec struct{}

// DefaultCodec returns the built-in DRM fourcc mapping table.
func DefaultCodec() FormatCodec { return defaultCodec{} }

func (defaultCodec) ToConsumerFormat(drmFormat uint32) VideoFormat {
	switch drmFormat {
	case DRMFormatARGB8888:
		return FormatBGRA
	case DRMFormatXRGB8888:
		return FormatBGRx
	case DRMFormatABGR8888:
		return FormatRGBA
	case DRMFormatXBGR8888:
		return FormatRGBx
	case DRMFormatNV12:
		return FormatNV12
	}
	return FormatUnknown
}

func (defaultCodec) StripAlpha(format VideoFormat) VideoFormat {
	switch format {
	case FormatBGRA:
		return FormatBGRx
	case FormatRGBA:
		return FormatRGBx
	case FormatARGB:
		return FormatXRGB
	case FormatABGR:
		return FormatXBGR
	}
	return FormatUnknown
}
