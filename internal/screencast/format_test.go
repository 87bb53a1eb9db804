package screencast

import "testing"

func TestDefaultCodecMapping(t *testing.T) {
	codec := DefaultCodec()

	cases := []struct {
		drm  uint32
		want VideoFormat
	}{
		{DRMFormatARGB8888, FormatBGRA},
		{DRMFormatXRGB8888, FormatBGRx},
		{DRMFormatABGR8888, FormatRGBA},
		{DRMFormatXBGR8888, FormatRGBx},
		{DRMFormatNV12, FormatNV12},
		{fourcc('Y', 'U', 'Y', 'V'), FormatUnknown},
	}
	for _, c := range cases {
		if got := codec.ToConsumerFormat(c.drm); got != c.want {
			t.Errorf("fourcc %#x: got %d, want %d", c.drm, got, c.want)
		}
	}
}

func TestStripAlpha(t *testing.T) {
	codec := DefaultCodec()

	cases := []struct {
		in   VideoFormat
		want VideoFormat
	}{
		{FormatBGRA, FormatBGRx},
		{FormatRGBA, FormatRGBx},
		{FormatARGB, FormatXRGB},
		{FormatABGR, FormatXBGR},
		{FormatBGRx, FormatUnknown},
		{FormatNV12, FormatUnknown},
	}
	for _, c := range cases {
		if got := codec.StripAlpha(c.in); got != c.want {
			t.Errorf("strip %d: got %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFourcc(t *testing.T) {
	if DRMFormatXRGB8888 != 0x34325258 {
		t.Errorf("XR24 fourcc mismatch: %#x", DRMFormatXRGB8888)
	}
}
