package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castnode/castnode/internal/screencast"
)

// CreateFormatsCmd creates the formats command, which prints the supported
// pixel format mappings and their non-alpha fallbacks.
func CreateFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported pixel formats",
		Long:  `Lists the DRM fourcc codes the capture engine accepts and the consumer formats they map to.`,
		Run: func(cmd *cobra.Command, args []string) {
			codec := screencast.DefaultCodec()

			rows := []struct {
				name string
				drm  uint32
			}{
				{"ARGB8888", screencast.DRMFormatARGB8888},
				{"XRGB8888", screencast.DRMFormatXRGB8888},
				{"ABGR8888", screencast.DRMFormatABGR8888},
				{"XBGR8888", screencast.DRMFormatXBGR8888},
				{"NV12", screencast.DRMFormatNV12},
			}

			fmt.Printf("%-10s %-10s %-12s %s\n", "DRM", "FOURCC", "CONSUMER", "NO-ALPHA")
			for _, row := range rows {
				format := codec.ToConsumerFormat(row.drm)
				stripped := codec.StripAlpha(format)
				noAlpha := "-"
				if stripped != screencast.FormatUnknown {
					noAlpha = fmt.Sprintf("%d", uint32(stripped))
				}
				fmt.Printf("%-10s %#-10x %-12d %s\n", row.name, row.drm, uint32(format), noAlpha)
			}
		},
	}
}
