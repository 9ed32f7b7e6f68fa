//go:build linux

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var all bool
	var resolutions bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 capture devices",
		Long: `Lists V4L2 capture nodes with their pixel formats, followed by the ` +
			`subdevices that can take --subdevice. Only multi-planar streaming ` +
			`nodes are listed unless --all is given.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			devices, err := v4l2.FindDevices()
			if err != nil {
				return fmt.Errorf("find devices: %w", err)
			}
			w := c.OutOrStdout()
			if err := printDevices(w, devices, all, resolutions, v4l2.GetFormats, v4l2.GetResolutions); err != nil {
				return err
			}
			subdevs, err := v4l2.FindSubdevices()
			if err != nil {
				return fmt.Errorf("find subdevices: %w", err)
			}
			printSubdevices(w, subdevs)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include single-planar and non-streaming nodes")
	cmd.Flags().BoolVarP(&resolutions, "resolutions", "r", false, "List frame sizes for NV12M")
	return cmd
}

type (
	formatLister     func(devicePath string) ([]v4l2.FormatInfo, error)
	resolutionLister func(devicePath string, pixelFormat uint32) ([]v4l2.Resolution, error)
)

func printDevices(w io.Writer, devices []v4l2.DeviceInfo, all, resolutions bool,
	formats formatLister, sizes resolutionLister,
) error {
	shown := 0
	for _, dev := range devices {
		usable := dev.MultiPlanar && dev.Streaming
		if !usable && !all {
			continue
		}
		shown++

		mark := " "
		if usable {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-14s %s (%s)\n", mark, dev.DevicePath, dev.DeviceName, dev.DeviceID)

		list, err := formats(dev.DevicePath)
		if err != nil {
			fmt.Fprintf(w, "    formats: %v\n", err)
			continue
		}
		for _, f := range list {
			emulated := ""
			if f.Emulated {
				emulated = " (emulated)"
			}
			fmt.Fprintf(w, "    %s  %s%s\n", v4l2.FormatFourCC(f.PixelFormat), f.FormatName, emulated)

			if !resolutions || f.PixelFormat != v4l2.PixFmtNV12M {
				continue
			}
			res, err := sizes(dev.DevicePath, f.PixelFormat)
			if err != nil {
				fmt.Fprintf(w, "          sizes: %v\n", err)
				continue
			}
			for _, r := range res {
				fmt.Fprintf(w, "          %dx%d\n", r.Width, r.Height)
			}
		}
	}

	if shown == 0 {
		fmt.Fprintln(w, "no multi-planar capture devices found")
	}
	return nil
}

// printSubdevices lists subdevice nodes; the sensor is the one to pass as
// --subdevice for focus and test pattern control.
func printSubdevices(w io.Writer, subdevs []v4l2.SubdeviceInfo) {
	if len(subdevs) == 0 {
		return
	}
	fmt.Fprintln(w, "subdevices:")
	for _, sd := range subdevs {
		name := sd.Name
		if name == "" {
			name = "?"
		}
		fmt.Fprintf(w, "  %-18s %s\n", sd.Path, name)
	}
}
