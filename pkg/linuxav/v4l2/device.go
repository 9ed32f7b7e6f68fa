//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"
)

// Overridden in tests.
var (
	sysfsClass = "/sys/class/video4linux"
	devDir     = "/dev"
	byIDDir    = "/dev/v4l/by-id"
)

// FindDevices lists V4L2 video capture nodes, single-planar and
// multi-planar. Nodes that fail VIDIOC_QUERYCAP are skipped.
func FindDevices() ([]DeviceInfo, error) {
	names, err := classEntries()
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, name := range names {
		if strings.HasPrefix(name, "v4l-subdev") {
			continue
		}
		path := filepath.Join(devDir, name)

		capability, err := queryCapability(path)
		if err != nil {
			slog.With("component", "linuxav").Debug("Skipping node", "path", path, "error", err)
			continue
		}
		caps := capability.effectiveCaps()
		if caps&(v4l2CapVideoCapture|v4l2CapVideoCaptureMplane) == 0 {
			continue
		}

		devices = append(devices, DeviceInfo{
			DevicePath:  path,
			DeviceName:  cstr(capability.card[:]),
			DeviceID:    stableID(name, cstr(capability.busInfo[:])),
			Caps:        caps,
			MultiPlanar: caps&v4l2CapVideoCaptureMplane != 0,
			Streaming:   caps&v4l2CapStreaming != 0,
		})
	}
	return devices, nil
}

// FindSubdevices lists V4L2 subdevice nodes with their entity names, which
// is how the sensor node is told apart from ISP and bridge subdevices.
func FindSubdevices() ([]SubdeviceInfo, error) {
	names, err := classEntries()
	if err != nil {
		return nil, err
	}

	var subdevs []SubdeviceInfo
	for _, name := range names {
		if !strings.HasPrefix(name, "v4l-subdev") {
			continue
		}
		entity, _ := os.ReadFile(filepath.Join(sysfsClass, name, "name"))
		subdevs = append(subdevs, SubdeviceInfo{
			Path: filepath.Join(devDir, name),
			Name: strings.TrimSpace(string(entity)),
		})
	}
	return subdevs, nil
}

// classEntries returns the node names under the video4linux class in
// numeric order, so video10 sorts after video9. A missing class directory
// means no V4L2 drivers are loaded and yields no entries.
func classEntries() ([]string, error) {
	entries, err := os.ReadDir(sysfsClass)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sysfsClass, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		pi, ni := splitNodeName(names[i])
		pj, nj := splitNodeName(names[j])
		if pi != pj {
			return pi < pj
		}
		return ni < nj
	})
	return names, nil
}

// splitNodeName splits "v4l-subdev10" into "v4l-subdev" and 10.
func splitNodeName(name string) (string, int) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	n, _ := strconv.Atoi(name[i:])
	return name[:i], n
}

// stableID prefers the udev by-id link for the node and otherwise builds
// one from the bus info and the sysfs index.
func stableID(name, busInfo string) string {
	index := readSysfsInt(filepath.Join(sysfsClass, name, "index"))
	suffix := fmt.Sprintf("-video-index%d", index)

	if entries, err := os.ReadDir(byIDDir); err == nil {
		for _, e := range entries {
			if e.Type()&os.ModeSymlink == 0 || !strings.HasSuffix(e.Name(), suffix) {
				continue
			}
			if target, err := os.Readlink(filepath.Join(byIDDir, e.Name())); err == nil && filepath.Base(target) == name {
				return e.Name()
			}
		}
	}

	if strings.HasPrefix(busInfo, "usb-") {
		return busInfo + suffix
	}
	return "platform-" + busInfo + suffix
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// queryCapability opens the node briefly and runs VIDIOC_QUERYCAP.
func queryCapability(devicePath string) (*v4l2Capability, error) {
	fd, err := open(devicePath)
	if err != nil {
		return nil, err
	}
	defer close(fd)

	capability := &v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(capability)); err != nil {
		return nil, err
	}

	return capability, nil
}
