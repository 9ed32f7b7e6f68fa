package led

import (
	"os"
	"strings"

	"github.com/smazurov/glcapture/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// Option values for the --led flag besides a raw sysfs LED name.
const (
	ModeAuto = "auto"
	ModeNone = "none"
)

// New creates an LED controller for the status LED.
// mode "auto" detects the board, "none" disables LED control, and any other
// value is taken as the sysfs name under /sys/class/leds.
// Falls back to a no-op controller if no LED is known for the board.
func New(logger logging.Logger, mode string) Controller {
	switch mode {
	case "", ModeAuto:
	case ModeNone:
		return newNoop(logger)
	default:
		if logger != nil {
			logger.Info("Using configured status LED", "led", mode)
		}
		return newSysfs(map[string]string{StatusLED: mode})
	}

	boardModel := detectBoard()
	name := boardStatusLED(boardModel)
	if name == "" {
		if logger != nil {
			logger.Info("No LED support detected, using no-op controller", "board_model", boardModel)
		}
		return newNoop(logger)
	}

	if logger != nil {
		logger.Info("Detected board, using sysfs LED controller", "board_model", boardModel, "led", name)
	}
	return newSysfs(map[string]string{StatusLED: name})
}

// boardStatusLED returns the sysfs LED name used as status LED on known boards.
func boardStatusLED(model string) string {
	switch {
	case strings.Contains(model, "NanoPC-T6"):
		return "sys_led"
	case strings.Contains(model, "Orange Pi"):
		return "green_led"
	case strings.Contains(model, "Raspberry Pi"):
		return "ACT"
	default:
		return ""
	}
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}

	// Device tree model contains null bytes, trim them
	return strings.TrimRight(string(data), "\x00")
}
