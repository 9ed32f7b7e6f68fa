package led

// Controller abstracts LED hardware control across different SBC boards.
// Implementations map the logical "status" LED to the board's sysfs name.
type Controller interface {
	// Set controls an LED's state and optional pattern.
	//   ledType: logical LED identifier ("status" on every supported board)
	//   enabled: whether the LED should be on or off
	//   pattern: "solid", "blink" or "heartbeat"; empty keeps the current trigger
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the list of LED types supported by this controller
	Available() []string

	// Patterns returns the list of patterns supported by this controller
	Patterns() []string
}

// StatusLED is the logical LED driven by the capture session state.
const StatusLED = "status"
