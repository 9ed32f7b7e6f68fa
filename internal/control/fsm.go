//go:build linux

package control

import "github.com/smazurov/glcapture/pkg/linuxav/v4l2"

// FocusState is the focus mode last requested from the sensor.
type FocusState int

// Focus states.
const (
	Idle FocusState = iota
	AutoFocusEnabled
	SingleFocusStart
	FocusPause
)

// InitialFocusState is the state a new Controller starts in. No request is
// sent for it; the sensor driver defaults to continuous autofocus.
const InitialFocusState = AutoFocusEnabled

func (s FocusState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AutoFocusEnabled:
		return "auto_focus_enabled"
	case SingleFocusStart:
		return "single_focus_start"
	case FocusPause:
		return "focus_pause"
	default:
		return "unknown"
	}
}

// FocusStates lists every valid state, used for metrics labels.
func FocusStates() []string {
	return []string{Idle.String(), AutoFocusEnabled.String(), SingleFocusStart.String(), FocusPause.String()}
}

// FocusCommand is a user request for a focus mode.
type FocusCommand int

// Focus commands.
const (
	RequestAuto FocusCommand = iota
	RequestSingle
	RequestPause
)

func (c FocusCommand) String() string {
	switch c {
	case RequestAuto:
		return "auto"
	case RequestSingle:
		return "single"
	case RequestPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Transition is the outcome of a focus command: the state to commit and the
// control request that realizes it.
type Transition struct {
	Next    FocusState
	Control uint32
	Value   int32
}

var (
	enableAuto  = Transition{Next: AutoFocusEnabled, Control: v4l2.CtrlFocusAuto, Value: 1}
	disableAuto = Transition{Next: Idle, Control: v4l2.CtrlFocusAuto, Value: 0}
	singleShot  = Transition{Next: SingleFocusStart, Control: v4l2.CtrlAutoFocusStart, Value: 1}
	lockFocus   = Transition{Next: FocusPause, Control: v4l2.Ctrl3ALock, Value: v4l2.LockFocus}
)

// focusTable holds the defined transitions. Pairs missing from a row have no
// transition and must not produce a control request.
var focusTable = map[FocusState]map[FocusCommand]Transition{
	Idle: {
		RequestAuto:   enableAuto,
		RequestSingle: singleShot,
	},
	AutoFocusEnabled: {
		RequestAuto:   disableAuto,
		RequestSingle: singleShot,
		RequestPause:  lockFocus,
	},
	SingleFocusStart: {
		RequestAuto:   enableAuto,
		RequestSingle: singleShot,
		RequestPause:  lockFocus,
	},
	FocusPause: {
		RequestAuto:   enableAuto,
		RequestSingle: singleShot,
	},
}

// NextFocus looks up the transition for cmd in state. The boolean reports
// whether a control request must be sent. When it is false, Transition.Next
// is still the state to commit: state itself for an undefined pair, or Idle
// when state is not a known value.
func NextFocus(state FocusState, cmd FocusCommand) (Transition, bool) {
	row, ok := focusTable[state]
	if !ok {
		return Transition{Next: Idle}, false
	}
	t, ok := row[cmd]
	if !ok {
		return Transition{Next: state}, false
	}
	return t, true
}

// Test pattern indexes. Zero is the live sensor image.
const (
	PatternLive = 0
	PatternMax  = 3
)

// nextPattern steps the test-pattern counter 0->1->2->3->1.
func nextPattern(p int) int {
	if p >= PatternMax || p < 0 {
		return 1
	}
	return p + 1
}
