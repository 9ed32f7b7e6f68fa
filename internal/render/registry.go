package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/smazurov/glcapture/internal/events"
)

// Options configure a renderer at creation.
type Options struct {
	Width  int
	Height int
	// Scale is the integer downscale factor for CPU conversion. Zero means 1.
	Scale int
	// Listen is the HTTP address for network renderers.
	Listen string
	// Input and Output are the terminal streams for headless renderers.
	Input  io.Reader
	Output io.Writer
	// EventBus feeds status and event streams. It may be nil.
	EventBus *events.Bus
}

// Mode is a named program mode selectable with --usage.
type Mode struct {
	Name        string
	Description string
	New         func(Options) (Renderer, error)
}

// Registry holds the program modes known to the binary.
type Registry struct {
	modes    map[string]Mode
	fallback string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modes: make(map[string]Mode)}
}

// Register adds a mode. The first registered mode becomes the default.
func (r *Registry) Register(m Mode) error {
	name := strings.ToUpper(m.Name)
	if name == "" || m.New == nil {
		return fmt.Errorf("invalid mode %q", m.Name)
	}
	if _, exists := r.modes[name]; exists {
		return fmt.Errorf("mode %s already registered", name)
	}
	m.Name = name
	r.modes[name] = m
	if r.fallback == "" {
		r.fallback = name
	}
	return nil
}

// Lookup finds a mode by name, case-insensitively. An empty name returns
// the default mode.
func (r *Registry) Lookup(name string) (Mode, error) {
	if name == "" {
		name = r.fallback
	}
	m, ok := r.modes[strings.ToUpper(name)]
	if !ok {
		return Mode{}, fmt.Errorf("unknown mode %q (available: %s)", name, strings.Join(r.names(), ", "))
	}
	return m, nil
}

// Default returns the name of the default mode.
func (r *Registry) Default() string {
	return r.fallback
}

// All returns the registered modes sorted by name.
func (r *Registry) All() []Mode {
	modes := make([]Mode, 0, len(r.modes))
	for _, m := range r.modes {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i].Name < modes[j].Name })
	return modes
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.modes))
	for name := range r.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
