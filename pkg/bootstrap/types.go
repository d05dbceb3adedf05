package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/platinummonkey/toolhost/pkg/program"
)

// Stage is a step of the bootstrap state machine
type Stage string

const (
	StageCheckProgram Stage = "check_program"
	StageCheckTool    Stage = "check_tool"
	StageLoadPlugin   Stage = "load_plugin"
	StageKeepAlive    Stage = "keep_alive"
)

// Stages lists every stage in execution order
var Stages = []Stage{StageCheckProgram, StageCheckTool, StageLoadPlugin, StageKeepAlive}

func stageNames() []string {
	names := make([]string, len(Stages))
	for i, s := range Stages {
		names[i] = string(s)
	}
	return names
}

// Phase identifies where a plugin load failed
type Phase string

const (
	PhaseResolve   Phase = "resolve"
	PhaseConstruct Phase = "construct"
	PhaseRegister  Phase = "register"
)

var (
	// ErrNoProgram is returned when the script has no current program
	ErrNoProgram = errors.New("no program loaded")
	// ErrNoTool is returned when the script state has no plugin tool
	ErrNoTool = errors.New("no plugin tool available")
	// ErrNilPlugin is returned when a factory returns neither a plugin nor an error
	ErrNilPlugin = errors.New("factory returned nil plugin")
)

// LoadError is a failed plugin load with the stack captured where the
// failure was caught, or where the panic happened
type LoadError struct {
	PluginID string
	Phase    Phase
	Err      error
	Stack    []byte
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to %s plugin %s: %v", e.Phase, e.PluginID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Outcome records how far a bootstrap run got
type Outcome struct {
	SessionID   string
	PluginID    string
	Stage       Stage
	Program     *program.Program
	Plugin      plugins.Plugin
	LoadErr     *LoadError
	StartedAt   time.Time
	KeepAliveAt time.Time
	StoppedAt   time.Time
}

// Loaded reports whether the plugin was registered with the tool
func (o *Outcome) Loaded() bool {
	return o.Plugin != nil && o.LoadErr == nil
}

// ServerName is the name printed when keep-alive starts: the plugin's
// display name, or the identifier when nothing was loaded
func (o *Outcome) ServerName() string {
	if o.Plugin != nil {
		if m := o.Plugin.Manifest(); m != nil {
			return m.DisplayName()
		}
	}
	return o.PluginID
}

// Result is the metrics label for the run's final state
func (o *Outcome) Result() string {
	switch {
	case o.Stage == StageCheckProgram:
		return "no_program"
	case o.Stage == StageCheckTool:
		return "no_tool"
	case o.Loaded():
		return "loaded"
	default:
		return "load_failed"
	}
}
