package host

import (
	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/platinummonkey/toolhost/pkg/program"
)

// ScriptState is the state the hosting environment hands to a script
type ScriptState struct {
	tool *plugins.Tool
}

// NewScriptState creates script state around a tool, which may be nil
func NewScriptState(tool *plugins.Tool) *ScriptState {
	return &ScriptState{tool: tool}
}

// Tool returns the plugin tool, or nil when the script runs without one
func (s *ScriptState) Tool() *plugins.Tool {
	if s == nil {
		return nil
	}
	return s.tool
}

// Script is the ambient context a bootstrap script runs in
type Script struct {
	program *program.Program
	state   *ScriptState
	console Console
}

// Option configures a Script
type Option func(*Script)

// WithProgram sets the current program
func WithProgram(p *program.Program) Option {
	return func(s *Script) {
		s.program = p
	}
}

// WithTool sets the script state's tool
func WithTool(tool *plugins.Tool) Option {
	return func(s *Script) {
		s.state = NewScriptState(tool)
	}
}

// WithConsole sets the console output
func WithConsole(c Console) Option {
	return func(s *Script) {
		if c != nil {
			s.console = c
		}
	}
}

// NewScript creates a script context. Without options there is no program,
// no tool and the console writes to stdout.
func NewScript(opts ...Option) *Script {
	s := &Script{
		state:   NewScriptState(nil),
		console: NewWriterConsole(nil, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentProgram returns the loaded program, or nil
func (s *Script) CurrentProgram() *program.Program {
	return s.program
}

// State returns the script state
func (s *Script) State() *ScriptState {
	return s.state
}

// Console returns the script console
func (s *Script) Console() Console {
	return s.console
}
