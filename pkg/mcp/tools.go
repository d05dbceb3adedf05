package mcp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/platinummonkey/toolhost/pkg/program"
)

const (
	defaultStringLimit = 100
	maxStringLimit     = 1000
	defaultReadLength  = 256
	maxReadLength      = 64 << 10
)

// errNoProgram is reported as a tool error, not a protocol error
var errNoProgram = errors.New("No program loaded")

type arguments map[string]any

// argError marks malformed tool arguments
type argError struct {
	name string
	msg  string
}

func (e *argError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.name, e.msg)
}

func (a arguments) intArg(name string, def int64) (int64, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, &argError{name: name, msg: "must be an integer"}
	}
	return int64(f), nil
}

func (a arguments) stringArg(name, def string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &argError{name: name, msg: "must be a string"}
	}
	return s, nil
}

type toolHandler func(ctx context.Context, args arguments) (*mcpgo.CallToolResult, error)

// toolset is the fixed set of tools the server registers
type toolset struct {
	tool    *plugins.Tool
	cache   *program.StringCache
	metrics *observability.Metrics
}

func newToolset(tool *plugins.Tool, cache *program.StringCache, metrics *observability.Metrics) *toolset {
	return &toolset{tool: tool, cache: cache, metrics: metrics}
}

// register adds every tool to srv
func (ts *toolset) register(srv *server.MCPServer) {
	srv.AddTool(mcpgo.NewTool("get_program_info",
		mcpgo.WithDescription("Describe the loaded program: name, format, architecture, size and hash"),
	), handle(ts.getProgramInfo))

	srv.AddTool(mcpgo.NewTool("list_sections",
		mcpgo.WithDescription("List the sections of the loaded program"),
	), handle(ts.listSections))

	srv.AddTool(mcpgo.NewTool("list_strings",
		mcpgo.WithDescription("List printable strings found in the loaded program"),
		mcpgo.WithNumber("min_length", mcpgo.Description("Minimum string length"), mcpgo.Min(1)),
		mcpgo.WithNumber("offset", mcpgo.Description("Index of the first string to return"), mcpgo.Min(0)),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of strings to return"), mcpgo.Min(1)),
	), handle(ts.listStrings))

	srv.AddTool(mcpgo.NewTool("read_bytes",
		mcpgo.WithDescription("Read raw bytes from the loaded program as hex"),
		mcpgo.WithNumber("offset", mcpgo.Required(), mcpgo.Description("File offset to start reading at"), mcpgo.Min(0)),
		mcpgo.WithNumber("length", mcpgo.Description("Number of bytes to read"), mcpgo.Min(1)),
	), handle(ts.readBytes))

	srv.AddTool(mcpgo.NewTool("list_plugins",
		mcpgo.WithDescription("List the plugins registered with the host tool"),
	), handle(ts.listPlugins))

	srv.AddTool(mcpgo.NewTool("hello",
		mcpgo.WithDescription("Say hello to the user"),
		mcpgo.WithString("name", mcpgo.Description("The name to greet")),
	), handle(ts.hello))
}

// handle adapts a toolHandler to the library's handler signature
func handle(fn toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return fn(ctx, arguments(req.GetArguments()))
	}
}

func (ts *toolset) program() (*program.Program, error) {
	p := ts.tool.CurrentProgram()
	if p == nil {
		return nil, errNoProgram
	}
	return p, nil
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

type programInfo struct {
	*program.Program
	SectionCount int `json:"sections"`
}

func (ts *toolset) getProgramInfo(_ context.Context, _ arguments) (*mcpgo.CallToolResult, error) {
	p, err := ts.program()
	if err != nil {
		return nil, err
	}
	return jsonResult(programInfo{Program: p, SectionCount: len(p.Sections())})
}

func (ts *toolset) listSections(_ context.Context, _ arguments) (*mcpgo.CallToolResult, error) {
	p, err := ts.program()
	if err != nil {
		return nil, err
	}
	sections := p.Sections()
	if sections == nil {
		sections = []program.Section{}
	}
	return jsonResult(sections)
}

type stringsPage struct {
	Total   int                 `json:"total"`
	Offset  int64               `json:"offset"`
	Strings []program.StringRef `json:"strings"`
}

func (ts *toolset) listStrings(_ context.Context, args arguments) (*mcpgo.CallToolResult, error) {
	minLen, err := args.intArg("min_length", program.DefaultMinStringLength)
	if err != nil {
		return nil, err
	}
	offset, err := args.intArg("offset", 0)
	if err != nil {
		return nil, err
	}
	limit, err := args.intArg("limit", defaultStringLimit)
	if err != nil {
		return nil, err
	}
	if minLen < 1 {
		return nil, &argError{name: "min_length", msg: "must be at least 1"}
	}
	if offset < 0 {
		return nil, &argError{name: "offset", msg: "must not be negative"}
	}
	if limit < 1 {
		return nil, &argError{name: "limit", msg: "must be at least 1"}
	}
	if limit > maxStringLimit {
		limit = maxStringLimit
	}

	p, err := ts.program()
	if err != nil {
		return nil, err
	}

	var all []program.StringRef
	if ts.cache != nil {
		var hit bool
		all, hit = ts.cache.Get(p, int(minLen))
		if ts.metrics != nil {
			ts.metrics.RecordCache("strings", hit)
		}
	} else {
		all = p.Strings(int(minLen))
	}

	page := stringsPage{Total: len(all), Offset: offset, Strings: []program.StringRef{}}
	if offset < int64(len(all)) {
		end := offset + limit
		if end > int64(len(all)) {
			end = int64(len(all))
		}
		page.Strings = all[offset:end]
	}
	return jsonResult(page)
}

func (ts *toolset) readBytes(_ context.Context, args arguments) (*mcpgo.CallToolResult, error) {
	if _, ok := args["offset"]; !ok {
		return nil, &argError{name: "offset", msg: "is required"}
	}
	offset, err := args.intArg("offset", 0)
	if err != nil {
		return nil, err
	}
	length, err := args.intArg("length", defaultReadLength)
	if err != nil {
		return nil, err
	}
	if length > maxReadLength {
		return nil, fmt.Errorf("length %d exceeds maximum of %d bytes", length, maxReadLength)
	}

	p, err := ts.program()
	if err != nil {
		return nil, err
	}

	data, err := p.ReadBytes(offset, length)
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(hex.EncodeToString(data)), nil
}

func (ts *toolset) listPlugins(_ context.Context, _ arguments) (*mcpgo.CallToolResult, error) {
	infos := ts.tool.Infos()
	if infos == nil {
		infos = []plugins.PluginInfo{}
	}
	return jsonResult(infos)
}

func (ts *toolset) hello(_ context.Context, args arguments) (*mcpgo.CallToolResult, error) {
	name, err := args.stringArg("name", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = "World"
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("Hello, %s!", name)), nil
}
