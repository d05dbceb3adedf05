package plugins

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/platinummonkey/toolhost/pkg/program"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPlugin implements the Plugin interface for testing
type mockPlugin struct {
	manifest  *Manifest
	loadErr   error
	unloadErr error
	loads     int
	unloads   int
	unloadLog *[]string
}

func (m *mockPlugin) Manifest() *Manifest {
	return m.manifest
}

func (m *mockPlugin) Load() error {
	m.loads++
	return m.loadErr
}

func (m *mockPlugin) Unload() error {
	m.unloads++
	if m.unloadLog != nil {
		*m.unloadLog = append(*m.unloadLog, m.manifest.ID)
	}
	return m.unloadErr
}

func validManifest(id string) *Manifest {
	return &Manifest{
		ID:         id,
		Name:       "Plugin " + id,
		Version:    "1.0.0",
		APIVersion: "1.0.0",
		Type:       PluginTypeServer,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNewTool(t *testing.T) {
	tool := NewTool("headless", nil)

	assert.Equal(t, "headless", tool.Name())
	assert.NotNil(t, tool.Logger())
	assert.NotNil(t, tool.Options())
	assert.Nil(t, tool.CurrentProgram())
	assert.Equal(t, 0, tool.Count())
}

func TestTool_SetProgram(t *testing.T) {
	tool := NewTool("headless", quietLogger())
	prog := program.FromBytes("a.out", "/tmp/a.out", []byte{0x7f, 'E', 'L', 'F'})

	tool.SetProgram(prog)
	assert.Same(t, prog, tool.CurrentProgram())
}

func TestTool_SetMetrics(t *testing.T) {
	tool := NewTool("headless", quietLogger())
	assert.Nil(t, tool.Metrics())

	m := observability.NewMetrics(nil)
	tool.SetMetrics(m)
	assert.Same(t, m, tool.Metrics())
}

func TestTool_AddPlugin(t *testing.T) {
	tests := []struct {
		name   string
		plugin Plugin
		errMsg string
	}{
		{
			name:   "successful registration",
			plugin: &mockPlugin{manifest: validManifest("ok")},
		},
		{
			name:   "nil plugin",
			plugin: nil,
			errMsg: "cannot register nil plugin",
		},
		{
			name:   "nil manifest",
			plugin: &mockPlugin{},
			errMsg: "plugin has nil manifest",
		},
		{
			name: "invalid manifest",
			plugin: &mockPlugin{manifest: &Manifest{
				ID:         "bad",
				Version:    "one",
				APIVersion: "1.0.0",
				Type:       PluginTypeServer,
			}},
			errMsg: "manifest validation failed",
		},
		{
			name: "incompatible api version",
			plugin: &mockPlugin{manifest: &Manifest{
				ID:         "future",
				Name:       "Future",
				Version:    "1.0.0",
				APIVersion: "2.0.0",
				Type:       PluginTypeServer,
			}},
			errMsg: "incompatible API version",
		},
		{
			name:   "load failure",
			plugin: &mockPlugin{manifest: validManifest("broken"), loadErr: errors.New("port in use")},
			errMsg: "plugin load failed: port in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewTool("headless", quietLogger())

			err := tool.AddPlugin(tt.plugin)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Equal(t, 0, tool.Count())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 1, tool.Count())
			assert.Equal(t, 1, tt.plugin.(*mockPlugin).loads)
		})
	}
}

func TestTool_AddPlugin_Duplicate(t *testing.T) {
	tool := NewTool("headless", quietLogger())

	first := &mockPlugin{manifest: validManifest("dup")}
	second := &mockPlugin{manifest: validManifest("dup")}

	require.NoError(t, tool.AddPlugin(first))
	err := tool.AddPlugin(second)

	assert.ErrorIs(t, err, ErrPluginExists)
	assert.Equal(t, 0, second.loads, "duplicate must not be loaded")
	assert.Equal(t, 1, tool.Count())
}

func TestTool_AddPluginFrom_RecordsSource(t *testing.T) {
	tool := NewTool("headless", quietLogger())

	require.NoError(t, tool.AddPluginFrom(&mockPlugin{manifest: validManifest("a")}, "factory.A"))
	require.NoError(t, tool.AddPlugin(&mockPlugin{manifest: validManifest("b")}))

	infos := tool.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "factory.A", infos[0].Source)
	assert.Equal(t, "b", infos[1].Source)
	assert.True(t, infos[0].IsEnabled)
	assert.False(t, infos[0].LoadedAt.IsZero())
}

func TestTool_GetHasRemove(t *testing.T) {
	tool := NewTool("headless", quietLogger())
	p := &mockPlugin{manifest: validManifest("x")}
	require.NoError(t, tool.AddPlugin(p))

	got, err := tool.GetPlugin("x")
	require.NoError(t, err)
	assert.Same(t, p, got)
	assert.True(t, tool.HasPlugin("x"))

	_, err = tool.GetPlugin("missing")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	require.NoError(t, tool.RemovePlugin("x"))
	assert.Equal(t, 1, p.unloads)
	assert.False(t, tool.HasPlugin("x"))

	err = tool.RemovePlugin("x")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestTool_RemovePlugin_UnloadError(t *testing.T) {
	tool := NewTool("headless", quietLogger())
	p := &mockPlugin{manifest: validManifest("sticky"), unloadErr: errors.New("busy")}
	require.NoError(t, tool.AddPlugin(p))

	err := tool.RemovePlugin("sticky")
	assert.Error(t, err)
	assert.True(t, tool.HasPlugin("sticky"), "plugin stays registered when unload fails")
}

func TestTool_PluginsSorted(t *testing.T) {
	tool := NewTool("headless", quietLogger())
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, tool.AddPlugin(&mockPlugin{manifest: validManifest(id)}))
	}

	var ids []string
	for _, p := range tool.Plugins() {
		ids = append(ids, p.Manifest().ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestTool_Dispose(t *testing.T) {
	tool := NewTool("headless", quietLogger())

	var order []string
	require.NoError(t, tool.AddPlugin(&mockPlugin{manifest: validManifest("first"), unloadLog: &order}))
	require.NoError(t, tool.AddPlugin(&mockPlugin{manifest: validManifest("second"), unloadLog: &order, unloadErr: errors.New("boom")}))
	require.NoError(t, tool.AddPlugin(&mockPlugin{manifest: validManifest("third"), unloadLog: &order}))

	err := tool.Dispose()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Equal(t, 0, tool.Count())

	assert.NoError(t, tool.Dispose(), "disposing an empty tool is a no-op")
}

func TestTool_ConcurrentAdd(t *testing.T) {
	tool := NewTool("headless", quietLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// ten distinct IDs, each added twice
			errs <- tool.AddPlugin(&mockPlugin{manifest: validManifest(fmt.Sprintf("p%d", i%10))})
		}(i)
	}
	wg.Wait()
	close(errs)

	var dups int
	for err := range errs {
		if errors.Is(err, ErrPluginExists) {
			dups++
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 10, dups)
	assert.Equal(t, 10, tool.Count())
}

// queryingPlugin reads the tool state from inside Load
type queryingPlugin struct {
	mockPlugin
	tool        *Tool
	sawProgram  *program.Program
	sawCount    int
	sawSelf     bool
	dupErr      error
	disposeLoad bool
}

func (q *queryingPlugin) Load() error {
	q.sawProgram = q.tool.CurrentProgram()
	q.sawCount = q.tool.Count()
	q.sawSelf = q.tool.HasPlugin(q.manifest.ID)
	q.dupErr = q.tool.AddPlugin(&mockPlugin{manifest: validManifest(q.manifest.ID)})
	if q.disposeLoad {
		_ = q.tool.Dispose()
	}
	return q.mockPlugin.Load()
}

func TestTool_AddPlugin_LoadQueriesTool(t *testing.T) {
	tool := NewTool("headless", quietLogger())
	prog := program.FromBytes("target.bin", "/tmp/target.bin", []byte("data"))
	tool.SetProgram(prog)
	require.NoError(t, tool.AddPlugin(&mockPlugin{manifest: validManifest("first")}))

	p := &queryingPlugin{mockPlugin: mockPlugin{manifest: validManifest("second")}, tool: tool}

	done := make(chan error, 1)
	go func() { done <- tool.AddPlugin(p) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("AddPlugin blocked while the plugin queried the tool")
	}

	assert.Same(t, prog, p.sawProgram)
	assert.Equal(t, 1, p.sawCount, "a loading plugin is not counted yet")
	assert.False(t, p.sawSelf, "a loading plugin is not visible yet")
	assert.ErrorIs(t, p.dupErr, ErrPluginExists, "the ID stays reserved during Load")
	assert.Equal(t, 2, tool.Count())
	assert.True(t, tool.HasPlugin("second"))
}

func TestTool_AddPlugin_LoadFailureReleasesID(t *testing.T) {
	tool := NewTool("headless", quietLogger())

	err := tool.AddPlugin(&mockPlugin{manifest: validManifest("retry"), loadErr: errors.New("boom")})
	require.Error(t, err)
	assert.False(t, tool.HasPlugin("retry"))

	assert.NoError(t, tool.AddPlugin(&mockPlugin{manifest: validManifest("retry")}))
	assert.Equal(t, 1, tool.Count())
}

func TestTool_AddPlugin_DisposedWhileLoading(t *testing.T) {
	tool := NewTool("headless", quietLogger())
	p := &queryingPlugin{mockPlugin: mockPlugin{manifest: validManifest("late")}, tool: tool, disposeLoad: true}

	err := tool.AddPlugin(p)

	assert.ErrorIs(t, err, ErrPluginNotFound)
	assert.Equal(t, 1, p.unloads, "a plugin loaded into a disposed tool is unloaded")
	assert.Equal(t, 0, tool.Count())
}
