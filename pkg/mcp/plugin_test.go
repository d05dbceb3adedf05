package mcp

import (
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/toolhost/pkg/plugins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlugin_RegisteredInCatalog(t *testing.T) {
	assert.True(t, plugins.HasFactory(PluginID))
}

func TestNewPlugin(t *testing.T) {
	t.Run("nil tool", func(t *testing.T) {
		_, err := NewPlugin(nil)
		assert.Error(t, err)
	})

	t.Run("invalid addr", func(t *testing.T) {
		tool := newTestTool(t, true)
		tool.Options().Set(OptionAddr, "no-port")
		_, err := NewPlugin(tool)
		assert.ErrorContains(t, err, OptionAddr)
	})

	t.Run("reads options", func(t *testing.T) {
		tool := newTestTool(t, true)
		tool.Options().Set(OptionAddr, "127.0.0.1:0")
		tool.Options().Set(OptionReadTimeout, "3s")

		p, err := NewPlugin(tool)
		require.NoError(t, err)

		sp := p.(*ServerPlugin)
		assert.Equal(t, "127.0.0.1:0", sp.addr)
		assert.Equal(t, 3*time.Second, sp.readTimeout)
		assert.Equal(t, DefaultWriteTimeout, sp.writeTimeout)
		assert.NotNil(t, sp.Server())
		assert.Empty(t, plugins.ValidateManifest(p.Manifest()))
		assert.Equal(t, "MCP", p.Manifest().DisplayName())
	})
}

func TestPlugin_AddPluginStartsServer(t *testing.T) {
	tool := newTestTool(t, true)
	tool.Options().Set(OptionAddr, "127.0.0.1:0")

	p, err := NewPlugin(tool)
	require.NoError(t, err)
	require.NoError(t, tool.AddPlugin(p))

	sp := p.(*ServerPlugin)
	addr := sp.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Post("http://"+addr+"/mcp", "application/json", strings.NewReader(initializeBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(SessionHeader))

	resp, err = http.Get("http://" + addr + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "plugin is registered and program loaded")

	require.NoError(t, tool.Dispose())
	assert.Empty(t, sp.Addr())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener is closed after unload")
}

func TestPlugin_LoadFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	tool := newTestTool(t, true)
	tool.Options().Set(OptionAddr, ln.Addr().String())

	p, err := NewPlugin(tool)
	require.NoError(t, err)

	err = tool.AddPlugin(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.False(t, tool.HasPlugin(PluginID))
}

func TestPlugin_DoubleLoadAndIdempotentUnload(t *testing.T) {
	tool := newTestTool(t, true)
	tool.Options().Set(OptionAddr, "127.0.0.1:0")

	p, err := NewPlugin(tool)
	require.NoError(t, err)

	require.NoError(t, p.Load())
	assert.Error(t, p.Load())
	require.NoError(t, p.Unload())
	assert.NoError(t, p.Unload())
}

func TestPlugin_WarmsAndPurgesStringCache(t *testing.T) {
	tool := newTestTool(t, true)
	tool.Options().Set(OptionAddr, "127.0.0.1:0")

	p, err := NewPlugin(tool)
	require.NoError(t, err)
	sp := p.(*ServerPlugin)

	require.NoError(t, tool.AddPlugin(p))
	require.Eventually(t, func() bool {
		return sp.cache.Stats().Entries == 1
	}, 2*time.Second, 10*time.Millisecond, "Load extracts strings in the background")

	_, cached := sp.cache.Get(tool.CurrentProgram(), 0)
	assert.True(t, cached)

	require.NoError(t, tool.Dispose())
	assert.Zero(t, sp.cache.Stats().Entries, "Unload drops cached strings")
}

func TestNewPlugin_Stateless(t *testing.T) {
	tool := newTestTool(t, true)
	tool.Options().Set(OptionStateless, "true")

	p, err := NewPlugin(tool)
	require.NoError(t, err)

	rec := post(t, p.(*ServerPlugin).Server(), initializeBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(SessionHeader))
}
