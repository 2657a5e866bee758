package pen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/usonicpen/pkg/config"
	"github.com/itohio/usonicpen/pkg/core"
)

func TestNewMock_Defaults(t *testing.T) {
	m := NewMock(nil)
	assert.NotNil(t, m)
	assert.False(t, m.IsConnected())
	assert.Equal(t, DefaultBufferSize, cap(m.reports))
	assert.Error(t, m.Request())
	assert.Zero(t, m.Trains())
}

func TestMock_ConnectTwice(t *testing.T) {
	m := NewMock(stationaryConfig())
	require.NoError(t, m.Connect())
	defer m.Close()

	assert.True(t, m.IsConnected())
	assert.Error(t, m.Connect())
}

func TestMock_InvalidTickPeriod(t *testing.T) {
	cfg := stationaryConfig()
	cfg.Mock.TickPeriod = -time.Millisecond
	m := NewMock(cfg)
	assert.Error(t, m.Connect())
	assert.False(t, m.IsConnected())
}

func TestMock_ReportsConverge(t *testing.T) {
	cfg := stationaryConfig()
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	want := expectedDelays(cfg)
	deadline := time.After(15 * time.Second)
	for {
		select {
		case r, ok := <-m.Reports():
			require.True(t, ok)
			assert.Equal(t, core.NoPush, r.Button)
			if r.Delays == want {
				assert.Greater(t, m.Trains(), uint32(core.MeanLength))
				return
			}
		case <-deadline:
			t.Fatalf("reports never converged to %v", want)
		}
	}
}

func TestMock_ManualRequest(t *testing.T) {
	cfg := stationaryConfig()
	cfg.Mock.ReportInterval = 0
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	require.NoError(t, m.Request())

	select {
	case r := <-m.Reports():
		assert.True(t, r.Button.Valid())
	case <-time.After(5 * time.Second):
		t.Fatal("no report after manual request")
	}
}

func TestMock_MovingPen(t *testing.T) {
	cfg := config.Default()
	cfg.Mock.PathPeriod = 500 * time.Millisecond
	m := NewMock(cfg)
	require.NoError(t, m.Connect())
	defer m.Close()

	seen := make(map[[core.NumChannels]uint32]bool)
	deadline := time.After(15 * time.Second)
	for len(seen) < 5 {
		select {
		case r := <-m.Reports():
			if r.Delays != ([core.NumChannels]uint32{}) {
				seen[r.Delays] = true
			}
		case <-deadline:
			t.Fatalf("only %d distinct reports from a moving pen", len(seen))
		}
	}
}

func TestMock_ConnectAfterClose(t *testing.T) {
	m := NewMock(stationaryConfig())
	require.NoError(t, m.Connect())
	require.NoError(t, m.Close())

	err := m.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
	assert.False(t, m.IsConnected())
	assert.Error(t, m.Request())
}
