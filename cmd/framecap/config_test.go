package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framecap/capture"
	"github.com/gogpu/framecap/capture/synthetic"
	"github.com/gogpu/framecap/ingest"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framecap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSetDefaults(t *testing.T) {
	v := newViper(filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := decodeConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "back", cfg.Position)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.Equal(t, "portrait", cfg.Orientation)
	assert.Equal(t, uint64(256), cfg.Pool.IdleBudgetMB)
	assert.Equal(t, ingest.DefaultQueueDepth, cfg.Ingest.QueueDepth)
	assert.True(t, cfg.Ingest.DropWhenFull)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
position: front
fps: 24
orientation: landscape-left
frames: 10
synthetic: true
log:
  level: debug
pool:
  idle_budget_mb: 64
  tag: cam
ingest:
  queue_depth: 2
  drop_when_full: false
`)

	cfg, err := loadConfig(newViper(path))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Frames)
	assert.True(t, cfg.Synthetic)
	assert.Equal(t, uint64(64), cfg.Pool.IdleBudgetMB)
	assert.Equal(t, "cam", cfg.Pool.Tag)
	assert.Equal(t, 2, cfg.Ingest.QueueDepth)
	assert.False(t, cfg.Ingest.DropWhenFull)

	ccfg, err := cfg.captureConfig()
	require.NoError(t, err)
	assert.Equal(t, capture.Configuration{
		Position:    capture.PositionFront,
		FrameRate:   24,
		Orientation: capture.OrientationLandscapeLeft,
	}, ccfg)

	lvl, err := cfg.level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "fps: 24\n")
	t.Setenv("FRAMECAP_FPS", "15")
	t.Setenv("FRAMECAP_POOL_IDLE_BUDGET_MB", "32")

	cfg, err := loadConfig(newViper(path))
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.FrameRate)
	assert.Equal(t, uint64(32), cfg.Pool.IdleBudgetMB)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(newViper(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero fps", "fps: 0\n"},
		{"negative frames", "frames: -1\n"},
		{"unknown position", "position: side\n"},
		{"unknown orientation", "orientation: diagonal\n"},
		{"unknown level", "log:\n  level: loud\n"},
		{"negative queue depth", "ingest:\n  queue_depth: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(newViper(writeConfig(t, tt.body)))
			assert.Error(t, err)
		})
	}
}

func TestPoolOptions(t *testing.T) {
	cfg := &Config{Pool: PoolConfig{IdleBudgetMB: 1, Tag: "x"}}
	assert.Len(t, cfg.poolOptions(), 2)
}

func TestDescribeDevice(t *testing.T) {
	d := synthetic.NewDevice("Cam", capture.PositionFront,
		synthetic.WithID("cam-1"),
		synthetic.WithPresets(capture.PresetMedium),
		synthetic.WithFrameRateRanges(
			capture.FrameRateRange{Min: 15, Max: 15},
			capture.FrameRateRange{Min: 24, Max: 30},
		),
		synthetic.WithFormat(640, 480),
	)

	got := describeDevice(d)
	assert.Contains(t, got, "cam-1")
	assert.Contains(t, got, `"Cam"`)
	assert.Contains(t, got, "front")
	assert.Contains(t, got, "640x480")
	assert.Contains(t, got, "fps=[15,24-30]")
	assert.Contains(t, got, "presets=[medium]")
}

func TestDevicesCommandSynthetic(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"devices", "--synthetic", "--config", writeConfig(t, "log:\n  level: error\n")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "synthetic-back")
	assert.Contains(t, out.String(), "synthetic-front")
}

func TestRunCommandSynthetic(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"run", "--synthetic", "--frames", "3", "--position", "front",
		"--config", writeConfig(t, "log:\n  level: error\n"),
	})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "configured front camera synthetic-front")
	assert.Contains(t, out.String(), "preset 1280x720")
	assert.Contains(t, out.String(), "Pool[")
}

func TestRunCommandFallsBackToOppositeCamera(t *testing.T) {
	var out bytes.Buffer
	a := &app{out: &out}
	a.v = newViper(writeConfig(t, "synthetic: true\nframes: 1\nlog:\n  level: error\n"))
	cfg, err := loadConfig(a.v)
	require.NoError(t, err)
	a.apply(cfg)

	// Only a back camera; the front request falls back.
	ctrl := capture.NewController(synthetic.NewSession(),
		synthetic.NewEnumerator(synthetic.NewDevice("Back", capture.PositionBack)),
		capture.WithConfiguration(capture.Configuration{Position: capture.PositionFront, FrameRate: 30}),
		capture.WithResultHandler(a.report),
	)
	defer ctrl.Close()

	_, err = ctrl.Configure(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "configured back camera")
}

func TestReconfigureSwitchesCamera(t *testing.T) {
	session := synthetic.NewSession()
	ctrl := capture.NewController(session, syntheticCameras())
	defer ctrl.Close()

	_, err := ctrl.Configure(context.Background())
	require.NoError(t, err)
	ctrl.StartRunning()
	require.Eventually(t, func() bool {
		return ctrl.State().State == capture.StateRunning
	}, time.Second, 5*time.Millisecond)

	cfg := &Config{Position: "front", FrameRate: 30, Orientation: "portrait"}
	require.NoError(t, reconfigure(context.Background(), ctrl, cfg))

	assert.Equal(t, "synthetic-front", ctrl.ActiveDevice().ID())
	require.Eventually(t, func() bool {
		return ctrl.State().State == capture.StateRunning
	}, time.Second, 5*time.Millisecond)

	// Same settings again is a no-op.
	emitted := session.FramesEmitted()
	require.NoError(t, reconfigure(context.Background(), ctrl, cfg))
	assert.Equal(t, capture.StateRunning, ctrl.State().State)
	assert.GreaterOrEqual(t, session.FramesEmitted(), emitted)
}
