package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reengage-cli/internal/cadence"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/internal/monitoring"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "deal", "sync-notes", "cache", "status", "serve", "cadence"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "reengage", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	limit := runCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "0", limit.DefValue)

	dry := runCmd.Flags().Lookup("dry-run")
	require.NotNil(t, dry)
	assert.Equal(t, "false", dry.DefValue)
}

func TestDealCommand_RequiresID(t *testing.T) {
	assert.Error(t, dealCmd.Args(dealCmd, nil))
	assert.NoError(t, dealCmd.Args(dealCmd, []string{"42"}))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestCacheCommand_HasClear(t *testing.T) {
	var found bool
	for _, c := range cacheCmd.Commands() {
		if c.Name() == "clear" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRootCmd_PersistentPreRunE_WithValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
store:
  driver: sqlite
log:
  level: info
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(configContent), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	require.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, []int{89, 80}, cfg.Cadence.WaitingStages)
}

func TestRootCmd_PersistentPreRunE_BadLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("log:\n  level: loud\n"), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	oldCfg := cfg
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}

func TestFormatSummary(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, &model.BatchSummary{
		Total:     3,
		Written:   1,
		Skipped:   2,
		TotalCost: 0.0123,
		ByStatus: map[model.OutcomeStatus]int{
			model.OutcomeWritten:         1,
			model.OutcomeSkippedExisting: 2,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Total:")
	assert.Contains(t, out, "$0.0123")
	assert.Contains(t, out, "skipped_existing")
}

func TestFormatRuns(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Second)

	var buf bytes.Buffer
	formatRuns(&buf, []model.Run{
		{ID: "run-1", Status: model.RunStatusComplete, Trigger: "cron", StartedAt: start, FinishedAt: &end,
			Summary: &model.BatchSummary{Total: 4, Written: 2, TotalCost: 0.5}},
		{ID: "run-2", Status: model.RunStatusRunning, Trigger: "http", StartedAt: end},
	})

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "$0.5000")
	assert.Contains(t, out, "running")
}

func TestFormatRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(&buf, nil)
	assert.Equal(t, "No runs found.\n", buf.String())
}

func TestFormatSnapshot(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.MetricsSnapshot{DealsTotal: 10, DealsFailed: 2, DealFailRate: 0.2, LookbackHours: 24})

	assert.Contains(t, buf.String(), "last 24h")
	assert.Contains(t, buf.String(), "20.0%")
}

func TestFormatCadences(t *testing.T) {
	r, err := cadence.Default()
	require.NoError(t, err)

	var buf bytes.Buffer
	formatCadences(&buf, r)

	out := buf.String()
	assert.Contains(t, out, "Nurturing")
	assert.Contains(t, out, "Retomada Final")
	assert.Contains(t, out, "Novo Insight de Mercado")
	assert.Contains(t, out, "cycle [4 5]")
}
