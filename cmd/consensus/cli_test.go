package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/forecast"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/intake"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

const generalScenarioYAML = `
title: Cloud Migration
description: Move the billing platform to managed infrastructure.
module: general
constraints:
  budget: 100000
  timeline: 90
  quality_min: 70
  risk_max: 30
priorities:
  budget: 5
  timeline: 5
  quality: 8
  risk: 7
`

const vendorScenarioYAML = `
title: CRM Vendor Selection
description: Pick a CRM vendor.
module: vendor_eval
constraints:
  budget: 100000
  timeline: 90
  quality_min: 70
  risk_max: 30
priorities:
  budget: 5
  timeline: 5
  quality: 7
  risk: 8
vendors:
  - id: v-acme
    vendor_name: Acme
    metrics:
      budget: 90000
      timeline: 60
      quality: 85
      risk: 10
    facts:
      - field: budget
        value: 90000
        quote: Total fee of $90,000 fixed.
`

// executeCommand runs the root command with args and returns what it wrote
// to stdout.
func executeCommand(ctx context.Context, args ...string) (string, error) {
	root := newRootCmd()
	stdout := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(ctx)
	return stdout.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// NEGOTIATE
// =============================================================================

func TestNegotiate_OfflineVendorConverges(t *testing.T) {
	path := writeFile(t, "crm.yaml", vendorScenarioYAML)

	out, err := executeCommand(context.Background(), "negotiate", path, "--oracle", "offline", "--interval", "1ms", "--raw")
	require.NoError(t, err)

	assert.Contains(t, out, "CRM Vendor Selection (vendor_eval)")
	assert.Contains(t, out, "Round 1: Vendor Selection Converged")
	assert.Contains(t, out, "Converged after 1 rounds.")
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "## Primary Recommendation: Acme")
}

func TestNegotiate_GeneralStopsAtMaxRounds(t *testing.T) {
	path := writeFile(t, "migration.yaml", generalScenarioYAML)

	out, err := executeCommand(context.Background(), "negotiate", path, "--oracle", "offline", "--interval", "1ms", "--max-rounds", "2", "--raw")
	require.NoError(t, err)

	assert.Contains(t, out, "Round 1: Conflict detected (4 objections).")
	assert.Contains(t, out, "Round 2: Conflict detected (4 objections).")
	assert.Contains(t, out, "fallback: budget, timeline, quality, risk")
	assert.Contains(t, out, "Stopped after 2 rounds without convergence.")
	assert.Contains(t, out, "## Executive Decision Summary")
}

func TestNegotiate_RendersMarkdown(t *testing.T) {
	path := writeFile(t, "crm.yaml", vendorScenarioYAML)

	out, err := executeCommand(context.Background(), "negotiate", path, "--oracle", "offline", "--interval", "1ms")
	require.NoError(t, err)

	assert.Contains(t, out, "Converged after 1 rounds.")
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "Vendor Selection Report")
}

func TestNegotiate_JSON(t *testing.T) {
	path := writeFile(t, "crm.yaml", vendorScenarioYAML)

	out, err := executeCommand(context.Background(), "negotiate", path, "--oracle", "offline", "--interval", "1ms", "--json")
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "converged", snap["state"])
	assert.Equal(t, 1.0, snap["round"])
	rankings, ok := snap["rankings"].([]any)
	require.True(t, ok)
	assert.Len(t, rankings, 1)
}

func TestNegotiate_Errors(t *testing.T) {
	general := writeFile(t, "migration.yaml", generalScenarioYAML)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"negotiate", filepath.Join(t.TempDir(), "missing.yaml"), "--oracle", "offline"}},
		{"unsupported extension", []string{"negotiate", writeFile(t, "scenario.txt", generalScenarioYAML), "--oracle", "offline"}},
		{"unknown oracle", []string{"negotiate", general, "--oracle", "carrier-pigeon"}},
		{"negative max rounds", []string{"negotiate", general, "--oracle", "offline", "--max-rounds", "-1"}},
		{"no file", []string{"negotiate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(context.Background(), tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestNegotiate_StopsOnCancel(t *testing.T) {
	path := writeFile(t, "migration.yaml", generalScenarioYAML)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := executeCommand(ctx, "negotiate", path, "--oracle", "offline", "--interval", "1h", "--max-rounds", "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// =============================================================================
// FORECAST
// =============================================================================

func TestForecast_JSON(t *testing.T) {
	path := writeFile(t, "migration.yaml", generalScenarioYAML)

	out, err := executeCommand(context.Background(), "forecast", path, "--months", "3", "--json")
	require.NoError(t, err)

	var f forecast.Forecast
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	require.Len(t, f.Months, 3)
	assert.Equal(t, 20, f.Months[0].RiskScore)
	assert.Equal(t, 25, f.Months[1].RiskScore)
	assert.Equal(t, 30, f.Months[2].RiskScore)
	assert.Equal(t, 108, f.EstimatedCompletionDays)
	assert.False(t, f.HasCriticalMonth())
}

func TestForecast_Table(t *testing.T) {
	path := writeFile(t, "migration.yaml", generalScenarioYAML)

	out, err := executeCommand(context.Background(), "forecast", path, "--risk", "70", "--months", "4")
	require.NoError(t, err)

	assert.Contains(t, out, "Risk forecast: Cloud Migration")
	assert.Contains(t, out, "MONTH")
	assert.Contains(t, out, "First critical month: 4")
	assert.Contains(t, out, "Estimated completion: 108 days")
}

func TestForecast_InvalidFlags(t *testing.T) {
	path := writeFile(t, "migration.yaml", generalScenarioYAML)

	tests := []struct {
		name string
		args []string
	}{
		{"zero months", []string{"forecast", path, "--months", "0"}},
		{"too many months", []string{"forecast", path, "--months", "25"}},
		{"risk above 100", []string{"forecast", path, "--risk", "101"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(context.Background(), tt.args...)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// EXTRACT
// =============================================================================

func TestExtract_VendorScenario(t *testing.T) {
	doc := writeFile(t, "acme_budget.txt", "Total authorized expenditure shall not exceed $75,000 USD.")

	out, err := executeCommand(context.Background(), "extract", doc, "--vendor", "Acme", "--title", "CRM", "--oracle", "offline")
	require.NoError(t, err)

	assert.Contains(t, out, "# likely winner: risk, likely sacrifice: budget")

	scn, err := intake.DecodeScenario([]byte(out), intake.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "CRM", scn.Title)
	assert.Equal(t, scenario.ModuleVendorEval, scn.Module)
	assert.Equal(t, intake.VendorEvalConstraints, scn.Constraints)
	require.Len(t, scn.Vendors, 1)
	assert.Equal(t, "Acme", scn.Vendors[0].VendorName)
	assert.Equal(t, 75000.0, scn.Vendors[0].Metrics.Budget)
}

func TestExtract_GeneralScenarioJSON(t *testing.T) {
	budget := writeFile(t, "q3_budget.txt", "")
	schedule := writeFile(t, "delivery_schedule.txt", "")

	out, err := executeCommand(context.Background(), "extract", budget, schedule, "--oracle", "offline", "--json")
	require.NoError(t, err)

	var scn scenario.Scenario
	require.NoError(t, json.Unmarshal([]byte(out), &scn))
	assert.Equal(t, scenario.ModuleGeneral, scn.Module)
	assert.Equal(t, "Untitled Decision", scn.Title)
	assert.Len(t, scn.Documents, 2)
	assert.Equal(t, 75000.0, scn.Constraints.Budget)
	assert.Equal(t, 45.0, scn.Constraints.Timeline)
}

func TestExtract_Errors(t *testing.T) {
	doc := writeFile(t, "acme_budget.txt", "")

	tests := []struct {
		name string
		args []string
	}{
		{"vendor count mismatch", []string{"extract", doc, "--vendor", "Acme", "--vendor", "Globex", "--oracle", "offline"}},
		{"unknown module", []string{"extract", doc, "--module", "astrology", "--oracle", "offline"}},
		{"missing file", []string{"extract", filepath.Join(t.TempDir(), "nope.txt"), "--oracle", "offline"}},
		{"no files", []string{"extract"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(context.Background(), tt.args...)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// SERVE & VERSION
// =============================================================================

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := executeCommand(ctx, "serve", "--oracle", "offline", "--grpc-addr", "127.0.0.1:0", "--http-addr", "127.0.0.1:0")
	assert.NoError(t, err)
}

func TestServe_RequiresAnAddress(t *testing.T) {
	_, err := executeCommand(context.Background(), "serve", "--oracle", "offline", "--grpc-addr", "", "--http-addr", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "consensus dev")
}
