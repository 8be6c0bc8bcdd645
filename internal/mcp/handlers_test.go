package mcp

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cogloop/internal/config"
	"github.com/nvandessel/cogloop/internal/numdict"
	"github.com/nvandessel/cogloop/internal/ratelimit"
	"github.com/nvandessel/cogloop/internal/simulation"
)

const testScenario = `
name: two-choice
dimensions:
  - name: color
    values: [red, green]
  - name: direction
    values: [left, right]
response: direction
chunks:
  - name: red_left
    features: {color.red: 1}
    response: left
  - name: green_right
    features: {color.green: 1}
    response: right
threshold: 2
sd: 0.05
`

func setupTestServer(t *testing.T, settings *config.CogloopConfig) (*Server, string) {
	t.Helper()
	tmpDir := t.TempDir()
	sc, err := simulation.ParseScenario([]byte(testScenario))
	if err != nil {
		t.Fatalf("ParseScenario failed: %v", err)
	}
	server, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Root:     tmpDir,
		Scenario: sc,
		Settings: settings,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, tmpDir
}

func TestHandleSend(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	ctx := context.Background()
	req := &sdk.CallToolRequest{}

	_, out, err := server.handleSend(ctx, req, SendInput{
		Evidence: map[string]float64{"color.red": 1},
		Steps:    3,
	})
	if err != nil {
		t.Fatalf("handleSend failed: %v", err)
	}
	if out.Scheduled != 3 || out.Pending != 3 {
		t.Errorf("scheduled=%d pending=%d, want 3 and 3", out.Scheduled, out.Pending)
	}
}

func TestHandleSend_Invalid(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	ctx := context.Background()
	req := &sdk.CallToolRequest{}

	if _, _, err := server.handleSend(ctx, req, SendInput{}); err == nil {
		t.Error("expected error for empty evidence")
	}
	_, _, err := server.handleSend(ctx, req, SendInput{Evidence: map[string]float64{"color.blue": 1}})
	if !errors.Is(err, numdict.ErrUnknownKey) {
		t.Errorf("unknown feature error = %v, want ErrUnknownKey", err)
	}
	_, _, err = server.handleSend(ctx, req, SendInput{Evidence: map[string]float64{"color.red": math.NaN()}})
	if !errors.Is(err, simulation.ErrUndefinedWeight) {
		t.Errorf("NaN error = %v, want ErrUndefinedWeight", err)
	}
	if n := server.model.System().Pending(); n != 0 {
		t.Errorf("rejected sends left %d pending events", n)
	}
}

func TestDecisionCycle(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	ctx := context.Background()
	req := &sdk.CallToolRequest{}

	_, poll, err := server.handlePoll(ctx, req, PollInput{})
	if err != nil {
		t.Fatal(err)
	}
	if poll.Choice != "" || len(poll.Selection) != 0 {
		t.Errorf("poll before any decision = %+v, want empty", poll)
	}

	if _, _, err := server.handleSend(ctx, req, SendInput{
		Evidence: map[string]float64{"color.red": 1},
		Steps:    10,
	}); err != nil {
		t.Fatal(err)
	}

	_, run, err := server.handleRun(ctx, req, RunInput{})
	if err != nil {
		t.Fatalf("handleRun failed: %v", err)
	}
	if !run.Decided || run.Choice != "left" {
		t.Fatalf("run = %+v, want decision for left", run)
	}
	if run.Key != "data.io.output*feat.direction.left" {
		t.Errorf("key = %q", run.Key)
	}
	if run.SimTime != "3ms" {
		t.Errorf("sim_time = %s, want 3ms", run.SimTime)
	}
	if math.Abs(run.Evidence-2) > 1e-9 {
		t.Errorf("evidence = %v, want 2", run.Evidence)
	}
	if run.Pending == 0 {
		t.Error("remaining sends should still be pending")
	}

	_, poll, err = server.handlePoll(ctx, req, PollInput{})
	if err != nil {
		t.Fatal(err)
	}
	if poll.Choice != "left" || poll.Decisions != 1 || len(poll.Selection) != 1 {
		t.Errorf("poll = %+v, want left after one decision", poll)
	}

	_, status, err := server.handleStatus(ctx, req, StatusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if status.State != "crossed" || status.Threshold != 2 {
		t.Errorf("status = %+v, want crossed at threshold 2", status)
	}
	if math.Abs(status.Accumulated["left"]-2) > 1e-9 {
		t.Errorf("accumulated = %v", status.Accumulated)
	}

	_, cleared, err := server.handleClear(ctx, req, ClearInput{})
	if err != nil {
		t.Fatalf("handleClear failed: %v", err)
	}
	if cleared.Discarded != run.Pending {
		t.Errorf("discarded %d, want %d", cleared.Discarded, run.Pending)
	}

	_, status, err = server.handleStatus(ctx, req, StatusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if status.State != "idle" || status.Pending != 0 || len(status.Accumulated) != 0 {
		t.Errorf("status after clear = %+v", status)
	}
	if status.Decisions != 1 {
		t.Errorf("decisions = %d, want 1", status.Decisions)
	}
}

func TestHandleRun_MaxEvents(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	ctx := context.Background()
	req := &sdk.CallToolRequest{}

	if _, _, err := server.handleSend(ctx, req, SendInput{
		Evidence: map[string]float64{"color.red": 1},
		Steps:    10,
	}); err != nil {
		t.Fatal(err)
	}
	_, run, err := server.handleRun(ctx, req, RunInput{MaxEvents: 1})
	if err != nil {
		t.Fatal(err)
	}
	if run.Decided || run.Events != 1 {
		t.Errorf("run = %+v, want one event and no decision", run)
	}
}

func TestHandleRun_EmptyQueue(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	_, run, err := server.handleRun(context.Background(), &sdk.CallToolRequest{}, RunInput{})
	if err != nil {
		t.Fatal(err)
	}
	if run.Decided || run.Events != 0 {
		t.Errorf("run = %+v, want nothing processed", run)
	}
}

func TestHandleStatus_Processes(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	_, status, err := server.handleStatus(context.Background(), &sdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatal(err)
	}
	if status.Scenario != "two-choice" {
		t.Errorf("scenario = %q", status.Scenario)
	}
	joined := strings.Join(status.Processes, ",")
	for _, name := range []string{"evidence", "acc", "choice", "loop"} {
		if !strings.Contains(joined, name) {
			t.Errorf("processes %v missing %s", status.Processes, name)
		}
	}
	if status.RunID != "" {
		t.Errorf("run id = %q without tracing", status.RunID)
	}
}

func TestTraceRecordsDecisions(t *testing.T) {
	settings := config.Default()
	settings.Trace.Enabled = true
	server, tmpDir := setupTestServer(t, settings)
	ctx := context.Background()
	req := &sdk.CallToolRequest{}

	if _, err := os.Stat(filepath.Join(tmpDir, ".cogloop", "trace.db")); err != nil {
		t.Fatalf("trace database not created: %v", err)
	}

	if _, _, err := server.handleSend(ctx, req, SendInput{
		Evidence: map[string]float64{"color.green": 1},
		Steps:    10,
	}); err != nil {
		t.Fatal(err)
	}
	_, run, err := server.handleRun(ctx, req, RunInput{})
	if err != nil {
		t.Fatal(err)
	}
	if !run.Decided || run.Choice != "right" {
		t.Fatalf("run = %+v, want right", run)
	}

	runID := server.recorder.RunID()
	decisions, err := server.store.Decisions(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0].Choice != run.Key {
		t.Errorf("decisions = %+v, want one for %s", decisions, run.Key)
	}
	events, err := server.store.Events(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != run.Events {
		t.Errorf("recorded %d events, run processed %d", len(events), run.Events)
	}
}

func TestHandleClear_RateLimited(t *testing.T) {
	server, _ := setupTestServer(t, nil)
	server.limiters = ratelimit.Tools{"cogloop_clear": ratelimit.PerMinute(0, 1)}
	ctx := context.Background()
	req := &sdk.CallToolRequest{}

	if _, _, err := server.handleClear(ctx, req, ClearInput{}); err != nil {
		t.Fatalf("first clear: %v", err)
	}
	if _, _, err := server.handleClear(ctx, req, ClearInput{}); !errors.Is(err, ratelimit.ErrLimited) {
		t.Errorf("second clear error = %v, want ErrLimited", err)
	}
	if _, _, err := server.handleStatus(ctx, req, StatusInput{}); err != nil {
		t.Errorf("status is not limited: %v", err)
	}
}
