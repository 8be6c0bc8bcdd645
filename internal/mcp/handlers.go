package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/cogloop/internal/process"
	"github.com/nvandessel/cogloop/internal/system"
	"github.com/nvandessel/cogloop/internal/trace"
)

// registerTools registers all cogloop MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogloop_send",
		Description: "Schedule evidence on the scenario input, optionally repeated over several simulated steps",
	}, s.handleSend)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogloop_run",
		Description: "Advance the simulation until a choice is selected, the queue drains or max_events is reached",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogloop_poll",
		Description: "Read the current selection without advancing the simulation",
	}, s.handlePoll)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogloop_clear",
		Description: "Drop pending events and reset accumulated evidence",
	}, s.handleClear)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "cogloop_status",
		Description: "Report simulated time, queue depth, accumulator state and decision count",
	}, s.handleStatus)
}

func (s *Server) handleSend(ctx context.Context, req *sdk.CallToolRequest, args SendInput) (_ *sdk.CallToolResult, _ SendOutput, retErr error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.auditTool("cogloop_send", start, retErr, evidenceParams(args.Evidence)) }()

	if err := s.limiters.Check("cogloop_send"); err != nil {
		return nil, SendOutput{}, err
	}

	if len(args.Evidence) == 0 {
		return nil, SendOutput{}, fmt.Errorf("evidence is required")
	}
	steps := args.Steps
	if steps <= 0 {
		steps = 1
	}
	interval := time.Duration(args.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}

	if err := s.model.Send(args.Evidence, steps, interval); err != nil {
		return nil, SendOutput{}, fmt.Errorf("failed to send evidence: %w", err)
	}
	return nil, SendOutput{
		Scheduled: steps,
		Pending:   s.model.System().Pending(),
		Message:   fmt.Sprintf("scheduled %d send(s) of %d feature(s)", steps, len(args.Evidence)),
	}, nil
}

func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		s.auditTool("cogloop_run", start, retErr, map[string]string{"max_events": fmt.Sprintf("%d", args.MaxEvents)})
	}()

	if err := s.limiters.Check("cogloop_run"); err != nil {
		return nil, RunOutput{}, err
	}

	sys := s.model.System()
	selected := s.model.Choice().Source(process.OpSelect)
	events := 0
	ev, found, err := sys.RunUntil(ctx, func(ev system.Event) bool {
		events++
		return ev.From(selected) || (args.MaxEvents > 0 && events >= args.MaxEvents)
	})
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	out := RunOutput{
		Events:   events,
		Evidence: s.model.Accumulator().Main().Current().MaxValue(),
	}
	if found && ev.From(selected) {
		out.Decided = true
		out.Choice = s.model.Selection()
		if err := s.recordDecision(ctx, ev, out.Evidence); err != nil {
			return nil, RunOutput{}, err
		}
		for _, k := range s.model.Choice().Poll() {
			out.Key = k.String()
		}
	}
	out.SimTime = sys.Now().String()
	out.Pending = sys.Pending()
	return nil, out, nil
}

// recordDecision writes the landed selection to the trace, if one is open.
func (s *Server) recordDecision(ctx context.Context, ev system.Event, evidence float64) error {
	if s.recorder == nil {
		return nil
	}
	trial := s.model.Loop().Decisions() - 1
	for group, k := range s.model.Choice().Poll() {
		err := s.recorder.RecordDecision(ctx, trace.Decision{
			Trial:    trial,
			SimTime:  ev.Time,
			Group:    group.String(),
			Choice:   k.String(),
			Evidence: evidence,
		})
		if err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
	}
	return nil
}

func (s *Server) handlePoll(ctx context.Context, req *sdk.CallToolRequest, args PollInput) (_ *sdk.CallToolResult, _ PollOutput, retErr error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.auditTool("cogloop_poll", start, retErr, nil) }()

	sel := s.model.Choice().Poll()
	out := PollOutput{
		Choice:    s.model.Selection(),
		Selection: make(map[string]string, len(sel)),
		Decisions: s.model.Loop().Decisions(),
	}
	for group, k := range sel {
		out.Selection[group.String()] = k.String()
	}
	return nil, out, nil
}

func (s *Server) handleClear(ctx context.Context, req *sdk.CallToolRequest, args ClearInput) (_ *sdk.CallToolResult, _ ClearOutput, retErr error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.auditTool("cogloop_clear", start, retErr, nil) }()

	if err := s.limiters.Check("cogloop_clear"); err != nil {
		return nil, ClearOutput{}, err
	}

	sys := s.model.System()
	discarded := sys.Pending()
	sys.Clear()
	s.model.Loop().Reset()
	if err := s.model.Accumulator().Clear(); err != nil {
		return nil, ClearOutput{}, err
	}
	if err := sys.RunAll(ctx); err != nil {
		return nil, ClearOutput{}, fmt.Errorf("failed to reset accumulator: %w", err)
	}
	return nil, ClearOutput{
		Discarded: discarded,
		Message:   fmt.Sprintf("discarded %d pending event(s)", discarded),
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.auditTool("cogloop_status", start, retErr, nil) }()

	sys := s.model.System()
	acc := s.model.Accumulator()
	out := StatusOutput{
		Scenario:    s.model.Scenario().Name,
		SimTime:     sys.Now().String(),
		Pending:     sys.Pending(),
		State:       acc.State().String(),
		Threshold:   acc.Threshold(),
		Accumulated: s.model.Accumulated(),
		Decisions:   s.model.Loop().Decisions(),
	}
	for _, p := range sys.Processes() {
		out.Processes = append(out.Processes, p.Name())
	}
	if s.recorder != nil {
		out.RunID = s.recorder.RunID()
	}
	return nil, out, nil
}
