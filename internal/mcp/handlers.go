package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/driver"
	"github.com/nvandessel/tendril/internal/ratelimit"
	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/visualization"
)

const snapshotURI = "tendril://snapshot"

// registerTools registers all tendril MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tendril_step",
		Description: "Advance the simulation by n ticks and report the output error",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tendril_snapshot",
		Description: "Render the current graph state (nodes, flows with weight/value/slope, boundaries) as text, JSON or DOT",
	}, s.handleSnapshot)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tendril_status",
		Description: "Report the loaded program, tick, next phase and last tick's error",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "tendril_load",
		Description: "Replace the running world with a built-in program or a YAML program file",
	}, s.handleLoad)
}

// registerResources exposes the current snapshot as a text resource.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         snapshotURI,
		Name:        "tendril-snapshot",
		Description: "Flow table of the running simulation at the current tick.",
		MIMEType:    "text/plain",
	}, s.handleSnapshotResource)
}

func (s *Server) handleSnapshotResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      snapshotURI,
				MIMEType: "text/plain",
				Text:     visualization.RenderText(s.driver.Snapshot()),
			},
		},
	}, nil
}

// handleStep implements the tendril_step tool.
func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tendril_step", start, retErr, sanitizeToolParams(map[string]interface{}{"n": args.N}))
	}()

	n := args.N
	if n == 0 {
		n = 1
	}
	if n < 0 || n > constants.MaxStepsPerCall {
		return nil, StepOutput{}, fmt.Errorf("n must be between 1 and %d, got %d", constants.MaxStepsPerCall, n)
	}
	if err := s.limits.Check(ratelimit.OpStep, ratelimit.StepCost(n)); err != nil {
		return nil, StepOutput{}, err
	}

	reports, err := s.driver.Step(ctx, n)
	st := s.driver.Status()
	out := StepOutput{Ticks: len(reports), Tick: st.Tick}
	corrected := 0
	for _, r := range reports {
		out.Flipped += r.Flipped
		if r.Outputs != nil {
			out.MeanError += r.Error
			out.Error = r.Error
			out.Outputs = r.Outputs
			out.Targets = r.Targets
			corrected++
		}
	}
	if corrected > 0 {
		out.MeanError /= float64(corrected)
	}
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		out.MeanWeight = last.MeanWeight
		if st.Mode == simulation.ModePhased {
			out.Phase = last.Phase.String()
		}
	}
	if err != nil {
		return nil, out, fmt.Errorf("stopped after %d ticks: %w", len(reports), err)
	}
	return nil, out, nil
}

// handleSnapshot implements the tendril_snapshot tool.
func (s *Server) handleSnapshot(ctx context.Context, req *sdk.CallToolRequest, args SnapshotInput) (_ *sdk.CallToolResult, _ SnapshotOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tendril_snapshot", start, retErr, sanitizeToolParams(map[string]interface{}{
			"format": args.Format, "record": args.Record,
		}))
	}()

	if err := s.limits.Check(ratelimit.OpSnapshot, 1); err != nil {
		return nil, SnapshotOutput{}, err
	}

	format := constants.FormatJSON
	if args.Format != "" {
		format = constants.Format(args.Format)
	}
	if !format.Valid() {
		return nil, SnapshotOutput{}, fmt.Errorf("unsupported format %q (use 'text', 'json', or 'dot')", args.Format)
	}

	snap := s.driver.Snapshot()
	body, err := visualization.Render(ctx, snap, format)
	if err != nil {
		return nil, SnapshotOutput{}, fmt.Errorf("render snapshot: %w", err)
	}
	if args.Record {
		if err := s.driver.SnapshotToTrace(ctx); err != nil {
			return nil, SnapshotOutput{}, fmt.Errorf("record snapshot: %w", err)
		}
	}

	return nil, SnapshotOutput{
		Format:    string(format),
		Tick:      snap.Tick,
		Graph:     string(body),
		NodeCount: len(snap.Nodes),
		FlowCount: len(snap.Flows),
	}, nil
}

// handleStatus implements the tendril_status tool.
func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tendril_status", start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	return nil, statusOutput(s.driver.Status()), nil
}

// handleLoad implements the tendril_load tool.
func (s *Server) handleLoad(ctx context.Context, req *sdk.CallToolRequest, args LoadInput) (_ *sdk.CallToolResult, _ LoadOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("tendril_load", start, retErr, sanitizeToolParams(map[string]interface{}{
			"program": args.Program, "seed": args.Seed,
		}))
	}()

	if err := s.limits.Check(ratelimit.OpLoad, 1); err != nil {
		return nil, LoadOutput{}, err
	}

	p, err := visualization.LoadProgram(args.Program, s.allowedDirs)
	if err != nil {
		return nil, LoadOutput{}, err
	}
	if err := s.driver.Reload(ctx, p, args.Seed); err != nil {
		return nil, LoadOutput{}, fmt.Errorf("load %s: %w", p.Name, err)
	}

	st := s.driver.Status()
	return nil, LoadOutput{
		Status:  statusOutput(st),
		Message: fmt.Sprintf("loaded %s (seed %d): %d nodes, %d flows", st.Program, st.Seed, st.Nodes, st.Flows),
	}, nil
}

func statusOutput(st driver.Status) StatusOutput {
	out := StatusOutput{
		Program:    st.Program,
		Seed:       st.Seed,
		Mode:       st.Mode,
		Tick:       st.Tick,
		NextPhase:  st.NextPhase,
		Paused:     st.Paused,
		Nodes:      st.Nodes,
		Flows:      st.Flows,
		Boundaries: st.Boundaries,
		RunID:      st.RunID,
	}
	if st.Last != nil {
		out.LastError = st.Last.Error
		out.MeanWeight = st.Last.MeanWeight
	}
	return out
}
