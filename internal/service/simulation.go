package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/simgate/internal/adapter/otel"
	"github.com/Strob0t/simgate/internal/domain/simulation"
	"github.com/Strob0t/simgate/internal/logger"
	"github.com/Strob0t/simgate/internal/port/cache"
	"github.com/Strob0t/simgate/internal/port/engine"
	"github.com/Strob0t/simgate/internal/port/events"
)

// ToolName is the name of the single simulation tool.
const ToolName = "run_simulation"

// ToolResponse is the transport-neutral answer to one tool invocation.
// Structured is the reasoning projection (or a needs-input/failure payload)
// and Widget is the full rendering payload, set on success only.
type ToolResponse struct {
	Text       string
	Structured any
	Widget     any
	Success    bool
	Code       string
}

// SimulationDeps bundles the collaborators of SimulationService. Cache,
// Events and Metrics are optional.
type SimulationDeps struct {
	Engine    engine.Engine
	Fragments *FragmentEncoder
	Cache     cache.Cache
	CacheTTL  time.Duration
	Events    events.Publisher
	Subject   string
	Metrics   *cfotel.Metrics
}

// SimulationService answers simulation tool calls: it defaults and validates
// the arguments, runs the engine and projects the result.
type SimulationService struct {
	engine    engine.Engine
	fragments *FragmentEncoder
	cache     cache.Cache
	cacheTTL  time.Duration
	events    events.Publisher
	subject   string
	metrics   *cfotel.Metrics
	group     singleflight.Group
	now       func() time.Time
}

// NewSimulationService creates a SimulationService.
func NewSimulationService(deps SimulationDeps) *SimulationService {
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	subject := deps.Subject
	if subject == "" {
		subject = events.SubjectRunCompleted
	}
	return &SimulationService{
		engine:    deps.Engine,
		fragments: deps.Fragments,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		events:    pub,
		subject:   subject,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for seed and start-year defaults.
func (s *SimulationService) SetClock(now func() time.Time) {
	s.now = now
}

// Invoke runs one tool call. Simulation failures are always reported in the
// returned ToolResponse, never as a Go error.
func (s *SimulationService) Invoke(ctx context.Context, args map[string]any) ToolResponse {
	start := s.now()
	ctx, span := cfotel.StartToolSpan(ctx, ToolName, logger.SessionID(ctx))
	defer span.End()

	req, issues := simulation.Normalize(args, start)
	issues = append(issues, rangeIssues(&req, issues)...)

	var (
		resp   ToolResponse
		runID  string
		phase  string
		hash   string
		cached bool
	)

	if len(issues) > 0 {
		resp = s.needsInput(args, issues)
	} else {
		hash = simulation.InputHash(&req)
		var outcome simulation.Outcome
		outcome, cached = s.run(ctx, &req, hash)
		switch {
		case outcome.IsOK():
			resp = s.success(ctx, outcome.Result, &req, hash)
			runID = outcome.Result.RunID
			phase = string(outcome.Result.PhaseOrDefault())
		case outcome.Failure != nil && outcome.Failure.Kind.IsInput():
			resp = s.needsInput(args, engineIssues(outcome.Failure, issuesFromArgs(args)))
		default:
			resp = failure(outcome.Failure)
		}
	}

	if !resp.Success {
		span.SetStatus(codes.Error, resp.Code)
	}
	elapsed := time.Since(start)
	s.record(ctx, resp, elapsed)
	s.publish(ctx, events.RunCompleted{
		RunID:      runID,
		Success:    resp.Success,
		Code:       resp.Code,
		Phase:      phase,
		InputHash:  hash,
		DurationMS: elapsed.Milliseconds(),
		Cached:     cached,
	})

	slog.Info("tool invocation finished",
		"tool", ToolName,
		"session_id", logger.SessionID(ctx),
		"run_id", runID,
		"success", resp.Success,
		"code", resp.Code,
		"cached", cached,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp
}

// run returns the engine outcome for req, serving repeated deterministic
// requests from the cache and collapsing concurrent identical calls into one.
// The engine call is detached from ctx cancellation: a client that goes away
// does not abort a simulation already in flight.
func (s *SimulationService) run(ctx context.Context, req *simulation.Request, hash string) (simulation.Outcome, bool) {
	if res, ok := s.cached(ctx, hash); ok {
		return simulation.Ok(res), true
	}

	v, _, _ := s.group.Do(hash, func() (any, error) {
		engineCtx, span := cfotel.StartEngineSpan(context.WithoutCancel(ctx), hash)
		defer span.End()

		began := time.Now()
		outcome := s.engine.Run(engineCtx, req)
		if s.metrics != nil {
			s.metrics.EngineDuration.Record(engineCtx, time.Since(began).Seconds())
		}
		if !outcome.IsOK() {
			if outcome.Failure != nil {
				span.SetStatus(codes.Error, outcome.Failure.Kind.Code())
			}
			return outcome, nil
		}
		s.store(engineCtx, hash, outcome.Result)
		return outcome, nil
	})
	return v.(simulation.Outcome), false
}

func (s *SimulationService) cached(ctx context.Context, hash string) (*simulation.Result, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, hash)
	if err != nil {
		slog.Warn("outcome cache read failed", "input_hash", hash, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res simulation.Result
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("outcome cache entry corrupt", "input_hash", hash, "error", err)
		_ = s.cache.Delete(ctx, hash)
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHits.Add(ctx, 1)
	}
	return &res, true
}

func (s *SimulationService) store(ctx context.Context, hash string, res *simulation.Result) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("outcome cache encode failed", "input_hash", hash, "error", err)
		return
	}
	if err := s.cache.Set(ctx, hash, data, s.cacheTTL); err != nil {
		slog.Warn("outcome cache write failed", "input_hash", hash, "error", err)
	}
}

func (s *SimulationService) success(ctx context.Context, res *simulation.Result, req *simulation.Request, hash string) ToolResponse {
	link, ok := s.fragments.Link(res)
	if ok && s.metrics != nil {
		s.metrics.FragmentBytes.Record(ctx, int64(len(link)))
	}

	reasoning := BuildReasoning(res, req, hash, link)
	text := reasoning.Narrative
	if ok {
		text += "\n\nInteractive view: " + link
	}
	return ToolResponse{
		Text:       text,
		Structured: reasoning,
		Widget:     res,
		Success:    true,
	}
}

func (s *SimulationService) needsInput(args map[string]any, issues []simulation.Issue) ToolResponse {
	missing := []string{}
	var invalid []simulation.Issue
	for _, is := range issues {
		if is.Kind == simulation.KindInputMissing && is.Field != "" {
			missing = append(missing, is.Field)
		} else {
			invalid = append(invalid, is)
		}
	}

	code := simulation.KindInputMissing.Code()
	if len(missing) == 0 && len(invalid) > 0 {
		code = invalid[0].Kind.Code()
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	for _, is := range invalid {
		parts = append(parts, is.Message)
	}
	msg := "More information is needed before the simulation can run (" + strings.Join(parts, "; ") + ")."

	return ToolResponse{
		Text: msg,
		Structured: NeedsInputPayload{
			NeedsInput:    true,
			Code:          code,
			Message:       msg,
			MissingFields: missing,
			InvalidFields: invalid,
			Draft:         simulation.Draft(args, issues),
		},
		Code: code,
	}
}

func failure(f *simulation.Failure) ToolResponse {
	if f == nil {
		f = &simulation.Failure{Kind: simulation.KindUnknown, Message: "engine returned no result"}
	}
	code := f.Kind.Code()
	return ToolResponse{
		Text: fmt.Sprintf("The simulation could not be completed (%s): %s", code, f.Message),
		Structured: FailurePayload{
			Code:    code,
			Message: f.Message,
			Details: f.Details,
		},
		Code: code,
	}
}

func (s *SimulationService) record(ctx context.Context, resp ToolResponse, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	code := resp.Code
	if resp.Success {
		code = "OK"
	}
	attrs := metric.WithAttributes(attribute.String("tool", ToolName), attribute.String("code", code))
	s.metrics.ToolCalls.Add(ctx, 1, attrs)
	s.metrics.ToolDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (s *SimulationService) publish(ctx context.Context, ev events.RunCompleted) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), s.subject, data); err != nil {
		slog.Warn("run event publish failed", "subject", s.subject, "error", err)
	}
}

// rangeIssues range-checks fields that passed Normalize. Fields already
// reported missing or mistyped are not reported twice.
func rangeIssues(req *simulation.Request, prior []simulation.Issue) []simulation.Issue {
	flagged := make(map[string]bool, len(prior))
	for _, is := range prior {
		flagged[is.Field] = true
	}
	var out []simulation.Issue
	for _, is := range simulation.Validate(req) {
		if !flagged[is.Field] {
			out = append(out, is)
		}
	}
	return out
}

// issuesFromArgs reports the required fields absent from args.
func issuesFromArgs(args map[string]any) []simulation.Issue {
	var out []simulation.Issue
	for _, f := range simulation.RequiredFields {
		if v, ok := args[f]; !ok || v == nil {
			out = append(out, simulation.Issue{Field: f, Kind: simulation.KindInputMissing, Message: f + " is required"})
		}
	}
	return out
}

// engineIssues turns an input-class engine failure into issues. The engine
// names offending fields in details["fields"] or details["field"]; when it
// names none, the locally missing fields are used, and failing that a single
// issue without a field carries the engine message.
func engineIssues(f *simulation.Failure, local []simulation.Issue) []simulation.Issue {
	var fields []string
	switch v := f.Details["fields"].(type) {
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok {
				fields = append(fields, s)
			}
		}
	case []string:
		fields = append(fields, v...)
	}
	if s, ok := f.Details["field"].(string); ok && s != "" {
		fields = append(fields, s)
	}

	if len(fields) == 0 {
		if len(local) > 0 {
			return local
		}
		return []simulation.Issue{{Kind: f.Kind, Message: f.Message}}
	}

	sort.Strings(fields)
	out := make([]simulation.Issue, 0, len(fields))
	for i, field := range fields {
		if i > 0 && fields[i-1] == field {
			continue
		}
		out = append(out, simulation.Issue{Field: field, Kind: f.Kind, Message: f.Message})
	}
	return out
}
