package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/simgate/internal/adapter/engine"
	"github.com/Strob0t/simgate/internal/domain/simulation"
	"github.com/Strob0t/simgate/internal/resilience"
)

func testRequest() *simulation.Request {
	return &simulation.Request{
		InvestableAssets: 300000,
		AnnualSpending:   50000,
		CurrentAge:       40,
		ExpectedIncome:   100000,
		Seed:             1738368000,
		StartYear:        2026,
		HorizonMonths:    660,
		Verbosity:        simulation.VerbositySummary,
	}
}

func TestRun_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simulate" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth %q", auth)
		}
		var req simulation.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Seed != 1738368000 {
			t.Errorf("seed not forwarded: %d", req.Seed)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"runId": "run-42",
			"mc": {"finalNetWorthP10": 1, "finalNetWorthP50": 2, "finalNetWorthP75": 3, "runwayMonthsP50": 660},
			"phaseInfo": {"phase": "accumulation"},
			"trajectory": [{"month": 0, "p50": 300000}]
		}`))
	}))
	defer srv.Close()

	out := engine.NewClient(srv.URL+"/", "secret", 5*time.Second).Run(context.Background(), testRequest())
	if !out.IsOK() {
		t.Fatalf("expected success, got %+v", out.Failure)
	}
	if out.Result.RunID != "run-42" || out.Result.MC.FinalNetWorthP50 != 2 {
		t.Errorf("unexpected result %+v", out.Result)
	}
	if *out.Result.MC.RunwayMonthsP50 != 660 || out.Result.PhaseOrDefault() != simulation.PhaseAccumulation {
		t.Errorf("unexpected decoded fields %+v", out.Result)
	}
}

func TestRun_AssignsRunID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"mc": {"finalNetWorthP50": 2}}`))
	}))
	defer srv.Close()

	out := engine.NewClient(srv.URL, "", time.Second).Run(context.Background(), testRequest())
	if !out.IsOK() || out.Result.RunID == "" || !out.Result.Success {
		t.Fatalf("expected generated run id, got %+v %+v", out.Result, out.Failure)
	}
}

func TestRun_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   simulation.ErrorKind
	}{
		{"engine input error", http.StatusUnprocessableEntity,
			`{"success":false,"error":{"code":"MISSING_INPUT","message":"currentAge is required","details":{"field":"currentAge"}}}`,
			simulation.KindInputMissing},
		{"engine error with 200", http.StatusOK,
			`{"success":false,"error":{"code":"INVALID_INPUT","message":"bad"}}`,
			simulation.KindInputOutOfRange},
		{"unknown code on 5xx", http.StatusInternalServerError,
			`{"success":false,"error":{"code":"KABOOM","message":"x"}}`,
			simulation.KindEngineInternal},
		{"plain 5xx", http.StatusBadGateway, `upstream down`, simulation.KindEngineInternal},
		{"plain 4xx", http.StatusNotFound, `nope`, simulation.KindUnknown},
		{"garbage body", http.StatusOK, `{"mc": `, simulation.KindParseFailure},
		{"failure without error", http.StatusOK, `{"success": false}`, simulation.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			out := engine.NewClient(srv.URL, "", time.Second).Run(context.Background(), testRequest())
			if out.IsOK() {
				t.Fatal("expected failure")
			}
			if out.Failure.Kind != tt.want {
				t.Errorf("kind = %s, want %s (%s)", out.Failure.Kind, tt.want, out.Failure.Message)
			}
		})
	}
}

func TestRun_EngineDetailsPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"MISSING_INPUT","message":"currentAge is required","details":{"field":"currentAge"}}}`))
	}))
	defer srv.Close()

	out := engine.NewClient(srv.URL, "", time.Second).Run(context.Background(), testRequest())
	if out.Failure == nil || out.Failure.Details["field"] != "currentAge" || out.Failure.Message != "currentAge is required" {
		t.Fatalf("unexpected failure %+v", out.Failure)
	}
}

func TestRun_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	out := engine.NewClient(srv.URL, "", 50*time.Millisecond).Run(context.Background(), testRequest())
	if out.IsOK() || out.Failure.Kind != simulation.KindEngineTimeout {
		t.Fatalf("expected timeout, got %+v", out.Failure)
	}
	if out.Failure.Kind.Code() != "ENGINE_TIMEOUT" {
		t.Errorf("unexpected code %s", out.Failure.Kind.Code())
	}
}

func TestRun_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := engine.NewClient(url, "", time.Second).Run(context.Background(), testRequest())
	if out.IsOK() || out.Failure.Kind != simulation.KindEngineUnreachable {
		t.Fatalf("expected unreachable, got %+v", out.Failure)
	}
}

func TestRun_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := engine.NewClient(srv.URL, "", time.Second)
	c.SetBreaker(resilience.NewBreaker("engine", 1, time.Minute))

	first := c.Run(context.Background(), testRequest())
	if first.Failure.Kind != simulation.KindEngineInternal {
		t.Fatalf("expected internal fault first, got %s", first.Failure.Kind)
	}
	second := c.Run(context.Background(), testRequest())
	if second.Failure.Kind != simulation.KindEngineUnreachable {
		t.Fatalf("expected unreachable while open, got %s", second.Failure.Kind)
	}
	if hits.Load() != 1 {
		t.Errorf("open breaker must not reach the engine, hits=%d", hits.Load())
	}
}

func TestRun_InputErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"WRONG_TYPE","message":"seed must be a number"}}`))
	}))
	defer srv.Close()

	c := engine.NewClient(srv.URL, "", time.Second)
	c.SetBreaker(resilience.NewBreaker("engine", 1, time.Minute))

	for i := 0; i < 3; i++ {
		if out := c.Run(context.Background(), testRequest()); out.Failure.Kind != simulation.KindInputWrongType {
			t.Fatalf("call %d: unexpected kind %s", i, out.Failure.Kind)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("expected every call to reach the engine, hits=%d", hits.Load())
	}
}

func TestRun_KeySourceOverridesStaticKey(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success": true, "runId": "r", "mc": {}}`))
	}))
	defer srv.Close()

	key := "rotated"
	c := engine.NewClient(srv.URL, "static", time.Second)
	c.SetKeySource(func() string { return key })

	c.Run(context.Background(), testRequest())
	if got.Load() != "Bearer rotated" {
		t.Fatalf("expected rotated key, got %v", got.Load())
	}

	key = ""
	c.Run(context.Background(), testRequest())
	if got.Load() != "Bearer static" {
		t.Fatalf("expected fallback to static key, got %v", got.Load())
	}
}
