package service

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/Strob0t/simgate/internal/domain/simulation"
)

// fragmentPrefix separates the viewer URL from the encoded payload. Browsers
// never send the part after '#' to a server.
const fragmentPrefix = "/viewer#d="

// fragmentPayload is the subset of a result the client-side viewer renders.
type fragmentPayload struct {
	RunID           string                       `json:"runId"`
	Success         bool                         `json:"success"`
	StartYear       int                          `json:"startYear,omitempty"`
	CurrentAge      int                          `json:"currentAge,omitempty"`
	HorizonMonths   int                          `json:"horizonMonths,omitempty"`
	MC              *simulation.MonteCarlo       `json:"mc,omitempty"`
	Phase           *simulation.PhaseInfo        `json:"phaseInfo,omitempty"`
	Trajectory      []simulation.TrajectoryPoint `json:"trajectory,omitempty"`
	Schedule        []simulation.ScheduleEntry   `json:"schedule,omitempty"`
	AnnualSnapshots []simulation.AnnualSnapshot  `json:"annualSnapshots,omitempty"`
	FirstMonth      *simulation.MonthLedger      `json:"firstMonth,omitempty"`
}

// FragmentEncoder builds viewer links that carry a compressed result in the
// URL fragment.
type FragmentEncoder struct {
	baseURL  string
	maxBytes int
}

// NewFragmentEncoder creates an encoder. An empty baseURL or a non-positive
// maxBytes disables links.
func NewFragmentEncoder(baseURL string, maxBytes int) *FragmentEncoder {
	return &FragmentEncoder{baseURL: strings.TrimSuffix(baseURL, "/"), maxBytes: maxBytes}
}

// Link returns the viewer URL for res, or false when no link can be built.
// Failures are logged and never returned. When the encoded payload exceeds
// the budget, optional sections are dropped until it fits: annual snapshots,
// first-month events, trajectory density, then the schedule.
func (e *FragmentEncoder) Link(res *simulation.Result) (string, bool) {
	if e == nil || e.baseURL == "" || e.maxBytes <= 0 || res == nil {
		return "", false
	}

	p := leanFragment(res)
	for _, shrink := range fragmentShrinkers() {
		encoded, err := encodeFragment(&p)
		if err != nil {
			slog.Warn("viewer link encoding failed", "run_id", res.RunID, "error", err)
			return "", false
		}
		if len(encoded) <= e.maxBytes {
			slog.Debug("viewer link built", "run_id", res.RunID, "viewer", e.baseURL+"/viewer", "bytes", len(encoded))
			return e.baseURL + fragmentPrefix + encoded, true
		}
		if shrink == nil {
			break
		}
		shrink(&p)
	}

	slog.Info("viewer link omitted: payload over budget", "run_id", res.RunID, "max_bytes", e.maxBytes)
	return "", false
}

func leanFragment(res *simulation.Result) fragmentPayload {
	p := fragmentPayload{
		RunID:           res.RunID,
		Success:         res.Success,
		StartYear:       res.StartYear,
		CurrentAge:      res.CurrentAge,
		HorizonMonths:   res.HorizonMonths,
		MC:              res.MC,
		Phase:           res.Phase,
		Trajectory:      res.Trajectory,
		Schedule:        res.Schedule,
		AnnualSnapshots: res.AnnualSnapshots,
	}
	if res.FirstMonth != nil {
		fm := *res.FirstMonth
		p.FirstMonth = &fm
	}
	return p
}

// fragmentShrinkers lists the reductions applied in order. The trailing nil
// marks the last attempt.
func fragmentShrinkers() []func(*fragmentPayload) {
	thin := func(p *fragmentPayload) { p.Trajectory = thinTrajectory(p.Trajectory) }
	return []func(*fragmentPayload){
		func(p *fragmentPayload) { p.AnnualSnapshots = nil },
		func(p *fragmentPayload) {
			if p.FirstMonth != nil {
				p.FirstMonth.Events = nil
			}
		},
		thin, thin, thin,
		func(p *fragmentPayload) { p.Schedule = nil },
		nil,
	}
}

// thinTrajectory keeps every other point plus the last one.
func thinTrajectory(points []simulation.TrajectoryPoint) []simulation.TrajectoryPoint {
	if len(points) <= 2 {
		return points
	}
	out := make([]simulation.TrajectoryPoint, 0, len(points)/2+2)
	for i := 0; i < len(points); i += 2 {
		out = append(out, points[i])
	}
	if last := points[len(points)-1]; out[len(out)-1].Month != last.Month {
		out = append(out, last)
	}
	return out
}

func encodeFragment(p *fragmentPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal fragment: %w", err)
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("compress fragment: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress fragment: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeFragment reverses the link encoding and returns the payload JSON.
// It accepts either a full viewer link or the bare encoded segment.
func DecodeFragment(link string) ([]byte, error) {
	encoded := link
	if i := strings.Index(link, "#d="); i >= 0 {
		encoded = link[i+len("#d="):]
	}
	if encoded == "" {
		return nil, errors.New("empty fragment")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode fragment: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress fragment: %w", err)
	}
	return data, nil
}
