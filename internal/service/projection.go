package service

import (
	"github.com/Strob0t/simgate/internal/domain/simulation"
)

// ReasoningPayload is the compact projection of a result handed to a
// reasoning client as structured content.
type ReasoningPayload struct {
	Success         bool                        `json:"success"`
	RunID           string                      `json:"runId"`
	InputHash       string                      `json:"inputHash,omitempty"`
	Phase           simulation.Phase            `json:"phase"`
	MC              *simulation.MonteCarlo      `json:"mc,omitempty"`
	Trajectory      []SampledPoint              `json:"trajectory"`
	Schedule        []simulation.ScheduleEntry  `json:"schedule,omitempty"`
	AnnualSnapshots []simulation.AnnualSnapshot `json:"annualSnapshots,omitempty"`
	Narrative       string                      `json:"narrative"`
	ViewerURL       string                      `json:"viewerUrl,omitempty"`
}

// NeedsInputPayload asks the caller to supply or correct profile fields.
type NeedsInputPayload struct {
	Success       bool               `json:"success"`
	NeedsInput    bool               `json:"needsInput"`
	Code          string             `json:"code"`
	Message       string             `json:"message"`
	MissingFields []string           `json:"missingFields"`
	InvalidFields []simulation.Issue `json:"invalidFields,omitempty"`
	Draft         map[string]any     `json:"draft"`
}

// FailurePayload reports a simulation that could not run.
type FailurePayload struct {
	Success bool           `json:"success"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// BuildReasoning projects res for a reasoning consumer. It only omits data:
// every figure comes straight from res or from sampling its trajectory.
func BuildReasoning(res *simulation.Result, req *simulation.Request, inputHash, viewerURL string) ReasoningPayload {
	phase := res.PhaseOrDefault()

	horizon := res.HorizonMonths
	if horizon <= 0 {
		horizon = req.HorizonMonths
	}
	age := res.CurrentAge
	if age <= 0 {
		age = req.CurrentAge
	}

	p := ReasoningPayload{
		Success:    true,
		RunID:      res.RunID,
		InputHash:  inputHash,
		Phase:      phase,
		MC:         leanMonteCarlo(res.MC),
		Trajectory: SampleTrajectory(res.Trajectory, age, horizon),
		Schedule:   res.Schedule,
		Narrative:  BuildNarrative(phase, res.MC, horizon),
		ViewerURL:  viewerURL,
	}
	if req.Verbosity == simulation.VerbosityDetailed {
		p.AnnualSnapshots = res.AnnualSnapshots
	}
	return p
}

// leanMonteCarlo copies mc, dropping a zero constraint probability so it is
// omitted rather than reported as 0.
func leanMonteCarlo(mc *simulation.MonteCarlo) *simulation.MonteCarlo {
	if mc == nil {
		return nil
	}
	out := *mc
	if out.EverBreach() <= 0 {
		out.ConstraintProbability = nil
	}
	return &out
}
