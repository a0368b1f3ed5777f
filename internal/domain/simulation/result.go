package simulation

// Phase is the engine's classification of the financial trajectory regime.
type Phase string

const (
	PhaseAccumulation Phase = "accumulation"
	PhaseTransition   Phase = "transition"
	PhaseDecumulation Phase = "decumulation"
)

// ParsePhase maps an engine phase label to a Phase. Absent or unrecognized
// labels are treated as a transition.
func ParsePhase(s string) Phase {
	switch Phase(s) {
	case PhaseAccumulation, PhaseDecumulation:
		return Phase(s)
	default:
		return PhaseTransition
	}
}

// TrajectoryPoint is one percentile sample of net worth at a month offset
// from the simulation start. Missing percentiles are nil.
type TrajectoryPoint struct {
	Month int      `json:"month"`
	P10   *float64 `json:"p10,omitempty"`
	P50   *float64 `json:"p50,omitempty"`
	P75   *float64 `json:"p75,omitempty"`
}

// MonteCarlo holds the summary statistics of all simulated paths.
type MonteCarlo struct {
	Paths            int     `json:"paths,omitempty"`
	FinalNetWorthP10 float64 `json:"finalNetWorthP10"`
	FinalNetWorthP50 float64 `json:"finalNetWorthP50"`
	FinalNetWorthP75 float64 `json:"finalNetWorthP75"`

	// Months until a path first becomes constrained. A path that never does
	// reports the full horizon. Nil when the engine did not compute runway.
	RunwayMonthsP10 *int `json:"runwayMonthsP10,omitempty"`
	RunwayMonthsP50 *int `json:"runwayMonthsP50,omitempty"`
	RunwayMonthsP75 *int `json:"runwayMonthsP75,omitempty"`

	// ConstraintProbability is the fraction (0..1) of paths that ever breach.
	// The engine omits it when no path breached, so nil means zero.
	ConstraintProbability *float64 `json:"constraintProbability,omitempty"`
}

// EverBreach returns the constraint probability with absence read as zero.
func (m *MonteCarlo) EverBreach() float64 {
	if m == nil || m.ConstraintProbability == nil {
		return 0
	}
	return *m.ConstraintProbability
}

// PhaseInfo carries the engine's phase classification.
type PhaseInfo struct {
	Phase         Phase  `json:"phase"`
	Reason        string `json:"reason,omitempty"`
	TransitionAge *int   `json:"transitionAge,omitempty"`
}

// ScheduleEntry is a dated event in the simulated plan (retirement, pension start, ...).
type ScheduleEntry struct {
	Age    int     `json:"age"`
	Year   int     `json:"year"`
	Event  string  `json:"event"`
	Amount float64 `json:"amount,omitempty"`
}

// AnnualSnapshot is a per-year median view of the plan.
type AnnualSnapshot struct {
	Year        int     `json:"year"`
	Age         int     `json:"age"`
	NetWorthP10 float64 `json:"netWorthP10"`
	NetWorthP50 float64 `json:"netWorthP50"`
	NetWorthP75 float64 `json:"netWorthP75"`
	Income      float64 `json:"income"`
	Spending    float64 `json:"spending"`
	Taxes       float64 `json:"taxes"`
}

// LedgerEvent is one cash movement in the first simulated month.
type LedgerEvent struct {
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
}

// MonthLedger is the event ledger of a single month.
type MonthLedger struct {
	Month       int           `json:"month"`
	Income      float64       `json:"income"`
	Spending    float64       `json:"spending"`
	Taxes       float64       `json:"taxes"`
	NetCashFlow float64       `json:"netCashFlow"`
	Events      []LedgerEvent `json:"events,omitempty"`
}

// Result is the engine output for a successful simulation. It is never
// mutated after the engine returns it.
type Result struct {
	RunID           string            `json:"runId"`
	Success         bool              `json:"success"`
	InputHash       string            `json:"inputHash,omitempty"`
	Seed            int64             `json:"seed"`
	StartYear       int               `json:"startYear"`
	CurrentAge      int               `json:"currentAge"`
	HorizonMonths   int               `json:"horizonMonths"`
	MC              *MonteCarlo       `json:"mc,omitempty"`
	Phase           *PhaseInfo        `json:"phaseInfo,omitempty"`
	Trajectory      []TrajectoryPoint `json:"trajectory,omitempty"`
	Schedule        []ScheduleEntry   `json:"schedule,omitempty"`
	AnnualSnapshots []AnnualSnapshot  `json:"annualSnapshots,omitempty"`
	FirstMonth      *MonthLedger      `json:"firstMonth,omitempty"`
	Diagnostics     map[string]any    `json:"diagnostics,omitempty"`
}

// PhaseOrDefault returns the classified phase, defaulting to transition.
func (r *Result) PhaseOrDefault() Phase {
	if r.Phase == nil {
		return PhaseTransition
	}
	return ParsePhase(string(r.Phase.Phase))
}
