// Package simulation defines the request, result and error model of a Monte
// Carlo simulation run by the external engine.
package simulation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Verbosity selects how much of the result is projected for a reasoning consumer.
type Verbosity string

const (
	VerbositySummary  Verbosity = "summary"
	VerbosityDetailed Verbosity = "detailed"
)

// Required argument names.
const (
	FieldInvestableAssets = "investableAssets"
	FieldAnnualSpending   = "annualSpending"
	FieldCurrentAge       = "currentAge"
	FieldExpectedIncome   = "expectedIncome"
)

// Optional argument names.
const (
	FieldSeed          = "seed"
	FieldStartYear     = "startYear"
	FieldHorizonMonths = "horizonMonths"
	FieldVerbosity     = "verbosity"
)

// RequiredFields lists the profile fields every simulation needs, in the
// order they are reported back to the caller.
var RequiredFields = []string{
	FieldInvestableAssets,
	FieldAnnualSpending,
	FieldCurrentAge,
	FieldExpectedIncome,
}

// StrategyKeys are the optional strategy sub-objects forwarded to the engine
// verbatim. Each must be a JSON object when present.
var StrategyKeys = []string{
	"assetAllocation",
	"withdrawalStrategy",
	"spendingGuardrails",
	"rebalancing",
	"returnAssumptions",
	"inflation",
	"incomeGrowth",
	"retirement",
	"socialSecurity",
	"pension",
	"annuity",
	"rothConversion",
	"taxProfile",
	"accountBalances",
	"healthcare",
	"longTermCare",
	"housing",
	"mortgage",
	"oneTimeEvents",
	"legacy",
}

// Limits applied by Validate.
const (
	DefaultEndAge    = 95
	DefaultHorizon   = 360
	MinHorizonMonths = 12
	MaxHorizonMonths = 1200
	MaxAge           = 120
	MinStartYear     = 1970
	MaxStartYear     = 2200
)

// Request is a fully-populated simulation request. Every field has a value
// once Normalize returns without issues.
type Request struct {
	InvestableAssets float64                   `json:"investableAssets"`
	AnnualSpending   float64                   `json:"annualSpending"`
	CurrentAge       int                       `json:"currentAge"`
	ExpectedIncome   float64                   `json:"expectedIncome"`
	Seed             int64                     `json:"seed"`
	StartYear        int                       `json:"startYear"`
	HorizonMonths    int                       `json:"horizonMonths"`
	Verbosity        Verbosity                 `json:"verbosity"`
	Strategies       map[string]map[string]any `json:"strategies,omitempty"`
}

// Normalize decodes raw tool arguments into a Request. Defaults are applied
// first (seed from now, startYear from the calendar year, horizon to age 95),
// caller-supplied values are merged over them, and every required field that
// is absent or of the wrong type is reported as an Issue. Range checks are
// left to Validate.
func Normalize(args map[string]any, now time.Time) (Request, []Issue) {
	req := Request{
		Seed:      now.Unix(),
		StartYear: now.Year(),
		Verbosity: VerbositySummary,
	}
	var issues []Issue

	num := func(field string, required bool, dst func(float64)) {
		raw, ok := args[field]
		if !ok || raw == nil {
			if required {
				issues = append(issues, Issue{Field: field, Kind: KindInputMissing, Message: field + " is required"})
			}
			return
		}
		v, ok := toFloat(raw)
		if !ok {
			issues = append(issues, Issue{Field: field, Kind: KindInputWrongType, Message: field + " must be a number"})
			return
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			issues = append(issues, Issue{Field: field, Kind: KindInputMalformed, Message: field + " must be finite"})
			return
		}
		dst(v)
	}

	num(FieldInvestableAssets, true, func(v float64) { req.InvestableAssets = v })
	num(FieldAnnualSpending, true, func(v float64) { req.AnnualSpending = v })
	num(FieldCurrentAge, true, func(v float64) { req.CurrentAge = int(math.Round(v)) })
	num(FieldExpectedIncome, true, func(v float64) { req.ExpectedIncome = v })
	num(FieldSeed, false, func(v float64) { req.Seed = int64(v) })
	num(FieldStartYear, false, func(v float64) { req.StartYear = int(v) })

	req.HorizonMonths = defaultHorizon(req.CurrentAge)
	num(FieldHorizonMonths, false, func(v float64) { req.HorizonMonths = int(v) })

	if raw, ok := args[FieldVerbosity]; ok && raw != nil {
		s, isStr := raw.(string)
		switch Verbosity(s) {
		case VerbositySummary, VerbosityDetailed:
			req.Verbosity = Verbosity(s)
		default:
			if !isStr {
				issues = append(issues, Issue{Field: FieldVerbosity, Kind: KindInputWrongType, Message: "verbosity must be a string"})
			} else {
				issues = append(issues, Issue{Field: FieldVerbosity, Kind: KindInputOutOfRange, Message: `verbosity must be "summary" or "detailed"`})
			}
		}
	}

	for _, key := range StrategyKeys {
		raw, ok := args[key]
		if !ok || raw == nil {
			continue
		}
		obj, isObj := raw.(map[string]any)
		if !isObj {
			issues = append(issues, Issue{Field: key, Kind: KindInputWrongType, Message: key + " must be an object"})
			continue
		}
		if req.Strategies == nil {
			req.Strategies = make(map[string]map[string]any)
		}
		req.Strategies[key] = obj
	}

	return req, issues
}

// Validate range-checks a normalized request.
func Validate(req *Request) []Issue {
	var issues []Issue
	bad := func(field, msg string) {
		issues = append(issues, Issue{Field: field, Kind: KindInputOutOfRange, Message: msg})
	}
	if req.InvestableAssets <= 0 {
		bad(FieldInvestableAssets, "investableAssets must be greater than 0")
	}
	if req.AnnualSpending <= 0 {
		bad(FieldAnnualSpending, "annualSpending must be greater than 0")
	}
	if req.CurrentAge <= 0 || req.CurrentAge > MaxAge {
		bad(FieldCurrentAge, fmt.Sprintf("currentAge must be between 1 and %d", MaxAge))
	}
	if req.ExpectedIncome < 0 {
		bad(FieldExpectedIncome, "expectedIncome must not be negative")
	}
	if req.StartYear < MinStartYear || req.StartYear > MaxStartYear {
		bad(FieldStartYear, fmt.Sprintf("startYear must be between %d and %d", MinStartYear, MaxStartYear))
	}
	if req.HorizonMonths < MinHorizonMonths || req.HorizonMonths > MaxHorizonMonths {
		bad(FieldHorizonMonths, fmt.Sprintf("horizonMonths must be between %d and %d", MinHorizonMonths, MaxHorizonMonths))
	}
	return issues
}

// Draft returns the caller-supplied values that were usable, keyed by
// argument name, so a client can resubmit after filling the gaps.
func Draft(args map[string]any, issues []Issue) map[string]any {
	rejected := make(map[string]bool, len(issues))
	for _, is := range issues {
		rejected[is.Field] = true
	}
	draft := make(map[string]any)
	for _, f := range append(append([]string{}, RequiredFields...), FieldSeed, FieldStartYear, FieldHorizonMonths, FieldVerbosity) {
		if v, ok := args[f]; ok && v != nil && !rejected[f] {
			draft[f] = v
		}
	}
	return draft
}

// InputHash returns a stable digest of the request as sent to the engine.
// encoding/json emits struct fields in declaration order and map keys sorted,
// so equal requests always hash equally.
func InputHash(req *Request) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func defaultHorizon(age int) int {
	if age > 0 && age < DefaultEndAge {
		return (DefaultEndAge - age) * 12
	}
	return DefaultHorizon
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
