package service

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Strob0t/simgate/internal/domain/simulation"
)

var moneyPrinter = message.NewPrinter(language.English)

// BuildNarrative renders the human-readable summary for a result. The text
// depends only on the phase, the Monte Carlo figures and the horizon.
func BuildNarrative(phase simulation.Phase, mc *simulation.MonteCarlo, horizonMonths int) string {
	if mc == nil {
		mc = &simulation.MonteCarlo{}
	}
	years := horizonMonths / 12

	switch phase {
	case simulation.PhaseAccumulation:
		return accumulationNarrative(mc, years)
	case simulation.PhaseDecumulation:
		return decumulationNarrative(mc, horizonMonths)
	default:
		return transitionNarrative(mc, horizonMonths)
	}
}

func accumulationNarrative(mc *simulation.MonteCarlo, years int) string {
	return fmt.Sprintf(
		"Accumulation phase: over the next %d years the median outcome reaches %s of net worth. "+
			"Outcomes spread from %s at the 10th percentile to %s at the 75th percentile, "+
			"so market returns drive a wide range of results.",
		years, formatMoney(mc.FinalNetWorthP50), formatMoney(mc.FinalNetWorthP10), formatMoney(mc.FinalNetWorthP75))
}

func decumulationNarrative(mc *simulation.MonteCarlo, horizonMonths int) string {
	pct := breachPercent(mc)
	if pct <= 2 {
		return fmt.Sprintf(
			"Decumulation phase: assets stay funded through the full %d-year horizon in nearly all simulated paths. "+
				"Median final net worth is %s.",
			horizonMonths/12, formatMoney(mc.FinalNetWorthP50))
	}

	var b strings.Builder
	b.WriteString("Decumulation phase: ")
	if mc.RunwayMonthsP50 != nil {
		fmt.Fprintf(&b, "the median runway is %s before spending must be cut. ", FormatRunway(*mc.RunwayMonthsP50, horizonMonths))
	}
	fmt.Fprintf(&b, "%d%% of simulated paths breach the spending constraint at some point.", pct)
	return b.String()
}

func transitionNarrative(mc *simulation.MonteCarlo, horizonMonths int) string {
	if mc.EverBreach() == 0 {
		return fmt.Sprintf(
			"Transition phase: assets stay funded through the full %d-year horizon in every simulated path. "+
				"Median final net worth is %s.",
			horizonMonths/12, formatMoney(mc.FinalNetWorthP50))
	}

	var b strings.Builder
	b.WriteString("Transition phase: ")
	if mc.RunwayMonthsP50 != nil {
		fmt.Fprintf(&b, "the median runway is %s", FormatRunway(*mc.RunwayMonthsP50, horizonMonths))
		if mc.RunwayMonthsP10 != nil && mc.RunwayMonthsP75 != nil {
			fmt.Fprintf(&b, ", ranging from %s (P10) to %s (P75)",
				FormatRunway(*mc.RunwayMonthsP10, horizonMonths), FormatRunway(*mc.RunwayMonthsP75, horizonMonths))
		}
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "%d%% of simulated paths breach the spending constraint at some point.", breachPercent(mc))
	return b.String()
}

// FormatRunway renders a month count in human units. A runway that reaches
// the horizon is shown as "≥N yr".
func FormatRunway(months, horizonMonths int) string {
	if months >= horizonMonths {
		return fmt.Sprintf("≥%d yr", horizonMonths/12)
	}
	if months < 0 {
		months = 0
	}
	years, rem := months/12, months%12
	switch {
	case years == 0:
		return fmt.Sprintf("%d mo", rem)
	case rem == 0:
		return fmt.Sprintf("%d yr", years)
	default:
		return fmt.Sprintf("%d yr %d mo", years, rem)
	}
}

func breachPercent(mc *simulation.MonteCarlo) int {
	return int(math.Round(mc.EverBreach() * 100))
}

func formatMoney(v float64) string {
	n := int64(math.Round(v))
	if n < 0 {
		return moneyPrinter.Sprintf("-$%d", -n)
	}
	return moneyPrinter.Sprintf("$%d", n)
}
