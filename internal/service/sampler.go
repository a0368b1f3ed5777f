package service

import (
	"math"
	"sort"

	"github.com/Strob0t/simgate/internal/domain/simulation"
)

// SampledPoint is one age-anchored percentile sample of net worth.
type SampledPoint struct {
	Age int   `json:"age"`
	P10 int64 `json:"p10"`
	P50 int64 `json:"p50"`
	P75 int64 `json:"p75"`
}

// SampleTrajectory reduces a dense trajectory to a handful of points: the
// start age, every interval-aligned age inside the horizon (5 years, or 10
// for horizons over 25 years) and the end age. The result is sorted by age
// and never contains the same age twice.
func SampleTrajectory(points []simulation.TrajectoryPoint, currentAge, horizonMonths int) []SampledPoint {
	if len(points) == 0 {
		return []SampledPoint{}
	}

	horizonYears := horizonMonths / 12
	interval := 5
	if horizonYears > 25 {
		interval = 10
	}
	endAge := currentAge + horizonYears

	out := make([]SampledPoint, 0, horizonYears/interval+3)
	seen := make(map[int]bool)
	emit := func(age int) {
		if seen[age] {
			return
		}
		seen[age] = true
		out = append(out, samplePoint(age, findPoint(points, (age-currentAge)*12)))
	}

	emit(currentAge)
	for age := alignUp(currentAge, interval); age < endAge; age += interval {
		emit(age)
	}
	emit(endAge)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Age < out[j].Age })
	return out
}

// findPoint returns the point whose month is closest to target. The first
// point wins a tie.
func findPoint(points []simulation.TrajectoryPoint, target int) simulation.TrajectoryPoint {
	best := points[0]
	bestDiff := absInt(best.Month - target)
	for _, p := range points[1:] {
		if d := absInt(p.Month - target); d < bestDiff {
			best, bestDiff = p, d
		}
	}
	return best
}

func samplePoint(age int, p simulation.TrajectoryPoint) SampledPoint {
	p50 := 0.0
	if p.P50 != nil {
		p50 = *p.P50
	}
	p10, p75 := p50, p50
	if p.P10 != nil {
		p10 = *p.P10
	}
	if p.P75 != nil {
		p75 = *p.P75
	}
	return SampledPoint{
		Age: age,
		P10: int64(math.Round(p10)),
		P50: int64(math.Round(p50)),
		P75: int64(math.Round(p75)),
	}
}

// alignUp returns the smallest multiple of step that is >= n.
func alignUp(n, step int) int {
	if r := n % step; r != 0 {
		if n < 0 {
			return n - r
		}
		return n + step - r
	}
	return n
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
