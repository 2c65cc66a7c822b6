package routedomain

import "fmt"

// MatchConfig holds the thresholds for comparing an activity trace against a
// source route. Values are validated at startup; the matcher treats them as
// trusted.
type MatchConfig struct {
	// MaxDeviationM is the largest distance in meters an activity point may
	// sit from the route and still count as on-route.
	MaxDeviationM float64
	// SimilarityThreshold is the fraction of on-route points required for a
	// verified verdict, in (0,1].
	SimilarityThreshold float64
	// MinDistanceM is the minimum recorded activity distance in meters.
	MinDistanceM float64
	// SimplifyToleranceM is the Douglas-Peucker tolerance applied to the raw
	// activity trace before scoring. Independent of the tolerance used to
	// prepare source routes.
	SimplifyToleranceM float64
}

// Verdict is the outcome of scoring one activity trace against one route.
// Identical inputs always produce an identical Verdict.
type Verdict struct {
	Verified        bool
	SimilarityScore float64
	Message         string
}

// Match scores an activity trace against a source route polyline.
//
// The route must have at least two points; routes that don't are rejected when
// loaded, never here. A trace with no points yields an unverified verdict with
// an explanatory message rather than an error, so one bad activity can't abort
// a whole reconciliation pass.
func Match(route Polyline, trace Polyline, activityDistanceM float64, cfg MatchConfig) Verdict {
	if len(trace) == 0 {
		return Verdict{
			Verified:        false,
			SimilarityScore: 0,
			Message:         "no GPS data found in activity",
		}
	}

	simplified := Simplify(trace, cfg.SimplifyToleranceM)

	matched := 0
	for _, p := range simplified {
		if PolylineDistanceM(p, route) <= cfg.MaxDeviationM {
			matched++
		}
	}
	score := float64(matched) / float64(len(simplified))

	if activityDistanceM < cfg.MinDistanceM {
		return Verdict{
			Verified:        false,
			SimilarityScore: score,
			Message: fmt.Sprintf("activity distance (%.1f km) is less than required (%.1f km)",
				activityDistanceM/1000, cfg.MinDistanceM/1000),
		}
	}

	if score < cfg.SimilarityThreshold {
		return Verdict{
			Verified:        false,
			SimilarityScore: score,
			Message: fmt.Sprintf("route similarity (%.1f%%) below required threshold (%.1f%%)",
				score*100, cfg.SimilarityThreshold*100),
		}
	}

	return Verdict{
		Verified:        true,
		SimilarityScore: score,
		Message:         fmt.Sprintf("route verified with %.1f%% match", score*100),
	}
}
