package exit

import (
	"math"
	"strings"

	"solana-alpha-engine/internal/domain"
)

// Caps applied when combining signals.
const (
	maxCombinedPercent       = 100
	maxMediumCombinedPercent = 50
	fullExitMeanThreshold    = 50
)

// Combine reduces heuristic outputs to one signal:
//   - any critical: the first critical, verbatim
//   - any high: mean of the highs (capped at 100), full exit iff the mean exceeds 50
//   - two or more non-hold mediums: partial exit, sum of percentages capped at 50
//   - otherwise the most urgent non-hold signal, first wins on ties
//
// Holds are ignored; with nothing else the result is a hold.
func Combine(signals []domain.ExitSignal) domain.ExitSignal {
	sig, _ := combine(signals)
	return sig
}

// combine returns the combined signal and the signals it was built from.
func combine(signals []domain.ExitSignal) (domain.ExitSignal, []domain.ExitSignal) {
	var highs, mediums []domain.ExitSignal
	var best *domain.ExitSignal

	for i := range signals {
		s := signals[i]
		if s.IsHold() {
			continue
		}
		switch s.Urgency {
		case domain.UrgencyCritical:
			return s, []domain.ExitSignal{s}
		case domain.UrgencyHigh:
			highs = append(highs, s)
		case domain.UrgencyMedium:
			mediums = append(mediums, s)
		}
		if best == nil || s.Urgency > best.Urgency {
			best = &signals[i]
		}
	}

	if len(highs) > 0 {
		var sum float64
		for _, s := range highs {
			sum += s.Percentage
		}
		mean := math.Min(sum/float64(len(highs)), maxCombinedPercent)
		action := domain.ActionPartialExit
		if mean > fullExitMeanThreshold {
			action = domain.ActionFullExit
		}
		return domain.ExitSignal{
			Action:     action,
			Percentage: mean,
			Urgency:    domain.UrgencyHigh,
			Reason:     joinReasons(highs),
			Rule:       highs[0].Rule,
		}, highs
	}

	if len(mediums) >= 2 {
		var sum float64
		for _, s := range mediums {
			sum += s.Percentage
		}
		return domain.ExitSignal{
			Action:     domain.ActionPartialExit,
			Percentage: math.Min(sum, maxMediumCombinedPercent),
			Urgency:    domain.UrgencyMedium,
			Reason:     joinReasons(mediums),
			Rule:       mediums[0].Rule,
		}, mediums
	}

	if best == nil {
		return domain.Hold("no exit signal"), nil
	}
	return *best, []domain.ExitSignal{*best}
}

func joinReasons(signals []domain.ExitSignal) string {
	reasons := make([]string, len(signals))
	for i, s := range signals {
		reasons[i] = s.Reason
	}
	return strings.Join(reasons, "; ")
}
