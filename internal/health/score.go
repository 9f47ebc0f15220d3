// Package health derives a project health verdict from its progress
// metrics. Everything here is pure arithmetic: no I/O and no clock reads,
// so the same snapshot always yields the same verdict.
package health

import "github.com/nhle/pmsync/internal/model"

// Composite weights. They sum to 1.0.
const (
	WeightCompletion = 0.4
	WeightBurnRate   = 0.3
	WeightBlocker    = 0.2
	WeightActivity   = 0.1
)

// Classification upper bounds (inclusive).
const (
	OnTrackMax        = 0.4
	NeedsAttentionMax = 0.7
)

// Reasons reported as the primary cause.
const (
	ReasonBlockers       = "Blockers present"
	ReasonStoryPoints    = "Low story point progress"
	ReasonTaskCompletion = "Low task completion"
)

// Risks holds the four evaluator outputs, each in [0.0, 1.0].
type Risks struct {
	Completion float64
	BurnRate   float64
	Blocker    float64
	Activity   float64
}

// Composite returns the weighted sum of the risks.
func (r Risks) Composite() float64 {
	return WeightCompletion*r.Completion +
		WeightBurnRate*r.BurnRate +
		WeightBlocker*r.Blocker +
		WeightActivity*r.Activity
}

// Evaluate runs the four evaluators over a snapshot.
func Evaluate(p model.Progress) Risks {
	return Risks{
		Completion: CompletionRisk(p.CompletedTasks, p.TotalTasks),
		BurnRate:   BurnRateRisk(p.CompletedStoryPoints, p.TotalStoryPoints),
		Blocker:    BlockerRisk(p.ActiveBlockers),
		Activity:   ActivityRisk(p.RecentUpdates),
	}
}

// Score computes the health verdict for a snapshot. EvaluatedAt is left
// for the caller to stamp.
func Score(p model.Progress) model.Health {
	risks := Evaluate(p)
	score := risks.Composite()
	return model.Health{
		Level:      Classify(score),
		Reason:     PrimaryCause(risks),
		Score:      score,
		Confidence: ConfidenceFor(p),
	}
}

// CompletionRisk maps the completed/total task ratio onto the risk ladder.
// A project without tasks counts as fully complete.
func CompletionRisk(completed, total int) float64 {
	ratio := 1.0
	if total > 0 {
		ratio = float64(completed) / float64(total)
	}
	return ratioRisk(ratio)
}

// BurnRateRisk maps the completed/total story point ratio onto the same
// ladder as CompletionRisk.
func BurnRateRisk(completed, total float64) float64 {
	ratio := 1.0
	if total > 0 {
		ratio = completed / total
	}
	return ratioRisk(ratio)
}

func ratioRisk(ratio float64) float64 {
	switch {
	case ratio >= 0.8:
		return 0.1
	case ratio >= 0.5:
		return 0.4
	case ratio >= 0.3:
		return 0.7
	default:
		return 1.0
	}
}

// BlockerRisk grows with the number of active blockers.
func BlockerRisk(blockers int) float64 {
	switch {
	case blockers <= 0:
		return 0.1
	case blockers <= 2:
		return 0.4
	case blockers <= 5:
		return 0.7
	default:
		return 1.0
	}
}

// ActivityRisk shrinks as recent updates grow.
func ActivityRisk(recentUpdates int) float64 {
	switch {
	case recentUpdates >= 10:
		return 0.1
	case recentUpdates >= 5:
		return 0.4
	case recentUpdates >= 1:
		return 0.7
	default:
		return 1.0
	}
}

// Classify maps a composite score onto a health level.
func Classify(score float64) model.HealthLevel {
	switch {
	case score <= OnTrackMax:
		return model.HealthOnTrack
	case score <= NeedsAttentionMax:
		return model.HealthNeedsAttention
	default:
		return model.HealthCritical
	}
}

// PrimaryCause names the largest contributor. Blockers win only when they
// strictly exceed both progress risks; equal risks fall through to task
// completion.
func PrimaryCause(r Risks) string {
	switch {
	case r.Blocker > r.Completion && r.Blocker > r.BurnRate:
		return ReasonBlockers
	case r.BurnRate > r.Completion:
		return ReasonStoryPoints
	default:
		return ReasonTaskCompletion
	}
}

// ConfidenceFor rates how much signal a snapshot carries.
func ConfidenceFor(p model.Progress) model.Confidence {
	switch {
	case p.TotalTasks < 5 || p.TotalStoryPoints < 5:
		return model.ConfidenceLow
	case p.RecentUpdates < 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceHigh
	}
}
