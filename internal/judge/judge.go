// Package judge turns a point's reconciled candidate set into a single
// decision. It is the only component that inspects candidate content.
package judge

import (
	"fmt"

	"github.com/tripcue/tripcue/pkg/types"
)

// Judge produces one decision per point from the collector's output.
type Judge interface {
	Decide(pt types.Point, candidates []types.ContentCandidate, report types.PointReport) types.PointDecision
}

// ScoreJudge picks the highest-scoring candidate; ties keep the earlier
// candidate, so the fixed role ordering from the collector makes the
// choice reproducible.
type ScoreJudge struct{}

// NewScoreJudge returns the default judge.
func NewScoreJudge() *ScoreJudge {
	return &ScoreJudge{}
}

func (j *ScoreJudge) Decide(pt types.Point, candidates []types.ContentCandidate, report types.PointReport) types.PointDecision {
	decision := types.PointDecision{
		PointIndex: pt.Index,
		PointID:    pt.ID,
		Status:     report.Status,
		Candidates: candidates,
		Report:     report,
	}

	if len(candidates) == 0 {
		decision.Note = fmt.Sprintf("no content available for %s", pt.Name)
		return decision
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[best].Score {
			best = i
		}
	}
	chosen := candidates[best]
	decision.Chosen = &chosen
	return decision
}
