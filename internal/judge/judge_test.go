package judge

import (
	"testing"

	"github.com/tripcue/tripcue/pkg/types"
)

func TestDecidePicksHighestScore(t *testing.T) {
	j := NewScoreJudge()
	pt := types.Point{Index: 2, ID: "pt-2", Name: "Big Sur"}
	candidates := []types.ContentCandidate{
		{Role: types.RoleVideo, Title: "v", Score: 0.4},
		{Role: types.RoleMusic, Title: "m", Score: 0.9},
		{Role: types.RoleText, Title: "t", Score: 0.7},
	}
	report := types.PointReport{PointID: "pt-2", Status: types.PointStatusComplete}

	d := j.Decide(pt, candidates, report)
	if d.Chosen == nil || d.Chosen.Role != types.RoleMusic {
		t.Fatalf("chosen = %+v, want music candidate", d.Chosen)
	}
	if d.Status != types.PointStatusComplete {
		t.Errorf("status = %s, want complete", d.Status)
	}
	if d.PointIndex != 2 {
		t.Errorf("point index = %d, want 2", d.PointIndex)
	}
}

func TestDecideTieKeepsRoleOrder(t *testing.T) {
	j := NewScoreJudge()
	candidates := []types.ContentCandidate{
		{Role: types.RoleVideo, Title: "v", Score: 0.8},
		{Role: types.RoleMusic, Title: "m", Score: 0.8},
	}

	d := j.Decide(types.Point{}, candidates, types.PointReport{Status: types.PointStatusSoftDegraded})
	if d.Chosen == nil || d.Chosen.Role != types.RoleVideo {
		t.Fatalf("chosen = %+v, want first candidate on tie", d.Chosen)
	}
}

func TestDecideFailedPointIsExplicit(t *testing.T) {
	j := NewScoreJudge()
	pt := types.Point{Index: 0, ID: "pt-0", Name: "Barstow"}
	report := types.PointReport{PointID: "pt-0", Status: types.PointStatusFailed}

	d := j.Decide(pt, nil, report)
	if d.Chosen != nil {
		t.Error("failed point must not choose a candidate")
	}
	if d.Note == "" {
		t.Error("failed point must carry an explicit note")
	}
	if d.Status != types.PointStatusFailed {
		t.Errorf("status = %s, want failed", d.Status)
	}
}
