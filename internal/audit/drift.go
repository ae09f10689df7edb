package audit

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DriftReport compares the current audit against the last completed audit of
// the same target. It surfaces how much the page and its score moved between
// runs, which is often more actionable than the absolute numbers.
type DriftReport struct {
	PreviousJobID  string  `json:"previous_job_id"`
	PreviousScore  float64 `json:"previous_score"`
	ScoreDelta     float64 `json:"score_delta"`
	TitleChanged   bool    `json:"title_changed"`
	TextInsertions int     `json:"text_insertions"`
	TextDeletions  int     `json:"text_deletions"`
	TextUnchanged  int     `json:"text_unchanged"`
}

// compareDrift diffs the previous completed job against the current page
// snapshot. Counts are in characters of visible text.
func compareDrift(prev *Job, currentTitle, currentText string, currentScore float64) *DriftReport {
	report := &DriftReport{
		PreviousJobID: prev.ID,
		PreviousScore: prev.AggregateScore,
		ScoreDelta:    currentScore - prev.AggregateScore,
		TitleChanged:  prev.PageTitle != currentTitle,
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(prev.PageText, currentText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	for _, d := range diffs {
		n := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			report.TextInsertions += n
		case diffmatchpatch.DiffDelete:
			report.TextDeletions += n
		case diffmatchpatch.DiffEqual:
			report.TextUnchanged += n
		}
	}

	return report
}
