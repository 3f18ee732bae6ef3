// Package grading scores stored submissions against the puzzle answer key.
// It is never called by the state machine; graders run it over the submission log.
package grading

import (
	"slices"
	"strings"

	"github.com/terra-clan/tutor-quest/internal/models"
)

// PuzzleResult is the outcome of one puzzle question
type PuzzleResult struct {
	QuestionID string   `json:"question_id"`
	Given      []string `json:"given"`
	Expected   []string `json:"expected"`
	Correct    bool     `json:"correct"`
}

// Report summarizes the puzzle results of a submission
type Report struct {
	SubmissionID string         `json:"submission_id"`
	ApplicantID  string         `json:"applicant_id,omitempty"`
	Name         string         `json:"name"`
	Puzzles      []PuzzleResult `json:"puzzles"`
	Correct      int            `json:"correct"`
	Total        int            `json:"total"`
}

// ParseOrder splits an ordering answer like "b, C ,a" into ["B","C","A"].
// Empty tokens are dropped.
func ParseOrder(answer string) []string {
	fields := strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToUpper(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Grade compares each puzzle answer of sub with the expected order.
// Puzzles are matched by question id, so submissions from an older question
// set are graded only on the puzzles they share with questions.
func Grade(questions []models.Question, sub models.Submission) Report {
	report := Report{
		SubmissionID: sub.ID,
		ApplicantID:  sub.ApplicantID,
		Name:         sub.Identity.Name,
		Puzzles:      []PuzzleResult{},
	}

	for _, q := range questions {
		puzzle, ok := q.(models.PuzzleQuestion)
		if !ok || !slices.Contains(sub.QuestionIDs, puzzle.ID) {
			continue
		}

		expected := make([]string, len(puzzle.ExpectedOrder))
		for i, tok := range puzzle.ExpectedOrder {
			expected[i] = strings.ToUpper(strings.TrimSpace(tok))
		}
		given := ParseOrder(sub.AnswerFor(puzzle.ID))

		res := PuzzleResult{
			QuestionID: puzzle.ID,
			Given:      given,
			Expected:   expected,
			Correct:    slices.Equal(given, expected),
		}
		report.Puzzles = append(report.Puzzles, res)
		report.Total++
		if res.Correct {
			report.Correct++
		}
	}

	return report
}

// GradeAll grades every submission in order
func GradeAll(questions []models.Question, subs []models.Submission) []Report {
	reports := make([]Report, 0, len(subs))
	for _, sub := range subs {
		reports = append(reports, Grade(questions, sub))
	}
	return reports
}
