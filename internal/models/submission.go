package models

import "time"

// Submission is the immutable record of a finalized attempt
type Submission struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
	ApplicantID string    `json:"applicant_id,omitempty"`
	Identity    Identity  `json:"identity"`
	Avatar      string    `json:"avatar"`
	Owned       []string  `json:"owned,omitempty"`
	Ledger      Ledger    `json:"ledger"`
	QuestionIDs []string  `json:"question_ids"`
	Answers     []string  `json:"answers"`
}

// AnswerFor returns the answer given to a question id, or "" if it was not part of the set
func (s Submission) AnswerFor(questionID string) string {
	for i, id := range s.QuestionIDs {
		if id == questionID && i < len(s.Answers) {
			return s.Answers[i]
		}
	}
	return ""
}
