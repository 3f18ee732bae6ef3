package models

// QuestionKind identifies the variant of a question card
type QuestionKind string

const (
	KindOpen   QuestionKind = "open"   // Free-text opinion
	KindCase   QuestionKind = "case"   // Scenario with an illustrative image
	KindPuzzle QuestionKind = "puzzle" // Ordering puzzle with a fixed expected order
)

// Valid reports whether k is one of the known kinds
func (k QuestionKind) Valid() bool {
	return k == KindOpen || k == KindCase || k == KindPuzzle
}

// Question is a single card of the question set.
// Implemented only by OpenQuestion, CaseQuestion and PuzzleQuestion.
type Question interface {
	QuestionID() string
	Kind() QuestionKind
	View() QuestionView
	question()
}

// OpenQuestion asks for a free-text opinion
type OpenQuestion struct {
	ID     string
	Title  string
	Prompt string
}

// CaseQuestion describes a classroom scenario, optionally illustrated
type CaseQuestion struct {
	ID       string
	Title    string
	Prompt   string
	ImageURL string
}

// PuzzleQuestion asks for an ordering of tokens (e.g. "B,C,A")
type PuzzleQuestion struct {
	ID            string
	Title         string
	Prompt        string
	ExpectedOrder []string
}

func (q OpenQuestion) QuestionID() string   { return q.ID }
func (q CaseQuestion) QuestionID() string   { return q.ID }
func (q PuzzleQuestion) QuestionID() string { return q.ID }

func (OpenQuestion) Kind() QuestionKind   { return KindOpen }
func (CaseQuestion) Kind() QuestionKind   { return KindCase }
func (PuzzleQuestion) Kind() QuestionKind { return KindPuzzle }

func (OpenQuestion) question()   {}
func (CaseQuestion) question()   {}
func (PuzzleQuestion) question() {}

// QuestionView is the applicant-facing projection of a question.
// The expected order of puzzles is never part of it.
type QuestionView struct {
	ID       string       `json:"id"`
	Kind     QuestionKind `json:"kind"`
	Title    string       `json:"title"`
	Prompt   string       `json:"prompt"`
	ImageURL string       `json:"image_url,omitempty"`
	Hint     string       `json:"hint,omitempty"`
}

func (q OpenQuestion) View() QuestionView {
	return QuestionView{ID: q.ID, Kind: KindOpen, Title: q.Title, Prompt: q.Prompt}
}

func (q CaseQuestion) View() QuestionView {
	return QuestionView{ID: q.ID, Kind: KindCase, Title: q.Title, Prompt: q.Prompt, ImageURL: q.ImageURL}
}

func (q PuzzleQuestion) View() QuestionView {
	return QuestionView{
		ID:     q.ID,
		Kind:   KindPuzzle,
		Title:  q.Title,
		Prompt: q.Prompt,
		Hint:   "Enter the order as comma-separated letters, e.g. B,A,C",
	}
}

// QuestionIDs returns the ids of questions in order
func QuestionIDs(questions []Question) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.QuestionID()
	}
	return ids
}
