// Package content loads the question set, catalog, avatars and reward rules.
package content

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/tutor-quest/internal/models"
)

//go:embed default.yaml
var defaultDocument []byte

// Quest is a fully validated questionnaire definition
type Quest struct {
	Title     string
	Questions []models.Question
	Catalog   []models.CatalogItem
	Avatars   []models.Avatar
	Rules     models.Rules
}

// Question returns the question with the given id, or nil
func (q *Quest) Question(id string) models.Question {
	for _, question := range q.Questions {
		if question.QuestionID() == id {
			return question
		}
	}
	return nil
}

// Views returns the public view of every question in order
func (q *Quest) Views() []models.QuestionView {
	views := make([]models.QuestionView, len(q.Questions))
	for i, question := range q.Questions {
		views[i] = question.View()
	}
	return views
}

// questFile represents the YAML structure of a quest document
type questFile struct {
	Title     string               `yaml:"title"`
	Rules     models.Rules         `yaml:"rules"`
	Avatars   []models.Avatar      `yaml:"avatars"`
	Catalog   []models.CatalogItem `yaml:"catalog"`
	Questions []questionFile       `yaml:"questions"`
}

type questionFile struct {
	ID            string              `yaml:"id"`
	Kind          models.QuestionKind `yaml:"kind"`
	Title         string              `yaml:"title"`
	Prompt        string              `yaml:"prompt"`
	ImageURL      string              `yaml:"image_url"`
	ExpectedOrder []string            `yaml:"expected_order"`
}

// Loader manages loading and caching of the active quest
type Loader struct {
	mu     sync.RWMutex
	quest  *Quest
	source string
}

// NewLoader creates a new content loader
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the document at path, or the embedded default when path is empty
func (l *Loader) Load(path string) error {
	if strings.TrimSpace(path) == "" {
		return l.LoadDefault()
	}
	return l.LoadFromFile(path)
}

// LoadDefault loads the embedded question set
func (l *Loader) LoadDefault() error {
	return l.load(defaultDocument, "embedded")
}

// LoadFromFile loads a quest from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return l.load(data, path)
}

func (l *Loader) load(data []byte, source string) error {
	quest, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}

	l.mu.Lock()
	l.quest = quest
	l.source = source
	l.mu.Unlock()

	slog.Info("quest loaded",
		"source", source,
		"questions", len(quest.Questions),
		"items", len(quest.Catalog),
		"avatars", len(quest.Avatars),
	)
	return nil
}

// Quest returns the loaded quest, or nil before a successful load
func (l *Loader) Quest() *Quest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quest
}

// Source names where the loaded quest came from
func (l *Loader) Source() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.source
}

// Parse decodes and validates a quest document
func Parse(data []byte) (*Quest, error) {
	// keys missing from the rules section keep their default
	doc := questFile{Rules: models.DefaultRules()}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	quest := &Quest{
		Title:   doc.Title,
		Catalog: doc.Catalog,
		Avatars: doc.Avatars,
		Rules:   doc.Rules,
	}
	if err := validateRules(quest.Rules); err != nil {
		return nil, err
	}

	// Validate required fields
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("at least one question is required")
	}
	if len(doc.Avatars) == 0 {
		return nil, fmt.Errorf("at least one avatar is required")
	}

	seen := make(map[string]bool)
	for i, qf := range doc.Questions {
		q, err := qf.toQuestion()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		if seen[qf.ID] {
			return nil, fmt.Errorf("duplicate question id %q", qf.ID)
		}
		seen[qf.ID] = true
		quest.Questions = append(quest.Questions, q)
	}

	items := make(map[string]bool)
	for _, item := range doc.Catalog {
		if item.ID == "" {
			return nil, fmt.Errorf("catalog item id is required")
		}
		if items[item.ID] {
			return nil, fmt.Errorf("duplicate catalog item %q", item.ID)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("catalog item %q has a negative price", item.ID)
		}
		items[item.ID] = true
	}

	avatars := make(map[string]bool)
	for _, av := range doc.Avatars {
		if av.ID == "" {
			return nil, fmt.Errorf("avatar id is required")
		}
		if avatars[av.ID] {
			return nil, fmt.Errorf("duplicate avatar %q", av.ID)
		}
		avatars[av.ID] = true
	}

	return quest, nil
}

func (qf questionFile) toQuestion() (models.Question, error) {
	if qf.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if strings.TrimSpace(qf.Prompt) == "" {
		return nil, fmt.Errorf("%s: prompt is required", qf.ID)
	}

	switch qf.Kind {
	case models.KindOpen:
		return models.OpenQuestion{ID: qf.ID, Title: qf.Title, Prompt: qf.Prompt}, nil
	case models.KindCase:
		return models.CaseQuestion{ID: qf.ID, Title: qf.Title, Prompt: qf.Prompt, ImageURL: qf.ImageURL}, nil
	case models.KindPuzzle:
		if len(qf.ExpectedOrder) == 0 {
			return nil, fmt.Errorf("%s: expected_order is required for puzzles", qf.ID)
		}
		order := make([]string, len(qf.ExpectedOrder))
		for i, token := range qf.ExpectedOrder {
			order[i] = strings.ToUpper(strings.TrimSpace(token))
		}
		return models.PuzzleQuestion{ID: qf.ID, Title: qf.Title, Prompt: qf.Prompt, ExpectedOrder: order}, nil
	default:
		return nil, fmt.Errorf("%s: unknown kind %q", qf.ID, qf.Kind)
	}
}

func validateRules(r models.Rules) error {
	if r.LevelXPFactor <= 0 {
		return fmt.Errorf("rules: level_xp_factor must be positive")
	}
	if r.StartingCoins < 0 || r.CoinReward < 0 || r.XPReward < 0 || r.LevelUpBonus < 0 {
		return fmt.Errorf("rules: values must not be negative")
	}
	return nil
}
