package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/tutor-quest/internal/models"
)

func TestHeaderOrder(t *testing.T) {
	assert.Equal(t, []string{
		"timestamp", "name", "national_id", "phone", "email", "experience", "education",
		"avatar", "owned", "coins", "xp", "level", "o1", "p1",
	}, Header([]string{"o1", "p1"}))
}

func TestWriteCSV(t *testing.T) {
	subs := []models.Submission{
		{
			ID:          "s1",
			SubmittedAt: time.Date(2026, 5, 2, 15, 4, 5, 0, time.FixedZone("PET", -5*3600)),
			Identity: models.Identity{
				Name:       "Luis, el profe",
				NationalID: "44556677",
				Email:      "luis@example.com",
			},
			Avatar:      "milo",
			Owned:       []string{"gafas", "gorra"},
			Ledger:      models.Ledger{Coins: 14, XP: 36, Level: 1},
			QuestionIDs: []string{"o1", "p1"},
			Answers:     []string{"Paciencia\ny claridad", "B,C,A"},
		},
		{
			ID:          "s2",
			SubmittedAt: time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC),
			Identity:    models.Identity{Name: "Rosa"},
			Avatar:      "nova",
			Ledger:      models.Ledger{Coins: 50, Level: 1},
			// taken before c1 existed
			QuestionIDs: []string{"o1"},
			Answers:     []string{"Empatía"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"o1", "c1", "p1"}, subs))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Header([]string{"o1", "c1", "p1"}), records[0])
	assert.Equal(t, []string{
		"2026-05-02T20:04:05Z", "Luis, el profe", "44556677", "", "luis@example.com", "", "",
		"milo", "gafas,gorra", "14", "36", "1", "Paciencia\ny claridad", "", "B,C,A",
	}, records[1])
	assert.Equal(t, []string{
		"2026-05-03T08:00:00Z", "Rosa", "", "", "", "", "",
		"nova", "", "50", "0", "1", "Empatía", "", "",
	}, records[2])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"o1"}, nil))
	assert.Equal(t, "timestamp,name,national_id,phone,email,experience,education,avatar,owned,coins,xp,level,o1\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestWriteCSVPropagatesWriterErrors(t *testing.T) {
	err := WriteCSV(failingWriter{}, []string{"o1"}, nil)
	assert.Error(t, err)
}
