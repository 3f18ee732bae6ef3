// Package export renders submissions for offline review.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/tutor-quest/internal/models"
)

var baseColumns = []string{
	"timestamp",
	"name",
	"national_id",
	"phone",
	"email",
	"experience",
	"education",
	"avatar",
	"owned",
	"coins",
	"xp",
	"level",
}

// Header returns the CSV header for the given question ids
func Header(questionIDs []string) []string {
	header := make([]string, 0, len(baseColumns)+len(questionIDs))
	header = append(header, baseColumns...)
	return append(header, questionIDs...)
}

// Row flattens one submission. Answers are matched by question id, so
// submissions taken against an older question set still line up.
func Row(sub models.Submission, questionIDs []string) []string {
	row := []string{
		sub.SubmittedAt.UTC().Format(time.RFC3339),
		sub.Identity.Name,
		sub.Identity.NationalID,
		sub.Identity.Phone,
		sub.Identity.Email,
		sub.Identity.Experience,
		sub.Identity.Education,
		sub.Avatar,
		strings.Join(sub.Owned, ","),
		strconv.Itoa(sub.Ledger.Coins),
		strconv.Itoa(sub.Ledger.XP),
		strconv.Itoa(sub.Ledger.Level),
	}
	for _, id := range questionIDs {
		row = append(row, sub.AnswerFor(id))
	}
	return row
}

// WriteCSV writes the header and one row per submission
func WriteCSV(w io.Writer, questionIDs []string, subs []models.Submission) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(questionIDs)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, sub := range subs {
		if err := cw.Write(Row(sub, questionIDs)); err != nil {
			return fmt.Errorf("write submission %s: %w", sub.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
