// Package export renders the admin user export and the search filter the admin list uses.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xplorixa/portal/internal/db/models"
)

// Mode selects the CSV dialect.
type Mode string

const (
	// ModeLegacy joins fields with commas and lines with "\n" and escapes nothing, so a
	// comma inside a name shifts the following columns.
	ModeLegacy Mode = "legacy"
	// ModeRFC4180 quotes fields as needed.
	ModeRFC4180 Mode = "rfc4180"
)

// Header is the first row of every export.
var Header = []string{"UID", "Name", "Email", "Role", "Status", "Joined"}

// TimestampLayout matches JavaScript's Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Filename returns users_export_<timestamp>.csv for at.
func Filename(at time.Time) string {
	return fmt.Sprintf("users_export_%s.csv", at.UTC().Format(TimestampLayout))
}

func row(p *models.UserProfile) []string {
	return []string{p.UID, p.FullName, p.Email, string(p.Role), string(p.Status), p.CreatedAt.UTC().Format(TimestampLayout)}
}

// WriteCSV writes profiles to w in mode.
func WriteCSV(w io.Writer, mode Mode, profiles []*models.UserProfile) error {
	switch mode {
	case ModeRFC4180:
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return err
		}
		for _, p := range profiles {
			if err := cw.Write(row(p)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case ModeLegacy, "":
		lines := make([]string, 0, len(profiles)+1)
		lines = append(lines, strings.Join(Header, ","))
		for _, p := range profiles {
			lines = append(lines, strings.Join(row(p), ","))
		}
		_, err := io.WriteString(w, strings.Join(lines, "\n"))
		return err
	default:
		return fmt.Errorf("unknown csv mode %q", mode)
	}
}

// Filter keeps profiles whose name or email contains term, ignoring case. An empty
// term keeps everything.
func Filter(profiles []*models.UserProfile, term string) []*models.UserProfile {
	term = strings.ToLower(term)
	if term == "" {
		return profiles
	}
	out := make([]*models.UserProfile, 0, len(profiles))
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.FullName), term) || strings.Contains(strings.ToLower(p.Email), term) {
			out = append(out, p)
		}
	}
	return out
}
