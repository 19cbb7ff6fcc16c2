// Package export reshapes stored registrations into flat spreadsheet tables.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/gfgkiit/trapped/internal/catalog"
	"github.com/gfgkiit/trapped/internal/domain"
)

const timestampLayout = "2006-01-02 15:04:05"

// Table is a sheet of string cells. Every row has len(Headers) cells.
type Table struct {
	Sheet    string
	FileName string
	Headers  []string
	Rows     [][]string
}

var (
	// RegistrationHeaders is the column set of the full applicant export.
	RegistrationHeaders = []string{"Name", "Email", "Contact", "Year", "Why GFG?", "Domain 1", "Domain 2", "Github", "LinkedIn", "Resume", "Registered At"}
	// DomainHeaders is the column set of the per-domain applicant export.
	DomainHeaders = []string{"Name", "Email", "Contact", "Year", "Why GFG?", "Github", "LinkedIn", "Resume"}
)

// TeamHeaders is the column set of the team export.
func TeamHeaders() []string {
	headers := make([]string, 0, 2+3*domain.MaxTeamMembers)
	headers = append(headers, "TeamName")
	for i := 1; i <= domain.MaxTeamMembers; i++ {
		prefix := fmt.Sprintf("Member%d_", i)
		headers = append(headers, prefix+"Name", prefix+"Roll", prefix+"Email")
	}
	return append(headers, "CreatedAt")
}

// RegistrationTable renders one row per applicant. Timestamps are shown in
// loc, UTC when nil.
func RegistrationTable(records []domain.Registration, loc *time.Location) Table {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Username, r.Email, r.Contact, r.Year, r.WhyGfg,
			r.Domain1, r.Domain2, r.Github, r.LinkedIn, r.ResumeLink,
			formatTime(r.CreatedAt, loc),
		})
	}
	return Table{
		Sheet:    "Registrations",
		FileName: "registrations.xlsx",
		Headers:  append([]string(nil), RegistrationHeaders...),
		Rows:     rows,
	}
}

// TeamTable renders one row per team with a fixed number of member slots.
func TeamTable(teams []domain.Team, loc *time.Location) Table {
	headers := TeamHeaders()
	rows := make([][]string, 0, len(teams))
	for _, team := range teams {
		row := make([]string, 0, len(headers))
		row = append(row, team.TeamName)
		for i := 0; i < domain.MaxTeamMembers; i++ {
			if i < len(team.Members) {
				m := team.Members[i]
				row = append(row, m.Name, m.Roll, m.Email)
				continue
			}
			row = append(row, "", "", "")
		}
		row = append(row, formatTime(team.CreatedAt, loc))
		rows = append(rows, row)
	}
	return Table{Sheet: "Teams", FileName: "teams.xlsx", Headers: headers, Rows: rows}
}

// DomainTable renders applicants whose first preference matched, then one
// blank row, then those whose second preference matched. The blank row is
// only written when both groups have rows.
func DomainTable(domainName string, first, second []domain.Registration) Table {
	rows := make([][]string, 0, len(first)+len(second)+1)
	for _, r := range first {
		rows = append(rows, domainRow(r))
	}
	if len(first) > 0 && len(second) > 0 {
		rows = append(rows, make([]string, len(DomainHeaders)))
	}
	for _, r := range second {
		rows = append(rows, domainRow(r))
	}
	slug := catalog.Slug(domainName)
	return Table{
		Sheet:    SheetName(domainName),
		FileName: "registrations-" + slug + ".xlsx",
		Headers:  append([]string(nil), DomainHeaders...),
		Rows:     rows,
	}
}

func domainRow(r domain.Registration) []string {
	return []string{r.Username, r.Email, r.Contact, r.Year, r.WhyGfg, r.Github, r.LinkedIn, r.ResumeLink}
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timestampLayout)
}

const maxSheetName = 31

// SheetName makes name usable as a worksheet title: characters the format
// forbids become '-', and the result is cut to 31 runes.
func SheetName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	cleaned = strings.Trim(cleaned, "'")
	if cleaned == "" {
		return "Sheet1"
	}
	if runes := []rune(cleaned); len(runes) > maxSheetName {
		cleaned = string(runes[:maxSheetName])
	}
	return cleaned
}
