package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/lastmile-cli/internal/metrics"
	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
)

// Report is a markdown-friendly collection of dashboard sections.
type Report struct {
	Inputs   []InputSummary `json:"inputs"`
	Sections []Section      `json:"sections"`
	Warnings []string       `json:"warnings,omitempty"`
}

// InputSummary describes one loaded table and its resolved columns.
type InputSummary struct {
	Kind    string          `json:"kind"`
	Name    string          `json:"name"`
	ID      string          `json:"id"`
	Rows    int             `json:"rows"`
	Columns int             `json:"columns"`
	Binding resolve.Binding `json:"binding"`
}

// Section is one analysis: a titled summary table, or a skip reason.
type Section struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Source  string       `json:"source,omitempty"`
	Skipped string       `json:"skipped,omitempty"`
	Columns []ColumnSpec `json:"columns,omitempty"`
	Rows    []SectionRow `json:"rows,omitempty"`
	// Groups is the number of rows before truncation to TopN.
	Groups  int          `json:"groups"`
	Notes   []string     `json:"notes,omitempty"`
}

// ColumnSpec names a value column and how to print it.
type ColumnSpec struct {
	Key      string `json:"key"`
	Header   string `json:"header"`
	Decimals int    `json:"decimals"`
}

// SectionRow is one rendered row.
type SectionRow struct {
	Label   string                   `json:"label"`
	Size    int                      `json:"size"`
	Values  map[string]metrics.Value `json:"values"`
	// Missing marks the group of rows with no value for a grouping column.
	Missing bool                     `json:"missing,omitempty"`
}

// Ran reports whether the section produced output.
func (s Section) Ran() bool { return s.Skipped == "" }

// Section looks up a section by id.
func (r *Report) Section(id string) (Section, bool) {
	for _, s := range r.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[LAST-MILE REPORT]\n")
	for _, in := range r.Inputs {
		b.WriteString(fmt.Sprintf("- %s: %s (%d rows, %d columns)\n", in.Kind, safeVal(in.Name), in.Rows, in.Columns))
	}
	if len(r.Inputs) > 0 {
		b.WriteString("\n[RESOLVED COLUMNS]\n")
		for _, in := range r.Inputs {
			roles := make([]string, 0, len(in.Binding))
			for role := range in.Binding {
				roles = append(roles, string(role))
			}
			sort.Strings(roles)
			parts := make([]string, 0, len(roles))
			for _, role := range roles {
				parts = append(parts, fmt.Sprintf("%s=%s", role, in.Binding[resolve.Role(role)]))
			}
			if len(parts) == 0 {
				parts = append(parts, "(none)")
			}
			b.WriteString(fmt.Sprintf("- %s: %s\n", in.Kind, strings.Join(parts, ", ")))
		}
	}

	var skipped []Section
	for _, s := range r.Sections {
		if !s.Ran() {
			skipped = append(skipped, s)
			continue
		}
		b.WriteString("\n[")
		b.WriteString(strings.ToUpper(s.Title))
		b.WriteString("]\n")
		if s.Groups > len(s.Rows) {
			b.WriteString(fmt.Sprintf("(top %d of %d)\n", len(s.Rows), s.Groups))
		}
		if len(s.Rows) == 0 {
			b.WriteString("(no rows)\n")
		}
		for _, row := range s.Rows {
			b.WriteString(fmt.Sprintf("- %s (n=%d)", safeVal(row.Label), row.Size))
			for i, c := range s.Columns {
				if i == 0 {
					b.WriteString(": ")
				} else {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s %s", c.Header, row.Values[c.Key].Fixed(c.Decimals)))
			}
			b.WriteString("\n")
		}
		for _, n := range s.Notes {
			b.WriteString("  • ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	if len(skipped) > 0 {
		b.WriteString("\n[SKIPPED]\n")
		for _, s := range skipped {
			b.WriteString(fmt.Sprintf("- %s: %s\n", s.Title, s.Skipped))
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(s, "\n", " ") }
