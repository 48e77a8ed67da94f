package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/straja-ai/desens/internal/present"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	koStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	headerStyle  = cellStyle.Bold(true)

	badgeStyles = map[string]lipgloss.Style{
		"badge-allow": badgeBase.Background(lipgloss.Color("28")),
		"badge-mask":  badgeBase.Background(lipgloss.Color("172")),
		"badge-block": badgeBase.Background(lipgloss.Color("160")),
	}
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("15"))
)

// Terminal renders views as styled text. Colors degrade to plain text when
// the writer is not a terminal.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Result(v present.ResultView) error {
	var b strings.Builder

	b.WriteString(headingStyle.Render("Sanitized text"))
	b.WriteString("\n")
	b.WriteString(v.SanitizedText)
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Risk score: "))
	b.WriteString(v.RiskScore)
	if v.Badge != nil {
		b.WriteString("  ")
		b.WriteString(badge(v.Badge))
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(v.SourceLine))
	b.WriteString("\n\n")

	b.WriteString(headingStyle.Render("Entities"))
	b.WriteString("\n")
	if v.EntitiesMessage != "" {
		b.WriteString(v.EntitiesMessage)
		b.WriteString("\n")
	} else {
		rows := make([][]string, 0, len(v.Entities))
		for _, e := range v.Entities {
			rows = append(rows, []string{e.Type, e.Value, e.Confidence, e.Span, e.Source})
		}
		b.WriteString(grid([]string{"Type", "Value", "Confidence", "Span", "Source"}, rows, nil))
		b.WriteString("\n")
	}

	if g := v.Guard; g != nil {
		b.WriteString("\n")
		b.WriteString(headingStyle.Render("Guard"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Decision: "), g.Decision)
		fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Score: "), g.Score)
		fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Flags: "), strings.Join(g.Flags, ", "))
		if g.Reason != "" {
			fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Reason: "), g.Reason)
		}
	}

	return t.write(b.String())
}

func (t *Terminal) FileDetails(s string) error {
	if s == "" {
		return nil
	}
	return t.write(labelStyle.Render(s) + "\n")
}

func (t *Terminal) Report(v present.ReportView, _ present.ReportDocument) error {
	rows := make([][]string, 0, len(v.Rows))
	for _, r := range v.Rows {
		rows = append(rows, []string{r.ID, r.Expected, r.Detected, r.Decision, r.Score, r.Status, r.Error})
	}
	status := func(row, col int) (lipgloss.Style, bool) {
		if col != 5 || row < 0 || row >= len(v.Rows) {
			return lipgloss.Style{}, false
		}
		if v.Rows[row].Status == present.StatusOK {
			return okStyle, true
		}
		return koStyle, true
	}

	var b strings.Builder
	b.WriteString(grid([]string{"ID", "Expected", "Detected", "Decision", "Score", "Status", "Error"}, rows, status))
	b.WriteString("\n")
	b.WriteString(headingStyle.Render(v.Summary))
	b.WriteString("\n")
	return t.write(b.String())
}

func (t *Terminal) Error(err error) error {
	if err == nil {
		return nil
	}
	return t.write(errorStyle.Render("Error: ") + err.Error() + "\n")
}

func (t *Terminal) write(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.w, s)
	return err
}

func badge(b *present.Badge) string {
	style, ok := badgeStyles[b.Class]
	if !ok {
		return b.Label
	}
	return style.Render(b.Label)
}

func grid(headers []string, rows [][]string, extra func(row, col int) (lipgloss.Style, bool)) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if extra != nil {
				if s, ok := extra(row, col); ok {
					return cellStyle.Inherit(s)
				}
			}
			return cellStyle
		}).
		String()
}
