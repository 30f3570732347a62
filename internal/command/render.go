package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6C5CE7", Dark: "#A29BFE"}).Bold(true)
	tokenStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#DFE6E9"})
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00897B", Dark: "#54A0FF"}).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#636E72", Dark: "#777777"})
)

// Render writes a human-readable view of the plan: one line per term,
// labelled with its rule, followed by the declared file sets.
func (p *Plan) Render(w io.Writer) error {
	width := 0
	for _, t := range p.terms {
		width = max(width, len(t.rule))
	}
	label := ruleStyle.Width(width + 2)

	var sb strings.Builder
	sb.WriteString(sectionStyle.Render(p.dialect.String()+" registration") + "\n")
	for _, t := range p.terms {
		sb.WriteString(label.Render(string(t.rule)))
		sb.WriteString(tokenStyle.Render(strings.Join(t.tokens, " ")))
		sb.WriteString("\n")
	}

	writeFiles(&sb, "inputs", p.inputs)
	writeFiles(&sb, "outputs", p.outputs)
	writeFiles(&sb, "side effects", p.sideEffects)

	_, err := io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("rendering plan: %w", err)
	}
	return nil
}

func writeFiles(sb *strings.Builder, title string, files []string) {
	sb.WriteString(sectionStyle.Render(title) + "\n")
	if len(files) == 0 {
		sb.WriteString(mutedStyle.Render("  (none)") + "\n")
		return
	}
	for _, f := range files {
		sb.WriteString("  " + tokenStyle.Render(f) + "\n")
	}
}
