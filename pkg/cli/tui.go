package cli

import (
	"hash/fnv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors of the live views.
type Theme struct {
	Primary  lipgloss.Color
	Dim      lipgloss.Color
	Alert    lipgloss.Color
	Speakers []lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f5f"),
	Speakers: []lipgloss.Color{
		"#61afef", "#e5c07b", "#c678dd", "#98c379", "#e06c75", "#56b6c2",
	},
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Alert  lipgloss.Style

	speakers []lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	s := Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Alert:  lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
	for _, c := range t.Speakers {
		s.speakers = append(s.speakers, lipgloss.NewStyle().Bold(true).Foreground(c))
	}
	return s
}

// Speaker renders name in a color chosen by id, stable across runs.
func (s Styles) Speaker(id, name string) string {
	if len(s.speakers) == 0 {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.speakers[h.Sum32()%uint32(len(s.speakers))].Render(name)
}

// Meter renders level in [0, 1] as a bar of width cells.
func Meter(level float64, width int) string {
	if width <= 0 {
		return ""
	}
	n := int(min(1, max(0, level))*float64(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

// Section is a labeled block of lines. Only the last Rows lines are shown;
// shorter content is padded.
type Section struct {
	Label string
	Rows  int
	Lines []string
}

// Panel is a bordered view with a title, a status and sections.
type Panel struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the panel width cells wide.
func (p Panel) Render(width int) string {
	width = max(width, 20)
	bc := p.Styles.Border
	inner := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := p.Styles.Title.Render(p.Title)
	status := p.Styles.Help.Render("[" + p.Status + "]")
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", pad)+" "+bc.Render("│"))

	for _, sec := range p.Sections {
		label := p.Styles.Label.Render(sec.Label)
		fill := max(0, width-3-lipgloss.Width(label))
		lines = append(lines, bc.Render("├")+bc.Render("─")+label+bc.Render(strings.Repeat("─", fill))+bc.Render("┤"))

		content := sec.Lines
		if sec.Rows > 0 && len(content) > sec.Rows {
			content = content[len(content)-sec.Rows:]
		}
		for i := range max(sec.Rows, len(content)) {
			text := ""
			if i < len(content) {
				text = content[i]
			}
			if lipgloss.Width(text) > inner {
				text = truncate(text, inner-1) + "…"
			}
			lines = append(lines, bc.Render("│")+" "+text+
				strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
		}
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	if p.Help != "" {
		lines = append(lines, p.Styles.Help.Render(p.Help))
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return s[:i]
		}
		w += rw
	}
	return s
}
