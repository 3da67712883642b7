// Package display renders CLI output: rule and log tables, preferences and
// status lines. Colour is used only when writing to a terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/gate"
)

// Soft palette.
const (
	colorHeader    = "#94a3b8" // muted slate
	colorPrimary   = "#d4d4d8" // light zinc
	colorSecondary = "#71717a" // dimmed zinc
	colorOn        = "#bbf7d0" // soft mint
	colorError     = "#fca5a5" // soft coral
	colorBorder    = "#52525b"
)

// Printer writes formatted output.
type Printer struct {
	out   io.Writer
	color bool
	width int
}

// New creates a printer for out. Colour and width detection only apply
// when out is a terminal.
func New(out io.Writer) *Printer {
	p := &Printer{out: out, width: 100}
	if f, ok := out.(*os.File); ok && term.IsTerminal(f.Fd()) {
		p.color = true
		if w, _, err := term.GetSize(f.Fd()); err == nil && w > 0 {
			p.width = w
		}
	}
	return p
}

func (p *Printer) style(color string) lipgloss.Style {
	s := lipgloss.NewStyle()
	if p.color {
		s = s.Foreground(lipgloss.Color(color))
	}
	return s
}

// Banner prints the startup line of the daemon.
func (p *Printer) Banner(addr string) {
	fmt.Fprintln(p.out, p.style(colorHeader).Bold(p.color).Render("SmartNotifier")+" "+
		p.style(colorSecondary).Render("listening on "+addr))
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.out, p.style(colorOn).Render(fmt.Sprintf(format, args...)))
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.out, p.style(colorPrimary).Render(fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.out, p.style(colorError).Render("error: "+err.Error()))
}

// Rules prints rules as a table.
func (p *Printer) Rules(rules []domain.Rule) {
	if len(rules) == 0 {
		p.Info("no rules")
		return
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			onOff(r.Enabled),
			r.AppLabel,
			channel(r.ChannelID, r.ChannelName),
			quoteOrAny(r.SrhTitle),
			p.fit(r.VoiceMsg, 40),
		})
	}
	p.table([]string{"ID", "ON", "APP", "CHANNEL", "TITLE", "VOICE"}, rows, 1)
}

// Logs prints notification log entries as a table.
func (p *Printer) Logs(logs []domain.LogEntry) {
	if len(logs) == 0 {
		p.Info("notification log is empty")
		return
	}
	rows := make([][]string, 0, len(logs))
	for _, e := range logs {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.AppLabel,
			e.PackageName,
			channel(e.ChannelID, e.ChannelName),
			strconv.FormatInt(e.ReceivedCount, 10),
			e.LastReceived.Local().Format("2006-01-02 15:04"),
		})
	}
	p.table([]string{"ID", "APP", "PACKAGE", "CHANNEL", "COUNT", "LAST"}, rows, -1)
}

// Prefs prints the stored preferences.
func (p *Printer) Prefs(order domain.SortOrder, title string) {
	p.table([]string{"PREFERENCE", "VALUE"}, [][]string{
		{"sort order", order.String()},
		{"notification title", title},
	}, -1)
}

// Gate prints the speaking conditions.
func (p *Printer) Gate(st gate.State) {
	quiet := st.QuietHours
	if quiet == "" {
		quiet = "none"
	}
	p.table([]string{"GATE", "VALUE"}, [][]string{
		{"ringer mode", string(st.Ringer)},
		{"do not disturb", onOff(st.DoNotDisturb)},
		{"quiet hours", quiet},
	}, -1)
}

// table renders rows; onCol, when >= 0, is a column of "on"/"off" cells
// that get coloured.
func (p *Printer) table(headers []string, rows [][]string, onCol int) {
	header := p.style(colorHeader).Bold(p.color).Padding(0, 1)
	cell := p.style(colorPrimary).Padding(0, 1)
	on := p.style(colorOn).Padding(0, 1)
	off := p.style(colorSecondary).Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.style(colorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			i := row - (table.HeaderRow + 1) // data row index
			switch {
			case row == table.HeaderRow:
				return header
			case col == onCol && i >= 0 && i < len(rows):
				if rows[i][col] == "on" {
					return on
				}
				return off
			}
			return cell
		})
	fmt.Fprintln(p.out, t.Render())
}

// fit shortens s to n runes, leaving room for narrow terminals.
func (p *Printer) fit(s string, n int) string {
	if p.width < 80 {
		n = n / 2
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func channel(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", id, name)
}

func quoteOrAny(title string) string {
	if strings.TrimSpace(title) == "" {
		return "*"
	}
	return strconv.Quote(title)
}
