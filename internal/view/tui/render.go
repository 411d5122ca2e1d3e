package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/quantra/livedesk/internal/domain"
	"github.com/quantra/livedesk/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	footerStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)

	runningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	stoppedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	longStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	shortStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	gainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	lossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
)

func sectionRule(width int) string {
	n := width - 4
	if n < 1 {
		n = 1
	}
	return strings.Repeat("─", n)
}

func truncate(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// pnlText formats a P&L amount with gain/loss coloring.
func pnlText(pnl decimal.Decimal) string {
	text := pnl.StringFixed(2)
	if pnl.IsNegative() {
		return lossStyle.Render(text)
	}
	return gainStyle.Render("+" + text)
}

// actionLabel colors the signal action: buys green, sells red, waits plain.
func actionLabel(action string) string {
	switch strings.ToUpper(action) {
	case "BUY", "LONG", "CE":
		return longStyle.Render(action)
	case "SELL", "SHORT", "PE":
		return shortStyle.Render(action)
	default:
		return action
	}
}

// scoreMeter renders a signed score in [-100, 100] as a filled bar plus
// the numeric value, e.g. "▮▮▮▯▯ +60".
func scoreMeter(score float64, cells int) string {
	if cells < 1 {
		cells = 1
	}
	mag := score / 100
	if mag < 0 {
		mag = -mag
	}
	if mag > 1 {
		mag = 1
	}
	filled := int(mag*float64(cells) + 0.5)
	bar := strings.Repeat("▮", filled) + strings.Repeat("▯", cells-filled)
	text := fmt.Sprintf("%s %+.0f", bar, score)
	if score < 0 {
		return lossStyle.Render(text)
	}
	if score > 0 {
		return gainStyle.Render(text)
	}
	return text
}

// imbalanceBar renders a signed order-book pressure in [-100, 100] as a
// bar growing left (sell side) or right (buy side) from a center pivot.
func imbalanceBar(pressure float64, halfWidth int) string {
	if halfWidth < 1 {
		halfWidth = 1
	}
	p := pressure / 100
	if p > 1 {
		p = 1
	}
	if p < -1 {
		p = -1
	}
	n := int(p*float64(halfWidth) + sign(p)*0.5)
	left := strings.Repeat(" ", halfWidth)
	right := strings.Repeat(" ", halfWidth)
	if n > 0 {
		right = strings.Repeat("█", n) + strings.Repeat(" ", halfWidth-n)
	} else if n < 0 {
		left = strings.Repeat(" ", halfWidth+n) + strings.Repeat("█", -n)
	}
	bar := left + "│" + right
	if p < 0 {
		return lossStyle.Render(bar)
	}
	if p > 0 {
		return gainStyle.Render(bar)
	}
	return bar
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// tradeRow renders one history line: direction, symbol, entry/exit and the
// realized P&L when the trade is closed.
func tradeRow(tr domain.TradeRecord, width int) string {
	dir := string(tr.TradeType)
	dirText := dir
	if tr.TradeType.Bullish() {
		dirText = longStyle.Render(fmt.Sprintf("%-5s", dir))
	} else {
		dirText = shortStyle.Render(fmt.Sprintf("%-5s", dir))
	}

	row := fmt.Sprintf("%s %-12s @%s", dirText, truncate(tr.Symbol, 12), tr.EntryPrice.StringFixed(2))
	if tr.Open() {
		return row + "  " + warnStyle.Render("OPEN")
	}
	if tr.Pnl != nil {
		pct := ""
		if tr.PnlPercent != nil {
			pct = fmt.Sprintf(" (%.1f%%)", *tr.PnlPercent)
		}
		row += "  " + pnlText(*tr.Pnl) + pct
	}
	return row
}

func noticeStyle(level session.Level) lipgloss.Style {
	switch level {
	case session.LevelSuccess:
		return gainStyle
	case session.LevelWarn:
		return warnStyle
	case session.LevelError:
		return lossStyle
	default:
		return lipgloss.NewStyle()
	}
}
