package tui

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quantra/livedesk/internal/session"
)

type updateMsg struct {
	snapshot *Snapshot
}

type tickMsg time.Time

type model struct {
	snapshot *Snapshot
	updateCh <-chan *Snapshot
	dash     *Dashboard
	width    int
	height   int
}

func newModel(updateCh <-chan *Snapshot, dash *Dashboard) model {
	return model{
		snapshot: &Snapshot{Title: dash.opts.Title},
		updateCh: updateCh,
		dash:     dash,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForUpdate(),
		m.tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Bubble Tea intercepts Ctrl+C, so the outer process would
			// never see a SIGINT. Send one ourselves so the whole program
			// goes through the normal shutdown path.
			_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
			return m, tea.Quit
		case "f":
			m.dash.startFutures()
			return m, nil
		case "o":
			m.dash.startOptions()
			return m, nil
		case "s":
			m.dash.stopTrading()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case updateMsg:
		m.snapshot = msg.snapshot
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.waitForUpdate(), m.tick())
	}
	return m, nil
}

func (m model) View() string {
	snap := m.snapshot
	if snap == nil {
		snap = &Snapshot{}
	}

	availableWidth := m.width - 4
	if availableWidth < 76 {
		availableWidth = 76
	}
	leftWidth := availableWidth/2 - 1
	rightWidth := availableWidth/2 - 1

	left := m.renderLeft(snap, leftWidth)
	right := m.renderRight(snap, rightWidth)

	content := lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	header := m.renderHeader(snap)
	footer := footerStyle.Render("f: futures  o: options  s: stop  q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (m model) renderHeader(snap *Snapshot) string {
	stream := streamBadge(snap.StreamOnline)
	title := fmt.Sprintf("%s | Engine: %s | Stream: %s | Time: %s",
		snap.Title,
		stateLabel(snap.State),
		stream,
		time.Now().Format("15:04:05"))
	return headerStyle.Render(title)
}

func (m model) renderLeft(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, m.renderMarket(snap, width))
	lines = append(lines, "")
	lines = append(lines, m.renderSignal(snap, width))
	lines = append(lines, "")
	lines = append(lines, m.renderPosition(snap, width))
	content := strings.Join(lines, "\n")
	return panelStyle.Width(width).Render(content)
}

func (m model) renderRight(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, m.renderStats(snap, width))
	lines = append(lines, "")
	lines = append(lines, m.renderTrades(snap, width))
	lines = append(lines, "")
	lines = append(lines, m.renderNotices(snap, width))
	content := strings.Join(lines, "\n")
	return panelStyle.Width(width).Render(content)
}

func (m model) renderMarket(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Market"))
	lines = append(lines, sectionRule(width))
	if !snap.HasMarket {
		lines = append(lines, "waiting for data...")
		return strings.Join(lines, "\n")
	}
	md := snap.Market
	ltpLine := fmt.Sprintf("LTP: %s  Pressure: %+.2f", md.LTP.StringFixed(2), md.Pressure)
	if md.VWAP != nil {
		ltpLine += fmt.Sprintf("  VWAP: %s", md.VWAP.StringFixed(2))
	}
	lines = append(lines, ltpLine)
	if md.EngineType == "options" || md.Delta != 0 || md.IV != 0 {
		lines = append(lines, fmt.Sprintf("Delta: %.3f  Gamma: %.4f  IV: %.1f%%", md.Delta, md.Gamma, md.IV))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderSignal(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Signal"))
	lines = append(lines, sectionRule(width))
	if !snap.HasSignal {
		lines = append(lines, "no signal yet")
		return strings.Join(lines, "\n")
	}
	sig := snap.Signal
	lines = append(lines, fmt.Sprintf("Action: %s  Score: %s  Conf: %.0f%%",
		actionLabel(sig.Action), scoreMeter(sig.Score, 10), sig.Confidence))
	if ob := sig.OrderBook; ob != nil {
		lines = append(lines, fmt.Sprintf("Book: %s  Spread: %.3f%%",
			imbalanceBar(ob.PressureScore, 12), ob.SpreadPercent))
		lines = append(lines, fmt.Sprintf("Imb: top5 %+.2f  mid10 %+.2f  deep15 %+.2f",
			ob.Top5, ob.Mid10, ob.Deep15))
	}
	if g := sig.Greeks; g != nil {
		lines = append(lines, fmt.Sprintf("Greeks: Δ%.3f Γ%.4f Θ%.2f V%.2f", g.Delta, g.Gamma, g.Theta, g.Vega))
	}
	for i, reason := range sig.Reasons {
		if i >= 3 {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(sig.Reasons)-3))
			break
		}
		lines = append(lines, "  "+truncate(reason, width-6))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderPosition(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Position"))
	lines = append(lines, sectionRule(width))
	p := snap.Position
	if p == nil {
		lines = append(lines, "flat")
		return strings.Join(lines, "\n")
	}
	dir := p.Direction()
	dirStyle := longStyle
	if !dir.Bullish() {
		dirStyle = shortStyle
	}
	lines = append(lines, fmt.Sprintf("%s %s x%d @ %s",
		dirStyle.Render(string(dir)), p.Symbol, p.Quantity, p.Entry.StringFixed(2)))
	lines = append(lines, fmt.Sprintf("SL: %s  Target: %s  Conf: %.0f%%",
		p.StopLoss.StringFixed(2), p.Target.StringFixed(2), p.Confidence))
	return strings.Join(lines, "\n")
}

func (m model) renderStats(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Session Stats"))
	lines = append(lines, sectionRule(width))
	st := snap.Stats
	lines = append(lines, fmt.Sprintf("P&L: %s  Win Rate: %.1f%%  Trades: %d",
		pnlText(st.TotalPnl), st.WinRate, st.TotalTrades))
	return strings.Join(lines, "\n")
}

func (m model) renderTrades(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Trade History"))
	lines = append(lines, sectionRule(width))
	if len(snap.Trades) == 0 {
		lines = append(lines, "no trades yet")
		return strings.Join(lines, "\n")
	}
	for i, tr := range snap.Trades {
		if i >= maxTradeRows {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(snap.Trades)-maxTradeRows))
			break
		}
		lines = append(lines, tradeRow(tr, width))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderNotices(snap *Snapshot, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Activity"))
	lines = append(lines, sectionRule(width))
	if len(snap.Notices) == 0 {
		lines = append(lines, "quiet")
		return strings.Join(lines, "\n")
	}
	// Newest first.
	for i := len(snap.Notices) - 1; i >= 0; i-- {
		n := snap.Notices[i]
		text := fmt.Sprintf("%s %s", n.At.Format("15:04:05"), truncate(n.Message, width-14))
		lines = append(lines, noticeStyle(n.Level).Render(text))
	}
	return strings.Join(lines, "\n")
}

func (m model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		snap := <-m.updateCh
		for {
			select {
			case latest := <-m.updateCh:
				snap = latest
			default:
				return updateMsg{snapshot: snap}
			}
		}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func stateLabel(s session.State) string {
	switch s {
	case session.StateFutures:
		return runningStyle.Render("FUTURES")
	case session.StateOptions:
		return runningStyle.Render("OPTIONS")
	default:
		return stoppedStyle.Render("STOPPED")
	}
}

func streamBadge(online bool) string {
	if online {
		return runningStyle.Render("LIVE")
	}
	return stoppedStyle.Render("OFFLINE")
}
