package main

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tradesim/internal/engine"
	"tradesim/internal/performance"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(20)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	symbolStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// signed colours v by sign.
func signed(v float64, format string) string {
	s := fmt.Sprintf(format, v)
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return valueStyle.Render(s)
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func ratio(r performance.Ratio) string {
	if math.IsInf(float64(r), 1) {
		return valueStyle.Render("inf")
	}
	return valueStyle.Render(fmt.Sprintf("%.2f", float64(r)))
}

func renderRun(run *engine.Run) string {
	title := titleStyle.Render(fmt.Sprintf("%s  %s", run.Strategy, run.ID))
	if run.Error != nil {
		return lipgloss.JoinVertical(lipgloss.Left, title,
			row("state", errorStyle.Render(string(run.State))),
			row("error", errorStyle.Render(run.Error.Code+": "+run.Error.Message)),
		)
	}
	res := run.Result
	if res == nil {
		return lipgloss.JoinVertical(lipgloss.Left, title, row("state", valueStyle.Render(string(run.State))))
	}

	metrics := []string{
		row("period", valueStyle.Render(res.StartDate+" to "+res.EndDate)),
		row("fill policy", valueStyle.Render(res.FillPolicy)),
		row("initial capital", valueStyle.Render(fmt.Sprintf("%.2f", res.InitialCapital))),
		row("final capital", signed(res.FinalCapital-res.InitialCapital, "%+.2f")+dimStyle.Render(fmt.Sprintf("  (%.2f)", res.FinalCapital))),
		row("total return", signed(res.TotalReturnPct, "%+.2f%%")),
		row("sharpe ratio", valueStyle.Render(fmt.Sprintf("%.3f", res.SharpeRatio))),
		row("max drawdown", lossStyle.Render(fmt.Sprintf("%.2f%%", res.MaxDrawdownPct))),
		row("win rate", valueStyle.Render(fmt.Sprintf("%.1f%%", res.WinRate))),
		row("trades", valueStyle.Render(fmt.Sprintf("%d (%d closed, %d profitable)", res.TotalTrades, res.ClosedTrades, res.ProfitableTrades))),
		row("avg trade pnl", signed(res.AvgTradePnL, "%+.2f")),
		row("best / worst", signed(res.BestTrade, "%+.2f")+dimStyle.Render(" / ")+signed(res.WorstTrade, "%+.2f")),
		row("profit factor", ratio(res.ProfitFactor)),
		row("commission", valueStyle.Render(fmt.Sprintf("%.2f", res.TotalCommission))),
		row("exposure", valueStyle.Render(fmt.Sprintf("%.1f%%", res.Exposure*100))),
	}

	sections := []string{title, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, metrics...))}
	if len(res.Rejections) > 0 {
		reasons := make([]string, 0, len(res.Rejections))
		for r := range res.Rejections {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		lines := make([]string, 0, len(reasons))
		for _, r := range reasons {
			lines = append(lines, row(r, valueStyle.Render(fmt.Sprint(res.Rejections[r]))))
		}
		sections = append(sections, dimStyle.Render("rejections"), boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}
	if n := len(res.Diagnostics); n > 0 {
		sections = append(sections, dimStyle.Render(fmt.Sprintf("%d diagnostics (use -json for detail)", n)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderSummaries(runs []engine.Summary) string {
	if len(runs) == 0 {
		return dimStyle.Render("no runs")
	}
	var b strings.Builder
	for _, r := range runs {
		state := valueStyle.Render(fmt.Sprintf("%-10s", r.State))
		switch r.State {
		case engine.StateCompleted:
			state = gainStyle.Render(fmt.Sprintf("%-10s", r.State))
		case engine.StateFailed:
			state = lossStyle.Render(fmt.Sprintf("%-10s", r.State))
		}
		fmt.Fprintf(&b, "%s  %s %s  %s\n", dimStyle.Render(r.CreatedAt.Format("2006-01-02 15:04:05")),
			state, symbolStyle.Render(fmt.Sprintf("%-14s", r.Strategy)), r.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderComparison(rows []engine.Comparison) string {
	header := dimStyle.Render(fmt.Sprintf("%-14s %10s %8s %9s %7s %6s  %s", "strategy", "return%", "sharpe", "maxdd%", "win%", "trades", "run"))
	lines := []string{header}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s %s %8.3f %9.2f %7.1f %6d  %s",
			symbolStyle.Render(fmt.Sprintf("%-14s", r.Strategy)),
			signed(r.TotalReturnPct, "%+10.2f"),
			r.SharpeRatio, r.MaxDrawdownPct, r.WinRate, r.TotalTrades,
			dimStyle.Render(r.ID)))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
