package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"budgets/internal/core"
)

// Theme colors
var (
	colorBorder    = lipgloss.Color("#282726")
	colorTextDim   = lipgloss.Color("#575653")
	colorTextMuted = lipgloss.Color("#6F6E69")
	colorText      = lipgloss.Color("#FFFCF0")
	colorAccent    = lipgloss.Color("#3AA99F")
	colorGreen     = lipgloss.Color("#879A39")
	colorOrange    = lipgloss.Color("#DA702C")
	colorRed       = lipgloss.Color("#D14D41")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Align(lipgloss.Center)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	moneyStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	overStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// Table is a bordered text table. Every column except the first is
// right-aligned.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a centered title in a rounded box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders t with box-drawing borders. Widths are measured in
// terminal cells so emoji and styled cells line up.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}
	if numCols == 0 {
		return ""
	}

	widths := make([]int, numCols)
	for i, h := range t.Headers {
		widths[i] = max(widths[i], lipgloss.Width(h))
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < numCols {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")
	if len(t.Headers) > 0 {
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			h := ""
			if i < len(t.Headers) {
				h = t.Headers[i]
			}
			b.WriteString(headerStyle.Render(" " + padRight(h, widths[i]) + " "))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
		rule("├", "┼", "┤")
	}

	for _, row := range t.Rows {
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			var padded string
			if i == 0 {
				padded = padRight(cell, widths[i])
			} else {
				padded = padLeft(cell, widths[i])
			}
			b.WriteString(valueStyle.Render(" " + padded + " "))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
	}
	rule("╰", "┴", "╯")

	return b.String()
}

func padRight(s string, w int) string {
	if n := lipgloss.Width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

func padLeft(s string, w int) string {
	if n := lipgloss.Width(s); n < w {
		return strings.Repeat(" ", w-n) + s
	}
	return s
}

// RenderProgress renders spent against target as a bar followed by the
// amounts. The bar turns orange from 80% and red once the target is reached.
func RenderProgress(spent, target core.Money, width int) string {
	if target.Cents <= 0 || width <= 0 {
		return ""
	}
	pct := float64(spent.Cents) / float64(target.Cents)
	filled := min(int(pct*float64(width)), width)
	filled = max(filled, 0)

	style := moneyStyle
	switch {
	case pct >= 1:
		style = overStyle
	case pct >= 0.8:
		style = warnStyle
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %s/%s", style.Render(bar), spent, target)
}

func budgetTable(title string, budgets []core.BudgetWithTransactions) Table {
	rows := make([][]string, 0, len(budgets))
	for _, b := range budgets {
		status := ""
		if b.Reached() {
			status = "reached"
		}
		rows = append(rows, []string{
			strings.TrimSpace(b.Emoji + " " + b.Name),
			b.Amount.String(),
			b.Spent().String(),
			b.Remaining().String(),
			fmt.Sprint(len(b.Transactions)),
			status,
			b.ID,
		})
	}
	return Table{
		Title:   title,
		Headers: []string{"Budget", "Target", "Spent", "Remaining", "Txs", "Status", "ID"},
		Rows:    rows,
	}
}

func transactionTable(txs []core.Transaction) Table {
	rows := make([][]string, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, []string{
			t.CreatedAt.Format("2006-01-02 15:04"),
			t.Amount.String(),
			t.Description,
			t.ID,
		})
	}
	return Table{Headers: []string{"Date", "Amount", "Description", "ID"}, Rows: rows}
}

func budgetTransactionTable(title string, txs []core.BudgetTransaction) Table {
	rows := make([][]string, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, []string{
			t.CreatedAt.Format("2006-01-02 15:04"),
			strings.TrimSpace(t.Emoji + " " + t.BudgetName),
			t.Amount.String(),
			t.Description,
			t.ID,
		})
	}
	return Table{Title: title, Headers: []string{"Date", "Budget", "Amount", "Description", "ID"}, Rows: rows}
}
