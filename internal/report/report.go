// Package report builds the Telegram HTML messages for the monthly summary.
package report

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"gastos/internal/core"
)

const (
	Separator = "━━━━━━━━━━━━━━━━━━━"

	// MaxCaptionLength is Telegram's photo caption limit.
	MaxCaptionLength = 1024
	// MaxMessageLength is Telegram's text message limit.
	MaxMessageLength = 4096

	noRecordsLine   = "📝 No hay gastos registrados para este mes."
	noBreakdownLine = "📝 No hay gastos registrados en las categorías conocidas."
)

// FormatText renders the full text summary: header, one line per non-zero
// category in descending order, separator and grand total. An empty
// aggregation yields FormatEmpty instead.
func FormatText(agg core.Aggregation, label string) string {
	if agg.IsEmpty() {
		return FormatEmpty(label)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Resumen de %s</b>\n\n", html.EscapeString(label))
	b.WriteString(body(breakdownLines(agg), agg))
	return b.String()
}

// FormatCaption renders the breakdown and total without the header, trimmed
// to fit MaxCaptionLength. Lines are dropped from the smallest category up.
func FormatCaption(agg core.Aggregation) string {
	if agg.IsEmpty() {
		return noRecordsLine
	}
	lines := breakdownLines(agg)
	for {
		caption := body(lines, agg)
		if utf8.RuneCountInString(caption) <= MaxCaptionLength || len(lines) == 0 {
			return caption
		}
		lines = lines[:len(lines)-1]
	}
}

// FormatEmpty is sent when a period has no records or a zero grand total.
func FormatEmpty(label string) string {
	return fmt.Sprintf("🤖 Prueba de Bot - %s\n\n"+
		"✅ El bot está funcionando correctamente.\n\n"+
		noRecordsLine+"\n\n"+
		"💡 Agrega gastos en la app para ver el resumen.", html.EscapeString(label))
}

// FormatComparison renders the month-over-month block.
func FormatComparison(cmp core.Comparison) string {
	arrow := "▼"
	if cmp.Increased {
		arrow = "▲"
	}
	var b strings.Builder
	b.WriteString("📊 <b>Comparativa Mensual</b>\n")
	fmt.Fprintf(&b, "Mes anterior: $%s\n", core.FormatAmount(cmp.Previous))
	fmt.Fprintf(&b, "Este mes: $%s\n", core.FormatAmount(cmp.Current))
	fmt.Fprintf(&b, "%s <b>Variación: $%s (%s%%)</b>",
		arrow, core.FormatAmount(cmp.Difference.Abs()), cmp.PercentChange.StringFixed(1))
	return b.String()
}

// FormatContributors renders the per-person block, or "" when list is empty.
func FormatContributors(list []core.ContributorAmount) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("👥 <b>Por persona</b>")
	for _, c := range list {
		fmt.Fprintf(&b, "\n• %s: $%s (%d)", html.EscapeString(c.Contributor), core.FormatAmount(c.Amount), c.Records)
	}
	return b.String()
}

// Join concatenates non-empty sections with a blank line between them and
// stops before a section would push the message past MaxMessageLength.
func Join(sections ...string) string {
	var out []string
	n := 0
	for _, s := range sections {
		if strings.TrimSpace(s) == "" {
			continue
		}
		size := utf8.RuneCountInString(s)
		if len(out) > 0 {
			size += 2
		}
		if n+size > MaxMessageLength {
			break
		}
		out = append(out, s)
		n += size
	}
	return strings.Join(out, "\n\n")
}

func breakdownLines(agg core.Aggregation) []string {
	breakdown := agg.Breakdown()
	lines := make([]string, 0, len(breakdown))
	for _, ca := range breakdown {
		lines = append(lines, fmt.Sprintf("%s %s: $%s",
			ca.Category.Emoji(), html.EscapeString(ca.Category.String()), core.FormatAmount(ca.Amount)))
	}
	return lines
}

// body writes the breakdown lines and the total. When every record fell in
// an unknown category there are no lines, and a notice takes their place.
func body(lines []string, agg core.Aggregation) string {
	var b strings.Builder
	if len(lines) == 0 {
		b.WriteString(noBreakdownLine)
		b.WriteString("\n\n")
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	if len(lines) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(Separator)
	fmt.Fprintf(&b, "\n💰 <b>TOTAL: $%s</b>", core.FormatAmount(agg.GrandTotal))
	return b.String()
}
