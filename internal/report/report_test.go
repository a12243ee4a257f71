package report

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gastos/internal/core"

	"github.com/shopspring/decimal"
)

func agg(pairs ...any) core.Aggregation {
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	var recs []core.Record
	for i := 0; i < len(pairs); i += 2 {
		recs = append(recs, core.Record{
			Category:  core.Category(pairs[i].(string)),
			Amount:    decimal.RequireFromString(pairs[i+1].(string)),
			CreatedAt: at,
		})
	}
	return core.Aggregate(recs, core.Categories())
}

func TestFormatText(t *testing.T) {
	got := FormatText(agg("Comida", "10", "Transporte", "5", "Unknown", "3"), "Enero 2024")
	want := "📊 <b>Resumen de Enero 2024</b>\n\n" +
		"🍽️ Comida: $10.00\n" +
		"🚗 Transporte: $5.00\n\n" +
		Separator + "\n" +
		"💰 <b>TOTAL: $18.00</b>"
	if got != want {
		t.Fatalf("FormatText mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatTextOrdersDescendingAndSkipsZero(t *testing.T) {
	got := FormatText(agg("Casa", "1", "Bebé", "30", "Comida", "12.5"), "Marzo 2024")
	iBaby := strings.Index(got, "Bebé")
	iFood := strings.Index(got, "Comida")
	iHome := strings.Index(got, "Casa")
	if !(iBaby < iFood && iFood < iHome) {
		t.Fatalf("categories not in descending order:\n%s", got)
	}
	for _, absent := range []string{"Transporte", "Chucherías", "Julinda", "Vladimir"} {
		if strings.Contains(got, absent) {
			t.Errorf("zero category %s should not appear", absent)
		}
	}
}

func TestFormatTextEscapesLabel(t *testing.T) {
	got := FormatText(agg("Casa", "1"), "<Enero & Co>")
	if !strings.Contains(got, "&lt;Enero &amp; Co&gt;") {
		t.Fatalf("label not escaped: %s", got)
	}
}

func TestFormatCaption(t *testing.T) {
	got := FormatCaption(agg("Comida", "10", "Transporte", "5"))
	if strings.Contains(got, "Resumen de") {
		t.Fatalf("caption should not include the header: %q", got)
	}
	if !strings.HasPrefix(got, "🍽️ Comida: $10.00\n") || !strings.HasSuffix(got, "💰 <b>TOTAL: $15.00</b>") {
		t.Fatalf("unexpected caption: %q", got)
	}
	if utf8.RuneCountInString(got) > MaxCaptionLength {
		t.Fatalf("caption too long: %d", utf8.RuneCountInString(got))
	}
}

func TestFormatEmpty(t *testing.T) {
	want := "🤖 Prueba de Bot - Febrero 2024\n\n" +
		"✅ El bot está funcionando correctamente.\n\n" +
		"📝 No hay gastos registrados para este mes.\n\n" +
		"💡 Agrega gastos en la app para ver el resumen."
	if got := FormatEmpty("Febrero 2024"); got != want {
		t.Fatalf("FormatEmpty = %q", got)
	}
}

func TestFormatTextWithoutRecords(t *testing.T) {
	empty := core.Aggregate(nil, core.Categories())
	if got, want := FormatText(empty, "Febrero 2024"), FormatEmpty("Febrero 2024"); got != want {
		t.Fatalf("FormatText(empty) = %q, want %q", got, want)
	}
	if got := FormatCaption(empty); got != noRecordsLine {
		t.Fatalf("FormatCaption(empty) = %q", got)
	}

	zero := agg("Comida", "0", "Casa", "0")
	if got, want := FormatText(zero, "Febrero 2024"), FormatEmpty("Febrero 2024"); got != want {
		t.Fatalf("FormatText(zero total) = %q, want %q", got, want)
	}
}

func TestFormatTextUnknownCategoriesOnly(t *testing.T) {
	unknown := agg("Otros", "7", "Regalos", "3.5")
	got := FormatText(unknown, "Enero 2024")
	want := "📊 <b>Resumen de Enero 2024</b>\n\n" +
		"📝 No hay gastos registrados en las categorías conocidas.\n\n" +
		Separator + "\n" +
		"💰 <b>TOTAL: $10.50</b>"
	if got != want {
		t.Fatalf("FormatText mismatch\n got: %q\nwant: %q", got, want)
	}

	caption := FormatCaption(unknown)
	if !strings.HasPrefix(caption, noBreakdownLine) || !strings.HasSuffix(caption, "💰 <b>TOTAL: $10.50</b>") {
		t.Fatalf("unexpected caption: %q", caption)
	}
}

func TestFormatComparison(t *testing.T) {
	up := FormatComparison(core.Compare(decimal.NewFromInt(110), decimal.NewFromInt(30)))
	if !strings.Contains(up, "Mes anterior: $30.00") || !strings.Contains(up, "Este mes: $110.00") {
		t.Fatalf("unexpected comparison: %s", up)
	}
	if !strings.Contains(up, "▲ <b>Variación: $80.00 (266.7%)</b>") {
		t.Fatalf("unexpected variation line: %s", up)
	}

	down := FormatComparison(core.Compare(decimal.NewFromInt(50), decimal.NewFromInt(100)))
	if !strings.Contains(down, "▼ <b>Variación: $50.00 (-50.0%)</b>") {
		t.Fatalf("unexpected variation line: %s", down)
	}
}

func TestFormatContributors(t *testing.T) {
	if FormatContributors(nil) != "" {
		t.Fatal("empty list should render nothing")
	}
	got := FormatContributors([]core.ContributorAmount{
		{Contributor: "Ana", Amount: decimal.NewFromInt(12), Records: 2},
		{Contributor: "<b>", Amount: decimal.NewFromInt(1), Records: 1},
	})
	want := "👥 <b>Por persona</b>\n• Ana: $12.00 (2)\n• &lt;b&gt;: $1.00 (1)"
	if got != want {
		t.Fatalf("FormatContributors = %q", got)
	}
}

func TestJoin(t *testing.T) {
	if got := Join("a", "", "  ", "b"); got != "a\n\nb" {
		t.Fatalf("Join = %q", got)
	}
	long := strings.Repeat("x", MaxMessageLength)
	if got := Join("head", long); got != "head" {
		t.Fatalf("Join should drop sections past the limit, got %d runes", utf8.RuneCountInString(got))
	}
}

func TestFormatConnected(t *testing.T) {
	if FormatConnected(1, 7) != "✅ ¡Conectado! Recibirás el resumen el día 1 de cada mes a las 7 AM." {
		t.Fatalf("unexpected default message: %s", FormatConnected(1, 7))
	}
	if !strings.Contains(FormatConnected(2, 9), "día 2") {
		t.Fatalf("unexpected custom message: %s", FormatConnected(2, 9))
	}
}

func TestCommandReplies(t *testing.T) {
	if !strings.Contains(FormatHelp(), "/resumen") {
		t.Fatal("help should list /resumen")
	}
	if got := FormatUnknownCommand("/<x>"); !strings.Contains(got, "/&lt;x&gt;") {
		t.Fatalf("unknown command should be escaped: %s", got)
	}
	if got := FormatInvalidPeriod("2024-13"); !strings.Contains(got, "2024-13") || !strings.Contains(got, "AAAA-MM") {
		t.Fatalf("FormatInvalidPeriod = %s", got)
	}
}
