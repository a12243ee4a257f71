package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/records/memory"
	"gastos/internal/report"
	"gastos/internal/telegram"
)

var midFebruary = time.Date(2024, 2, 10, 18, 0, 0, 0, time.UTC)

type botHarness struct {
	svc    *BotService
	store  *memory.Store
	reader *countingReader
	sender *fakeSender
}

func newBotHarness(t *testing.T, recs ...core.Record) *botHarness {
	t.Helper()
	store := memory.New(recs...)
	h := &botHarness{
		store:  store,
		reader: &countingReader{next: store},
		sender: &fakeSender{},
	}
	svc, err := NewBotService(BotDependencies{
		Records: h.reader,
		Chats:   store,
		Sender:  h.sender,
		Clock:   func() time.Time { return midFebruary },
	}, DefaultSettings())
	require.NoError(t, err)
	h.svc = svc
	return h
}

func command(kind telegram.Kind, name, args string) telegram.Command {
	return telegram.Command{Kind: kind, Name: name, Args: args, ChatID: 42, UserID: 7, FirstName: "Ana"}
}

func (h *botHarness) lastReply(t *testing.T) string {
	t.Helper()
	texts := h.sender.Texts()
	require.NotEmpty(t, texts)
	return texts[len(texts)-1].Text
}

func TestNewBotServiceRequiresCollaborators(t *testing.T) {
	_, err := NewBotService(BotDependencies{}, DefaultSettings())
	assert.Error(t, err)
}

func TestBot_StartRegistersChat(t *testing.T) {
	h := newBotHarness(t)

	require.NoError(t, h.svc.Handle(context.Background(), command(telegram.KindStart, "start", "")))

	binding, err := h.store.ChatBinding(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), binding.ChatID)
	assert.Equal(t, int64(7), binding.UserID)
	assert.Equal(t, "Ana", binding.FirstName)
	assert.True(t, binding.UpdatedAt.Equal(midFebruary))
	assert.Equal(t, report.FormatConnected(1, 7), h.lastReply(t))
}

func TestBot_StartWithoutChatStore(t *testing.T) {
	sender := &fakeSender{}
	svc, err := NewBotService(BotDependencies{Records: memory.New(), Sender: sender}, DefaultSettings())
	require.NoError(t, err)

	err = svc.Handle(context.Background(), command(telegram.KindStart, "start", ""))

	assert.Error(t, err)
	require.Len(t, sender.Texts(), 1)
	assert.Equal(t, report.FormatFailure(), sender.Texts()[0].Text)
}

func TestBot_SummaryCurrentMonth(t *testing.T) {
	recs := []core.Record{
		record(core.CategoryFood, "12.5", feb(2), "Ana"),
		record(core.CategoryBaby, "30", feb(9), "Luis"),
		record(core.CategoryFood, "99", jan(9), "Luis"),
	}
	h := newBotHarness(t, recs...)

	require.NoError(t, h.svc.Handle(context.Background(), command(telegram.KindSummary, "resumen", "")))

	want := report.FormatText(core.Aggregate(recs[:2], core.Categories()), "Febrero 2024")
	assert.Equal(t, want, h.lastReply(t))
}

func TestBot_SummaryIsCached(t *testing.T) {
	h := newBotHarness(t, record(core.CategoryFood, "12.5", feb(2), "Ana"))
	ctx := context.Background()

	require.NoError(t, h.svc.Handle(ctx, command(telegram.KindSummary, "resumen", "")))
	require.NoError(t, h.svc.Handle(ctx, command(telegram.KindSummary, "resumen", "")))

	assert.Equal(t, 1, h.reader.Calls())
	assert.Len(t, h.sender.Texts(), 2)
	assert.Equal(t, 1, h.svc.Cache().Size())
}

func TestBot_SummaryEmptyMonth(t *testing.T) {
	h := newBotHarness(t)

	require.NoError(t, h.svc.Handle(context.Background(), command(telegram.KindSummary, "resumen", "")))

	assert.Equal(t, report.FormatEmpty("Febrero 2024"), h.lastReply(t))
}

func TestBot_SummaryForNamedMonth(t *testing.T) {
	h := newBotHarness(t, januaryRecords()...)

	require.NoError(t, h.svc.Handle(context.Background(), command(telegram.KindSummary, "resumen", "2024-01")))

	assert.Contains(t, h.lastReply(t), "Resumen de Enero 2024")
	assert.Contains(t, h.lastReply(t), "TOTAL: $18.00")
}

func TestBot_BadPeriodArgument(t *testing.T) {
	h := newBotHarness(t)

	err := h.svc.Handle(context.Background(), command(telegram.KindCompare, "comparar", "enero"))

	assert.NoError(t, err)
	assert.Equal(t, report.FormatInvalidPeriod("enero"), h.lastReply(t))
	assert.Zero(t, h.reader.Calls())
}

func TestBot_Compare(t *testing.T) {
	recs := append(januaryRecords(), record(core.CategoryHome, "27", feb(3), "Luis"))
	h := newBotHarness(t, recs...)

	require.NoError(t, h.svc.Handle(context.Background(), command(telegram.KindCompare, "comparar", "")))

	reply := h.lastReply(t)
	assert.Contains(t, reply, "Resumen de Febrero 2024")
	assert.Contains(t, reply, "Mes anterior: $18.00")
	assert.Contains(t, reply, "Este mes: $27.00")
	assert.Contains(t, reply, "▲ <b>Variación: $9.00 (50.0%)</b>")
	assert.Contains(t, reply, "• Luis: $27.00 (1)")
	assert.Equal(t, 2, h.reader.Calls())
}

func TestBot_HelpAndUnknown(t *testing.T) {
	h := newBotHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.Handle(ctx, command(telegram.KindHelp, "ayuda", "")))
	assert.Equal(t, report.FormatHelp(), h.lastReply(t))

	require.NoError(t, h.svc.Handle(ctx, command(telegram.KindUnknown, "borrar", "")))
	assert.Equal(t, report.FormatUnknownCommand("/borrar"), h.lastReply(t))
}

func TestBot_FetchFailureRepliesWithNotice(t *testing.T) {
	sender := &fakeSender{}
	svc, err := NewBotService(BotDependencies{
		Records: fetchFunc(func(context.Context, time.Time, time.Time) ([]core.Record, error) {
			return nil, errors.New("quota exceeded")
		}),
		Sender: sender,
		Clock:  func() time.Time { return midFebruary },
	}, DefaultSettings())
	require.NoError(t, err)

	err = svc.Handle(context.Background(), command(telegram.KindSummary, "resumen", ""))

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "2024-02", ferr.Period)
	assert.Equal(t, report.FormatFailure(), sender.Texts()[0].Text)
	assert.Zero(t, svc.Cache().Size(), "failures are not cached")
}

func TestBot_ReplyFailureIsReturned(t *testing.T) {
	h := newBotHarness(t)
	h.sender.textErr = errors.New("Forbidden: bot was blocked by the user")

	err := h.svc.Handle(context.Background(), command(telegram.KindHelp, "help", ""))

	var derr *telegram.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, int64(42), derr.ChatID)
}
