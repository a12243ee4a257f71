package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/records"
	"gastos/internal/report"
	"gastos/internal/telegram"
)

const (
	summaryCacheSize = 24
	summaryCacheTTL  = 2 * time.Minute
)

// ErrBadPeriod is returned when a command argument is not a "YYYY-MM" month.
var ErrBadPeriod = errors.New("bad period argument")

// BotDependencies are the collaborators of the webhook commands.
type BotDependencies struct {
	Records records.RecordReader
	Chats   records.ChatStore
	Sender  Sender
	Metrics *metrics.Metrics
	Logger  *log.Logger
	Clock   func() time.Time
}

// BotService answers the chat commands received through the webhook.
type BotService struct {
	deps      BotDependencies
	settings  Settings
	logger    *log.Logger
	summaries *cache.LRUCache[string]
}

func NewBotService(deps BotDependencies, settings Settings) (*BotService, error) {
	if deps.Records == nil || deps.Sender == nil {
		return nil, errors.New("bot service needs a record reader and a sender")
	}
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &BotService{
		deps:      deps,
		settings:  settings.withDefaults(),
		logger:    deps.Logger.WithComponent(log.ComponentBot),
		summaries: cache.NewLRUCache[string](summaryCacheSize, summaryCacheTTL),
	}, nil
}

// Cache exposes the /resumen cache so it can be swept by a cache.Manager.
func (b *BotService) Cache() *cache.LRUCache[string] {
	return b.summaries
}

// Handle answers one command. A reply is always attempted; when building
// it fails the chat gets a generic failure notice and the error is returned.
func (b *BotService) Handle(ctx context.Context, cmd telegram.Command) error {
	logger := b.logger.With(log.FieldCommand, cmd.Name, log.FieldChatID, cmd.ChatID)
	b.deps.Metrics.CommandHandled(string(cmd.Kind))

	var (
		reply string
		err   error
	)
	switch cmd.Kind {
	case telegram.KindStart:
		reply, err = b.start(ctx, cmd)
	case telegram.KindSummary:
		reply, err = b.summary(ctx, cmd.Args)
	case telegram.KindCompare:
		reply, err = b.compare(ctx, cmd.Args)
	case telegram.KindHelp:
		reply = report.FormatHelp()
	default:
		reply = report.FormatUnknownCommand("/" + cmd.Name)
	}

	switch {
	case errors.Is(err, ErrBadPeriod):
		reply, err = report.FormatInvalidPeriod(cmd.Args), nil
	case err != nil:
		logger.ErrorContext(ctx, "Command failed",
			log.FieldErrorType, errorType(err),
			log.FieldError, err)
		reply = report.FormatFailure()
	}

	if sendErr := b.sendText(ctx, cmd.ChatID, reply); sendErr != nil {
		logger.ErrorContext(ctx, "Failed to reply to command", log.FieldError, sendErr)
		return errors.Join(err, sendErr)
	}
	logger.InfoContext(ctx, "Command handled")
	return err
}

func (b *BotService) start(ctx context.Context, cmd telegram.Command) (string, error) {
	if b.deps.Chats == nil {
		return "", errors.New("chat registration is not available")
	}
	binding := core.ChatBinding{
		ChatID:    cmd.ChatID,
		UserID:    cmd.UserID,
		FirstName: cmd.FirstName,
		UpdatedAt: b.deps.Clock().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, b.settings.FetchTimeout)
	defer cancel()
	if err := b.deps.Chats.SaveChatBinding(ctx, binding); err != nil {
		return "", fmt.Errorf("save chat binding: %w", err)
	}
	return report.FormatConnected(b.settings.ScheduleDay, b.settings.ScheduleHour), nil
}

// summary replies with the text summary of the current month, or of the
// month named in args. Replies are cached per month.
func (b *BotService) summary(ctx context.Context, args string) (string, error) {
	period, err := b.period(args)
	if err != nil {
		return "", err
	}
	return b.summaries.GetOrLoad(ctx, period.Key(), func(ctx context.Context) (string, error) {
		recs, err := b.fetch(ctx, period)
		if err != nil {
			return "", err
		}
		agg := core.Aggregate(recs, core.Categories())
		if agg.IsEmpty() {
			return report.FormatEmpty(period.Label), nil
		}
		return report.FormatText(agg, period.Label), nil
	})
}

// compare replies with the month against the one before it.
func (b *BotService) compare(ctx context.Context, args string) (string, error) {
	period, err := b.period(args)
	if err != nil {
		return "", err
	}
	previous := period.Previous(b.settings.Location)

	var current, before []core.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = b.fetch(gctx, period)
		return err
	})
	g.Go(func() error {
		var err error
		before, err = b.fetch(gctx, previous)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	cats := core.Categories()
	agg := core.Aggregate(current, cats)
	cmp := core.Compare(agg.GrandTotal, core.Aggregate(before, cats).GrandTotal)
	return report.Join(
		report.FormatText(agg, period.Label),
		report.FormatComparison(cmp),
		report.FormatContributors(core.AggregateByContributor(current)),
	), nil
}

func (b *BotService) period(args string) (core.Period, error) {
	arg := strings.TrimSpace(args)
	if arg == "" {
		return core.ResolveMonth(b.deps.Clock(), b.settings.Location), nil
	}
	p, err := core.ParsePeriodKey(arg, b.settings.Location)
	if err != nil {
		return core.Period{}, fmt.Errorf("%w: %v", ErrBadPeriod, err)
	}
	return p, nil
}

func (b *BotService) fetch(ctx context.Context, period core.Period) ([]core.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.settings.FetchTimeout)
	defer cancel()
	recs, err := b.deps.Records.FetchRecords(ctx, period.Start, period.End)
	if err != nil {
		return nil, &FetchError{Period: period.Key(), Err: err}
	}
	return recs, nil
}

func (b *BotService) sendText(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, b.settings.DeliveryTimeout)
	defer cancel()
	if err := b.deps.Sender.SendText(ctx, chatID, text); err != nil {
		b.deps.Metrics.DeliveryFailed(deliveryOp(err, telegram.OpSendMessage))
		return asDeliveryError(err, telegram.OpSendMessage, chatID)
	}
	return nil
}
