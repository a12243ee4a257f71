package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gastos/internal/chart"
	"gastos/internal/config"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/records"
	"gastos/internal/report"
	"gastos/internal/telegram"
)

// TriggerSource names what started a run. Each source has its own gate.
type TriggerSource string

const (
	SourceCron      TriggerSource = "cron"
	SourceScheduler TriggerSource = "scheduler"
	SourceQueue     TriggerSource = "queue"
)

// Trigger starts one report run.
type Trigger struct {
	Source TriggerSource
	Force  bool
	// Now is the trigger time; zero means the service clock.
	Now time.Time
	// PeriodKey selects a month as "YYYY-MM"; empty means the previous month.
	PeriodKey   string
	RequestedBy string
}

// State is the terminal state of a run.
type State string

const (
	StateSkip              State = "skip"
	StateDelivered         State = "delivered"
	StateDeliveredFallback State = "delivered_fallback"
	StateDeliveredEmpty    State = "delivered_empty"
	StateFailed            State = "failed"
)

// Delivered reports whether a message reached the chat.
func (s State) Delivered() bool {
	return s == StateDelivered || s == StateDeliveredFallback || s == StateDeliveredEmpty
}

// Skip reasons
const (
	ReasonOutsideWindow    = "outside_window"
	ReasonNoDestination    = "no_destination"
	ReasonInFlight         = "in_flight"
	ReasonAlreadyDelivered = "already_delivered"
)

// Outcome describes how a run ended. Err is set for Failed runs and for
// the no-destination skip.
type Outcome struct {
	State      State
	Reason     string
	RunID      string
	Period     core.Period
	ChatID     int64
	Records    int
	GrandTotal decimal.Decimal
	Err        error
}

// ChartRenderer draws the aggregation as a PNG.
type ChartRenderer interface {
	Render(ctx context.Context, agg core.Aggregation, label string) ([]byte, error)
}

// Sender delivers messages to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error
}

// ChartArchive keeps a copy of each rendered chart.
type ChartArchive interface {
	ArchiveChart(ctx context.Context, periodKey, runID string, png []byte) error
}

var (
	_ ChartRenderer = (*chart.Renderer)(nil)
	_ Sender        = (*telegram.Client)(nil)
)

// Settings carries the run configuration.
type Settings struct {
	ChatID          int64
	Location        *time.Location
	ScheduleDay     int
	ScheduleHour    int
	FetchTimeout    time.Duration
	RenderTimeout   time.Duration
	DeliveryTimeout time.Duration
	Comparison      bool
}

func DefaultSettings() Settings {
	return Settings{
		Location:        time.UTC,
		ScheduleDay:     1,
		ScheduleHour:    7,
		FetchTimeout:    20 * time.Second,
		RenderTimeout:   15 * time.Second,
		DeliveryTimeout: 30 * time.Second,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ChatID:          cfg.ChatID(),
		Location:        cfg.Location(),
		ScheduleDay:     cfg.ScheduleDay,
		ScheduleHour:    cfg.ScheduleHour,
		FetchTimeout:    cfg.FetchTimeout,
		RenderTimeout:   cfg.RenderTimeout,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Comparison:      cfg.ReportComparison,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Location == nil {
		s.Location = d.Location
	}
	if s.ScheduleDay == 0 {
		s.ScheduleDay = d.ScheduleDay
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = d.FetchTimeout
	}
	if s.RenderTimeout <= 0 {
		s.RenderTimeout = d.RenderTimeout
	}
	if s.DeliveryTimeout <= 0 {
		s.DeliveryTimeout = d.DeliveryTimeout
	}
	return s
}

// Window is the monthly delivery window gate for these settings.
func (s Settings) Window() MonthlyWindowGate {
	s = s.withDefaults()
	return MonthlyWindowGate{
		Day:      s.ScheduleDay,
		Hour:     s.ScheduleHour,
		Location: s.Location,
	}
}

// Dependencies are built once in main and shared by every run.
// Ledger, Chats, Archive and Metrics are optional.
type Dependencies struct {
	Records  records.RecordReader
	Ledger   records.DeliveryLedger
	Chats    records.ChatStore
	Renderer ChartRenderer
	Sender   Sender
	Archive  ChartArchive
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	Gates    GateRegistry
	Clock    func() time.Time
	NewRunID func() string
}

// SummaryService runs the monthly report: gate, fetch, aggregate, render
// and deliver, falling back to text when the chart cannot be sent.
type SummaryService struct {
	deps     Dependencies
	settings Settings
	logger   *log.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSummaryService(deps Dependencies, settings Settings) (*SummaryService, error) {
	if deps.Records == nil || deps.Renderer == nil || deps.Sender == nil {
		return nil, errors.New("summary service needs a record reader, a renderer and a sender")
	}
	settings = settings.withDefaults()
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Gates == nil {
		deps.Gates = DefaultGates(settings.Window())
	}
	return &SummaryService{
		deps:     deps,
		settings: settings,
		logger:   deps.Logger.WithComponent(log.ComponentReport),
		inFlight: make(map[string]struct{}),
	}, nil
}

// Run executes one report run. It never panics and never returns an
// error; failures end in StateFailed with Outcome.Err set.
func (s *SummaryService) Run(ctx context.Context, trig Trigger) (out Outcome) {
	started := s.deps.Clock()
	if trig.Now.IsZero() {
		trig.Now = started
	}
	runID := s.deps.NewRunID()
	logger := s.logger.With(log.FieldRunID, runID, log.FieldTrigger, string(trig.Source))

	defer func() {
		if p := recover(); p != nil {
			out.RunID = runID
			out.State = StateFailed
			out.Err = fmt.Errorf("report run panic: %v", p)
		}
		var elapsed time.Duration
		if out.Reason != ReasonOutsideWindow {
			elapsed = s.deps.Clock().Sub(started)
		}
		s.deps.Metrics.RunCompleted(string(out.State), elapsed)
		s.logOutcome(ctx, logger, out)
	}()

	return s.run(ctx, trig, runID, logger)
}

func (s *SummaryService) run(ctx context.Context, trig Trigger, runID string, logger *log.Logger) (out Outcome) {
	out = Outcome{RunID: runID}

	gate, err := s.deps.Gates.For(trig.Source)
	if err != nil {
		out.State, out.Err = StateFailed, err
		return out
	}
	if !gate.ShouldRun(trig) {
		return skip(out, ReasonOutsideWindow)
	}

	chatID, err := s.destination(ctx, logger)
	if err != nil {
		out.Err = err
		return skip(out, ReasonNoDestination)
	}
	out.ChatID = chatID

	period, err := s.resolvePeriod(trig)
	if err != nil {
		out.State, out.Err = StateFailed, err
		return out
	}
	out.Period = period
	key := period.Key()

	if !s.acquire(key) {
		return skip(out, ReasonInFlight)
	}
	defer s.release(key)

	if !trig.Force {
		claim, err := s.claim(ctx, period, runID, logger)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "Delivery ledger unavailable, continuing",
				log.FieldOperation, log.OpClaim,
				log.FieldPeriod, key,
				log.FieldError, err)
		case claim == claimDelivered:
			return skip(out, ReasonAlreadyDelivered)
		case claim == claimInFlight:
			return skip(out, ReasonInFlight)
		case claim == claimHeld:
			defer func() {
				if !out.State.Delivered() {
					s.releaseClaim(ctx, key, runID, logger)
				}
			}()
		}
	}

	current, previous, err := s.load(ctx, period, logger)
	if err != nil {
		out.State, out.Err = StateFailed, err
		return out
	}

	agg := core.Aggregate(current, core.Categories())
	out.Records = agg.Records
	out.GrandTotal = agg.GrandTotal
	if agg.Unassigned.IsPositive() {
		logger.InfoContext(ctx, "Records with unknown categories counted in total only",
			"unassigned", core.FormatAmount(agg.Unassigned))
	}

	out.State, out.Err = s.deliver(ctx, chatID, period, runID, agg, s.extras(agg, previous, current), logger)
	if out.State.Delivered() {
		s.mark(ctx, period, out, logger)
	}
	return out
}

func skip(out Outcome, reason string) Outcome {
	out.State = StateSkip
	out.Reason = reason
	return out
}

// destination prefers the configured chat and falls back to the chat
// registered through /start.
func (s *SummaryService) destination(ctx context.Context, logger *log.Logger) (int64, error) {
	if s.settings.ChatID != 0 {
		return s.settings.ChatID, nil
	}
	if s.deps.Chats != nil {
		ctx, cancel := context.WithTimeout(ctx, s.settings.FetchTimeout)
		defer cancel()
		binding, err := s.deps.Chats.ChatBinding(ctx)
		switch {
		case err == nil && binding.ChatID != 0:
			return binding.ChatID, nil
		case err != nil && !errors.Is(err, records.ErrNotFound):
			logger.WarnContext(ctx, "Failed to read registered chat", log.FieldError, err)
		}
	}
	return 0, &config.ConfigError{Item: "TELEGRAM_CHAT_ID", Reason: "is not set and no chat has registered with /start"}
}

func (s *SummaryService) resolvePeriod(trig Trigger) (core.Period, error) {
	if trig.PeriodKey != "" {
		return core.ParsePeriodKey(trig.PeriodKey, s.settings.Location)
	}
	return core.ResolvePreviousMonth(trig.Now, s.settings.Location), nil
}

func (s *SummaryService) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *SummaryService) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

type claimResult int

const (
	claimNone claimResult = iota
	claimHeld
	claimInFlight
	claimDelivered
)

// claimTTL bounds how long a pending claim blocks other runs. Runs finish
// well within it, so an older claim belongs to a process that died.
const claimTTL = 15 * time.Minute

// claim writes a pending mark for the period before anything is sent, so
// overlapping processes cannot both deliver it.
func (s *SummaryService) claim(ctx context.Context, period core.Period, runID string, logger *log.Logger) (claimResult, error) {
	if s.deps.Ledger == nil {
		return claimNone, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.settings.FetchTimeout)
	defer cancel()

	now := s.deps.Clock().UTC()
	mark := core.DeliveryMark{
		PeriodKey:   period.Key(),
		Label:       period.Label,
		State:       core.MarkStateClaimed,
		RunID:       runID,
		DeliveredAt: now,
	}
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.deps.Ledger.ClaimDelivery(ctx, mark)
		if err != nil {
			return claimNone, err
		}
		if ok {
			return claimHeld, nil
		}

		existing, err := s.deps.Ledger.LastDelivery(ctx, mark.PeriodKey)
		switch {
		case errors.Is(err, records.ErrNotFound):
			continue
		case err != nil:
			return claimNone, err
		case !existing.Claimed():
			return claimDelivered, nil
		case now.Sub(existing.DeliveredAt) < claimTTL:
			return claimInFlight, nil
		}

		logger.WarnContext(ctx, "Taking over stale delivery claim",
			log.FieldPeriod, mark.PeriodKey,
			"stale_run_id", existing.RunID,
			"claimed_at", existing.DeliveredAt)
		if err := s.deps.Ledger.ReleaseDelivery(ctx, mark.PeriodKey, existing.RunID); err != nil {
			return claimNone, err
		}
	}
	return claimInFlight, nil
}

// releaseClaim drops this run's claim so a later trigger can retry. Like
// mark, it outlives a cancelled run context.
func (s *SummaryService) releaseClaim(ctx context.Context, key, runID string, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.FetchTimeout)
	defer cancel()
	if err := s.deps.Ledger.ReleaseDelivery(ctx, key, runID); err != nil {
		logger.WarnContext(ctx, "Failed to release delivery claim",
			log.FieldOperation, log.OpRelease,
			log.FieldPeriod, key,
			log.FieldError, err)
	}
}

func (s *SummaryService) fetch(ctx context.Context, period core.Period) ([]core.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.FetchTimeout)
	defer cancel()
	recs, err := s.deps.Records.FetchRecords(ctx, period.Start, period.End)
	if err != nil {
		return nil, &FetchError{Period: period.Key(), Err: err}
	}
	return recs, nil
}

// load fetches the period and, when comparison is enabled, the month
// before it. A failed previous-month fetch only drops the comparison.
func (s *SummaryService) load(ctx context.Context, period core.Period, logger *log.Logger) ([]core.Record, *core.Aggregation, error) {
	if !s.settings.Comparison {
		current, err := s.fetch(ctx, period)
		return current, nil, err
	}

	var (
		current, prevRecords []core.Record
		prevErr              error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.fetch(gctx, period)
		return err
	})
	g.Go(func() error {
		prevRecords, prevErr = s.fetch(gctx, period.Previous(s.settings.Location))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if prevErr != nil {
		logger.WarnContext(ctx, "Previous month unavailable, skipping comparison", log.FieldError, prevErr)
		return current, nil, nil
	}
	previous := core.Aggregate(prevRecords, core.Categories())
	return current, &previous, nil
}

// extras renders the comparison and per-person blocks, or "" when disabled.
func (s *SummaryService) extras(agg core.Aggregation, previous *core.Aggregation, current []core.Record) string {
	if !s.settings.Comparison {
		return ""
	}
	var sections []string
	if previous != nil {
		sections = append(sections, report.FormatComparison(core.Compare(agg.GrandTotal, previous.GrandTotal)))
	}
	sections = append(sections, report.FormatContributors(core.AggregateByContributor(current)))
	return report.Join(sections...)
}

func (s *SummaryService) deliver(ctx context.Context, chatID int64, period core.Period, runID string, agg core.Aggregation, extras string, logger *log.Logger) (State, error) {
	if agg.IsEmpty() {
		if err := s.sendText(ctx, chatID, report.FormatEmpty(period.Label)); err != nil {
			return StateFailed, err
		}
		return StateDeliveredEmpty, nil
	}

	png, err := s.render(ctx, agg, period.Label)
	if err == nil {
		err = s.sendPhoto(ctx, chatID, png, report.FormatCaption(agg))
		if err == nil {
			s.archive(ctx, period.Key(), runID, png, logger)
			if extras != "" {
				if err := s.sendText(ctx, chatID, extras); err != nil {
					logger.WarnContext(ctx, "Failed to send comparison", log.FieldError, err)
				}
			}
			return StateDelivered, nil
		}
	}

	logger.WarnContext(ctx, "Chart delivery failed, falling back to text",
		log.FieldOperation, log.OpFallback,
		log.FieldErrorType, errorType(err),
		log.FieldError, err)

	if err := s.sendText(ctx, chatID, report.Join(report.FormatText(agg, period.Label), extras)); err != nil {
		return StateFailed, err
	}
	return StateDeliveredFallback, nil
}

func (s *SummaryService) render(ctx context.Context, agg core.Aggregation, label string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.RenderTimeout)
	defer cancel()
	png, err := s.deps.Renderer.Render(ctx, agg, label)
	if err != nil {
		var rerr *chart.RenderError
		if !errors.As(err, &rerr) {
			err = &chart.RenderError{Err: err}
		}
		return nil, err
	}
	return png, nil
}

func (s *SummaryService) sendText(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.settings.DeliveryTimeout)
	defer cancel()
	if err := s.deps.Sender.SendText(ctx, chatID, text); err != nil {
		s.deps.Metrics.DeliveryFailed(deliveryOp(err, telegram.OpSendMessage))
		return asDeliveryError(err, telegram.OpSendMessage, chatID)
	}
	return nil
}

func (s *SummaryService) sendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error {
	ctx, cancel := context.WithTimeout(ctx, s.settings.DeliveryTimeout)
	defer cancel()
	if err := s.deps.Sender.SendPhoto(ctx, chatID, png, caption); err != nil {
		s.deps.Metrics.DeliveryFailed(deliveryOp(err, telegram.OpSendPhoto))
		return asDeliveryError(err, telegram.OpSendPhoto, chatID)
	}
	return nil
}

// archive uploads the chart. Failures are logged and never affect delivery.
func (s *SummaryService) archive(ctx context.Context, key, runID string, png []byte, logger *log.Logger) {
	if s.deps.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.settings.DeliveryTimeout)
	defer cancel()
	if err := s.deps.Archive.ArchiveChart(ctx, key, runID, png); err != nil {
		logger.WarnContext(ctx, "Failed to archive chart",
			log.FieldOperation, log.OpArchive,
			log.FieldError, err)
	}
}

// mark records the delivery. The message is already out, so the write
// outlives a cancelled run context.
func (s *SummaryService) mark(ctx context.Context, period core.Period, out Outcome, logger *log.Logger) {
	if s.deps.Ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.FetchTimeout)
	defer cancel()

	mark := core.DeliveryMark{
		PeriodKey:   period.Key(),
		Label:       period.Label,
		State:       string(out.State),
		RunID:       out.RunID,
		DeliveredAt: s.deps.Clock().UTC(),
	}
	if err := s.deps.Ledger.MarkDelivered(ctx, mark); err != nil {
		logger.WarnContext(ctx, "Failed to record delivery",
			log.FieldOperation, log.OpMark,
			log.FieldPeriod, mark.PeriodKey,
			log.FieldError, err)
	}
}

func (s *SummaryService) logOutcome(ctx context.Context, logger *log.Logger, out Outcome) {
	fields := []any{log.FieldState, string(out.State)}
	if out.Reason != "" {
		fields = append(fields, log.FieldReason, out.Reason)
	}
	if out.Period.Year != 0 {
		fields = append(fields,
			log.FieldPeriod, out.Period.Key(),
			log.FieldPeriodLabel, out.Period.Label,
			log.FieldRecordCount, out.Records,
			log.FieldGrandTotal, core.FormatAmount(out.GrandTotal))
	}

	switch {
	case out.State == StateFailed:
		fields = append(fields, log.FieldErrorType, errorType(out.Err), log.FieldError, out.Err)
		logger.ErrorContext(ctx, "Report run failed", fields...)
	case out.Err != nil:
		fields = append(fields, log.FieldErrorType, errorType(out.Err), log.FieldError, out.Err)
		logger.ErrorContext(ctx, "Report run skipped", fields...)
	case out.State == StateSkip:
		logger.InfoContext(ctx, "Report run skipped", fields...)
	default:
		if out.ChatID != 0 {
			fields = append(fields, log.FieldChatID, out.ChatID)
		}
		logger.InfoContext(ctx, "Report delivered", fields...)
	}
}
