package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/service/records"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

const helpText = "Commands:\n" +
	"peso <tag> <kg> [ok]  record a weighing for today\n" +
	"pienso <A|B> <offered kg> [refused kg]  record today's feed\n" +
	"resumen  trial summary\n" +
	"semana [yyyy-mm-dd]  trial week and day overview"

// Recorder stores the entries captured through chat.
type Recorder interface {
	RecordWeighing(ctx context.Context, in records.WeighingInput) (records.WeighingResult, error)
	RecordFeed(ctx context.Context, in records.FeedInput) (models.FeedRecord, bool, error)
}

// ReportingAdapter defines the reporting functions required by the dispatcher.
type ReportingAdapter interface {
	Today() models.CivilDate
	WeekLabel(d models.CivilDate) string
	Day(ctx context.Context, d models.CivilDate) (models.DayOverview, error)
	GenerateWeeklyReport(ctx context.Context) (string, error)
}

// Dispatcher executes parsed commands and returns the reply text.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	recorder  Recorder
	reporting ReportingAdapter
	logger    *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(recorder Recorder, reporting ReportingAdapter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		recorder:  recorder,
		reporting: reporting,
		logger:    logger,
	}
}

// HandleCommand runs the command and returns the reply to send back.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandWeighing:
		return s.handleWeighing(ctx, cmd)
	case models.CommandFeed:
		return s.handleFeed(ctx, cmd)
	case models.CommandSummary:
		report, err := s.reporting.GenerateWeeklyReport(ctx)
		if err != nil {
			return "", fmt.Errorf("generate summary: %w", err)
		}
		return report, nil
	case models.CommandWeek:
		return s.handleWeek(ctx, cmd)
	case models.CommandHelp:
		return helpText, nil
	default:
		return "", ErrUnsupportedCommand
	}
}

func (s *Service) handleWeighing(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) < 2 {
		return "", fmt.Errorf("%w: usage peso <tag> <kg> [ok]", ErrInvalidArguments)
	}
	weight, err := parseKg(cmd.Args[1])
	if err != nil {
		return "", err
	}

	in := records.WeighingInput{
		Tag:       cmd.Args[0],
		Date:      s.reporting.Today(),
		Weight:    weight,
		Confirmed: len(cmd.Args) > 2 && strings.EqualFold(cmd.Args[2], "ok"),
	}
	res, err := s.recorder.RecordWeighing(ctx, in)
	if errors.Is(err, records.ErrConfirmationRequired) {
		return fmt.Sprintf("%s weighs %.1f kg, %.1f%% below the previous %.1f kg. Send \"peso %s %s ok\" to confirm.",
			models.NormalizeTag(in.Tag), weight, res.LossPercent, res.PreviousWeight, models.NormalizeTag(in.Tag), cmd.Args[1]), nil
	}
	if err != nil {
		return "", err
	}

	w := res.Weighing
	message := fmt.Sprintf("Weighing saved: %s %.1f kg on %s (%s).", w.Tag, w.Weight, w.Date, s.reporting.WeekLabel(w.Date))
	message += fmt.Sprintf(" Change since previous: %+.1f kg.", w.Weight-res.PreviousWeight)
	return message, nil
}

func (s *Service) handleFeed(ctx context.Context, cmd models.Command) (string, error) {
	if len(cmd.Args) < 2 {
		return "", fmt.Errorf("%w: usage pienso <A|B> <offered kg> [refused kg]", ErrInvalidArguments)
	}
	group, ok := models.ParseGroup(cmd.Args[0])
	if !ok {
		return "", fmt.Errorf("%w: unknown group %q", ErrInvalidArguments, cmd.Args[0])
	}
	offered, err := parseKg(cmd.Args[1])
	if err != nil {
		return "", err
	}
	var refused float64
	if len(cmd.Args) > 2 {
		if refused, err = parseKg(cmd.Args[2]); err != nil {
			return "", err
		}
	}

	rec, replaced, err := s.recorder.RecordFeed(ctx, records.FeedInput{
		Group:       group,
		Date:        s.reporting.Today(),
		FeedOffered: offered,
		FeedRefused: refused,
	})
	if err != nil {
		return "", err
	}

	verb := "saved"
	if replaced {
		verb = "replaced"
	}
	return fmt.Sprintf("Feed %s for %s on %s: offered %.2f kg, refused %.2f kg, net %.2f kg.",
		verb, group.Label(), rec.Date, rec.FeedOffered, rec.FeedRefused, rec.FeedOffered-rec.FeedRefused), nil
}

func (s *Service) handleWeek(ctx context.Context, cmd models.Command) (string, error) {
	day := s.reporting.Today()
	if len(cmd.Args) > 0 {
		parsed, err := models.ParseDate(cmd.Args[0])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		day = parsed
	}

	overview, err := s.reporting.Day(ctx, day)
	if err != nil {
		return "", fmt.Errorf("load day overview: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", day, s.reporting.WeekLabel(day))
	if !overview.InStudy {
		b.WriteString(" (outside the study period)")
	}
	fmt.Fprintf(&b, "\nWeighings: %d\nFeed A: %s, Feed B: %s", overview.Weighings, yesNo(overview.FeedGroupA), yesNo(overview.FeedGroupB))
	for _, t := range overview.Treatments {
		fmt.Fprintf(&b, "\nTreatment %s %s day %d/%d", t.Tag, t.Medication, t.Day, t.TotalDays)
	}
	return b.String(), nil
}

// ErrorReply turns a dispatch error into a message for the sender.
func ErrorReply(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedCommand):
		return "Unknown command.\n" + helpText
	case errors.Is(err, ErrInvalidArguments),
		errors.Is(err, records.ErrInvalidWeight),
		errors.Is(err, records.ErrRefusedExceedsOffered),
		errors.Is(err, records.ErrAnimalNotFound),
		errors.Is(err, records.ErrInvalidInput):
		return "Not saved: " + err.Error()
	default:
		return "Something went wrong, the entry was not saved."
	}
}

func parseKg(value string) (float64, error) {
	kg, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil || math.IsNaN(kg) || math.IsInf(kg, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArguments, value)
	}
	return kg, nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
