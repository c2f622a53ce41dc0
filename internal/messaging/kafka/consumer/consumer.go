package consumer

import (
	"context"
	"encoding/json"
	"time"

	"go-attendance/internal/events"
	"go-attendance/internal/mailer"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafkago.Reader a consumer loop needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Retry pacing for failed fetches and sends.
var (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// ConsumeAttendanceLifecycle mails each employee a summary of their day
// once they clock out. Clock-in events are acknowledged without action.
// A failed send is retried in place with backoff; the message is committed
// only once its summary is out, so later commits never skip it.
func ConsumeAttendanceLifecycle(
	ctx context.Context,
	reader MessageReader,
	sender mailer.Sender,
	loc *time.Location,
	logger *zap.Logger,
) {
	if loc == nil {
		loc = time.UTC
	}
	log := logger.Named("kafka.consumer.attendance_lifecycle")
	log.Info("attendance lifecycle consumer started")

	fetchDelay := initialBackoff
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("attendance lifecycle consumer stopped")
				return
			}
			log.Error("fetch attendance lifecycle message failed",
				zap.Duration("retry_in", fetchDelay),
				zap.Error(err),
			)
			if !sleep(ctx, fetchDelay) {
				log.Info("attendance lifecycle consumer stopped")
				return
			}
			fetchDelay = nextBackoff(fetchDelay)
			continue
		}
		fetchDelay = initialBackoff

		var event events.AttendanceEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error("decode attendance event failed", zap.Int64("offset", msg.Offset), zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		elog := log.With(
			zap.String("event_type", event.EventType),
			zap.String("attendance_id", event.AttendanceID),
			zap.String("request_id", event.RequestID),
		)

		if event.EventType == events.AttendanceClockedOut {
			if err := sendSummaryWithRetry(ctx, sender, event, loc, elog); err != nil {
				log.Info("attendance lifecycle consumer stopped", zap.Int64("pending_offset", msg.Offset))
				return
			}
			elog.Info("attendance summary sent")
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			elog.Error("commit attendance lifecycle message failed", zap.Error(err))
		}
	}
}

// sendSummaryWithRetry blocks until the summary is sent or ctx is done.
func sendSummaryWithRetry(
	ctx context.Context,
	sender mailer.Sender,
	event events.AttendanceEvent,
	loc *time.Location,
	log *zap.Logger,
) error {
	delay := initialBackoff
	for attempt := 1; ; attempt++ {
		err := sendSummary(ctx, sender, event, loc)
		if err == nil {
			return nil
		}
		log.Error("send attendance summary failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay = nextBackoff(delay)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func sendSummary(ctx context.Context, sender mailer.Sender, event events.AttendanceEvent, loc *time.Location) error {
	if event.EmployeeEmail == "" || event.ClockOut == nil || event.TotalHoursWorked == nil {
		return nil
	}

	day, err := time.Parse("2006-01-02", event.AttendanceDate)
	if err != nil {
		day = event.ClockIn
	}
	subject, body := mailer.ClockOutSummary(
		event.EmployeeName,
		day,
		event.ClockIn.In(loc),
		event.ClockOut.In(loc),
		*event.TotalHoursWorked,
	)
	return sender.Send(ctx, event.EmployeeEmail, subject, body)
}
