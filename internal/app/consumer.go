package app

import (
	"context"

	"go-attendance/internal/config"
	"go-attendance/internal/events"
	"go-attendance/internal/messaging/kafka/consumer"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RunConsumer mails clock-out summaries from the attendance lifecycle topic
// until ctx is done. Offsets are committed explicitly per message.
func RunConsumer(ctx context.Context, cfg config.Config) error {
	logger := zap.L().Named("app.consumer")

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{cfg.KafkaBroker},
		Topic:       events.AttendanceLifecycleTopic,
		GroupID:     cfg.KafkaConsumerGroup,
		StartOffset: kafkago.FirstOffset,
	})
	defer reader.Close()

	consumer.ConsumeAttendanceLifecycle(ctx, reader, NewMailer(cfg), cfg.OfficeLocation(), logger)

	logger.Info("consumer shutting down")
	return nil
}
