package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AttendanceActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_actions_total",
			Help: "Clock-in and clock-out steps by outcome code.",
		},
		[]string{"action", "result"},
	)

	OTPMailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_otp_mails_total",
			Help: "One-time code emails by kind and result.",
		},
		[]string{"kind", "result"},
	)

	OTPPendingChallenges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "attendance_otp_pending_challenges",
			Help: "Challenges held by the in-memory store after the last sweep.",
		},
	)

	OTPSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_otp_swept_total",
			Help: "Expired challenges removed by the sweeper.",
		},
	)

	OutboxPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_outbox_published_total",
			Help: "Outbox events relayed to Kafka by result.",
		},
		[]string{"event_type", "result"},
	)
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AttendanceActionsTotal,
		OTPMailsTotal,
		OTPPendingChallenges,
		OTPSweptTotal,
		OutboxPublishedTotal,
	)
}

func ObserveAction(action, result string) {
	AttendanceActionsTotal.WithLabelValues(action, result).Inc()
}

func ObserveMail(kind, result string) {
	OTPMailsTotal.WithLabelValues(kind, result).Inc()
}

func ObserveSweep(removed, remaining int) {
	OTPSweptTotal.Add(float64(removed))
	OTPPendingChallenges.Set(float64(remaining))
}

func ObserveOutbox(eventType, result string) {
	OutboxPublishedTotal.WithLabelValues(eventType, result).Inc()
}
