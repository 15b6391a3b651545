package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "xbook"

// BookingMetrics exposes counters/histograms for the acquisition loop.
type BookingMetrics struct {
	pollsTotal    *prometheus.CounterVec
	authTotal     *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
	pollLatency   prometheus.Histogram
	authLatency   *prometheus.HistogramVec
}

// Poll results.
const (
	PollOK          = "ok"
	PollError       = "error"
	PollMiss        = "miss"
	PollNotBookable = "not_bookable"
)

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "polls_total",
			Help:      "Schedule polls by result",
		}, []string{"result"}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Login attempts by method and status",
		}, []string{"method", "status"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "bookings_total",
			Help:      "Booking submissions by status",
		}, []string{"status"}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "poll_latency_seconds",
			Help:      "Latency of schedule polls",
			Buckets:   prometheus.DefBuckets,
		}),
		authLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "latency_seconds",
			Help:      "Latency of complete logins",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.pollsTotal, m.authTotal, m.bookingsTotal, m.pollLatency, m.authLatency)
	return m
}

func (m *BookingMetrics) ObservePoll(result string, seconds float64) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(result).Inc()
	if result != PollError {
		m.pollLatency.Observe(seconds)
	}
}

func (m *BookingMetrics) ObserveAuth(method string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	m.authTotal.WithLabelValues(method, status(ok)).Inc()
	m.authLatency.WithLabelValues(method).Observe(seconds)
}

func (m *BookingMetrics) ObserveBooking(ok bool) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status(ok)).Inc()
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Summary is an end-of-run digest of the loop's counters.
type Summary struct {
	Polls          map[string]uint64
	AuthOK         uint64
	AuthFailed     uint64
	BookingsOK     uint64
	BookingsFailed uint64
}

// Snapshot reads the booking counters back from gatherer.
func Snapshot(gatherer prometheus.Gatherer) Summary {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	out := Summary{Polls: map[string]uint64{}}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out
	}

	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case namespace + "_acquisition_polls_total":
			for _, metric := range mf.Metric {
				out.Polls[labelValue(metric, "result")] += counterValue(metric)
			}
		case namespace + "_auth_attempts_total":
			for _, metric := range mf.Metric {
				if labelValue(metric, "status") == "ok" {
					out.AuthOK += counterValue(metric)
				} else {
					out.AuthFailed += counterValue(metric)
				}
			}
		case namespace + "_acquisition_bookings_total":
			for _, metric := range mf.Metric {
				if labelValue(metric, "status") == "ok" {
					out.BookingsOK += counterValue(metric)
				} else {
					out.BookingsFailed += counterValue(metric)
				}
			}
		}
	}
	return out
}

// TotalPolls sums polls across results.
func (s Summary) TotalPolls() uint64 {
	var n uint64
	for _, v := range s.Polls {
		n += v
	}
	return n
}

func labelValue(metric *dto.Metric, name string) string {
	if metric == nil {
		return ""
	}
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func counterValue(metric *dto.Metric) uint64 {
	if metric == nil || metric.GetCounter() == nil {
		return 0
	}
	return uint64(metric.GetCounter().GetValue())
}
