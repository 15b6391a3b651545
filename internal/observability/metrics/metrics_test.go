package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObservePoll(PollOK, 0.2)
	m.ObservePoll(PollNotBookable, 0.1)
	m.ObservePoll(PollNotBookable, 0.1)
	m.ObservePoll(PollError, 0)
	m.ObserveAuth("direct", false, 1.5)
	m.ObserveAuth("direct", true, 0.8)
	m.ObserveBooking(false)
	m.ObserveBooking(true)

	s := Snapshot(reg)
	assert.Equal(t, uint64(1), s.Polls[PollOK])
	assert.Equal(t, uint64(2), s.Polls[PollNotBookable])
	assert.Equal(t, uint64(1), s.Polls[PollError])
	assert.Equal(t, uint64(4), s.TotalPolls())
	assert.Equal(t, uint64(1), s.AuthOK)
	assert.Equal(t, uint64(1), s.AuthFailed)
	assert.Equal(t, uint64(1), s.BookingsOK)
	assert.Equal(t, uint64(1), s.BookingsFailed)
}

func TestSnapshotEmptyRegistry(t *testing.T) {
	s := Snapshot(prometheus.NewRegistry())
	assert.Zero(t, s.TotalPolls())
	assert.Zero(t, s.BookingsOK)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObservePoll(PollOK, 0.1)
	m.ObserveAuth("direct", true, 0.1)
	m.ObserveBooking(true)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking(true)

	ts := httptest.NewServer(Handler(reg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `xbook_acquisition_bookings_total{status="ok"} 1`)

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
