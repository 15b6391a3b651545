package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/xbook/internal/booking"
	"github.com/wolfman30/xbook/internal/timeslot"
	"github.com/wolfman30/xbook/pkg/logging"
)

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"-utc", "-category", "beach", "-court", "court 2", "2024-07-20", "18"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.utc)
	assert.Equal(t, "beach", opts.category)
	assert.Equal(t, "court 2", opts.court)
	assert.Equal(t, "2024-07-20", opts.date)
	assert.Equal(t, 18, opts.hour)

	opts, err = parseArgs([]string{"-cancel", "991"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, int64(991), opts.cancelID)

	bad := [][]string{
		{},
		{"2024-07-20"},
		{"20-07-2024", "18"},
		{"2024-07-20", "24"},
		{"2024-07-20", "noon"},
		{"-cancel", "5", "2024-07-20"},
	}
	for _, args := range bad {
		_, err := parseArgs(args, io.Discard)
		assert.Error(t, err, "args %v", args)
	}
}

func TestExitCode(t *testing.T) {
	logger := logging.NewWithFormat("error", "text", io.Discard)
	assert.Equal(t, exitOK, exitCode(nil, logger))
	assert.Equal(t, exitNotFound, exitCode(fmt.Errorf("run: %w", booking.ErrSlotNotFound), logger))
	assert.Equal(t, exitInterrupted, exitCode(context.Canceled, logger))
	assert.Equal(t, exitFailure, exitCode(booking.ErrMemberUnresolved, logger))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom"), logger))
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("XBOOK_TEST_FROM_DOTENV=yes\n"), 0o600))
	t.Setenv("XBOOK_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("XBOOK_TEST_FROM_DOTENV"))
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "yes", os.Getenv("XBOOK_TEST_FROM_DOTENV"))
}

// fakePlatform serves the booking API for a direct-login run.
func fakePlatform(t *testing.T, slotStart string, booked *int) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/auth", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok"}`)
	})
	r.Get("/auth", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":42}`)
	})
	r.Get("/bookable-slots", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"bookableProductId":4,"startDate":%q,"endDate":%q,"isAvailable":true}]}`, slotStart, slotStart)
	})
	r.Post("/participations", func(w http.ResponseWriter, r *http.Request) {
		*booked++
		w.WriteHeader(http.StatusCreated)
	})
	r.Delete("/participations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "991" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func setRunEnv(t *testing.T, apiURL string) {
	t.Helper()
	t.Setenv("XBOOK_AUTH_METHOD", "direct")
	t.Setenv("XBOOK_EMAIL", "jane@example.org")
	t.Setenv("XBOOK_PASSWORD", "pw")
	t.Setenv("XBOOK_TIMEZONE", "UTC")
	t.Setenv("XBOOK_MEMBER_ID", "")
	t.Setenv("PLATFORM_API_URL", apiURL)
	t.Setenv("POLL_INTERVAL", "10ms")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("METRICS_ADDR", "")
	t.Setenv("NOTIFY_EMAIL_TO", "")
	t.Setenv("BOOKING_TAG_OVERRIDES", "")
	t.Setenv("XBOOK_CATEGORY", "gym")
}

func TestRunBooksSlot(t *testing.T) {
	target := time.Now().UTC().Add(48 * time.Hour)
	date := target.Format(timeslot.DateLayout)
	hour := target.Hour()
	slotStart, err := timeslot.FromDateHour(date, hour, true, time.UTC)
	require.NoError(t, err)

	booked := 0
	ts := fakePlatform(t, slotStart, &booked)
	setRunEnv(t, ts.URL)

	code := run([]string{"-env-file", "", date, strconv.Itoa(hour)}, io.Discard)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, 1, booked)
}

func TestRunSlotNotFound(t *testing.T) {
	target := time.Now().UTC().Add(48 * time.Hour)
	date := target.Format(timeslot.DateLayout)

	booked := 0
	ts := fakePlatform(t, "1999-01-01T00:00:00.000Z", &booked)
	setRunEnv(t, ts.URL)

	code := run([]string{"-env-file", "", date, strconv.Itoa(target.Hour())}, io.Discard)
	assert.Equal(t, exitNotFound, code)
	assert.Zero(t, booked)
}

func TestRunRequiresCategory(t *testing.T) {
	target := time.Now().UTC().Add(48 * time.Hour)
	date := target.Format(timeslot.DateLayout)

	booked := 0
	ts := fakePlatform(t, "", &booked)
	setRunEnv(t, ts.URL)
	t.Setenv("XBOOK_CATEGORY", "")

	code := run([]string{"-env-file", "", date, strconv.Itoa(target.Hour())}, io.Discard)
	assert.Equal(t, exitFailure, code)
	assert.Zero(t, booked)
}

func TestRunRejectsCourtOutsideCategory(t *testing.T) {
	target := time.Now().UTC().Add(48 * time.Hour)
	date := target.Format(timeslot.DateLayout)

	booked := 0
	ts := fakePlatform(t, "", &booked)
	setRunEnv(t, ts.URL)

	code := run([]string{"-env-file", "", "-category", "gym", "-court", "1", date, strconv.Itoa(target.Hour())}, io.Discard)
	assert.Equal(t, exitFailure, code)
	assert.Zero(t, booked)
}

func TestRunCancel(t *testing.T) {
	booked := 0
	ts := fakePlatform(t, "", &booked)
	setRunEnv(t, ts.URL)

	assert.Equal(t, exitOK, run([]string{"-env-file", "", "-cancel", "991"}, io.Discard))
	assert.Equal(t, exitFailure, run([]string{"-env-file", "", "-cancel", "5"}, io.Discard))
}

func TestRunPromptsForPassword(t *testing.T) {
	booked := 0
	ts := fakePlatform(t, "", &booked)
	setRunEnv(t, ts.URL)
	t.Setenv("XBOOK_PASSWORD", "")

	prompted := false
	orig := readPassword
	readPassword = func(prompt string, _ io.Writer) (string, error) {
		prompted = true
		assert.Contains(t, prompt, "jane@example.org")
		return "pw", nil
	}
	t.Cleanup(func() { readPassword = orig })

	assert.Equal(t, exitOK, run([]string{"-env-file", "", "-cancel", "991"}, io.Discard))
	assert.True(t, prompted)
}
