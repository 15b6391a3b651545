// Package booking runs the acquisition loop: poll the schedule until the
// target slot is bookable, log in, book it.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/xbook/internal/auth"
	"github.com/wolfman30/xbook/internal/category"
	"github.com/wolfman30/xbook/internal/notify"
	"github.com/wolfman30/xbook/internal/observability/metrics"
	"github.com/wolfman30/xbook/internal/platform"
	"github.com/wolfman30/xbook/internal/timeslot"
	"github.com/wolfman30/xbook/pkg/logging"
)

var (
	// ErrSlotNotFound means the schedule does not contain the requested slot.
	ErrSlotNotFound = errors.New("booking: slot not found")
	// ErrMemberUnresolved means neither the login nor the request supplied a
	// member ID, so no booking can ever be submitted.
	ErrMemberUnresolved = errors.New("booking: member id unresolved")
)

type slotSource interface {
	FetchSlots(ctx context.Context, startUTC, endUTC string, tagID int) ([]platform.Slot, error)
}

type booker interface {
	Book(ctx context.Context, sess *platform.Session, slot platform.Slot, memberID int64) error
}

type bookingNotifier interface {
	NotifyBooked(ctx context.Context, b notify.Booking) error
}

// Request describes the slot to acquire. Range bounds the schedule query and
// must contain TargetStart. Subcategory narrows the match to one product
// (court or hall half).
type Request struct {
	TargetStart string
	RangeStart  string
	RangeEnd    string
	MemberID    *int64
	Credential  auth.Credential
	Category    category.Category
	Subcategory *category.Subcategory
}

// Status is the terminal state of an acquisition.
type Status int

const (
	OutcomeAborted Status = iota
	OutcomeBooked
	OutcomeSlotNotFound
)

func (s Status) String() string {
	switch s {
	case OutcomeBooked:
		return "booked"
	case OutcomeSlotNotFound:
		return "slot_not_found"
	default:
		return "aborted"
	}
}

// Outcome reports how an acquisition ended. Slot is set when booked.
type Outcome struct {
	Status   Status
	Slot     *platform.Slot
	MemberID int64
	Ticks    int
}

// Acquirer polls the schedule and books the target slot once it opens. The
// login method is fixed by the authenticator it is built with.
type Acquirer struct {
	slots    slotSource
	booker   booker
	authn    auth.Authenticator
	notifier bookingNotifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	tracer   trace.Tracer

	policy        category.WindowPolicy
	location      *time.Location
	interval      time.Duration
	missTolerance int
	now           func() time.Time
	runID         string
}

func NewAcquirer(slots slotSource, b booker, authn auth.Authenticator, logger *logging.Logger) *Acquirer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Acquirer{
		slots:         slots,
		booker:        b,
		authn:         authn,
		logger:        logger,
		tracer:        otel.Tracer("xbook.internal.booking"),
		policy:        category.DefaultWindowPolicy(),
		location:      time.Local,
		interval:      time.Second,
		missTolerance: 1,
		now:           time.Now,
	}
}

func (a *Acquirer) WithInterval(d time.Duration) *Acquirer {
	if d > 0 {
		a.interval = d
	}
	return a
}

// WithMissTolerance sets how many consecutive polls may lack the slot before
// giving up.
func (a *Acquirer) WithMissTolerance(n int) *Acquirer {
	if n > 0 {
		a.missTolerance = n
	}
	return a
}

func (a *Acquirer) WithPolicy(p category.WindowPolicy) *Acquirer {
	a.policy = p
	return a
}

// WithLocation sets the operator's time zone, used for hall booking windows.
func (a *Acquirer) WithLocation(loc *time.Location) *Acquirer {
	if loc != nil {
		a.location = loc
	}
	return a
}

func (a *Acquirer) WithClock(now func() time.Time) *Acquirer {
	if now != nil {
		a.now = now
	}
	return a
}

func (a *Acquirer) WithMetrics(m *metrics.BookingMetrics) *Acquirer {
	a.metrics = m
	return a
}

func (a *Acquirer) WithNotifier(n bookingNotifier) *Acquirer {
	a.notifier = n
	return a
}

func (a *Acquirer) WithRunID(id string) *Acquirer {
	a.runID = id
	if id != "" {
		a.logger = a.logger.With("run_id", id)
	}
	return a
}

// attempt is the state carried across ticks of one Acquire call.
type attempt struct {
	req    Request
	misses int
	member *int64
}

// Acquire runs until the slot is booked, found missing, a fatal error occurs
// or ctx is done. The first poll happens immediately; each later poll starts
// at least one interval after the previous one started.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (Outcome, error) {
	if err := validate(req); err != nil {
		return Outcome{}, err
	}
	if a.slots == nil || a.booker == nil || a.authn == nil {
		return Outcome{}, fmt.Errorf("booking: acquirer is missing a collaborator")
	}

	a.logger.Info("polling for slot",
		"category", req.Category.DisplayName(),
		"start", req.TargetStart,
		"interval", a.interval.String(),
		"auth_method", a.authn.Method().String(),
	)

	st := &attempt{req: req, member: req.MemberID}
	ticks := 0
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{Ticks: ticks}, err
		}
		ticks++
		started := time.Now()
		out, done, err := a.tick(ctx, st)
		if done {
			out.Ticks = ticks
			return out, err
		}
		if err := sleep(ctx, a.interval-time.Since(started)); err != nil {
			return Outcome{Ticks: ticks}, err
		}
	}
}

// sleep waits for d or until ctx is done. Polls are spaced from the start of
// the previous poll, so a slow poll shortens the wait but never lets two polls
// start less than one interval apart.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// tick performs one poll and, when the slot is bookable, one login and
// booking attempt. done reports a terminal outcome.
func (a *Acquirer) tick(ctx context.Context, st *attempt) (Outcome, bool, error) {
	ctx, span := a.tracer.Start(ctx, "booking.tick")
	defer span.End()
	req := st.req

	started := time.Now()
	slots, err := a.slots.FetchSlots(ctx, req.RangeStart, req.RangeEnd, req.Category.Tag)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, true, ctx.Err()
		}
		a.metrics.ObservePoll(metrics.PollError, 0)
		a.logger.Warn("schedule poll failed", "error", err)
		return Outcome{}, false, nil
	}
	elapsed := time.Since(started).Seconds()

	slot, found := findSlot(slots, req)
	if !found {
		st.misses++
		a.metrics.ObservePoll(metrics.PollMiss, elapsed)
		a.logger.Warn("slot not in schedule", "start", req.TargetStart, "misses", st.misses, "tolerance", a.missTolerance)
		if st.misses >= a.missTolerance {
			a.logger.Info("giving up: slot not found", "start", req.TargetStart)
			return Outcome{Status: OutcomeSlotNotFound}, true, ErrSlotNotFound
		}
		return Outcome{}, false, nil
	}
	st.misses = 0

	now := a.now()
	offset := timeslot.UTCOffset(now, a.location)
	if !Bookable(slot, req.Category, now, a.policy, offset) {
		a.metrics.ObservePoll(metrics.PollNotBookable, elapsed)
		a.logNotBookable(slot, req.Category, now, offset)
		return Outcome{}, false, nil
	}
	a.metrics.ObservePoll(metrics.PollOK, elapsed)
	span.SetAttributes(attribute.Bool("xbook.bookable", true))

	a.logger.Info("slot bookable, authenticating", "start", slot.StartDate)
	authStarted := time.Now()
	res, err := a.authn.Authenticate(ctx, req.Credential)
	a.metrics.ObserveAuth(a.authn.Method().String(), err == nil, time.Since(authStarted).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, true, ctx.Err()
		}
		a.logger.Warn("authentication failed", "error", err)
		return Outcome{}, false, nil
	}

	if res.MemberID != nil {
		st.member = res.MemberID
	}
	if st.member == nil {
		res.Close()
		a.logger.Error("no member id from login or configuration")
		return Outcome{}, true, ErrMemberUnresolved
	}
	memberID := *st.member

	a.logger.Info("booking slot", "start", slot.StartDate, "product_id", slot.BookableProductID)
	err = a.booker.Book(ctx, res.Session, slot, memberID)
	res.Close()
	a.metrics.ObserveBooking(err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, true, ctx.Err()
		}
		a.logger.Warn("booking failed, resuming polling", "error", err)
		return Outcome{}, false, nil
	}

	a.logger.Info("slot booked", "start", slot.StartDate, "member_id", memberID)
	a.notify(ctx, req, slot, memberID)
	booked := slot
	return Outcome{Status: OutcomeBooked, Slot: &booked, MemberID: memberID}, true, nil
}

func (a *Acquirer) notify(ctx context.Context, req Request, slot platform.Slot, memberID int64) {
	if a.notifier == nil {
		return
	}
	b := notify.Booking{
		Category: req.Category.DisplayName(),
		MemberID: memberID,
		RunID:    a.runID,
	}
	if req.Subcategory != nil {
		b.Court = req.Subcategory.DisplayName()
	}
	if t, err := timeslot.Parse(slot.StartDate); err == nil {
		b.Start = t
	}
	if t, err := timeslot.Parse(slot.EndDate); err == nil {
		b.End = t
	}
	if err := a.notifier.NotifyBooked(ctx, b); err != nil {
		a.logger.Warn("booking notification failed", "error", err)
	}
}

func (a *Acquirer) logNotBookable(slot platform.Slot, c category.Category, now time.Time, offset time.Duration) {
	if !slot.IsAvailable {
		a.logger.Info("slot not available yet", "start", slot.StartDate)
		return
	}
	until, err := timeslot.SecondsUntil(now, slot.StartDate)
	if err != nil {
		a.logger.Warn("slot has unparseable start", "start", slot.StartDate, "error", err)
		return
	}
	start, _ := timeslot.Parse(slot.StartDate)
	a.logger.Info("slot outside booking window", "start", slot.StartDate,
		"seconds_until", until,
		"window_seconds", a.policy.WindowSeconds(c, start, offset),
	)
}

func validate(req Request) error {
	if _, err := timeslot.Parse(req.TargetStart); err != nil {
		return fmt.Errorf("booking: target start: %w", err)
	}
	if req.RangeStart == "" || req.RangeEnd == "" {
		return fmt.Errorf("booking: schedule range is required")
	}
	if req.Category.Key == "" || req.Category.Tag <= 0 {
		return fmt.Errorf("booking: category is required")
	}
	if req.Subcategory != nil && !req.Subcategory.BelongsTo(req.Category) {
		return fmt.Errorf("booking: %w: %s is not part of %s",
			category.ErrSubcategoryMismatch, req.Subcategory.DisplayName(), req.Category.DisplayName())
	}
	return nil
}
