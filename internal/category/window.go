package category

import (
	"time"
)

const (
	day = 24 * time.Hour

	// DefaultHallLeadDays is how many days before a slot's calendar day
	// hall-like bookings open.
	DefaultHallLeadDays = 3
	// DefaultUnknownWindow is used for categories without a rule. It is large
	// enough that such slots are always considered in-window.
	DefaultUnknownWindow = 365 * day
)

// WindowPolicy decides how far ahead of a slot's start a booking may be
// submitted.
//
// Hall-like categories open at local midnight HallLeadDays before the slot's
// day, which works out to HallLeadDays*24h + slotStartHourUTC + localOffset.
// That formula has not been confirmed against the platform, so it is data
// here rather than code in the acquisition loop.
type WindowPolicy struct {
	Fixed        map[string]time.Duration
	HallLeadDays int
	Default      time.Duration
}

// DefaultWindowPolicy returns the known platform rules.
func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{
		Fixed: map[string]time.Duration{
			Gym.Key: 7 * day,
		},
		HallLeadDays: DefaultHallLeadDays,
		Default:      DefaultUnknownWindow,
	}
}

// Window returns the booking window for a slot of category c starting at
// slotStart. localOffset is the operator's offset from UTC.
func (p WindowPolicy) Window(c Category, slotStart time.Time, localOffset time.Duration) time.Duration {
	if IsHallLike(c) {
		return time.Duration(p.HallLeadDays)*day +
			time.Duration(slotStart.UTC().Hour())*time.Hour +
			localOffset
	}
	if w, ok := p.Fixed[c.Key]; ok {
		return w
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultUnknownWindow
}

// WindowSeconds is Window in whole seconds.
func (p WindowPolicy) WindowSeconds(c Category, slotStart time.Time, localOffset time.Duration) int64 {
	return int64(p.Window(c, slotStart, localOffset) / time.Second)
}
