package booking

import (
	"time"

	"github.com/wolfman30/xbook/internal/category"
	"github.com/wolfman30/xbook/internal/platform"
	"github.com/wolfman30/xbook/internal/timeslot"
)

// Bookable reports whether slot can be booked at now: it must be available
// and start no earlier than now and strictly within the category's booking
// window. localOffset is the operator's offset from UTC.
func Bookable(slot platform.Slot, c category.Category, now time.Time, policy category.WindowPolicy, localOffset time.Duration) bool {
	if !slot.IsAvailable {
		return false
	}
	start, err := timeslot.Parse(slot.StartDate)
	if err != nil {
		return false
	}
	until := start.Sub(now.UTC())
	return until >= 0 && until < policy.Window(c, start, localOffset)
}

// findSlot returns the slot starting at req.TargetStart, restricted to the
// requested subcategory's product when there is one.
func findSlot(slots []platform.Slot, req Request) (platform.Slot, bool) {
	for _, s := range slots {
		if s.StartDate != req.TargetStart {
			continue
		}
		if req.Subcategory != nil && s.BookableProductID != req.Subcategory.ProductID {
			continue
		}
		return s, true
	}
	return platform.Slot{}, false
}
