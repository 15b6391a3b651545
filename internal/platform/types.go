package platform

import "encoding/json"

const (
	// DefaultBaseURL is the booking platform's API.
	DefaultBaseURL = "https://backbone-web-api.production.delft.delcom.nl"
)

// Slot is one bookable interval as returned by the bookable-slots endpoint.
// Not every bookable entity has a booking ID.
type Slot struct {
	BookingID         *int64          `json:"bookingId"`
	BookableProductID int64           `json:"bookableProductId"`
	LinkedProductID   int64           `json:"linkedProductId"`
	StartDate         string          `json:"startDate"`
	EndDate           string          `json:"endDate"`
	IsAvailable       bool            `json:"isAvailable"`
	Product           json.RawMessage `json:"product,omitempty"`
}

// Account is the subset of the authenticated account the bot uses.
type Account struct {
	ID    *int64 `json:"id"`
	Email string `json:"email,omitempty"`
}

// slotFilter is serialised into the "s" query parameter. Field order matches
// what the web frontend sends.
type slotFilter struct {
	StartDate         string    `json:"startDate"`
	EndDate           string    `json:"endDate"`
	TagIDs            inFilter  `json:"tagIds"`
	AvailableFromDate gtFilter  `json:"availableFromDate"`
	AvailableTillDate gteFilter `json:"availableTillDate"`
}

type inFilter struct {
	In []int `json:"$in"`
}

type gtFilter struct {
	GT string `json:"$gt"`
}

type gteFilter struct {
	GTE string `json:"$gte"`
}

type slotsResponse struct {
	Data []Slot `json:"data"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type participationRequest struct {
	MemberID  int64               `json:"memberId"`
	BookingID *int64              `json:"bookingId"`
	Params    participationParams `json:"params"`
}

type participationParams struct {
	StartDate               string   `json:"startDate"`
	EndDate                 string   `json:"endDate"`
	BookableProductID       int64    `json:"bookableProductId"`
	BookableLinkedProductID int64    `json:"bookableLinkedProductId"`
	BookingID               *int64   `json:"bookingId"`
	InvitedMemberEmails     []string `json:"invitedMemberEmails"`
	InvitedGuests           []string `json:"invitedGuests"`
	InvitedOthers           []string `json:"invitedOthers"`
}
