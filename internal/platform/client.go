// Package platform is the HTTP client for the sports-centre booking API:
// schedule queries, participations (bookings) and the account endpoints used
// during login.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/xbook/internal/timeslot"
	"github.com/wolfman30/xbook/pkg/logging"
)

var tracer = otel.Tracer("xbook.internal.platform")

// Client talks to the booking API. Schedule queries are anonymous; booking,
// cancellation and account calls go through an authenticated Session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for anonymous requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock that anchors the availability filter.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a client for the API at baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authority returns the API host, sent as the "authority" header on
// authenticated requests.
func (c *Client) Authority() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// HTTPClient returns the client used for anonymous requests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// FetchSlots returns every slot of the given tag between startUTC and endUTC
// that is currently open for booking. Any failure is reported as a
// *TransportError and no slots; callers should simply try again later. Each
// call returns a fresh slice.
func (c *Client) FetchSlots(ctx context.Context, startUTC, endUTC string, tagID int) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "platform.fetch_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("xbook.range_start", startUTC),
		attribute.String("xbook.range_end", endUTC),
		attribute.Int("xbook.tag_id", tagID),
	)

	now := timeslot.Format(c.now())
	filter, err := json.Marshal(slotFilter{
		StartDate:         startUTC,
		EndDate:           endUTC,
		TagIDs:            inFilter{In: []int{tagID}},
		AvailableFromDate: gtFilter{GT: now},
		AvailableTillDate: gteFilter{GTE: now},
	})
	if err != nil {
		return nil, &TransportError{Op: "fetch slots", Err: err}
	}
	reqURL := c.baseURL + "/bookable-slots?" + url.Values{"s": {string(filter)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{Op: "fetch slots", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetch slots", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "fetch slots", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "fetch slots", Err: &StatusError{Op: "fetch slots", StatusCode: resp.StatusCode, Body: truncate(body)}}
	}

	var out slotsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TransportError{Op: "fetch slots", Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Data == nil {
		return nil, &TransportError{Op: "fetch slots", Err: fmt.Errorf("response has no data field")}
	}
	span.SetAttributes(attribute.Int("xbook.slot_count", len(out.Data)))
	return out.Data, nil
}

// Login exchanges e-mail and password for an access token.
func (c *Client) Login(ctx context.Context, sess *Session, email, password string) (string, error) {
	form := url.Values{"email": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &TransportError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.send(sess, req, "login")
	if err != nil {
		return "", err
	}

	var out loginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &TransportError{Op: "login", Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return out.AccessToken, nil
}

// Account fetches the authenticated account.
func (c *Client) Account(ctx context.Context, sess *Session) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth?cf=0", nil)
	if err != nil {
		return nil, &TransportError{Op: "account", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.send(sess, req, "account")
	if err != nil {
		return nil, err
	}

	var out Account
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TransportError{Op: "account", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}

// Book submits a participation for slot on behalf of memberID.
func (c *Client) Book(ctx context.Context, sess *Session, slot Slot, memberID int64) error {
	ctx, span := tracer.Start(ctx, "platform.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("xbook.slot_start", slot.StartDate),
		attribute.Int64("xbook.bookable_product_id", slot.BookableProductID),
	)

	payload, err := json.Marshal(participationRequest{
		MemberID:  memberID,
		BookingID: slot.BookingID,
		Params: participationParams{
			StartDate:               slot.StartDate,
			EndDate:                 slot.EndDate,
			BookableProductID:       slot.BookableProductID,
			BookableLinkedProductID: slot.LinkedProductID,
			BookingID:               slot.BookingID,
			InvitedMemberEmails:     []string{},
			InvitedGuests:           []string{},
			InvitedOthers:           []string{},
		},
	})
	if err != nil {
		return fmt.Errorf("platform: marshal participation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/participations", bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: "book", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.participation(sess, req, "book")
}

// Cancel deletes the participation with the given ID.
func (c *Client) Cancel(ctx context.Context, sess *Session, participationID int64) error {
	reqURL := c.baseURL + "/participations/" + strconv.FormatInt(participationID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return &TransportError{Op: "cancel", Err: err}
	}
	return c.participation(sess, req, "cancel")
}

func (c *Client) participation(sess *Session, req *http.Request, op string) error {
	resp, err := sess.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("participation request rejected", "op", op, "status", resp.StatusCode)
		return &BookingRejectedError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	return nil
}

// send performs req through sess and returns the body of a 2xx response.
func (c *Client) send(sess *Session, req *http.Request, op string) ([]byte, error) {
	resp, err := sess.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	return body, nil
}
