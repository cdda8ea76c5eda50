package channelmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type availabilityResponse struct {
	Available bool `json:"available"`
}

type createBookingRequest struct {
	ExternalRef string `json:"externalRef"`
	Brand       string `json:"brand"`
	RoomID      string `json:"roomId"`
	CheckIn     string `json:"checkIn"`
	CheckOut    string `json:"checkOut"`
	GuestName   string `json:"guestName"`
	GuestEmail  string `json:"guestEmail"`
	GuestPhone  string `json:"guestPhone,omitempty"`
	GuestCount  int    `json:"guestCount"`
}

type createBookingResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// HTTPClient calls the channel manager REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CheckAvailability(ctx context.Context, roomID string, r DateRange) (bool, error) {
	query := url.Values{}
	query.Set("checkIn", r.CheckIn.UTC().Format(dateLayout))
	query.Set("checkOut", r.CheckOut.UTC().Format(dateLayout))
	path := "/rooms/" + url.PathEscape(roomID) + "/availability?" + query.Encode()

	var out availabilityResponse
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

func (c *HTTPClient) CreateBooking(ctx context.Context, details BookingDetails) (BookingRecord, error) {
	payload := createBookingRequest{
		ExternalRef: details.ExternalRef,
		Brand:       details.Brand,
		RoomID:      details.RoomID,
		CheckIn:     details.Range.CheckIn.UTC().Format(dateLayout),
		CheckOut:    details.Range.CheckOut.UTC().Format(dateLayout),
		GuestName:   details.Guest.Name,
		GuestEmail:  details.Guest.Email,
		GuestPhone:  details.Guest.Phone,
		GuestCount:  details.Guest.Count,
	}

	var out createBookingResponse
	if err := c.do(ctx, http.MethodPost, "/bookings", payload, details.ExternalRef, &out); err != nil {
		return BookingRecord{}, err
	}
	if out.Reference == "" {
		return BookingRecord{}, fmt.Errorf("%w: response without reference", ErrUnavailable)
	}
	return BookingRecord{Reference: out.Reference, Status: out.Status}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, idempotencyKey string, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrRoomTaken
	case resp.StatusCode == http.StatusGatewayTimeout:
		return ErrTimeout
	case resp.StatusCode >= http.StatusBadRequest:
		// upstream bodies are not echoed; they may contain credentials
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, transportReason(err))
}

// transportReason drops the request URL that url.Error would otherwise carry.
func transportReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Op + ": " + urlErr.Err.Error()
	}
	return err.Error()
}

var _ Client = (*HTTPClient)(nil)
