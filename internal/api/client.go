package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"stationbook/internal/booking"
	"stationbook/internal/model"
	"stationbook/internal/slots"
)

// Client calls the booking API. Domain failures come back as *booking.Error
// so callers can use errors.Is against the booking sentinels.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for the station list.
// Availability is never cached.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// ListStations returns every configured station.
func (c *Client) ListStations(ctx context.Context) ([]model.Station, error) {
	const cacheKey = "stationbook:stations"
	var wrap struct {
		Stations []model.Station `json:"stations"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Stations, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/api/stations", nil, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Stations, nil
}

// OccupiedSlots returns the taken windows of a station day.
func (c *Client) OccupiedSlots(ctx context.Context, stationID, date string) ([]model.TimeRange, error) {
	endpoint := fmt.Sprintf("%s/api/stations/%s/occupied?date=%s", c.baseURL, url.PathEscape(stationID), url.QueryEscape(date))
	var resp OccupiedResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Occupied, nil
}

// Slots returns the availability grid of a station day.
func (c *Client) Slots(ctx context.Context, stationID, date string) ([]slots.SlotInfo, error) {
	endpoint := fmt.Sprintf("%s/api/stations/%s/slots?date=%s", c.baseURL, url.PathEscape(stationID), url.QueryEscape(date))
	var resp SlotsResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

// CreateReservation books a window.
func (c *Client) CreateReservation(ctx context.Context, req booking.CreateRequest) (*model.Reservation, error) {
	var res model.Reservation
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/reservations", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetReservation fetches a reservation by id.
func (c *Client) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := c.doJSON(ctx, http.MethodGet, c.reservationURL(id, ""), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExtendReservation lengthens a reservation by additionalHours.
func (c *Client) ExtendReservation(ctx context.Context, id string, additionalHours float64) (*model.Reservation, error) {
	var res model.Reservation
	body := ExtendRequest{AdditionalHours: additionalHours}
	if err := c.doJSON(ctx, http.MethodPost, c.reservationURL(id, "/extend"), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AttachSecondaryOrder appends food and drink items.
func (c *Client) AttachSecondaryOrder(ctx context.Context, id string, items []model.LineItem) error {
	return c.doJSON(ctx, http.MethodPost, c.reservationURL(id, "/orders"), OrdersRequest{Items: items}, nil)
}

// SetGameSelections replaces the selected games.
func (c *Client) SetGameSelections(ctx context.Context, id string, gameIDs []string) error {
	return c.doJSON(ctx, http.MethodPut, c.reservationURL(id, "/games"), GamesRequest{GameIDs: gameIDs}, nil)
}

// CancelReservation cancels a pending or confirmed reservation.
func (c *Client) CancelReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := c.doJSON(ctx, http.MethodPost, c.reservationURL(id, "/cancel"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CompleteReservation marks a confirmed reservation as played.
func (c *Client) CompleteReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := c.doJSON(ctx, http.MethodPost, c.reservationURL(id, "/complete"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// HealthCheck checks if the health endpoint answers 200.
func (c *Client) HealthCheck(ctx context.Context, healthURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) reservationURL(id, suffix string) string {
	return fmt.Sprintf("%s/api/reservations/%s%s", c.baseURL, url.PathEscape(id), suffix)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	}
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Code != "" {
			switch kind := booking.Kind(apiErr.Code); kind {
			case booking.KindSlotConflict, booking.KindNotFound, booking.KindInvalidExtension,
				booking.KindCapacityExceeded, booking.KindInvalidRequest, booking.KindStationNotFound,
				booking.KindStationUnavailable, booking.KindInvalidTransition:
				return &booking.Error{Kind: kind, Message: apiErr.Error}
			}
			return fmt.Errorf("http %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
