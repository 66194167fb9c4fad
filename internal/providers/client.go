package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/ratelimit"
	"github.com/dharmasatrya/skysearch/internal/window"
)

const maxBodyBytes = 16 << 20

var (
	errUnexpectedShape = errors.New("response is neither an array nor a data envelope")
	errInvalidJSON     = errors.New("response is not valid JSON")
)

var cabinCodes = map[models.CabinClass]string{
	models.CabinEconomy:        "M",
	models.CabinPremiumEconomy: "W",
	models.CabinBusiness:       "C",
	models.CabinFirst:          "F",
}

type ClientConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	ResultLimit int
	HTTPClient  *http.Client
	Limiter     *ratelimit.Limiter
}

// Client talks to the flight-inventory provider's search and price
// confirmation endpoints.
type Client struct {
	name    string
	baseURL string
	apiKey  string
	limit   int
	http    *http.Client
	limiter *ratelimit.Limiter
}

var (
	_ Provider     = (*Client)(nil)
	_ PriceChecker = (*Client)(nil)
)

func NewClient(cfg ClientConfig) *Client {
	if cfg.Name == "" {
		cfg.Name = "kiwi"
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 50
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limit:   cfg.ResultLimit,
		http:    cfg.HTTPClient,
		limiter: cfg.Limiter,
	}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Search(ctx context.Context, q window.Query) ([]models.RawFlight, error) {
	body, err := c.get(ctx, ratelimit.EndpointSearch, "/v2/search", searchParams(q, c.limit))
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	records := root
	if !root.IsArray() {
		records = root.Get("data")
	}
	if !records.IsArray() {
		return nil, NewProviderError(c.name, KindMalformed, 0, errUnexpectedShape)
	}

	var flights []models.RawFlight
	if err := json.Unmarshal([]byte(records.Raw), &flights); err != nil {
		return nil, NewProviderError(c.name, KindMalformed, 0, err)
	}

	currency := root.Get("currency").String()
	if currency == "" {
		currency = q.Trip.Currency
	}
	for i := range flights {
		if flights[i].Currency == "" {
			flights[i].Currency = currency
		}
	}
	return flights, nil
}

func (c *Client) CheckPrice(ctx context.Context, req PriceCheckRequest) (*models.PriceConfirmation, error) {
	params := url.Values{}
	params.Set("v", "2")
	params.Set("booking_token", req.BookingToken)
	params.Set("bnum", strconv.Itoa(req.Bags.TotalHold()))
	params.Set("adults", strconv.Itoa(req.Passengers.Adults))
	params.Set("children", strconv.Itoa(req.Passengers.Children))
	params.Set("infants", strconv.Itoa(req.Passengers.Infants))
	params.Set("currency", req.Currency)

	body, err := c.get(ctx, ratelimit.EndpointCheckPrice, "/v2/booking/check_flights", params)
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() || !root.Get("total").Exists() {
		return nil, NewProviderError(c.name, KindMalformed, 0, errUnexpectedShape)
	}

	currency := root.Get("conversion.currency").String()
	amount := root.Get("conversion.amount").Float()
	if currency == "" {
		currency = req.Currency
		amount = root.Get("total").Float()
	}

	return &models.PriceConfirmation{
		BookingToken:   req.BookingToken,
		Price:          models.Price{Amount: amount, Currency: currency},
		PriceChanged:   root.Get("price_change").Bool(),
		FlightsChecked: root.Get("flights_checked").Bool(),
		FlightsInvalid: root.Get("flights_invalid").Bool(),
		CheckedAt:      time.Now().UTC(),
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, NewProviderError(c.name, KindNetwork, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, NewProviderError(c.name, KindClient, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewProviderError(c.name, KindNetwork, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, NewProviderError(c.name, KindNetwork, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, NewProviderError(c.name, KindServer, resp.StatusCode, statusError(resp.StatusCode, body))
	case resp.StatusCode >= 400:
		return nil, NewProviderError(c.name, KindClient, resp.StatusCode, statusError(resp.StatusCode, body))
	}

	if !gjson.ValidBytes(body) {
		return nil, NewProviderError(c.name, KindMalformed, resp.StatusCode, errInvalidJSON)
	}
	return body, nil
}

func statusError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = http.StatusText(status)
	}
	return errors.New(msg)
}

func searchParams(q window.Query, limit int) url.Values {
	t := q.Trip
	params := url.Values{}
	params.Set("fly_from", t.Origin)
	params.Set("fly_to", t.Destination)
	params.Set("date_from", q.DepartureDate)
	params.Set("date_to", q.DepartureDate)
	if q.ReturnDate != "" {
		params.Set("return_from", q.ReturnDate)
		params.Set("return_to", q.ReturnDate)
		params.Set("flight_type", "round")
	} else {
		params.Set("flight_type", "oneway")
	}
	params.Set("adults", strconv.Itoa(t.Passengers.Adults))
	params.Set("children", strconv.Itoa(t.Passengers.Children))
	params.Set("infants", strconv.Itoa(t.Passengers.Infants))
	if code, ok := cabinCodes[t.CabinClass]; ok {
		params.Set("selected_cabins", code)
	}
	params.Set("curr", t.Currency)
	params.Set("locale", t.Locale)
	params.Set("adult_hold_bag", q.Bags.AdultHold())
	params.Set("adult_hand_bag", q.Bags.AdultHand())
	if t.Passengers.Children > 0 {
		params.Set("child_hold_bag", q.Bags.ChildHold())
		params.Set("child_hand_bag", q.Bags.ChildHand())
	}
	params.Set("limit", strconv.Itoa(limit))
	return params
}
