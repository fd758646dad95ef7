package geo

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/riskguard/server/internal/model"
)

const (
	// DefaultBaseURL is the free ip-api.com JSON endpoint.
	DefaultBaseURL = "http://ip-api.com"

	// lookupTimeout bounds every lookup; a slow upstream must never hang a
	// login request.
	lookupTimeout = 2 * time.Second
)

// Client resolves IPs against the ip-api.com JSON service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an ip-api.com resolver. An empty baseURL selects the
// public endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: lookupTimeout},
	}
}

// ipAPIResponse mirrors the subset of the ip-api.com payload we consume.
// Pointer fields distinguish "absent" from zero values.
type ipAPIResponse struct {
	Status  string   `json:"status"`
	Country *string  `json:"country"`
	City    *string  `json:"city"`
	ISP     *string  `json:"isp"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// Lookup resolves the IP. Any failure (timeout, transport error, malformed
// body, non-success status) returns an all-nil Geolocation.
func (c *Client) Lookup(ctx context.Context, ip string) model.Geolocation {
	reqCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	endpoint := c.baseURL + "/json/" + url.PathEscape(ip)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Geolocation{}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("geo lookup failed for %s: %v", ip, err)
		return model.Geolocation{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Geolocation{}
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("geo lookup: decode response for %s: %v", ip, err)
		return model.Geolocation{}
	}
	if body.Status != "success" {
		return model.Geolocation{}
	}

	return model.Geolocation{
		Country:   body.Country,
		City:      body.City,
		ISP:       body.ISP,
		Latitude:  body.Lat,
		Longitude: body.Lon,
	}
}
