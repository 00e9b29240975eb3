package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to a LocationIQ-compatible directions API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type directionsResponse struct {
	Routes []struct {
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

// Distance returns driving distance in meters between two lon/lat pairs.
func (c *Client) Distance(ctx context.Context, fromLon, fromLat, toLon, toLat string) (float64, error) {
	url := fmt.Sprintf("%s/directions/driving/%s,%s;%s,%s?key=%s",
		c.BaseURL, fromLon, fromLat, toLon, toLat, c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("directions lookup failed: status %d", res.StatusCode)
	}

	var body directionsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, err
	}
	if len(body.Routes) == 0 {
		return 0, fmt.Errorf("directions lookup returned no route")
	}
	return body.Routes[0].Distance, nil
}
