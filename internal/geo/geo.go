package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Location is the subset of the ipapi.co response we keep on a user record.
type Location struct {
	IP                 string `json:"ip"`
	City               string `json:"city"`
	Region             string `json:"region"`
	Country            string `json:"country_name"`
	CountryCode        string `json:"country_code"`
	CountryCallingCode string `json:"country_calling_code"`
	Currency           string `json:"currency"`
	InEU               bool   `json:"in_eu"`
}

// Client looks up where an IP address is registered. Used once per signup;
// a failure degrades to an empty location rather than blocking registration.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Lookup(ctx context.Context, ip string) (Location, error) {
	url := fmt.Sprintf("%s/%s/json/", c.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo lookup status %d", resp.StatusCode)
	}

	var location Location
	if err := json.NewDecoder(resp.Body).Decode(&location); err != nil {
		return Location{}, err
	}
	location.IP = ip
	return location, nil
}
