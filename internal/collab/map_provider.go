package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dispatchcore/internal/dispatch"
)

// HTTPMapProvider calls an external routed-distance API over HTTP. It is
// the concrete MapProvider the fare engine's circuit breaker wraps;
// Haversine remains the unconditional fallback on any failure.
type HTTPMapProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPMapProvider(baseURL, apiKey string) *HTTPMapProvider {
	return &HTTPMapProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

type distanceResponse struct {
	DistanceKM float64 `json:"distanceKm"`
}

func (p *HTTPMapProvider) Distance(ctx context.Context, origin, destination dispatch.Coordinate) (float64, error) {
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", origin.Latitude, origin.Longitude))
	q.Set("destination", fmt.Sprintf("%f,%f", destination.Latitude, destination.Longitude))
	q.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/distance?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("map provider returned status %s", strconv.Itoa(resp.StatusCode))
	}
	var out distanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.DistanceKM, nil
}
