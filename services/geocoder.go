package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anjiri1684/seatshare/models"
)

type RouteEstimate struct {
	DistanceKm  float64
	DurationMin float64
}

// Geocoder enriches a new ride with a route estimate. It is called once at
// ride creation and is never part of a booking transaction.
type Geocoder interface {
	Estimate(ctx context.Context, origin, destination models.Point) (RouteEstimate, error)
}

// OSRMGeocoder asks an OSRM routing server for the driving route.
type OSRMGeocoder struct {
	baseURL string
	client  *http.Client
}

func NewOSRMGeocoder(baseURL string, timeout time.Duration) *OSRMGeocoder {
	return &OSRMGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (g *OSRMGeocoder) Estimate(ctx context.Context, origin, destination models.Point) (RouteEstimate, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		g.baseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RouteEstimate{}, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return RouteEstimate{}, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RouteEstimate{}, fmt.Errorf("osrm returned status %d", resp.StatusCode)
	}

	var body osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RouteEstimate{}, fmt.Errorf("decode osrm response: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return RouteEstimate{}, fmt.Errorf("osrm found no route: %s", body.Code)
	}
	return RouteEstimate{
		DistanceKm:  body.Routes[0].Distance / 1000,
		DurationMin: body.Routes[0].Duration / 60,
	}, nil
}

// StraightLineGeocoder is used when no routing server is configured.
type StraightLineGeocoder struct {
	AverageSpeedKmh float64
}

func (g StraightLineGeocoder) Estimate(_ context.Context, origin, destination models.Point) (RouteEstimate, error) {
	distance := DistanceKm(origin, destination)
	speed := g.AverageSpeedKmh
	if speed <= 0 {
		speed = 60
	}
	return RouteEstimate{DistanceKm: distance, DurationMin: distance / speed * 60}, nil
}
