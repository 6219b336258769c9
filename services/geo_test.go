package services

import (
	"math"
	"testing"

	"github.com/anjiri1684/seatshare/models"
)

func TestDistanceKm(t *testing.T) {
	oneDegree := DistanceKm(models.Point{Lat: 0, Lng: 0}, models.Point{Lat: 1, Lng: 0})
	if math.Abs(oneDegree-111.195) > 0.01 {
		t.Fatalf("one degree of latitude = %.3f km", oneDegree)
	}
	if d := DistanceKm(nairobi.Point(), nairobi.Point()); d != 0 {
		t.Fatalf("distance to self = %f", d)
	}
	if d := DistanceKm(nairobi.Point(), nakuru.Point()); d < 130 || d > 145 {
		t.Fatalf("Nairobi to Nakuru = %.1f km", d)
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	box := boundingBox(nairobi.Point(), 10)
	if box == nil {
		t.Fatal("expected a box near the equator")
	}
	inside := models.Point{Lat: nairobi.Lat + 0.08, Lng: nairobi.Lng}
	outside := models.Point{Lat: nairobi.Lat + 0.1, Lng: nairobi.Lng}
	if !box.Contains(inside) {
		t.Fatalf("box should contain a point %.1f km away", DistanceKm(nairobi.Point(), inside))
	}
	if box.Contains(outside) {
		t.Fatalf("box should not contain a point %.1f km away", DistanceKm(nairobi.Point(), outside))
	}
	if boundingBox(models.Point{Lat: 89.99, Lng: 0}, 10) != nil {
		t.Fatal("expected no box across the pole")
	}
}
