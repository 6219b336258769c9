package services

import (
	"math"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/store"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle (haversine) distance between two points.
func DistanceKm(a, b models.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// boundingBox returns a rectangle containing every point within radiusKm
// of center, or nil when the rectangle would wrap a pole or the
// antimeridian.
func boundingBox(center models.Point, radiusKm float64) *store.BoundingBox {
	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 1e-6 {
		return nil
	}
	dLng := dLat / cosLat

	box := store.BoundingBox{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLng: center.Lng - dLng,
		MaxLng: center.Lng + dLng,
	}
	if box.MinLat < -90 || box.MaxLat > 90 || box.MinLng < -180 || box.MaxLng > 180 {
		return nil
	}
	return &box
}
