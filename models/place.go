package models

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type Place struct {
	Address string  `gorm:"size:255" json:"address"`
	Lat     float64 `gorm:"not null" json:"lat"`
	Lng     float64 `gorm:"not null" json:"lng"`
}

func (p Place) Point() Point { return Point{Lat: p.Lat, Lng: p.Lng} }
