package models

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
)

const (
	earthRadiusKm = 6371.0
	kmPerNM       = 1.852
)

// GeoPoint представляет географическую точку. Высота в футах (MSL).
type GeoPoint struct {
	Latitude  float64 `json:"lat" msgpack:"lat"`
	Longitude float64 `json:"lon" msgpack:"lon"`
	Altitude  float64 `json:"alt" msgpack:"alt"`
}

// Validate проверяет корректность координат
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %f", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %f", p.Longitude)
	}
	return nil
}

// IsZero true для точки без координат
func (p GeoPoint) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0 && p.Altitude == 0
}

// DistanceTo вычисляет расстояние до другой точки в километрах (формула Haversine)
func (p GeoPoint) DistanceTo(other GeoPoint) float64 {
	lat1Rad := p.Latitude * math.Pi / 180
	lat2Rad := other.Latitude * math.Pi / 180
	deltaLat := (other.Latitude - p.Latitude) * math.Pi / 180
	deltaLon := (other.Longitude - p.Longitude) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceNM расстояние в морских милях
func (p GeoPoint) DistanceNM(other GeoPoint) float64 {
	return p.DistanceTo(other) / kmPerNM
}

// Geohash возвращает geohash для точки с заданной точностью
func (p GeoPoint) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, uint(precision))
}

// Interpolate возвращает точку на доле f пути от p к other.
// Координаты смешиваются линейно, долгота идет через кратчайшую сторону антимеридиана.
func (p GeoPoint) Interpolate(other GeoPoint, f float64) GeoPoint {
	dLon := other.Longitude - p.Longitude
	if dLon > 180 {
		dLon -= 360
	} else if dLon < -180 {
		dLon += 360
	}

	lon := p.Longitude + dLon*f
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}

	return GeoPoint{
		Latitude:  p.Latitude + (other.Latitude-p.Latitude)*f,
		Longitude: lon,
		Altitude:  p.Altitude + (other.Altitude-p.Altitude)*f,
	}
}

// SamePosition сравнивает точки с допуском, пригодным для "стоит на месте"
func (p GeoPoint) SamePosition(other GeoPoint) bool {
	const eps = 1e-7
	return math.Abs(p.Latitude-other.Latitude) < eps &&
		math.Abs(p.Longitude-other.Longitude) < eps &&
		math.Abs(p.Altitude-other.Altitude) < 0.5
}

// NormalizeHeading приводит курс к диапазону [0, 360)
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// HeadingSignedTurn знаковый поворот от from к to по кратчайшему пути, в диапазоне (-180, 180]
func HeadingSignedTurn(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// InterpolateHeading смешивает курсы по кратчайшей дуге
func InterpolateHeading(from, to, f float64) float64 {
	return NormalizeHeading(from + HeadingSignedTurn(from, to)*f)
}

// Bounds представляет географические границы (фильтр для REST)
type Bounds struct {
	Southwest GeoPoint `json:"sw"`
	Northeast GeoPoint `json:"ne"`
}

// Validate проверяет корректность границ
func (b Bounds) Validate() error {
	if err := b.Southwest.Validate(); err != nil {
		return fmt.Errorf("southwest: %w", err)
	}
	if err := b.Northeast.Validate(); err != nil {
		return fmt.Errorf("northeast: %w", err)
	}
	if b.Southwest.Latitude > b.Northeast.Latitude {
		return fmt.Errorf("southwest latitude must be less than northeast latitude")
	}
	if b.Southwest.Longitude > b.Northeast.Longitude {
		return fmt.Errorf("southwest longitude must be less than northeast longitude")
	}
	return nil
}

// Contains проверяет, содержится ли точка в границах
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Latitude >= b.Southwest.Latitude && p.Latitude <= b.Northeast.Latitude &&
		p.Longitude >= b.Southwest.Longitude && p.Longitude <= b.Northeast.Longitude
}
