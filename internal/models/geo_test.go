package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeoPoint_Validate(t *testing.T) {
	tests := []struct {
		name    string
		point   GeoPoint
		wantErr bool
		errMsg  string
	}{
		{
			name:  "Valid coordinates - Frankfurt",
			point: GeoPoint{Latitude: 50.0379, Longitude: 8.5622, Altitude: 364},
		},
		{
			name:  "Valid coordinates - Date line",
			point: GeoPoint{Latitude: 0.0, Longitude: 180.0},
		},
		{
			name:    "Invalid latitude - too high",
			point:   GeoPoint{Latitude: 91.0, Longitude: 0.0},
			wantErr: true,
			errMsg:  "invalid latitude",
		},
		{
			name:    "Invalid longitude - too low",
			point:   GeoPoint{Latitude: 0.0, Longitude: -181.0},
			wantErr: true,
			errMsg:  "invalid longitude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGeoPoint_DistanceNM(t *testing.T) {
	tests := []struct {
		name      string
		point1    GeoPoint
		point2    GeoPoint
		expected  float64
		tolerance float64
	}{
		{
			name:      "Same point",
			point1:    GeoPoint{Latitude: 50.0, Longitude: 8.0},
			point2:    GeoPoint{Latitude: 50.0, Longitude: 8.0},
			expected:  0.0,
			tolerance: 0.01,
		},
		{
			name:      "1 degree latitude is 60 NM",
			point1:    GeoPoint{Latitude: 46.0, Longitude: 8.0},
			point2:    GeoPoint{Latitude: 47.0, Longitude: 8.0},
			expected:  60.0,
			tolerance: 0.5,
		},
		{
			name:      "EDDF to EDDM (approximate)",
			point1:    GeoPoint{Latitude: 50.0379, Longitude: 8.5622},
			point2:    GeoPoint{Latitude: 48.3538, Longitude: 11.7861},
			expected:  164.0,
			tolerance: 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			distance := tt.point1.DistanceNM(tt.point2)
			assert.InDelta(t, tt.expected, distance, tt.tolerance)

			// Проверяем симметричность
			assert.InDelta(t, distance, tt.point2.DistanceNM(tt.point1), 0.001)
		})
	}
}

func TestGeoPoint_Interpolate(t *testing.T) {
	t.Run("midpoint", func(t *testing.T) {
		a := GeoPoint{Latitude: 50, Longitude: 8, Altitude: 1000}
		b := GeoPoint{Latitude: 51, Longitude: 9, Altitude: 3000}

		mid := a.Interpolate(b, 0.5)
		assert.InDelta(t, 50.5, mid.Latitude, 1e-9)
		assert.InDelta(t, 8.5, mid.Longitude, 1e-9)
		assert.InDelta(t, 2000, mid.Altitude, 1e-9)
	})

	t.Run("across antimeridian", func(t *testing.T) {
		a := GeoPoint{Latitude: 0, Longitude: 179}
		b := GeoPoint{Latitude: 0, Longitude: -179}

		mid := a.Interpolate(b, 0.5)
		assert.InDelta(t, 180, abs(mid.Longitude), 1e-9)

		quarter := a.Interpolate(b, 0.25)
		assert.InDelta(t, 179.5, quarter.Longitude, 1e-9)
	})

	t.Run("endpoints", func(t *testing.T) {
		a := GeoPoint{Latitude: 10, Longitude: 20, Altitude: 5}
		b := GeoPoint{Latitude: 11, Longitude: 21, Altitude: 6}
		assert.Equal(t, a, a.Interpolate(b, 0))
		assert.Equal(t, b, a.Interpolate(b, 1))
	})
}

func TestInterpolateHeading(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		f        float64
		expected float64
	}{
		{"short path across north", 350, 10, 0.5, 0},
		{"short path across north reversed", 10, 350, 0.5, 0},
		{"plain", 90, 180, 0.5, 135},
		{"quarter across north", 350, 10, 0.25, 355},
		{"start", 270, 90, 0, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InterpolateHeading(tt.from, tt.to, tt.f)
			// 360 и 0 один и тот же курс
			diff := abs(HeadingSignedTurn(tt.expected, got))
			assert.Less(t, diff, 1e-9, "got %f", got)
		})
	}
}

func TestNormalizeHeading(t *testing.T) {
	assert.InDelta(t, 10, NormalizeHeading(370), 1e-9)
	assert.InDelta(t, 350, NormalizeHeading(-10), 1e-9)
	assert.InDelta(t, 0, NormalizeHeading(720), 1e-9)
}

func TestGeoPoint_Geohash(t *testing.T) {
	point := GeoPoint{Latitude: 50.0379, Longitude: 8.5622}

	for _, precision := range []int{5, 7, 9} {
		hash := point.Geohash(precision)
		assert.Len(t, hash, precision)
	}
	assert.Equal(t, point.Geohash(5), point.Geohash(7)[:5])
}

func TestBounds_Contains(t *testing.T) {
	bounds := Bounds{
		Southwest: GeoPoint{Latitude: 45.0, Longitude: 7.0},
		Northeast: GeoPoint{Latitude: 47.0, Longitude: 9.0},
	}
	assert.NoError(t, bounds.Validate())
	assert.True(t, bounds.Contains(GeoPoint{Latitude: 46, Longitude: 8}))
	assert.True(t, bounds.Contains(GeoPoint{Latitude: 45, Longitude: 7}))
	assert.False(t, bounds.Contains(GeoPoint{Latitude: 48, Longitude: 8}))

	reversed := Bounds{Southwest: bounds.Northeast, Northeast: bounds.Southwest}
	assert.Error(t, reversed.Validate())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Benchmark тесты
func BenchmarkGeoPoint_DistanceNM(b *testing.B) {
	p1 := GeoPoint{Latitude: 50.0, Longitude: 8.0}
	p2 := GeoPoint{Latitude: 48.0, Longitude: 11.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p1.DistanceNM(p2)
	}
}
