package benchmarks

import (
	"fmt"
	"testing"

	"github.com/flybeeper/fsd-airspace/internal/analyzer"
	"github.com/flybeeper/fsd-airspace/internal/models"
	"github.com/flybeeper/fsd-airspace/internal/restriction"
)

// BenchmarkDistanceNM большой круг между двумя точками
func BenchmarkDistanceNM(b *testing.B) {
	other := models.GeoPoint{Latitude: 48.35, Longitude: 11.78}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = ownPos.DistanceNM(other)
	}
}

// BenchmarkGeohash кодирование позиции с разной точностью
func BenchmarkGeohash(b *testing.B) {
	for _, precision := range []int{4, 7, 12} {
		b.Run(fmt.Sprintf("Precision%d", precision), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = ownPos.Geohash(precision)
			}
		})
	}
}

// BenchmarkPartition разбиение судов на отрисовываемые и остальные
func BenchmarkPartition(b *testing.B) {
	policies := map[string]restriction.RenderRestriction{
		"Unrestricted":  restriction.NewRenderRestriction(),
		"Max50":         restriction.FromValues(50, -1, true),
		"Max50Within30": restriction.FromValues(50, 30, true),
	}

	for _, size := range []int{100, 1000, 5000} {
		inRange := generateInRange(size)
		for name, policy := range policies {
			b.Run(fmt.Sprintf("%s_%d", name, size), func(b *testing.B) {
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					_ = analyzer.Partition(inRange, policy)
				}
			})
		}
	}
}

// BenchmarkSnapshotDiff построение снапшота с вычислением newly enabled/disabled
func BenchmarkSnapshotDiff(b *testing.B) {
	for _, size := range []int{100, 1000} {
		previous := generateSnapshot(size, nil)
		b.Run(fmt.Sprintf("Aircraft%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = generateSnapshot(size, previous)
			}
		})
	}
}
