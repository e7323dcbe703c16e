package viz

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-anomaly/results"
	"github.com/nvr-ai/go-anomaly/viz/style"
)

func genHeatmap(b *testing.B, w, h int) results.Heatmap {
	rng := rand.New(rand.NewSource(1))
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = uint8(rng.Intn(256))
	}
	hm, err := results.NewHeatmap(pix, w, h)
	if err != nil {
		b.Fatal(err)
	}
	return hm
}

func BenchmarkDrawHeatmap_392_on_1080p(b *testing.B) {
	hm := genHeatmap(b, 392, 392)
	c := NewCanvas(1920, 1080)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := DrawHeatmap(style.DrawContext{}, hm, c); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDrawHeatmap_900_on_900(b *testing.B) {
	hm := genHeatmap(b, 900, 900)
	c := NewCanvas(900, 900)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := DrawHeatmap(style.DrawContext{}, hm, c); err != nil {
			b.Fatal(err)
		}
	}
}
