package results

import (
	"encoding/json"
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-anomaly/viz/style"
)

func TestClamp01(t *testing.T) {
	tests := []struct {
		in   float32
		want float32
	}{
		{in: -0.3, want: 0},
		{in: 0, want: 0},
		{in: 0.5, want: 0.5},
		{in: 1, want: 1},
		{in: 1.2, want: 1},
		{in: float32(math.NaN()), want: 0},
		{in: float32(math.Inf(1)), want: 1},
		{in: float32(math.Inf(-1)), want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp01(tt.in), "Clamp01(%v)", tt.in)
	}
}

// TestNewHeatmap validates buffer size checking on raster construction.
func TestNewHeatmap(t *testing.T) {
	h, err := NewHeatmap([]uint8{0, 255, 127, 51}, 2, 2)
	require.NoError(t, err)
	w, hh := h.Dimensions()
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, hh)
	assert.Equal(t, uint8(255), h.At(1, 0))
	assert.Equal(t, uint8(51), h.At(1, 1))
	assert.Equal(t, uint8(0), h.At(5, 5), "out of range reads are zero")

	_, err = NewHeatmap([]uint8{1, 2, 3}, 2, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferSize))

	_, err = NewMask(make([]uint8, 5), 2, 2)
	assert.True(t, errors.Is(err, ErrBufferSize))
}

// TestHeatmapImmutable ensures neither the source buffer nor With* calls change the raster.
func TestHeatmapImmutable(t *testing.T) {
	pix := []uint8{1, 2, 3, 4}
	h, err := NewHeatmap(pix, 2, 2)
	require.NoError(t, err)
	pix[0] = 99
	assert.Equal(t, uint8(1), h.At(0, 0))

	out := h.Pixels()
	out[1] = 99
	assert.Equal(t, uint8(2), h.At(1, 0))

	named := h.WithName("anomaly").WithUID(3).WithID(0).WithConfidence(1.7)
	assert.True(t, named.Equal(h))
	assert.Empty(t, h.Name())
	_, ok := h.Confidence()
	assert.False(t, ok)

	c, ok := named.Confidence()
	require.True(t, ok)
	assert.Equal(t, float32(1), c, "confidence is clamped")
	uid, ok := named.UID()
	require.True(t, ok)
	assert.Equal(t, 3, uid)
	assert.Equal(t, "Heatmap(2x2 uid=3 id=0 name=anomaly conf=1.000)", named.String())
}

func TestHeatmapEqual(t *testing.T) {
	a, _ := NewHeatmap([]uint8{1, 2, 3, 4}, 2, 2)
	b, _ := NewHeatmap([]uint8{1, 2, 3, 4}, 4, 1)
	c, _ := NewHeatmap([]uint8{1, 2, 3, 5}, 2, 2)
	assert.False(t, a.Equal(b), "same bytes, different dimensions")
	assert.False(t, a.Equal(c))
	assert.True(t, a.Equal(a.WithConfidence(0.2)))
}

func TestHeatmapFromGraySubImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = uint8(i)
	}
	sub := g.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)
	h := HeatmapFromGray(sub)
	assert.Equal(t, []uint8{5, 6, 9, 10}, h.Pixels())

	back := h.Gray()
	assert.Equal(t, image.Rect(0, 0, 2, 2), back.Bounds())
	assert.Equal(t, []uint8{5, 6, 9, 10}, back.Pix)
}

func TestHeatmapStyle(t *testing.T) {
	h, _ := NewHeatmap([]uint8{0}, 1, 1)
	assert.Nil(t, h.Style())
	styled := h.WithStyle(style.Style{}.WithFillAlpha(10))
	require.NotNil(t, styled.Style())
	assert.Equal(t, uint8(10), styled.Style().Alpha())
	assert.Nil(t, h.Style())
}

func TestMaskArea(t *testing.T) {
	m, err := NewMask([]uint8{0, 255, 255, 0, 0, 255}, 3, 2)
	require.NoError(t, err)
	m = m.WithName("anomaly").WithID(0)
	assert.Equal(t, 3, m.Area())
	assert.Equal(t, "Mask(3x2 name=anomaly area=3)", m.String())
}

func TestNewProb(t *testing.T) {
	p := NewProb("peak_anomaly_score", 1.5).WithID(0)
	assert.Equal(t, float32(1), p.Confidence)
	require.NotNil(t, p.ID)
	assert.Equal(t, 0, *p.ID)
	assert.Equal(t, float32(0), NewProb("x", -2).Confidence)
}

// TestResultSerializedForm ensures render-time artifacts are never serialized.
func TestResultSerializedForm(t *testing.T) {
	h, _ := NewHeatmap([]uint8{1, 2, 3, 4}, 2, 2)
	m, _ := NewMask([]uint8{0, 255, 0, 255}, 2, 2)
	r := Result{
		Probs:    []Prob{NewProb("peak_anomaly_score", 0.9).WithID(0)},
		Heatmaps: []Heatmap{h},
		Masks:    []Mask{m},
		Images:   []image.Image{image.NewRGBA(image.Rect(0, 0, 1, 1))},
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"probs":[{"name":"peak_anomaly_score","id":0,"confidence":0.9}]}`, string(raw))

	var decoded Result
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Empty(t, decoded.Heatmaps)
	if diff := cmp.Diff(r.Probs, decoded.Probs); diff != "" {
		t.Errorf("probs mismatch (-want +got):\n%s", diff)
	}

	y, err := yaml.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(y), "heatmaps")
	assert.NotContains(t, string(y), "masks")
	assert.Contains(t, string(y), "peak_anomaly_score")
}

func TestResultIsEmptyAndString(t *testing.T) {
	assert.True(t, Result{}.IsEmpty())
	assert.Equal(t, "Result{}", Result{}.String())

	r := Result{Probs: []Prob{NewProb("mean_anomaly_score", 0.25)}}
	assert.False(t, r.IsEmpty())
	assert.Equal(t, "Result{probs=[mean_anomaly_score=0.2500]}", r.String())

	p, ok := r.Prob("mean_anomaly_score")
	require.True(t, ok)
	assert.Equal(t, float32(0.25), p.Confidence)
	_, ok = r.Prob("missing")
	assert.False(t, ok)
}
