package postprocess

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-anomaly/images"
	"github.com/nvr-ai/go-anomaly/inference"
)

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func mustStrategy(t *testing.T, cfg Config) *Strategy {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

// TestQuantize validates truncating 8-bit quantization of clamped values.
func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{in: 0.5, want: 127},
		{in: 1.2, want: 255},
		{in: -0.3, want: 0},
		{in: 0.2, want: 51},
		{in: 0.9, want: 229},
		{in: 1, want: 255},
		{in: 0.999, want: 254},
		{in: float32(math.NaN()), want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quantize(tt.in), "Quantize(%v)", tt.in)
	}
}

// TestSingleTensorEndToEnd validates the reference 2x2 map without an edge band.
func TestSingleTensorEndToEnd(t *testing.T) {
	s := mustStrategy(t, SingleTensor())
	out, err := s.Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 2, 2}, []float32{0.0, 1.0, 0.5, 0.2}),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Heatmaps, 1)

	h := out[0].Heatmaps[0]
	assert.Equal(t, []uint8{0, 255, 127, 51}, h.Pixels())
	conf, ok := h.Confidence()
	require.True(t, ok)
	assert.Equal(t, float32(1), conf)

	uid, ok := h.UID()
	require.True(t, ok)
	assert.Equal(t, 0, uid)

	peak, ok := out[0].Prob(PeakScoreName)
	require.True(t, ok)
	assert.Equal(t, float32(1), peak.Confidence)
	_, ok = out[0].Prob(MeanScoreName)
	assert.False(t, ok)
}

// TestEdgeIgnore validates the edge band on a 1x1x4x4 map of 0.9.
func TestEdgeIgnore(t *testing.T) {
	cfg := SingleTensor()
	cfg.EdgeIgnorePixels = 1
	cfg.EmitMeanScore = true
	s := mustStrategy(t, cfg)

	out, err := s.Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 1, 4, 4}, fill(16, 0.9)),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	h := out[0].Heatmaps[0]
	for y := 0; y < 4; y++ {
		assert.Equal(t, uint8(0), h.At(0, y), "column 0 row %d", y)
		assert.Equal(t, uint8(0), h.At(3, y), "column 3 row %d", y)
		assert.Equal(t, uint8(229), h.At(1, y), "column 1 row %d", y)
		assert.Equal(t, uint8(229), h.At(2, y), "column 2 row %d", y)
	}

	conf, ok := h.Confidence()
	require.True(t, ok)
	assert.Equal(t, float32(0.9), conf)
	assert.Equal(t, uint8(229), Quantize(conf))

	mean, ok := out[0].Prob(MeanScoreName)
	require.True(t, ok)
	assert.InDelta(t, 0.45, mean.Confidence, 1e-5, "half of the columns are zeroed")
	require.NotNil(t, mean.ID)
	assert.Equal(t, 1, *mean.ID)
}

// TestEdgeIgnoreOnlyBorderArtifact ensures a hot border cannot inflate the score.
func TestEdgeIgnoreOnlyBorderArtifact(t *testing.T) {
	values := fill(16, 0.1)
	for y := 0; y < 4; y++ {
		values[y*4] = 1
		values[y*4+3] = 1
	}
	cfg := SingleTensor()
	cfg.EdgeIgnorePixels = 1
	out, err := mustStrategy(t, cfg).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 4, 4}, values),
	})
	require.NoError(t, err)
	conf, _ := out[0].Heatmaps[0].Confidence()
	assert.Equal(t, float32(0.1), conf)
}

func TestEdgeIgnoreWiderThanMap(t *testing.T) {
	cfg := SingleTensor()
	cfg.EdgeIgnorePixels = 3
	out, err := mustStrategy(t, cfg).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 2, 4}, fill(8, 0.7)),
	})
	require.NoError(t, err)
	assert.Equal(t, make([]uint8, 8), out[0].Heatmaps[0].Pixels())
	conf, _ := out[0].Heatmaps[0].Confidence()
	assert.Equal(t, float32(0), conf)
}

// TestAllNegativeMapScoresZero ensures the peak starts at zero.
func TestAllNegativeMapScoresZero(t *testing.T) {
	out, err := mustStrategy(t, SingleTensor()).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 2, 2}, fill(4, -5)),
	})
	require.NoError(t, err)
	conf, ok := out[0].Heatmaps[0].Confidence()
	require.True(t, ok)
	assert.Equal(t, float32(0), conf)
	assert.False(t, math.IsNaN(float64(conf)))
}

// TestDualTensorConfidencePrecedence ensures the global score is used, not the map peak.
func TestDualTensorConfidencePrecedence(t *testing.T) {
	for _, scoreShape := range [][]int{{1}, {1, 1}} {
		s := mustStrategy(t, DualTensor())
		out, err := s.Postprocess([]*inference.Tensor{
			inference.MustTensor("pred_score", scoreShape, []float32{0.3}),
			inference.MustTensor("aux", []int{1}, []float32{0}),
			inference.MustTensor("anomaly_map", []int{1, 1, 2, 2}, fill(4, 0.9)),
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		h := out[0].Heatmaps[0]
		conf, ok := h.Confidence()
		require.True(t, ok)
		assert.Equal(t, float32(0.3), conf, "score shape %v", scoreShape)
		assert.Equal(t, []uint8{229, 229, 229, 229}, h.Pixels())
		assert.Empty(t, out[0].Probs)
	}
}

// TestDualTensorBatch validates batch cardinality, order and confidence clamping.
func TestDualTensorBatch(t *testing.T) {
	const batch = 5
	scores := []float32{-1, 0.25, 0.5, 2, float32(math.NaN())}
	maps := make([]float32, 0, batch*2*3)
	for i := 0; i < batch; i++ {
		maps = append(maps, fill(6, float32(i)/10)...)
	}

	cfg := DualTensor()
	cfg.MinOutputs = 4
	cfg.Workers = 3
	s := mustStrategy(t, cfg)
	out, err := s.Postprocess([]*inference.Tensor{
		inference.MustTensor("pred_score", []int{batch, 1}, scores),
		inference.MustTensor("a", []int{1}, []float32{0}),
		inference.MustTensor("anomaly_map", []int{batch, 2, 3}, maps),
		inference.MustTensor("b", []int{1}, []float32{0}),
	})
	require.NoError(t, err)
	require.Len(t, out, batch)

	want := []float32{0, 0.25, 0.5, 1, 0}
	for i, r := range out {
		h := r.Heatmaps[0]
		uid, _ := h.UID()
		assert.Equal(t, i, uid)
		assert.Equal(t, Quantize(float32(i)/10), h.At(0, 0))
		conf, _ := h.Confidence()
		assert.Equal(t, want[i], conf, "item %d", i)
		assert.GreaterOrEqual(t, conf, float32(0))
		assert.LessOrEqual(t, conf, float32(1))
	}
}

// TestShapeMismatch validates that malformed outputs fail the whole call.
func TestShapeMismatch(t *testing.T) {
	score := inference.MustTensor("score", []int{2}, []float32{0.1, 0.2})
	mapT := inference.MustTensor("map", []int{2, 1, 2, 2}, fill(8, 0.5))
	pad := inference.MustTensor("pad", []int{1}, []float32{0})

	dinomaly := DualTensor()
	dinomaly.MinOutputs = 4

	noSqueeze := SingleTensor()
	noSqueeze.Squeeze = false

	channel := 2
	channelTwo := SingleTensor()
	channelTwo.Channel = &channel

	resized := SingleTensor()
	resized.Resize = &ResizeConfig{Width: 4, Height: 4, Filter: images.TriangleFilter}

	tests := []struct {
		name    string
		cfg     Config
		outputs []*inference.Tensor
	}{
		{name: "no outputs", cfg: SingleTensor(), outputs: nil},
		{name: "dual missing map", cfg: DualTensor(), outputs: []*inference.Tensor{score, pad}},
		{name: "fewer than min outputs", cfg: dinomaly, outputs: []*inference.Tensor{score, pad, mapT}},
		{name: "map rank 2", cfg: SingleTensor(), outputs: []*inference.Tensor{
			inference.MustTensor("map", []int{2, 2}, fill(4, 0))}},
		{name: "map rank 5", cfg: SingleTensor(), outputs: []*inference.Tensor{
			inference.MustTensor("map", []int{1, 1, 1, 2, 2}, fill(4, 0))}},
		{name: "map with 3 channels", cfg: SingleTensor(), outputs: []*inference.Tensor{
			inference.MustTensor("map", []int{1, 3, 2, 2}, fill(12, 0))}},
		{name: "channel axis without squeeze", cfg: noSqueeze, outputs: []*inference.Tensor{mapT}},
		{name: "channel out of range", cfg: channelTwo, outputs: []*inference.Tensor{
			inference.MustTensor("map", []int{1, 2, 2, 2}, fill(8, 0))}},
		{name: "resize empty map width", cfg: resized, outputs: []*inference.Tensor{
			inference.MustTensor("map", []int{1, 4, 0}, nil)}},
		{name: "resize empty map height", cfg: resized, outputs: []*inference.Tensor{
			inference.MustTensor("map", []int{1, 1, 0, 4}, nil)}},
		{name: "score rank 3", cfg: DualTensor(), outputs: []*inference.Tensor{
			inference.MustTensor("score", []int{2, 1, 1}, []float32{0, 0}), pad, mapT}},
		{name: "score shorter than batch", cfg: DualTensor(), outputs: []*inference.Tensor{
			inference.MustTensor("score", []int{1}, []float32{0}), pad, mapT}},
		{name: "nil map", cfg: SingleTensor(), outputs: []*inference.Tensor{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := mustStrategy(t, tt.cfg).Postprocess(tt.outputs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
			assert.Nil(t, out)
		})
	}
}

// TestMapChannel reads a selected channel of a multi-channel map.
func TestMapChannel(t *testing.T) {
	channel := 1
	cfg := SingleTensor()
	cfg.Channel = &channel

	// [2,2,1,2]: item 0 channels {0.1,0.2} {0.9,1.0}, item 1 channels {0.3,0.4} {0.0,0.5}.
	out, err := mustStrategy(t, cfg).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{2, 2, 1, 2}, []float32{0.1, 0.2, 0.9, 1.0, 0.3, 0.4, 0.0, 0.5}),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []uint8{229, 255}, out[0].Heatmaps[0].Pixels())
	assert.Equal(t, []uint8{0, 127}, out[1].Heatmaps[0].Pixels())

	conf, ok := out[1].Heatmaps[0].Confidence()
	require.True(t, ok)
	assert.Equal(t, float32(0.5), conf)

	zero := 0
	cfg.Channel = &zero
	out, err = mustStrategy(t, cfg).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 1, 1, 2}, []float32{0.2, 0.9}),
	})
	require.NoError(t, err)
	assert.Equal(t, []uint8{51, 229}, out[0].Heatmaps[0].Pixels(), "singleton channel still accepted")
}

// TestEmptyMapWithoutResize keeps a zero-width map as an empty heatmap when no resize is set.
func TestEmptyMapWithoutResize(t *testing.T) {
	out, err := mustStrategy(t, SingleTensor()).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 4, 0}, nil),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Heatmaps[0].Pixels())
}

func TestEmptyBatch(t *testing.T) {
	out, err := mustStrategy(t, SingleTensor()).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{0, 4, 4}, nil),
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestResizeAndMask validates the presentation resize and the threshold mask.
func TestResizeAndMask(t *testing.T) {
	threshold := float32(0.5)
	cfg := SingleTensor()
	cfg.HeatmapName = "anomaly"
	cfg.MaskThreshold = &threshold
	cfg.Resize = &ResizeConfig{Width: 8, Height: 8, Filter: images.TriangleFilter}
	s := mustStrategy(t, cfg)

	out, err := s.Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 2, 2}, []float32{0.9, 0.9, 0.1, 0.1}),
	})
	require.NoError(t, err)

	h := out[0].Heatmaps[0]
	w, hh := h.Dimensions()
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, hh)
	assert.Equal(t, "anomaly", h.Name())
	assert.Greater(t, h.At(0, 0), h.At(0, 7), "top rows stay hotter after resize")

	require.Len(t, out[0].Masks, 1)
	m := out[0].Masks[0]
	assert.Equal(t, 8, m.Width())
	assert.Equal(t, "anomaly", m.Name())
	for _, v := range m.Pixels() {
		assert.Contains(t, []uint8{0, 255}, v, "mask stays binary")
	}
	assert.Equal(t, uint8(255), m.At(0, 0))
	assert.Equal(t, uint8(0), m.At(0, 7))
	assert.Equal(t, 32, m.Area())
}

func TestMaskExcludesEdgeBand(t *testing.T) {
	threshold := float32(0)
	cfg := SingleTensor()
	cfg.EdgeIgnorePixels = 1
	cfg.MaskThreshold = &threshold
	out, err := mustStrategy(t, cfg).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{1, 1, 3}, fill(3, 0.4)),
	})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 255, 0}, out[0].Masks[0].Pixels())
}

// TestWorkersMatchSequential ensures parallel processing yields the same results in order.
func TestWorkersMatchSequential(t *testing.T) {
	const batch = 16
	data := make([]float32, batch*3*3)
	for i := range data {
		data[i] = float32(i%17) / 16
	}
	outputs := []*inference.Tensor{inference.MustTensor("map", []int{batch, 3, 3}, data)}

	seq := SingleTensor()
	seq.EmitMeanScore = true
	par := seq
	par.Workers = 4

	a, err := mustStrategy(t, seq).Postprocess(outputs)
	require.NoError(t, err)
	b, err := mustStrategy(t, par).Postprocess(outputs)
	require.NoError(t, err)
	require.Len(t, b, batch)

	for i := range a {
		assert.True(t, a[i].Heatmaps[0].Equal(b[i].Heatmaps[0]), "item %d", i)
		if diff := cmp.Diff(a[i].Probs, b[i].Probs); diff != "" {
			t.Errorf("item %d probs mismatch (-seq +par):\n%s", i, diff)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	neg := float32(-0.1)
	negChannel := -1
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown layout", mutate: func(c *Config) { c.Layout = "triple" }},
		{name: "negative map index", mutate: func(c *Config) { c.MapTensor = -1 }},
		{name: "score equals map", mutate: func(c *Config) { c.ScoreTensor = 2 }},
		{name: "min outputs below roles", mutate: func(c *Config) { c.MinOutputs = 2 }},
		{name: "negative edge band", mutate: func(c *Config) { c.EdgeIgnorePixels = -1 }},
		{name: "partial resize", mutate: func(c *Config) { c.Resize = &ResizeConfig{Width: 10} }},
		{name: "mask threshold out of range", mutate: func(c *Config) { c.MaskThreshold = &neg }},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -2 }},
		{name: "negative channel", mutate: func(c *Config) { c.Channel = &negChannel }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DualTensor()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			_, err = New(cfg)
			assert.Error(t, err)
		})
	}

	assert.NoError(t, DualTensor().Validate())
	assert.NoError(t, SingleTensor().Validate())
	assert.Equal(t, 3, DualTensor().RequiredOutputs())
	assert.Equal(t, 1, SingleTensor().RequiredOutputs())
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	values := []float32{-3, 7, 0.5, float32(math.Inf(1)), float32(math.NaN()), 0.25}
	out, err := mustStrategy(t, SingleTensor()).Postprocess([]*inference.Tensor{
		inference.MustTensor("map", []int{6, 1, 1}, values),
	})
	require.NoError(t, err)
	require.Len(t, out, 6)
	for i, r := range out {
		conf, ok := r.Heatmaps[0].Confidence()
		require.True(t, ok)
		assert.True(t, conf >= 0 && conf <= 1, "item %d confidence %v", i, conf)
		assert.Equal(t, Quantize(values[i]), r.Heatmaps[0].At(0, 0))
	}
}
