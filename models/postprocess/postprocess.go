package postprocess

import (
	"image"
	"sync"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-anomaly/images"
	"github.com/nvr-ai/go-anomaly/inference"
	"github.com/nvr-ai/go-anomaly/results"
)

// Quantize maps a float to an 8-bit value as floor(clamp(v, 0, 1) * 255).
func Quantize(v float32) uint8 {
	return uint8(results.Clamp01(v) * 255)
}

// Strategy maps the output tensors of one forward call to one Result per batch item.
//
// A Strategy holds only its configuration and is safe for concurrent use.
type Strategy struct {
	cfg Config
}

// New validates cfg and returns a strategy for it.
func New(cfg Config) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Strategy{cfg: cfg}, nil
}

// Config returns the strategy configuration.
func (s *Strategy) Config() Config {
	return s.cfg
}

// spatial describes the map tensor once the batch axis is split off.
type spatial struct {
	batch    int
	channels int
	channel  int
	height   int
	width    int
	data     []float32
}

// item returns the row-major [H,W] slice of the selected channel of batch item i.
func (m spatial) item(i int) []float32 {
	n := m.height * m.width
	start := (i*m.channels + m.channel) * n
	return m.data[start : start+n]
}

// Postprocess converts the output tensors of one forward call into results, one per batch
// item and in batch order.
//
// Arguments:
//   - outputs: The engine output tensors in graph order.
//
// Returns:
//   - []results.Result: One result per batch item.
//   - error: ErrShapeMismatch if tensors are missing or have an unexpected rank. No partial
//     results are returned.
//
// @example
// res, err := strategy.Postprocess(outputs)
func (s *Strategy) Postprocess(outputs []*inference.Tensor) ([]results.Result, error) {
	if need := s.cfg.RequiredOutputs(); len(outputs) < need {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected at least %d outputs, got %d", need, len(outputs))
	}

	m, err := s.spatial(outputs[s.cfg.MapTensor])
	if err != nil {
		return nil, err
	}
	if s.cfg.Resize != nil && m.batch > 0 && (m.height == 0 || m.width == 0) {
		return nil, errors.Wrapf(ErrShapeMismatch, "empty %dx%d map cannot be resized to %dx%d",
			m.width, m.height, s.cfg.Resize.Width, s.cfg.Resize.Height)
	}

	var scores []float32
	if s.cfg.Layout == LayoutDualTensor {
		if scores, err = globalScores(outputs[s.cfg.ScoreTensor], m.batch); err != nil {
			return nil, err
		}
	}

	out := make([]results.Result, m.batch)
	errs := make([]error, m.batch)

	process := func(i int) {
		var score *float32
		if scores != nil {
			score = &scores[i]
		}
		out[i], errs[i] = s.item(i, m.item(i), m.height, m.width, score)
	}

	if s.cfg.Workers <= 1 || m.batch <= 1 {
		for i := 0; i < m.batch; i++ {
			process(i)
		}
	} else {
		sem := make(chan struct{}, s.cfg.Workers)
		var wg sync.WaitGroup
		for i := 0; i < m.batch; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				process(idx)
			}(i)
		}
		wg.Wait()
	}

	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "batch item %d", i)
		}
	}
	return out, nil
}

// spatial resolves the map tensor into batch, height and width by inspecting its rank.
func (s *Strategy) spatial(t *inference.Tensor) (spatial, error) {
	if t == nil {
		return spatial{}, errors.Wrap(ErrShapeMismatch, "nil map tensor")
	}
	shape := t.Shape()
	m := spatial{data: t.Float32s(), channels: 1}
	switch len(shape) {
	case 3:
		m.batch, m.height, m.width = shape[0], shape[1], shape[2]
	case 4:
		if !s.cfg.Squeeze {
			return spatial{}, errors.Wrapf(ErrShapeMismatch, "map %q has a channel axis %v", t.Name, shape)
		}
		switch {
		case s.cfg.Channel != nil:
			if *s.cfg.Channel >= shape[1] {
				return spatial{}, errors.Wrapf(ErrShapeMismatch, "map %q has %d channels, channel %d requested",
					t.Name, shape[1], *s.cfg.Channel)
			}
			m.channel = *s.cfg.Channel
		case shape[1] != 1:
			return spatial{}, errors.Wrapf(ErrShapeMismatch, "map %q has %d channels, want 1", t.Name, shape[1])
		}
		m.batch, m.channels, m.height, m.width = shape[0], shape[1], shape[2], shape[3]
	default:
		return spatial{}, errors.Wrapf(ErrShapeMismatch, "map %q has rank %d, want 3 or 4", t.Name, len(shape))
	}
	return m, nil
}

// globalScores reads one clamped score per batch item from a [B] or [B,K] tensor, taking
// column 0 in the rank 2 case.
func globalScores(t *inference.Tensor, batch int) ([]float32, error) {
	if t == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "nil score tensor")
	}
	shape := t.Shape()
	stride := 1
	switch len(shape) {
	case 1:
	case 2:
		stride = shape[1]
		if stride < 1 {
			return nil, errors.Wrapf(ErrShapeMismatch, "score %q has empty second axis", t.Name)
		}
	default:
		return nil, errors.Wrapf(ErrShapeMismatch, "score %q has rank %d, want 1 or 2", t.Name, len(shape))
	}
	if shape[0] < batch {
		return nil, errors.Wrapf(ErrShapeMismatch, "score %q holds %d items, map holds %d", t.Name, shape[0], batch)
	}

	data := t.Float32s()
	scores := make([]float32, batch)
	for i := range scores {
		scores[i] = results.Clamp01(data[i*stride])
	}
	return scores, nil
}

// item builds the result for one batch item from its [H,W] map.
func (s *Strategy) item(uid int, values []float32, height, width int, score *float32) (results.Result, error) {
	e := s.cfg.EdgeIgnorePixels
	pix := make([]uint8, len(values))

	var mask []uint8
	if s.cfg.MaskThreshold != nil {
		mask = make([]uint8, len(values))
	}

	var peak, sum float32
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if x < e || x >= width-e {
				continue
			}
			v := results.Clamp01(values[idx])
			pix[idx] = Quantize(v)
			peak = math32.Max(peak, v)
			sum += v
			if mask != nil && v >= *s.cfg.MaskThreshold {
				mask[idx] = 255
			}
		}
	}

	heatmap, err := s.heatmap(pix, width, height)
	if err != nil {
		return results.Result{}, err
	}
	heatmap = heatmap.WithUID(uid)
	if s.cfg.HeatmapName != "" {
		heatmap = heatmap.WithName(s.cfg.HeatmapName)
	}
	if score != nil {
		heatmap = heatmap.WithConfidence(*score)
	} else {
		heatmap = heatmap.WithConfidence(peak)
	}

	res := results.Result{Heatmaps: []results.Heatmap{heatmap}}

	if s.cfg.EmitPeakScore {
		res.Probs = append(res.Probs, results.NewProb(PeakScoreName, peak).WithID(0))
	}
	if s.cfg.EmitMeanScore {
		var mean float32
		if n := len(values); n > 0 {
			mean = sum / float32(n)
		}
		res.Probs = append(res.Probs, results.NewProb(MeanScoreName, mean).WithID(1))
	}

	if mask != nil {
		m, err := s.mask(mask, width, height)
		if err != nil {
			return results.Result{}, err
		}
		if s.cfg.HeatmapName != "" {
			m = m.WithName(s.cfg.HeatmapName)
		}
		res.Masks = []results.Mask{m}
	}
	return res, nil
}

func (s *Strategy) heatmap(pix []uint8, width, height int) (results.Heatmap, error) {
	if s.cfg.Resize == nil {
		return results.NewHeatmap(pix, width, height)
	}
	g, err := images.ResizeGray(gray(pix, width, height), s.cfg.Resize.Width, s.cfg.Resize.Height, s.cfg.Resize.Filter)
	if err != nil {
		return results.Heatmap{}, err
	}
	return results.HeatmapFromGray(g), nil
}

// mask resizes with nearest neighbour so the raster stays binary.
func (s *Strategy) mask(pix []uint8, width, height int) (results.Mask, error) {
	if s.cfg.Resize == nil {
		return results.NewMask(pix, width, height)
	}
	g, err := images.ResizeGray(gray(pix, width, height), s.cfg.Resize.Width, s.cfg.Resize.Height,
		images.NearestNeighborFilter)
	if err != nil {
		return results.Mask{}, err
	}
	return results.MaskFromGray(g), nil
}

func gray(pix []uint8, width, height int) *image.Gray {
	return &image.Gray{Pix: pix, Stride: width, Rect: image.Rect(0, 0, width, height)}
}
