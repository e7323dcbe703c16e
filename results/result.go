package results

import (
	"fmt"
	"image"
	"strings"
)

// Prob is a named scalar score.
type Prob struct {
	Name       string  `json:"name"           yaml:"name"`
	ID         *int    `json:"id,omitempty"   yaml:"id,omitempty"`
	Confidence float32 `json:"confidence"     yaml:"confidence"`
}

// NewProb returns a probability with the confidence clamped into [0, 1].
func NewProb(name string, confidence float32) Prob {
	return Prob{Name: name, Confidence: Clamp01(confidence)}
}

// WithID returns a copy with the id set.
func (p Prob) WithID(id int) Prob {
	p.ID = &id
	return p
}

// String implements fmt.Stringer.
func (p Prob) String() string {
	if p.ID != nil {
		return fmt.Sprintf("%s(%d)=%.4f", p.Name, *p.ID, p.Confidence)
	}
	return fmt.Sprintf("%s=%.4f", p.Name, p.Confidence)
}

// Text is a textual annotation.
type Text struct {
	Text       string   `json:"text"                 yaml:"text"`
	Confidence *float32 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Hbb is a horizontal bounding box annotation in pixel coordinates.
type Hbb struct {
	X1         float32  `json:"x1"                   yaml:"x1"`
	Y1         float32  `json:"y1"                   yaml:"y1"`
	X2         float32  `json:"x2"                   yaml:"x2"`
	Y2         float32  `json:"y2"                   yaml:"y2"`
	ID         *int     `json:"id,omitempty"         yaml:"id,omitempty"`
	Name       string   `json:"name,omitempty"       yaml:"name,omitempty"`
	Confidence *float32 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Result aggregates everything produced for one input image by one forward call.
//
// Fields are additive: a model fills only what it produces. Heatmaps, masks and images are
// render-time artifacts and are excluded from the serialized form.
type Result struct {
	Texts    []Text        `json:"texts,omitempty" yaml:"texts,omitempty"`
	Probs    []Prob        `json:"probs,omitempty" yaml:"probs,omitempty"`
	Hbbs     []Hbb         `json:"hbbs,omitempty"  yaml:"hbbs,omitempty"`
	Heatmaps []Heatmap     `json:"-"               yaml:"-"`
	Masks    []Mask        `json:"-"               yaml:"-"`
	Images   []image.Image `json:"-"               yaml:"-"`
}

// IsEmpty reports whether no field is populated.
func (r Result) IsEmpty() bool {
	return len(r.Texts) == 0 && len(r.Probs) == 0 && len(r.Hbbs) == 0 &&
		len(r.Heatmaps) == 0 && len(r.Masks) == 0 && len(r.Images) == 0
}

// Prob returns the probability with the given name.
func (r Result) Prob(name string) (Prob, bool) {
	for _, p := range r.Probs {
		if p.Name == name {
			return p, true
		}
	}
	return Prob{}, false
}

// String implements fmt.Stringer. Only populated fields are listed.
func (r Result) String() string {
	var parts []string
	if len(r.Texts) > 0 {
		parts = append(parts, fmt.Sprintf("texts=%d", len(r.Texts)))
	}
	if len(r.Probs) > 0 {
		probs := make([]string, len(r.Probs))
		for i, p := range r.Probs {
			probs[i] = p.String()
		}
		parts = append(parts, "probs=["+strings.Join(probs, " ")+"]")
	}
	if len(r.Hbbs) > 0 {
		parts = append(parts, fmt.Sprintf("hbbs=%d", len(r.Hbbs)))
	}
	if len(r.Heatmaps) > 0 {
		hms := make([]string, len(r.Heatmaps))
		for i, h := range r.Heatmaps {
			hms[i] = h.String()
		}
		parts = append(parts, "heatmaps=["+strings.Join(hms, " ")+"]")
	}
	if len(r.Masks) > 0 {
		parts = append(parts, fmt.Sprintf("masks=%d", len(r.Masks)))
	}
	if len(r.Images) > 0 {
		parts = append(parts, fmt.Sprintf("images=%d", len(r.Images)))
	}
	return "Result{" + strings.Join(parts, " ") + "}"
}
