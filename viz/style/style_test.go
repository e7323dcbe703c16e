package style

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grey() Colormap {
	cmap := make(Colormap, ColormapSize)
	for i := range cmap {
		cmap[i] = RGB{R: uint8(i), G: uint8(i), B: uint8(i)}
	}
	return cmap
}

// TestResolve validates the local -> global -> builtin precedence per field.
func TestResolve(t *testing.T) {
	alpha := func(a uint8) *uint8 { return &a }
	cmap := grey()

	tests := []struct {
		name      string
		local     *Style
		global    *Style
		wantAlpha uint8
		wantCmap  bool
	}{
		{name: "builtin only", wantAlpha: 120},
		{name: "global alpha", global: &Style{FillAlpha: alpha(200)}, wantAlpha: 200},
		{name: "local beats global", local: &Style{FillAlpha: alpha(10)}, global: &Style{FillAlpha: alpha(200)}, wantAlpha: 10},
		{name: "local colormap keeps global alpha", local: &Style{Colormap: cmap}, global: &Style{FillAlpha: alpha(50)}, wantAlpha: 50, wantCmap: true},
		{name: "global colormap", global: &Style{Colormap: cmap}, wantAlpha: 120, wantCmap: true},
		{name: "empty local is ignored", local: &Style{}, wantAlpha: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.local, tt.global, Builtin())
			require.NotNil(t, got.FillAlpha)
			assert.Equal(t, tt.wantAlpha, *got.FillAlpha)
			assert.Equal(t, tt.wantAlpha, got.Alpha())
			if tt.wantCmap {
				assert.Len(t, got.Colormap, ColormapSize)
			} else {
				assert.Empty(t, got.Colormap)
			}
		})
	}
}

// TestResolveDoesNotAlias ensures the resolved alpha is independent of the tier it came from.
func TestResolveDoesNotAlias(t *testing.T) {
	local := Style{}.WithFillAlpha(33)
	got := Resolve(&local, nil, Builtin())
	*local.FillAlpha = 99
	assert.Equal(t, uint8(33), got.Alpha())
}

func TestColormapValidate(t *testing.T) {
	assert.NoError(t, Colormap(nil).Validate())
	assert.NoError(t, grey().Validate())

	err := make(Colormap, 16).Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColormapSize))

	assert.Error(t, Style{Colormap: make(Colormap, 255)}.Validate())
}

func TestStyleString(t *testing.T) {
	assert.Equal(t, "Style(alpha=120 gradient)", Builtin().String())
	assert.Equal(t, "Style(alpha=unset colormap[256])", Style{Colormap: grey()}.String())
}
