package qrimage

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	r := New("https://upets.example/")
	assert.Equal(t, "https://upets.example/qr/UP-LX8KUBY8-ABCD2345", r.URL("UP-LX8KUBY8-ABCD2345"))
}

func TestClampSize(t *testing.T) {
	tests := map[int]int{0: DefaultSize, 10: MinSize, 128: 128, 300: 300, 1024: 1024, 5000: MaxSize, -3: MinSize}
	for in, want := range tests {
		assert.Equal(t, want, ClampSize(in), "size %d", in)
	}
}

func TestPNGIsDeterministic(t *testing.T) {
	r := New("https://upets.example")
	first, err := r.PNG("UP-LX8KUBY8-ABCD2345", 4000)
	require.NoError(t, err)
	second, err := r.PNG("UP-LX8KUBY8-ABCD2345", 4000)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))

	img, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, MaxSize, img.Bounds().Dx())

	_, err = r.PNG("  ", 256)
	assert.Error(t, err)
}
