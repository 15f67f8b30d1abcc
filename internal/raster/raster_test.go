// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

// Builds a display image with random channel values
func randomImage(width, height int, seed uint32) *Image {
	rng := fastrand.RNG{}
	rng.Seed(seed)
	f := NewImageFromNaxisn([]int32{int32(width), int32(height), 3}, nil)
	for i := range f.Data {
		f.Data[i] = float32(rng.Uint32n(256))
	}
	return f
}

func TestRoundTrip(t *testing.T) {
	f := randomImage(37, 23, 42)
	lab, err := ToUniform(f)
	require.NoError(t, err)
	back, err := ToDisplay(lab)
	require.NoError(t, err)

	require.Equal(t, f.Naxisn, back.Naxisn)
	for i, want := range f.Data {
		if diff := math.Abs(float64(back.Data[i] - want)); diff > 2 {
			t.Fatalf("value %d: got %v want %v", i, back.Data[i], want)
		}
	}
}

func TestLabEncoding(t *testing.T) {
	testCases := []struct {
		name             string
		r, g, b          float32
		labL, labA, labB float32
	}{
		{"black", 0, 0, 0, 0, 128, 128},
		{"white", 255, 255, 255, 255, 128, 128},
		{"red", 255, 0, 0, 135.8, 208.1, 195.2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, a, b := RGBToLab(tc.r, tc.g, tc.b)
			assert.InDelta(t, tc.labL, l, 0.5)
			assert.InDelta(t, tc.labA, a, 0.5)
			assert.InDelta(t, tc.labB, b, 0.5)

			r, g, bb := LabToRGB(l, a, b)
			assert.Equal(t, tc.r, r)
			assert.Equal(t, tc.g, g)
			assert.Equal(t, tc.b, bb)
		})
	}
}

func TestLabToRGBClampsOutOfGamut(t *testing.T) {
	r, g, b := LabToRGB(255, 255, 0)
	for _, v := range []float32{r, g, b} {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(255))
	}
}

func TestConversionRejectsWrongChannelCount(t *testing.T) {
	mono := NewImageFromNaxisn([]int32{4, 4}, nil)
	_, err := ToUniform(mono)
	require.ErrorIs(t, err, ErrInvalidChannelCount)

	rgba := NewImageFromNaxisn([]int32{4, 4, 4}, nil)
	_, err = ToDisplay(rgba)
	require.ErrorIs(t, err, ErrInvalidChannelCount)

	empty := NewImageFromNaxisn([]int32{0, 4, 3}, nil)
	_, err = ToUniform(empty)
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestGoImageConversion(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 255})
	img.SetNRGBA(2, 1, color.NRGBA{200, 100, 50, 128})

	f, err := NewImageFromGo(img)
	require.NoError(t, err)
	require.Equal(t, []int32{3, 2, 3}, f.Naxisn)
	assert.Equal(t, []float32{10, 0, 0, 0, 0, 200}, f.Channel(0))
	assert.Equal(t, []float32{20, 0, 0, 0, 0, 100}, f.Channel(1))
	assert.Equal(t, []float32{30, 0, 0, 0, 0, 50}, f.Channel(2))

	f.Data[0] = 300
	f.Data[1] = -4
	f.Data[2] = float32(math.NaN())
	f.Data[3] = 99.6
	out, err := f.ToGo()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 20, 30, 255}, out.RGBAAt(0, 0))
	assert.Equal(t, uint8(0), out.RGBAAt(1, 0).R)
	assert.Equal(t, uint8(0), out.RGBAAt(2, 0).R)
	assert.Equal(t, uint8(100), out.RGBAAt(0, 1).R)
}

func TestClampSaturates(t *testing.T) {
	f := NewImageFromNaxisn([]int32{2, 1, 3}, []float32{-1, 256, 0, 255, float32(math.NaN()), float32(math.Inf(1))})
	require.NoError(t, f.Clamp())
	assert.Equal(t, []float32{0, 255, 0, 255, 0, 255}, f.Data)
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := NewImageFromFile(filepath.Join(dir, "missing.png"), 0)
	require.ErrorIs(t, err, ErrImageLoadFailed)
	require.ErrorIs(t, err, fs.ErrNotExist)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, filepath.Join(dir, "missing.png"), le.Path)

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0644))
	_, err = NewImageFromFile(garbage, 0)
	require.ErrorIs(t, err, ErrImageLoadFailed)
}

func TestWriteAndReadBack(t *testing.T) {
	f := randomImage(8, 5, 7)
	dir := t.TempDir()
	for _, name := range []string{"out.png", "out.tiff", "out.bmp"} {
		t.Run(name, func(t *testing.T) {
			fileName := filepath.Join(dir, name)
			require.NoError(t, f.WriteFile(fileName, 95))
			g, err := NewImageFromFile(fileName, 3)
			require.NoError(t, err)
			assert.Equal(t, f.Naxisn, g.Naxisn)
			assert.Equal(t, f.Data, g.Data)
			assert.Equal(t, 3, g.ID)
		})
	}

	require.Error(t, f.WriteFile(filepath.Join(dir, "out.xyz"), 95))
	require.Error(t, f.WriteFile(filepath.Join(dir, "missing", "out.png"), 95))

	buf := bytes.Buffer{}
	require.NoError(t, f.Write(&buf, FormatJPEG, 90))
	g, err := NewImageFromReader(&buf, "buffer", 0)
	require.NoError(t, err)
	assert.Equal(t, f.Naxisn, g.Naxisn)
}

func TestWriteFileReportsDeviceErrors(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full on this system")
	}
	err := randomImage(8, 5, 7).WriteFile("/dev/full", 95)
	assert.Error(t, err)
}
