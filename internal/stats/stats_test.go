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

package stats

import (
	"math"
	"testing"

	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

func TestConstantColor(t *testing.T) {
	testCases := []struct {
		name    string
		r, g, b float32
	}{
		{"black", 0, 0, 0},
		{"gray", 128, 128, 128},
		{"orange", 250, 140, 20},
		{"teal", 10, 120, 130},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			width, height := 5, 3
			f := raster.NewImageFromNaxisn([]int32{int32(width), int32(height), 3}, nil)
			size := width * height
			for i := 0; i < size; i++ {
				f.Data[i], f.Data[i+size], f.Data[i+2*size] = tc.r, tc.g, tc.b
			}
			lab, err := raster.ToUniform(f)
			require.NoError(t, err)

			s, err := Compute(lab)
			require.NoError(t, err)
			l, a, b := raster.RGBToLab(tc.r, tc.g, tc.b)
			assert.Equal(t, ChannelStats{l, 0, a, 0, b, 0}, s)
		})
	}
}

func TestMeanStdDevIsPopulation(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(1234)
	xs := make([]float32, 1001)
	xs64 := make([]float64, len(xs))
	for i := range xs {
		xs[i] = float32(rng.Uint32n(25600)) / 100
		xs64[i] = float64(xs[i])
	}
	mean, stdDev := MeanStdDev(xs)
	wantMean, wantStdDev := stat.PopMeanStdDev(xs64, nil)
	assert.InDelta(t, wantMean, float64(mean), 1e-4)
	assert.InDelta(t, wantStdDev, float64(stdDev), 1e-4)

	// divisor n, not n-1
	mean, stdDev = MeanStdDev([]float32{1, 3})
	assert.Equal(t, float32(2), mean)
	assert.Equal(t, float32(1), stdDev)
}

func TestComputeErrors(t *testing.T) {
	_, err := Compute(raster.NewImageFromNaxisn([]int32{3, 3}, nil))
	require.ErrorIs(t, err, raster.ErrInvalidChannelCount)

	_, err = Compute(raster.NewImageFromNaxisn([]int32{3, 0, 3}, nil))
	require.ErrorIs(t, err, raster.ErrEmptyImage)
}

func TestChannelAccessors(t *testing.T) {
	s := ChannelStats{1, 2, 3, 4, 5, 6}
	for c, want := range [][2]float32{{1, 2}, {3, 4}, {5, 6}} {
		assert.Equal(t, want[0], s.Mean(c))
		assert.Equal(t, want[1], s.StdDev(c))
	}
	assert.Panics(t, func() { s.Mean(3) })
}

func TestReport(t *testing.T) {
	width, height := 64, 64
	size := width * height
	f := raster.NewImageFromNaxisn([]int32{int32(width), int32(height), 3}, nil)
	f.FileName = "synthetic"

	// channel 0 roughly normal around 100, channel 1 constant, channel 2 uniform ramp
	rng := fastrand.RNG{}
	rng.Seed(99)
	for i := 0; i < size; i++ {
		sum := float32(0)
		for j := 0; j < 12; j++ {
			sum += float32(rng.Uint32n(1000)) / 1000
		}
		f.Data[i] = 100 + 10*(sum-6)
		f.Data[i+size] = 42
		f.Data[i+2*size] = float32(i%256) * 255 / 255
	}

	r, err := NewReport(f, 0)
	require.NoError(t, err)
	assert.Equal(t, "64x64x3", r.Dimensions)

	l := r.Channels[0]
	assert.Equal(t, "L", l.Name)
	assert.InDelta(t, 100, l.Mean, 1)
	assert.InDelta(t, 10, l.StdDev, 1)
	assert.InDelta(t, 100, l.Median, 2)
	assert.InDelta(t, 100, l.Mode, 5)
	assert.LessOrEqual(t, l.Min, l.Median)
	assert.GreaterOrEqual(t, l.Max, l.Median)

	a := r.Channels[1]
	assert.Equal(t, float32(42), a.Mode)
	assert.Equal(t, float32(42), a.Median)
	assert.Equal(t, float32(0), a.StdDev)

	b := r.Channels[2]
	assert.Equal(t, float32(0), b.Min)
	assert.Equal(t, float32(255), b.Max)
	assert.InDelta(t, 127.5, b.Median, 1)
	assert.False(t, math.IsNaN(float64(b.Mode)))

	assert.Contains(t, r.String(), "synthetic")
}

func TestHistogramClampsOutliers(t *testing.T) {
	bins := make([]int32, 4)
	Histogram([]float32{-5, 0, 1, 2, 3, 9}, 0, 3, bins)
	assert.Equal(t, []int32{2, 1, 1, 2}, bins)
}

func TestFloat32Pool(t *testing.T) {
	a := GetArrayOfFloat32FromPool(100)
	assert.Len(t, a, 100)
	PutArrayOfFloat32IntoPool(a[:10])
	b := GetArrayOfFloat32FromPool(100)
	assert.Len(t, b, 100)
	assert.Len(t, GetArrayOfFloat32FromPool(7), 7)
}
