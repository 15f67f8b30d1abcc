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
	"fmt"
	"math"

	"github.com/kovidgoyal/go-parallel"
	"github.com/mlnoga/colortransfer/internal/raster"
)

// Per-channel first and second moments of an image in the uniform color space.
// Immutable once computed
type ChannelStats struct {
	MeanL float32 `json:"meanL"`
	StdL  float32 `json:"stdL"`
	MeanA float32 `json:"meanA"`
	StdA  float32 `json:"stdA"`
	MeanB float32 `json:"meanB"`
	StdB  float32 `json:"stdB"`
}

// Mean of the given channel 0..2
func (s ChannelStats) Mean(c int) float32 {
	switch c {
	case 0:
		return s.MeanL
	case 1:
		return s.MeanA
	case 2:
		return s.MeanB
	}
	panic(fmt.Sprintf("invalid channel %d", c))
}

// Population standard deviation of the given channel 0..2
func (s ChannelStats) StdDev(c int) float32 {
	switch c {
	case 0:
		return s.StdL
	case 1:
		return s.StdA
	case 2:
		return s.StdB
	}
	panic(fmt.Sprintf("invalid channel %d", c))
}

// Pretty print channel stats to string
func (s ChannelStats) String() string {
	return fmt.Sprintf("L %.4g±%.4g a %.4g±%.4g b %.4g±%.4g",
		s.MeanL, s.StdL, s.MeanA, s.StdA, s.MeanB, s.StdB)
}

// Calculates mean and population standard deviation of each channel.
// Sums are accumulated in float64 in row-major order, so results are reproducible
func Compute(f *raster.Image) (s ChannelStats, err error) {
	if err = f.CheckRGB(); err != nil {
		return s, err
	}
	var means, stdDevs [3]float32
	chans := func(start, limit int) {
		for c := start; c < limit; c++ {
			means[c], stdDevs[c] = MeanStdDev(f.Channel(c))
		}
	}
	if err = parallel.Run_in_parallel_over_range(0, chans, 0, 3); err != nil {
		return s, err
	}
	return ChannelStats{means[0], stdDevs[0], means[1], stdDevs[1], means[2], stdDevs[2]}, nil
}

// Mean and population standard deviation (divisor n) of the data, in two passes.
// Returns NaN for empty data
func MeanStdDev(xs []float32) (mean, stdDev float32) {
	sum := float64(0)
	for _, x := range xs {
		sum += float64(x)
	}
	xmean := sum / float64(len(xs))

	variance := float64(0)
	for _, x := range xs {
		diff := float64(x) - xmean
		variance += diff * diff
	}
	variance /= float64(len(xs))
	return float32(xmean), float32(math.Sqrt(variance))
}

// Minimum and maximum of the data
func MinMax(xs []float32) (min, max float32) {
	min, max = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		} else if x > max {
			max = x
		}
	}
	return min, max
}
