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
	"strings"

	"github.com/mlnoga/colortransfer/internal/qsort"
	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/valyala/fastrand"
)

// Names of the uniform color space channels, for log output
var ChannelNames = [3]string{"L", "a", "b"}

// Number of histogram bins for mode estimation
const histogramBins = 256

// Default number of random samples for median estimation
const DefaultSamples = 128 * 1024

// Extended statistics for a single channel
type ChannelReport struct {
	Name   string  `json:"name"`
	Min    float32 `json:"min"`
	Max    float32 `json:"max"`
	Mean   float32 `json:"mean"`
	StdDev float32 `json:"stdDev"`
	Median float32 `json:"median"` // approximate, from a random subsample for large images
	Mode   float32 `json:"mode"`   // histogram peak, refined with a normal fit
}

// Extended statistics for an image in the uniform color space
type Report struct {
	ID         int              `json:"id"`
	FileName   string           `json:"fileName"`
	Dimensions string           `json:"dimensions"`
	Stats      ChannelStats     `json:"stats"`
	Channels   [3]ChannelReport `json:"channels"`
}

// Calculates the extended statistics report. Medians are estimated from numSamples
// random values per channel, or exactly if the image has fewer values
func NewReport(f *raster.Image, numSamples int) (r *Report, err error) {
	s, err := Compute(f)
	if err != nil {
		return nil, err
	}
	if numSamples <= 0 {
		numSamples = DefaultSamples
	}
	r = &Report{ID: f.ID, FileName: f.FileName, Dimensions: f.DimensionsToString(), Stats: s}

	samples := GetArrayOfFloat32FromPool(numSamples)
	defer PutArrayOfFloat32IntoPool(samples)
	bins := make([]int32, histogramBins)
	for c := range r.Channels {
		data := f.Channel(c)
		cr := &r.Channels[c]
		cr.Name = ChannelNames[c]
		cr.Mean, cr.StdDev = s.Mean(c), s.StdDev(c)
		cr.Min, cr.Max = MinMax(data)

		if len(data) <= numSamples {
			tmp := append([]float32(nil), data...)
			cr.Median = qsort.QSelectMedianFloat32(tmp)
		} else {
			cr.Median = FastApproxMedian(data, samples)
		}

		if cr.Max-cr.Min < 1e-6 {
			cr.Mode = cr.Min
			continue
		}
		Histogram(data, cr.Min, cr.Max, bins)
		mode, _, err := GetModeStdDevFromHistogram(bins, cr.Min, cr.Max, cr.StdDev)
		if err != nil || !(mode >= cr.Min && mode <= cr.Max) {
			mode, _ = GetPeak(bins, cr.Min, cr.Max) // fit diverged, use the raw peak
		}
		cr.Mode = mode
	}
	return r, nil
}

// Calculates fast approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Pretty print the report as a table
func (r *Report) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "%d: %s pixels from %s\n", r.ID, r.Dimensions, r.FileName)
	fmt.Fprintf(&b, "%d:   Chan %9s %9s %9s %9s %9s %9s\n", r.ID, "Min", "Max", "Mean", "StdDev", "Median", "Mode")
	for _, c := range r.Channels {
		fmt.Fprintf(&b, "%d:   %4s %9.4g %9.4g %9.4g %9.4g %9.4g %9.4g\n",
			r.ID, c.Name, c.Min, c.Max, c.Mean, c.StdDev, c.Median, c.Mode)
	}
	return b.String()
}
