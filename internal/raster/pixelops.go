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
	"github.com/kovidgoyal/go-parallel"
)

//////////////////////////////////////////////////////////////////
// CPU-limited pixel operations. Parallelized across CPUs
//////////////////////////////////////////////////////////////////

// A three-channel pixel function. Operates in-place on matching slices of the three planes.
// Must not depend on the order in which slices are processed
type PixelFunction3Chan func(c0, c1, c2 []float32, params interface{})

// Apply given pixel function to all channels of the image. Work is split into row ranges,
// which run in parallel across all available CPUs. Operates in-place.
func (f *Image) ApplyPixelFunction3Chan(pf PixelFunction3Chan, args interface{}) error {
	if err := f.CheckRGB(); err != nil {
		return err
	}
	width, l := f.Width(), len(f.Data)/3
	c0, c1, c2 := f.Data[:l], f.Data[l:2*l], f.Data[2*l:]
	rows := func(start, limit int) {
		lower, upper := start*width, limit*width
		pf(c0[lower:upper], c1[lower:upper], c2[lower:upper], args)
	}
	return parallel.Run_in_parallel_over_range(0, rows, 0, f.Height())
}

// Pixel function to clamp all values to [0,255]. Operates in-place
func pf3ChanClamp255(c0, c1, c2 []float32, params interface{}) {
	for _, data := range [3][]float32{c0, c1, c2} {
		for i, d := range data {
			data[i] = Clamp255(d)
		}
	}
}

// Clamps all values to [0,255], saturating. NaN becomes 0. Operates in-place
func (f *Image) Clamp() error {
	return f.ApplyPixelFunction3Chan(pf3ChanClamp255, nil)
}
