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

package transfer

import (
	"fmt"
	"math"

	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/mlnoga/colortransfer/internal/stats"
)

// A channel whose scale ratio could not be taken at face value.
// Satisfies error, and matches raster.ErrDegenerateChannel
type Degenerate struct {
	Channel      int     `json:"channel"`
	Name         string  `json:"name"`
	SourceStdDev float32 `json:"sourceStdDev"`
	TargetStdDev float32 `json:"targetStdDev"`
	Ratio        float32 `json:"ratio"`    // Scale ratio actually applied
	Identity     bool    `json:"identity"` // True if the ratio was forced to 1
}

func (d Degenerate) Error() string {
	if d.Identity {
		return fmt.Sprintf("channel %s: target std dev %g: %s, scaling skipped", d.Name, d.TargetStdDev, raster.ErrDegenerateChannel.Error())
	}
	return fmt.Sprintf("channel %s: source std dev %g: %s, channel flattened", d.Name, d.SourceStdDev, raster.ErrDegenerateChannel.Error())
}

func (d Degenerate) Unwrap() error { return raster.ErrDegenerateChannel }

// Per-channel parameters of the affine transform v' = (v - targetMean) * ratio + sourceMean
type matchArgs struct {
	TargetMean [3]float32
	Ratio      [3]float32
	SourceMean [3]float32
}

// Calculates the per-channel scale ratios sourceStdDev / targetStdDev.
// A zero or non-finite target deviation forces the ratio to 1, a zero source
// deviation yields ratio 0. Both cases are reported as degenerate. Ratios are always finite
func Ratios(targetStats, sourceStats stats.ChannelStats) (ratios [3]float32, degenerate []Degenerate) {
	for c := 0; c < 3; c++ {
		s, t := sourceStats.StdDev(c), targetStats.StdDev(c)
		r := float64(s) / float64(t)
		d := Degenerate{Channel: c, Name: stats.ChannelNames[c], SourceStdDev: s, TargetStdDev: t}
		switch {
		case !(t > 0) || math.IsNaN(r) || math.IsInf(r, 0) || r > math.MaxFloat32:
			d.Ratio, d.Identity = 1, true
			degenerate = append(degenerate, d)
		case !(s > 0):
			d.Ratio = 0
			degenerate = append(degenerate, d)
		default:
			d.Ratio = float32(r)
		}
		ratios[c] = d.Ratio
	}
	return ratios, degenerate
}

// Pixel function applying the per-channel affine transform. Operates in-place
func pf3ChanMatch(c0, c1, c2 []float32, params interface{}) {
	p := params.(*matchArgs)
	for c, data := range [3][]float32{c0, c1, c2} {
		tm, r, sm := p.TargetMean[c], p.Ratio[c], p.SourceMean[c]
		for i, v := range data {
			data[i] = (v-tm)*r + sm
		}
	}
}

// Shifts and scales each channel of the target so its mean and standard deviation
// match the source statistics. Returns a new image of the target's dimensions,
// and the list of channels whose ratio was degenerate. The target is not modified
func Match(target *raster.Image, targetStats, sourceStats stats.ChannelStats) (*raster.Image, []Degenerate, error) {
	if err := target.CheckRGB(); err != nil {
		return nil, nil, err
	}
	ratios, degenerate := Ratios(targetStats, sourceStats)
	args := &matchArgs{Ratio: ratios}
	for c := 0; c < 3; c++ {
		args.TargetMean[c], args.SourceMean[c] = targetStats.Mean(c), sourceStats.Mean(c)
	}

	out := target.Clone()
	if err := out.ApplyPixelFunction3Chan(pf3ChanMatch, args); err != nil {
		return nil, nil, err
	}
	return out, degenerate, nil
}
