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

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins.
// Values outside [min,max] are counted in the first and last bin
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	last := len(bins) - 1
	scale := float32(last) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index > last {
			index = last
		}
		bins[index]++
	}
}

// Center value of the given bin
func binCenter(i int, min, max float32, numBins int) float32 {
	return min + (float32(i)+0.5)*(max-min)/float32(numBins-1)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}

	x = binCenter(maxIndex, min, max, len(bins))
	if maxIndex+1 < len(bins) {
		y = 0.5 * float32(bins[maxIndex]+bins[maxIndex+1])
	} else {
		y = float32(bins[maxIndex])
	}
	return x, y
}

// Calculates the mode and the standard deviation of the given histogram, by fitting
// a normal distribution with Nelder-Mead. Sigma0 is the initial guess for the standard deviation
func GetModeStdDevFromHistogram(bins []int32, min, max, sigma0 float32) (mode, stdDev float32, err error) {
	// Take an educated initial guess: the maximum value of the histogram
	peak, peakVal := GetPeak(bins, min, max)
	if sigma0 <= 0 {
		sigma0 = (max - min) / float32(len(bins))
	}

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{float64(peakVal) * float64(sigma0) * math.Sqrt(2*math.Pi), float64(peak), float64(sigma0)}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := float64(0)

			for i, y := range bins {
				x := float64(binCenter(i, min, max, len(bins)))
				xmusig := (x - mu) / sigma
				yPredict := scaler * math.Exp(-0.5*xmusig*xmusig)

				diff := float64(y) - yPredict
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return peak, sigma0, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}
