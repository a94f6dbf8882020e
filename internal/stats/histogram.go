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

// Package stats provides histogram fitting and image quality measures used
// to report on denoising runs.
package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Calculate histogram of data between min and max into given bins.
// Values outside the range are counted in the first or last bin
func Histogram(data []float64, min, max float64, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	scale := float64(len(bins)) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index >= len(bins) {
			index = len(bins) - 1
		}
		bins[index]++
	}
}

// Center of the given bin
func binCenter(i int, min, max float64, numBins int) float64 {
	return min + (float64(i)+0.5)*(max-min)/float64(numBins)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float64) (x, y float64) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	return binCenter(maxIndex, min, max, len(bins)), float64(maxValue)
}

var ErrEmptyHistogram = errors.New("empty histogram")

// Calculates the mode and the standard deviation of the given histogram
// by least squares fitting of a normal distribution
func GetModeStdDevFromHistogram(bins []int32, min, max float64) (mode, stdDev float64, err error) {
	xs, ws := make([]float64, len(bins)), make([]float64, len(bins))
	total := 0.0
	for i, b := range bins {
		xs[i], ws[i] = binCenter(i, min, max, len(bins)), float64(b)
		total += float64(b)
	}
	if total == 0 {
		return 0, 0, ErrEmptyHistogram
	}

	// Take an educated initial guess from the moments of the histogram
	peak, _ := GetPeak(bins, min, max)
	_, sd := stat.MeanStdDev(xs, ws)
	binWidth := (max - min) / float64(len(bins))
	if !(sd > binWidth/2) {
		return peak, 0, nil // all mass in a single bin
	}

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{total * binWidth, peak, sd}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], math.Abs(x[2])+1e-9
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range ws {
				xmusig := (xs[i] - mu) / sigma
				diff := y - scaler*math.Exp(-0.5*xmusig*xmusig)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(ws)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return result.X[1], math.Abs(result.X[2]), nil
}
