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

// Package median provides small-window median filters used to suppress
// isolated outlier vectors in dense motion fields.
package median

import (
	"math"

	"github.com/mlnoga/mctf/internal/qsort"
)

// Applies a 3x3 median filter to input data, assumed to be a 2D array with given line width,
// and stores results in output. Copies over the outermost rows and columns unchanged.
// Output and data must not alias
func MedianFilter3x3(output, data []float64, width int) {
	height := len(data) / width
	if height < 3 || width < 3 {
		copy(output, data)
		return
	}
	copy(output[:width], data[:width]) // copy first row

	for line := 0; line < height-2; line++ {
		start, end := line*width, (line+3)*width

		output[start+width] = data[start+width] // copy first column
		MedianFilterLine3x3(output[start:end], data[start:end], width)
		output[start+2*width-1] = data[start+2*width-1] // copy last column
	}
	copy(output[(height-1)*width:], data[(height-1)*width:]) // copy last row
}

// Input data is three lines of given width. Applies a 3x3 median filter to these.
// Stores results in the middle row of the output, which must have the same shape as the input.
// Does not touch first and last column
func MedianFilterLine3x3(output, data []float64, width int) {
	gathered := make([]float64, 9)
	for i := width + 1; i < 2*width-1; i++ {
		top, mid, bot := i-width-1, i-1, i+width-1
		copy(gathered[0:3], data[top:top+3])
		copy(gathered[3:6], data[mid:mid+3])
		copy(gathered[6:9], data[bot:bot+3])
		output[i] = MedianFloat64Slice9(gathered)
	}
}

// Calculates the median of a float64 slice of length nine
// with a 19 comparator selection network. Modifies the elements in place.
// See http://ndevilla.free.fr/median/median/src/optmed.c for other sizes.
// Array must not contain IEEE NaN
func MedianFloat64Slice9(a []float64) float64 {
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[1] > a[2] {
		a[1], a[2] = a[2], a[1]
	}
	if a[4] > a[5] {
		a[4], a[5] = a[5], a[4]
	}
	if a[7] > a[8] {
		a[7], a[8] = a[8], a[7]
	}
	if a[0] > a[1] {
		a[0], a[1] = a[1], a[0]
	}
	if a[3] > a[4] {
		a[3], a[4] = a[4], a[3]
	}
	if a[6] > a[7] {
		a[6], a[7] = a[7], a[6]
	}
	if a[0] > a[3] { // max(0,3)
		a[3] = a[0]
	}
	if a[3] > a[6] { // max(3,6)
		a[6] = a[3]
	}
	if a[1] > a[4] {
		a[1], a[4] = a[4], a[1]
	}
	if a[4] > a[7] { // min(4,7)
		a[4] = a[7]
	}
	if a[1] > a[4] { // max(1,4)
		a[4] = a[1]
	}
	if a[5] > a[8] { // min(5,8)
		a[5] = a[8]
	}
	if a[2] > a[5] { // min(2,5)
		a[2] = a[5]
	}
	if a[2] > a[4] {
		a[2], a[4] = a[4], a[2]
	}
	if a[4] > a[6] { // min(4,6)
		a[4] = a[6]
	}
	if a[2] > a[4] { // max(2,4)
		a[4] = a[2]
	}
	return a[4]
}

// Calculates the median of a float64 slice, NaN if empty.
// Modifies the elements in place.
// Array must not contain IEEE NaN
func MedianFloat64(a []float64) float64 {
	if len(a) == 0 {
		return math.NaN()
	}
	if len(a) == 9 {
		return MedianFloat64Slice9(a)
	}
	return qsort.QSelectMedianFloat64(a)
}
