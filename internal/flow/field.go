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

// Package flow holds dense motion fields between consecutive frames and the
// estimators which produce them.
package flow

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/mctf/internal/median"
	"gonum.org/v1/gonum/floats"
)

var ErrShape = errors.New("motion field shape mismatch")

// A dense 2D motion field. Entry y*Width+x holds the displacement in pixels
// of the content at (x,y) between the first and second frame of a pair
type Field struct {
	Width  int
	Height int
	DX     []float64
	DY     []float64
}

// Creates a new zero motion field of the given size
func NewField(width, height int) *Field {
	return &Field{
		Width:  width,
		Height: height,
		DX:     make([]float64, width*height),
		DY:     make([]float64, width*height),
	}
}

// Creates a motion field with the same displacement u,v everywhere
func NewConstantField(width, height int, u, v float64) *Field {
	f := NewField(width, height)
	for i := range f.DX {
		f.DX[i], f.DY[i] = u, v
	}
	return f
}

// Returns a deep copy of the field
func (f *Field) Clone() *Field {
	return &Field{
		Width:  f.Width,
		Height: f.Height,
		DX:     append([]float64(nil), f.DX...),
		DY:     append([]float64(nil), f.DY...),
	}
}

// Displacement at x, y
func (f *Field) At(x, y int) (dx, dy float64) {
	i := y*f.Width + x
	return f.DX[i], f.DY[i]
}

// Checks that both fields have the same shape and consistent storage
func (f *Field) SameShape(o *Field) error {
	if f.Width != o.Width || f.Height != o.Height || len(f.DX) != len(o.DX) || len(f.DY) != len(o.DY) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShape, f.Width, f.Height, o.Width, o.Height)
	}
	return nil
}

// Adds the other field to this one, element-wise
func (f *Field) Add(o *Field) error {
	if err := f.SameShape(o); err != nil {
		return err
	}
	floats.Add(f.DX, o.DX)
	floats.Add(f.DY, o.DY)
	return nil
}

// Subtracts the other field from this one, element-wise
func (f *Field) Sub(o *Field) error {
	if err := f.SameShape(o); err != nil {
		return err
	}
	floats.Sub(f.DX, o.DX)
	floats.Sub(f.DY, o.DY)
	return nil
}

// Multiplies all displacements with the given factor
func (f *Field) Scale(s float64) {
	floats.Scale(s, f.DX)
	floats.Scale(s, f.DY)
}

// Negates all displacements
func (f *Field) Negate() { f.Scale(-1) }

// Magnitudes of all displacements
func (f *Field) Magnitudes() []float64 {
	res := make([]float64, len(f.DX))
	for i := range res {
		res[i] = math.Hypot(f.DX[i], f.DY[i])
	}
	return res
}

// Largest displacement magnitude in the field
func (f *Field) MaxMagnitude() float64 {
	if len(f.DX) == 0 {
		return 0
	}
	return floats.Max(f.Magnitudes())
}

// Applies a 3x3 median filter to both components, suppressing isolated outlier vectors
func (f *Field) Smooth() {
	tmp := make([]float64, len(f.DX))
	median.MedianFilter3x3(tmp, f.DX, f.Width)
	f.DX, tmp = tmp, f.DX
	median.MedianFilter3x3(tmp, f.DY, f.Width)
	f.DY = tmp
}

// Upsamples the field by a factor of two to the given size with nearest
// neighbour lookup, doubling displacements to match the finer grid
func (f *Field) Upsample(width, height int) *Field {
	res := NewField(width, height)
	for y := 0; y < height; y++ {
		sy := y / 2
		if sy >= f.Height {
			sy = f.Height - 1
		}
		for x := 0; x < width; x++ {
			sx := x / 2
			if sx >= f.Width {
				sx = f.Width - 1
			}
			dx, dy := f.At(sx, sy)
			res.DX[y*width+x], res.DY[y*width+x] = 2*dx, 2*dy
		}
	}
	return res
}
