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

// Package warp resamples frames through dense per-pixel coordinate maps.
package warp

import (
	"errors"
	"fmt"

	"github.com/mlnoga/mctf/internal/frame"
	"gonum.org/v1/gonum/floats"
)

var ErrMapShape = errors.New("malformed sampling map")

// A dense sampling map. Output pixel (x,y) is taken from source
// coordinates (X[y*Width+x], Y[y*Width+x]), in pixels, possibly fractional
type Map struct {
	Width  int
	Height int
	X      []float64
	Y      []float64
}

// Creates a map where each output pixel samples its own position
func NewIdentityMap(width, height int) *Map {
	m := &Map{
		Width:  width,
		Height: height,
		X:      make([]float64, width*height),
		Y:      make([]float64, width*height),
	}
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			m.X[row+x] = float64(x)
			m.Y[row+x] = float64(y)
		}
	}
	return m
}

// Creates a map sampling at identity plus the given per-pixel displacement,
// i.e. x = col + dx and y = row + dy
func NewDisplacementMap(width, height int, dx, dy []float64) (*Map, error) {
	if len(dx) != width*height || len(dy) != width*height {
		return nil, fmt.Errorf("%w: displacement has %d/%d entries, want %d", ErrMapShape, len(dx), len(dy), width*height)
	}
	m := NewIdentityMap(width, height)
	floats.Add(m.X, dx)
	floats.Add(m.Y, dy)
	return m, nil
}

// Checks that the map is consistent
func (m *Map) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrMapShape)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrMapShape, m.Width, m.Height)
	}
	if len(m.X) != m.Width*m.Height || len(m.Y) != m.Width*m.Height {
		return fmt.Errorf("%w: %d/%d entries for %dx%d", ErrMapShape, len(m.X), len(m.Y), m.Width, m.Height)
	}
	return nil
}

// Warps a frame given a sampling map. The output has the map's shape
type Resampler interface {
	Resample(src *frame.Frame, m *Map) (*frame.Frame, error)
}
