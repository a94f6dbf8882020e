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

package denoise

import (
	"github.com/mlnoga/mctf/internal/flow"
	"gonum.org/v1/gonum/floats"
)

// Absolute motion of a contributor frame relative to the reference frame.
// Sampling the contributor at identity plus Field aligns it with the reference
type Contribution struct {
	Index int         // Frame index of the contributor
	Field *flow.Field // Composed motion field
}

// Contributors of a reference frame within the temporal window.
// Frames beyond the sequence boundaries are absent, not zero
type Window struct {
	Reference int
	Radius    int
	Backward  []Contribution // Frames r-1, r-2, ... in order of distance
	Forward   []Contribution // Frames r+1, r+2, ... in order of distance
}

// All contributions, backward before forward
func (w *Window) Contributions() []Contribution {
	res := make([]Contribution, 0, len(w.Backward)+len(w.Forward))
	res = append(res, w.Backward...)
	return append(res, w.Forward...)
}

// Composes absolute fields for the preceding frames r-k, k=1..radius, r-k>=0.
// The field for r-k is flow[r-k] + ... + flow[r-1], summed in ascending order
func ComposeBackward(s *Store, r, radius int) []Contribution {
	res := []Contribution{}
	for k := 1; k <= radius && r-k >= 0; k++ {
		f := s.Field(r - k).Clone()
		for j := r - k + 1; j <= r-1; j++ {
			addField(f, s.Field(j))
		}
		res = append(res, Contribution{Index: r - k, Field: f})
	}
	return res
}

// Composes absolute fields for the following frames r+k, k=1..radius, r+k<=F-1.
// The field for r+k is -(flow[r] + ... + flow[r+k-1]), built as
// -flow[r+k-1] - flow[r+k-2] - ... - flow[r]
func ComposeForward(s *Store, r, radius int) []Contribution {
	res := []Contribution{}
	for k := 1; k <= radius && r+k <= s.NumFrames-1; k++ {
		f := s.Field(r + k - 1).Clone()
		f.Negate()
		for j := r + k - 2; j >= r; j-- {
			subField(f, s.Field(j))
		}
		res = append(res, Contribution{Index: r + k, Field: f})
	}
	return res
}

// Composes the complete window of absolute fields around reference r
func ComposeWindow(s *Store, r, radius int) *Window {
	return &Window{
		Reference: r,
		Radius:    radius,
		Backward:  ComposeBackward(s, r, radius),
		Forward:   ComposeForward(s, r, radius),
	}
}

// Element-wise f += o. Shapes are validated by the store
func addField(f, o *flow.Field) {
	floats.Add(f.DX, o.DX)
	floats.Add(f.DY, o.DY)
}

// Element-wise f -= o. Shapes are validated by the store
func subField(f, o *flow.Field) {
	floats.Sub(f.DX, o.DX)
	floats.Sub(f.DY, o.DY)
}
