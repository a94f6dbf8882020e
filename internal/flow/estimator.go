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

package flow

import (
	"fmt"

	"github.com/mlnoga/mctf/internal/frame"
)

// Estimates the dense motion field from gray frame a to gray frame b.
// Results must be deterministic for a fixed pair of inputs
type Estimator interface {
	Estimate(a, b *frame.Gray) (*Field, error)
}

// Adapter to use ordinary functions as estimators
type EstimatorFunc func(a, b *frame.Gray) (*Field, error)

func (fn EstimatorFunc) Estimate(a, b *frame.Gray) (*Field, error) { return fn(a, b) }

func checkPair(a, b *frame.Gray) error {
	if a == nil || b == nil {
		return fmt.Errorf("%w: nil frame", ErrShape)
	}
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("%w: frames %dx%d vs %dx%d", ErrShape, a.Width, a.Height, b.Width, b.Height)
	}
	if a.Width <= 0 || a.Height <= 0 {
		return fmt.Errorf("%w: empty frame", ErrShape)
	}
	return nil
}

// Estimator returning the same displacement for every pixel of every pair
type Constant struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

func (c *Constant) Estimate(a, b *frame.Gray) (*Field, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	return NewConstantField(a.Width, a.Height, c.U, c.V), nil
}

// Estimator returning a copy of a precomputed field for every pair
type Fixed struct {
	Field *Field
}

func (fx *Fixed) Estimate(a, b *frame.Gray) (*Field, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	if fx.Field == nil || fx.Field.Width != a.Width || fx.Field.Height != a.Height {
		return nil, fmt.Errorf("%w: fixed field does not match %dx%d frames", ErrShape, a.Width, a.Height)
	}
	return fx.Field.Clone(), nil
}
