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

package warp

import (
	"fmt"
	"math"
	"runtime"

	"github.com/mlnoga/mctf/internal/frame"
)

// Bilinear resampler with clamp-to-edge borders: sampling coordinates are
// clamped into [0,W-1]x[0,H-1] before interpolation. Channel values are
// rounded half to even. Rows are processed in parallel bands
type Bilinear struct {
	MaxThreads int `json:"maxThreads"` // 0 means GOMAXPROCS
}

func NewBilinear() *Bilinear { return &Bilinear{} }

func (b *Bilinear) Resample(src *frame.Frame, m *Map) (*frame.Frame, error) {
	if src == nil || src.Width <= 0 || src.Height <= 0 || len(src.Pix) != 3*src.Width*src.Height {
		return nil, fmt.Errorf("%w: empty or malformed source frame", ErrMapShape)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	res := frame.New(m.Width, m.Height)
	res.ID = src.ID

	threads := b.MaxThreads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	bandSize := (m.Height + threads - 1) / threads
	if bandSize < 16 {
		bandSize = 16
	}
	sem := make(chan bool, threads)
	for lower := 0; lower < m.Height; lower += bandSize {
		upper := lower + bandSize
		if upper > m.Height {
			upper = m.Height
		}
		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()
			resampleRows(res, src, m, lower, upper)
		}(lower, upper)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
	return res, nil
}

// Clamps v into [0,max]. NaN maps to zero
func clampCoord(v float64, max int) float64 {
	if !(v > 0) {
		return 0
	}
	if v > float64(max) {
		return float64(max)
	}
	return v
}

func roundByte(v float64) uint8 {
	v = math.RoundToEven(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func resampleRows(res, src *frame.Frame, m *Map, lower, upper int) {
	sw, sh := src.Width, src.Height
	d := src.Pix
	for row := lower; row < upper; row++ {
		for col := 0; col < m.Width; col++ {
			i := row*m.Width + col
			px := clampCoord(m.X[i], sw-1)
			py := clampCoord(m.Y[i], sh-1)

			xl, yl := int(px), int(py)
			xh, yh := xl+1, yl+1
			if xh >= sw {
				xh = sw - 1
			}
			if yh >= sh {
				yh = sh - 1
			}
			xr, yr := px-float64(xl), py-float64(yl)

			xlyl := 3 * (xl + yl*sw)
			xhyl := 3 * (xh + yl*sw)
			xlyh := 3 * (xl + yh*sw)
			xhyh := 3 * (xh + yh*sw)

			o := 3 * i
			for c := 0; c < 3; c++ {
				vyl := float64(d[xlyl+c])*(1-xr) + float64(d[xhyl+c])*xr
				vyh := float64(d[xlyh+c])*(1-xr) + float64(d[xhyh+c])*xr
				res.Pix[o+c] = roundByte(vyl*(1-yr) + vyh*yr)
			}
		}
	}
}
