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

// Horn & Schunck variational optic flow, solved with Jacobi iterations.
// Borders follow Neumann conditions: derivatives sample clamped coordinates
// and the smoothness term averages only neighbours inside the image.
// With Levels>1 the flow is computed coarse to fine on an image pyramid,
// warping the second frame by the upsampled coarse estimate at each level
type HornSchunck struct {
	Alpha      float64 `json:"alpha"      yaml:"alpha"`      // Smoothness weight, larger is smoother
	Iterations int     `json:"iterations" yaml:"iterations"` // Jacobi iterations per level
	Levels     int     `json:"levels"     yaml:"levels"`     // Pyramid levels, 1 disables the pyramid
}

func NewHornSchunckDefault() *HornSchunck {
	return &HornSchunck{Alpha: 100, Iterations: 160, Levels: 3}
}

func (hs *HornSchunck) Estimate(a, b *frame.Gray) (*Field, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	if hs.Alpha <= 0 || hs.Iterations < 0 {
		return nil, fmt.Errorf("invalid Horn-Schunck parameters alpha %g iterations %d", hs.Alpha, hs.Iterations)
	}
	levels := hs.Levels
	if levels < 1 {
		levels = 1
	}

	// build pyramids, stopping early on tiny images
	pa, pb := []*frame.Gray{a}, []*frame.Gray{b}
	for l := 1; l < levels; l++ {
		ca, cb := pa[l-1], pb[l-1]
		if ca.Width < 16 || ca.Height < 16 {
			break
		}
		pa, pb = append(pa, ca.Half()), append(pb, cb.Half())
	}

	var uv *Field
	for l := len(pa) - 1; l >= 0; l-- {
		la, lb := pa[l], pb[l]
		if uv == nil {
			uv = hs.solve(la, lb, NewField(la.Width, la.Height))
			continue
		}
		uv = uv.Upsample(la.Width, la.Height)
		inc := hs.solve(la, warpGray(lb, uv), NewField(la.Width, la.Height))
		if err := uv.Add(inc); err != nil {
			return nil, err
		}
	}
	return uv, nil
}

// Solves for the flow between f1 and f2 starting from the given field, which is overwritten
func (hs *HornSchunck) solve(f1, f2 *frame.Gray, uv *Field) *Field {
	fx, fy, fz := deriveMixed(f1, f2)
	old := uv.Clone()
	for k := 0; k < hs.Iterations; k++ {
		jacobiStep(hs.Alpha, fx, fy, fz, old, uv)
		copy(old.DX, uv.DX)
		copy(old.DY, uv.DY)
	}
	return uv
}

// Spatial derivatives averaged over both frames, and the temporal derivative
func deriveMixed(f1, f2 *frame.Gray) (fx, fy, fz []float64) {
	w, h := f1.Width, f1.Height
	fx, fy, fz = make([]float64, w*h), make([]float64, w*h), make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			fx[i] = float64(f1.AtClamped(x+1, y)-f1.AtClamped(x-1, y)+f2.AtClamped(x+1, y)-f2.AtClamped(x-1, y)) / 4
			fy[i] = float64(f1.AtClamped(x, y+1)-f1.AtClamped(x, y-1)+f2.AtClamped(x, y+1)-f2.AtClamped(x, y-1)) / 4
			fz[i] = float64(f2.Pix[i] - f1.Pix[i])
		}
	}
	return fx, fy, fz
}

// One Jacobi step of the Horn & Schunck Euler-Lagrange equations
func jacobiStep(alpha float64, fx, fy, fz []float64, old, uv *Field) {
	w, h := uv.Width, uv.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nn := 0
			uSum, vSum := 0.0, 0.0
			if x > 0 {
				nn++
				uSum += old.DX[y*w+x-1]
				vSum += old.DY[y*w+x-1]
			}
			if x < w-1 {
				nn++
				uSum += old.DX[y*w+x+1]
				vSum += old.DY[y*w+x+1]
			}
			if y > 0 {
				nn++
				uSum += old.DX[(y-1)*w+x]
				vSum += old.DY[(y-1)*w+x]
			}
			if y < h-1 {
				nn++
				uSum += old.DX[(y+1)*w+x]
				vSum += old.DY[(y+1)*w+x]
			}
			i := y*w + x
			if nn == 0 { // single pixel image
				uSum, vSum, nn = old.DX[i], old.DY[i], 1
			}
			uAvg, vAvg := uSum/float64(nn), vSum/float64(nn)
			t := (fx[i]*uAvg + fy[i]*vAvg + fz[i]) / (alpha + fx[i]*fx[i] + fy[i]*fy[i])
			uv.DX[i] = uAvg - fx[i]*t
			uv.DY[i] = vAvg - fy[i]*t
		}
	}
}

// Samples g at (x+dx, y+dy) with bilinear interpolation and clamped borders
func warpGray(g *frame.Gray, uv *Field) *frame.Gray {
	res := frame.NewGray(g.Width, g.Height)
	maxX, maxY := float64(g.Width-1), float64(g.Height-1)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			i := y*g.Width + x
			px, py := float64(x)+uv.DX[i], float64(y)+uv.DY[i]
			if !(px > 0) {
				px = 0
			} else if px > maxX {
				px = maxX
			}
			if !(py > 0) {
				py = 0
			} else if py > maxY {
				py = maxY
			}
			xl, yl := int(px), int(py)
			xr, yr := float32(px-float64(xl)), float32(py-float64(yl))
			vyl := g.AtClamped(xl, yl)*(1-xr) + g.AtClamped(xl+1, yl)*xr
			vyh := g.AtClamped(xl, yl+1)*(1-xr) + g.AtClamped(xl+1, yl+1)*xr
			res.Pix[i] = vyl*(1-yr) + vyh*yr
		}
	}
	return res
}
