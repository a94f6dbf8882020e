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

// Package synth renders synthetic video sequences with known motion and
// noise, for testing and benchmarking the denoiser.
package synth

import (
	"math"

	"github.com/mlnoga/mctf/internal/frame"
	"github.com/valyala/fastrand"
)

// Parameters of a synthetic sequence
type Params struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Frames int     `json:"frames"`
	DX     float64 `json:"dx"`     // Horizontal pattern motion per frame in pixels
	DY     float64 `json:"dy"`     // Vertical pattern motion per frame in pixels
	Noise  float64 `json:"noise"`  // Standard deviation of additive gaussian noise per channel
	Spikes int     `json:"spikes"` // Number of saturated impulse pixels per frame
	Seed   uint32  `json:"seed"`
}

func DefaultParams() Params {
	return Params{Width: 128, Height: 72, Frames: 9, DX: 1, DY: 0.5, Noise: 8, Spikes: 0, Seed: 1}
}

// Renders the sequence, returning both the clean and the noisy frames
func Generate(p Params) (clean, noisy []*frame.Frame) {
	rng := fastrand.RNG{}
	rng.Seed(p.Seed)

	clean = make([]*frame.Frame, p.Frames)
	noisy = make([]*frame.Frame, p.Frames)
	for t := 0; t < p.Frames; t++ {
		c := Pattern(p.Width, p.Height, float64(t)*p.DX, float64(t)*p.DY)
		c.ID = t
		n := c.Clone()
		AddNoise(n, p.Noise, &rng)
		AddSpikes(n, p.Spikes, &rng)
		clean[t], noisy[t] = c, n
	}
	return clean, noisy
}

// Renders a smooth colourful pattern, displaced by offX, offY pixels
func Pattern(width, height int, offX, offY float64) *frame.Frame {
	f := frame.New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u, v := float64(x)-offX, float64(y)-offY
			r := 128 + 80*math.Sin(u/7)*math.Cos(v/9)
			g := 128 + 60*math.Sin((u+v)/11)
			b := 128 + 70*math.Cos(u/13-v/5)
			f.Set(x, y, clampByte(r), clampByte(g), clampByte(b))
		}
	}
	return f
}

// Adds gaussian noise with the given standard deviation to every channel
func AddNoise(f *frame.Frame, sigma float64, rng *fastrand.RNG) {
	if sigma <= 0 {
		return
	}
	for i, v := range f.Pix {
		f.Pix[i] = clampByte(float64(v) + sigma*Gaussian(rng))
	}
}

// Sets n randomly chosen pixels to black or white
func AddSpikes(f *frame.Frame, n int, rng *fastrand.RNG) {
	numPix := uint32(f.Width * f.Height)
	for i := 0; i < n && numPix > 0; i++ {
		o := 3 * int(rng.Uint32n(numPix))
		v := uint8(0)
		if rng.Uint32()&1 != 0 {
			v = 255
		}
		f.Pix[o], f.Pix[o+1], f.Pix[o+2] = v, v, v
	}
}

// Draws a standard normal variate with the Box-Muller transform
func Gaussian(rng *fastrand.RNG) float64 {
	u1 := (float64(rng.Uint32()) + 1) / (math.MaxUint32 + 2)
	u2 := float64(rng.Uint32()) / (math.MaxUint32 + 1)
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
