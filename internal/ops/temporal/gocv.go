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

//go:build gocv

package temporal

import (
	"github.com/mlnoga/mctf/internal/denoise"
	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/warp"
)

func init() {
	RegisterEstimator("farneback", func(c *denoise.Config) flow.Estimator { return flow.NewFarnebackDefault() })
	RegisterResampler("remap", func(maxThreads int) warp.Resampler { return warp.NewRemap() })
}
