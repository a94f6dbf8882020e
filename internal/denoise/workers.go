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
	"runtime"

	"github.com/pbnjay/memory"
)

// Estimated bytes one reference worker holds at peak: the composed window
// of 2*radius fields, accumulator sums and weights, a sampling map, a warped
// contributor and the output frame
func WorkerBytes(width, height, radius int) int64 {
	pixels := int64(width) * int64(height)
	fields := int64(2*radius) * 16 * pixels
	accumulator := 3*8*pixels + 8*pixels
	sampling := 16 * pixels
	frames := 2 * 3 * pixels
	return fields + accumulator + sampling + frames
}

// Number of reference frames which can be denoised concurrently within the
// memory budget, between 1 and maxThreads. A zero budget uses 70% of physical memory
func MaxWorkers(width, height, radius, memoryMB, maxThreads int) int {
	budget := int64(memoryMB) * 1024 * 1024
	if budget <= 0 {
		budget = int64(memory.TotalMemory()) * 7 / 10
	}
	perWorker := WorkerBytes(width, height, radius)
	workers := maxThreads
	if perWorker > 0 {
		if byMemory := budget / perWorker; byMemory < int64(workers) {
			workers = int(byMemory)
		}
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// Splits the thread budget of a sequence between concurrent reference workers
// and the row bands each worker accumulates and resamples, such that
// workers*bandThreads never exceeds maxThreads. Zero maxThreads means GOMAXPROCS
func WorkerThreads(width, height, numFrames, radius, memoryMB, maxThreads int) (workers, bandThreads int) {
	if maxThreads <= 0 {
		maxThreads = runtime.GOMAXPROCS(0)
	}
	workers = MaxWorkers(width, height, radius, memoryMB, maxThreads)
	if numFrames > 0 && workers > numFrames {
		workers = numFrames
	}
	bandThreads = maxThreads / workers
	if bandThreads < 1 {
		bandThreads = 1
	}
	return workers, bandThreads
}
