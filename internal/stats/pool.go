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

package stats

import (
	"sync"
)

// Pools of constant sized float32 scratch buffers, keyed by size,
// to reduce allocation overhead when many reports are calculated
var poolFloat32 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

func getSizedPoolFloat32(size int) *sync.Pool {
	poolFloat32.RLock()
	pool := poolFloat32.m[size]
	poolFloat32.RUnlock()
	if pool != nil {
		return pool
	}

	poolFloat32.Lock()
	defer poolFloat32.Unlock()
	if pool = poolFloat32.m[size]; pool == nil { // re-check, another goroutine may have won
		pool = &sync.Pool{
			New: func() interface{} { return make([]float32, size) },
		}
		poolFloat32.m[size] = pool
	}
	return pool
}

// Returns a float32 buffer of the given size. Contents are undefined
func GetArrayOfFloat32FromPool(size int) []float32 {
	return getSizedPoolFloat32(size).Get().([]float32)
}

// Returns a buffer obtained from GetArrayOfFloat32FromPool to its pool
func PutArrayOfFloat32IntoPool(arr []float32) {
	arr = arr[:cap(arr)]
	getSizedPoolFloat32(len(arr)).Put(arr)
}
