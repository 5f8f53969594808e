// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kconfig holds the compile-time constants that size the kernel's
// statically allocated structures. There is no dynamic allocation anywhere
// in the scheduler: every array is sized from these constants at package
// init, exactly once, for the lifetime of the program.
package kconfig

// NThreads is the number of thread control blocks the kernel allocates.
// Thread ids are in [0, NThreads). The sentinel id 0xFF is always reserved,
// so NThreads must never exceed 254.
const NThreads = 16

// NQueues is the number of priority levels in the runqueue. Priority ids are
// in [0, NQueues); numerically higher is higher priority. NQueues must not
// exceed the machine word size in bits, since the runqueue keeps one
// non-empty bit per level in a single machine word.
const NQueues = 12

func init() {
	if NThreads > 254 {
		panic("kconfig: NThreads must be <= 254 (0xFF is the sentinel id)")
	}
	if NQueues > 64 {
		panic("kconfig: NQueues must fit in a uint64 bitcache")
	}
}
