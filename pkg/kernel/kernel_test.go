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

package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riotkernel.dev/kernel/pkg/arch/simhost"
	"riotkernel.dev/kernel/pkg/kernel"
)

func newTestKernel() *kernel.Kernel {
	return kernel.New(simhost.New(), nil)
}

func recvWithin(t *testing.T, ch <-chan string, d time.Duration) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatal("timed out waiting for thread order event")
		return ""
	}
}

func TestHigherPriorityRunsFirst(t *testing.T) {
	k := newTestKernel()
	order := make(chan string, 4)

	k.CreateThreadNoArg(func() {
		order <- "low"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)
	k.CreateThreadNoArg(func() {
		order <- "high"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096),5)

	go k.StartThreading()

	assert.Equal(t, "high", recvWithin(t, order, time.Second))
}

func TestYieldSameRotatesWithinLevel(t *testing.T) {
	k := newTestKernel()
	order := make(chan string, 8)

	k.CreateThreadNoArg(func() {
		order <- "a1"
		k.YieldSame()
		order <- "a2"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 2)
	k.CreateThreadNoArg(func() {
		order <- "b1"
		k.YieldSame()
		order <- "b2"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 2)

	go k.StartThreading()

	first := recvWithin(t, order, time.Second)
	second := recvWithin(t, order, time.Second)
	third := recvWithin(t, order, time.Second)
	fourth := recvWithin(t, order, time.Second)

	assert.Equal(t, []string{"a1", "b1", "a2", "b2"}, []string{first, second, third, fourth})
}

func TestSleepAndWakeup(t *testing.T) {
	k := newTestKernel()
	order := make(chan string, 4)

	var sleeper kernel.ThreadID
	sleeper = k.CreateThreadNoArg(func() {
		order <- "sleeper-before"
		k.Sleep()
		order <- "sleeper-after"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 3)

	k.CreateThreadNoArg(func() {
		order <- "waker-start"
		for {
			if k.Wakeup(sleeper) {
				break
			}
			k.YieldSame()
		}
		order <- "waker-done"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)

	go k.StartThreading()

	require.Equal(t, "sleeper-before", recvWithin(t, order, time.Second))
	evts := map[string]bool{}
	evts[recvWithin(t, order, time.Second)] = true
	evts[recvWithin(t, order, time.Second)] = true
	evts[recvWithin(t, order, time.Second)] = true
	assert.True(t, evts["waker-start"])
	assert.True(t, evts["waker-done"])
	assert.True(t, evts["sleeper-after"])
}

func TestIsValidPID(t *testing.T) {
	k := newTestKernel()
	assert.False(t, k.IsValidPID(kernel.Sentinel))
	assert.False(t, k.IsValidPID(0))

	id := k.CreateThreadNoArg(func() {
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)
	assert.True(t, k.IsValidPID(id))
}

func TestThreadStructSizeNonZero(t *testing.T) {
	assert.True(t, kernel.ThreadStructSize() > 0)
}
