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

package kmutex_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riotkernel.dev/kernel/pkg/arch/simhost"
	"riotkernel.dev/kernel/pkg/kernel"
	"riotkernel.dev/kernel/pkg/sync/kmutex"
)

func TestMutexPriorityInheritance(t *testing.T) {
	k := kernel.New(simhost.New(), nil)
	mu := kmutex.New(k)

	locked := make(chan struct{})
	highAcquired := make(chan struct{})

	lowID := k.CreateThreadNoArg(func() {
		mu.Lock()
		close(locked)
		k.Sleep() // yield the CPU back to the scheduler without releasing the lock
		mu.Release()
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)

	go k.StartThreading()

	<-locked

	highID := k.CreateThreadNoArg(func() {
		mu.Lock()
		close(highAcquired)
		mu.Release()
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 5)

	require.Eventually(t, func() bool {
		prio, ok := k.GetPriority(lowID)
		return ok && prio == 5
	}, time.Second, time.Millisecond, "low's priority was never boosted to high's")

	// low may not yet be Paused the instant goroutine scheduling catches up
	// with the boost becoming visible above, so retry the wakeup rather than
	// assuming a single call lands.
	require.Eventually(t, func() bool {
		return k.Wakeup(lowID)
	}, time.Second, time.Millisecond, "never managed to wake low back up")

	select {
	case <-highAcquired:
	case <-time.After(time.Second):
		t.Fatal("high-priority thread never acquired the mutex")
	}

	require.Eventually(t, func() bool {
		prio, ok := k.GetPriority(lowID)
		return ok && prio == 1
	}, time.Second, time.Millisecond, "low's priority was never restored after release")

	prio, ok := k.GetPriority(highID)
	require.True(t, ok)
	assert.Equal(t, kernel.RunqueueID(5), prio)
}

func TestTryLock(t *testing.T) {
	k := kernel.New(simhost.New(), nil)
	mu := kmutex.New(k)

	assert.True(t, mu.TryLock())
	assert.False(t, mu.TryLock())
	mu.Release()
	assert.True(t, mu.TryLock())
}
