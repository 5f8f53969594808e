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

// Package kmutex implements a blocking mutex with single-hop priority
// inheritance: a thread blocked on a locked Mutex boosts the lock owner's
// priority to its own if that's higher, and the boost is undone the moment
// the lock is released. The boost never propagates past one hop -- a
// waiter blocked on a different lock held by the owner does not also get
// inherited into.
package kmutex

import (
	"riotkernel.dev/kernel/pkg/arch"
	"riotkernel.dev/kernel/pkg/kernel"
	"riotkernel.dev/kernel/pkg/sched/runq"
)

// Mutex is a blocking lock with priority inheritance. The zero value is not
// usable; construct with New.
type Mutex struct {
	k *kernel.Kernel

	locked        bool
	owner         kernel.ThreadID
	ownerOrigPrio kernel.RunqueueID // owner's own priority, pre-boost
	waiters       *runq.WaitList[struct{}]
}

// New returns an unlocked Mutex driven by k.
func New(k *kernel.Kernel) *Mutex {
	return &Mutex{k: k, waiters: runq.NewWaitList[struct{}]()}
}

// Lock blocks the current thread until the mutex is acquired.
//
// Preconditions: the caller must not change its own or the prior owner's
// priority via Kernel.SetPriority while this call is blocked, and must not
// change the owner's priority externally while it holds the lock -- doing
// so desynchronizes ownerOrigPrio and the restore Release performs.
func (m *Mutex) Lock() {
	blocked := false
	m.k.Port().WithCriticalSection(func(cs arch.CS) {
		if !m.locked {
			m.locked = true
			m.owner = m.k.CurrentLocked(cs)
			m.ownerOrigPrio = m.k.TableForSync().Get(m.owner).Priority
			return
		}
		headPrio := kernel.Park(m.k, cs, m.waiters, kernel.LockBlocked, struct{}{})
		if headPrio > m.k.TableForSync().Get(m.owner).Priority {
			m.k.TableForSync().SetPriority(cs, m.owner, headPrio)
		}
		blocked = true
	})
	if blocked {
		m.k.Reschedule()
	}
}

// TryLock acquires the mutex without blocking, reporting whether it
// succeeded.
func (m *Mutex) TryLock() bool {
	ok := false
	m.k.Port().WithCriticalSection(func(cs arch.CS) {
		if m.locked {
			return
		}
		m.locked = true
		m.owner = m.k.CurrentLocked(cs)
		m.ownerOrigPrio = m.k.TableForSync().Get(m.owner).Priority
		ok = true
	})
	return ok
}

// Release unlocks the mutex, restoring the current owner's priority and
// handing the lock directly to the highest-priority waiter, if any. The
// waitlist's priority ordering (runq.WaitList) guarantees that waiter's own
// priority is already >= every remaining waiter's, so no further boost is
// needed immediately after the handoff.
func (m *Mutex) Release() {
	woke := false
	m.k.Port().WithCriticalSection(func(cs arch.CS) {
		m.k.TableForSync().SetPriority(cs, m.owner, m.ownerOrigPrio)

		id, _, ok := kernel.Wake(m.k, cs, m.waiters)
		if !ok {
			m.locked = false
			m.owner = kernel.Sentinel
			return
		}
		m.owner = id
		m.ownerOrigPrio = m.k.TableForSync().Get(id).Priority
		woke = true
	})
	if woke {
		m.k.Port().RequestSchedule()
	}
}
