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

package kernel

import (
	"riotkernel.dev/kernel/pkg/arch"
	"riotkernel.dev/kernel/pkg/kernel/kconfig"
	"riotkernel.dev/kernel/pkg/sched/runq"
)

// Table is the statically sized array of thread control blocks plus the
// runqueue they're linked into while Running. It has no behavior of its
// own beyond SetState/SetPriority/GetUnused: the scheduling policy lives in
// Kernel (kernel.go).
type Table struct {
	threads [kconfig.NThreads]TCB
	rq      *runq.Runqueue
}

func newTable() *Table {
	t := &Table{rq: runq.New(kconfig.NThreads, kconfig.NQueues)}
	for i := range t.threads {
		t.threads[i].PID = ThreadID(i)
		t.threads[i].State = Invalid
	}
	return t
}

// GetUnused finds an Invalid slot for a new thread. It is a linear scan,
// O(NThreads), used only at thread creation: a small-namespace
// linear/monotonic scan rather than a free-list, because creation is
// never latency sensitive the way scheduling is.
func (t *Table) GetUnused() (ThreadID, bool) {
	for i := range t.threads {
		if t.threads[i].State == Invalid {
			return ThreadID(i), true
		}
	}
	return Sentinel, false
}

// Get returns a pointer to id's TCB. The caller must hold the kernel's
// critical section for the duration any field is read or written.
func (t *Table) Get(id ThreadID) *TCB {
	return &t.threads[id]
}

// SetState is the sole chokepoint that changes a thread's state. Every
// other mutator in this module -- the public API, kmutex, kchan, kflags --
// calls through it rather than writing TCB.State directly, so runqueue
// membership can never drift out of sync with the state machine (spec
// invariant: a thread is in the runqueue iff its state is Running).
//
// Preconditions: called with the kernel's critical section held.
func (t *Table) SetState(cs arch.CS, id ThreadID, new ThreadState) {
	tcb := &t.threads[id]
	old := tcb.State
	if old == new {
		return
	}
	if old == Running {
		t.rq.Del(id, tcb.Priority)
	}
	tcb.State = new
	if new == Running {
		t.rq.Add(id, tcb.Priority)
	}
}

// SetPriority changes id's current (possibly PI-boosted) priority and, if
// id is Running, moves it to the new priority level's runqueue list.
//
// Preconditions: called with the kernel's critical section held. Per the
// mutex's single-hop priority-inheritance contract, external code must
// never call this against a thread that currently holds a kmutex.Mutex --
// doing so would desynchronize the lock's recorded ownerOrigPrio.
func (t *Table) SetPriority(cs arch.CS, id ThreadID, prio RunqueueID) {
	tcb := &t.threads[id]
	if tcb.Priority == prio {
		return
	}
	if tcb.State == Running {
		t.rq.Del(id, tcb.Priority)
		tcb.Priority = prio
		t.rq.Add(id, prio)
		return
	}
	tcb.Priority = prio
}
