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
	"riotkernel.dev/kernel/pkg/sched/runq"
)

// Park is the shared suspend-the-current-thread primitive every blocking
// synchronization object (kmutex, kchan, kflags) is built on: it enqueues
// the current thread into w carrying payload, transitions it to st via the
// sole SetState chokepoint, and returns the priority Wake would next serve
// so the caller can decide whether a lock owner needs a priority boost. w
// is a runq.WaitQueue, so callers choose priority order (runq.WaitList) or
// strict arrival order (runq.FifoList) per primitive. It cannot be a
// method on Kernel -- Go methods cannot carry their own type parameters --
// so it is a package-level generic function taking the kernel explicitly,
// the usual shape for a generic helper that can't be hung off a concrete
// receiver.
//
// Preconditions: called with the kernel's critical section held.
func Park[P any](k *Kernel, cs arch.CS, w runq.WaitQueue[P], st ThreadState, payload P) RunqueueID {
	id := k.current
	prio := k.table.Get(id).Priority
	head := w.PutCurrent(id, prio, payload)
	k.table.SetState(cs, id, st)
	return head
}

// Wake pops the next waiter w's ordering strategy selects and transitions
// it back to Running. ok is false if w held no waiters. The caller is
// responsible for calling k.Port().RequestSchedule() afterward so the
// woken thread actually gets a chance to run.
//
// Preconditions: called with the kernel's critical section held.
func Wake[P any](k *Kernel, cs arch.CS, w runq.WaitQueue[P]) (id ThreadID, payload P, ok bool) {
	e, found := w.Pop()
	if !found {
		return Sentinel, payload, false
	}
	k.table.SetState(cs, e.ID, Running)
	return e.ID, e.Payload, true
}
