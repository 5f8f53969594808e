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
	"github.com/sirupsen/logrus"

	"riotkernel.dev/kernel/pkg/arch"
	"riotkernel.dev/kernel/pkg/kernel/ktrace"
)

// Kernel wires the thread table, the runqueue it owns, and an
// architecture Port into a preemptive, priority-based scheduler.
type Kernel struct {
	port  arch.Port
	table *Table
	log   *logrus.Entry
	trace *ktrace.Recorder

	current    ThreadID
	hasCurrent bool
}

// New returns a Kernel driving port. log may be nil, in which case a
// disabled logrus entry is used, so callers aren't forced to configure
// logging just to get a Kernel.
func New(port arch.Port, log *logrus.Entry) *Kernel {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	k := &Kernel{
		port:  port,
		table: newTable(),
		log:   log,
		trace: ktrace.NewRecorder(64),
	}
	if s, ok := port.(schedFuncSetter); ok {
		s.SetSchedFunc(k.SchedTrampoline)
	}
	return k
}

// schedFuncSetter is implemented by arch.Port backends, like cortexm, whose
// context switch is driven by hardware exception entry rather than a direct
// Go call: they need a way to reach into this package's scheduling decision
// without pkg/kernel importing them, which would be a cyclic import.
type schedFuncSetter interface {
	SetSchedFunc(f func(oldSP uintptr) uintptr)
}

// SchedTrampoline is the entry point a PendSV-style backend calls, with
// hardware interrupts already masked by exception entry, to get the stack
// pointer it should restore into. It runs its own idle-wait loop (WFI,
// retry) when nothing is runnable, since such a backend has no separate
// reschedule loop of its own to do that -- unlike simhost's reschedule,
// below, this never returns without a valid stack pointer to resume.
func (k *Kernel) SchedTrampoline(oldSP uintptr) uintptr {
	for {
		var newSP uintptr
		var new *TCB
		var nothingRunnable bool
		k.port.WithCriticalSection(func(cs arch.CS) {
			newSP, _, new, nothingRunnable = k.sched(cs, oldSP)
		})
		if nothingRunnable {
			k.port.WaitForInterrupt()
			continue
		}
		if new == nil {
			return oldSP // next-to-run thread is already current
		}
		k.trace.Record(uint8(new.PID), *new)
		return newSP
	}
}

// sched is the architecture-independent scheduling decision: given the
// stack pointer the caller was just running on, it records oldSP against
// whatever thread was current (there may be none yet, at boot), consults
// the runqueue for the next thread to run, and returns its stack pointer --
// or a zero newSP and nil TCBs, the "no switch" sentinel, either because
// the next thread to run is already current or because nothing is
// runnable at all.
//
// sched never touches k.trace itself: the Recorder's deep copy allocates
// and walks the TCB via reflection, too expensive to run with the
// critical section this is always called under still held. Callers take
// the returned new *TCB -- safe to read without racing, since the thread
// it names has not yet been switched to -- and record it themselves once
// the critical section has closed.
//
// Preconditions: called with the kernel's critical section held.
func (k *Kernel) sched(cs arch.CS, oldSP uintptr) (newSP uintptr, old, new *TCB, nothingRunnable bool) {
	if k.hasCurrent {
		k.table.Get(k.current).SP = oldSP
	}
	next, _, ok := k.table.rq.GetNext()
	if !ok {
		return 0, nil, nil, true
	}
	if k.hasCurrent && next == k.current {
		return 0, nil, nil, false
	}
	if k.hasCurrent {
		old = k.table.Get(k.current)
	}
	new = k.table.Get(next)
	k.current = next
	k.hasCurrent = true
	return new.SP, old, new, false
}

// reschedule drives one full scheduling round-trip for backends, like
// simhost, that call sched directly from Go rather than from a PendSV
// trampoline: it spins/WFIs until a thread is runnable, then performs the
// actual handoff via the port outside any critical section.
func (k *Kernel) reschedule() {
	for {
		var newSP uintptr
		var old, new *TCB
		var nothingRunnable bool
		k.port.WithCriticalSection(func(cs arch.CS) {
			var oldSP uintptr
			if k.hasCurrent {
				oldSP = k.table.Get(k.current).SP
			}
			newSP, old, new, nothingRunnable = k.sched(cs, oldSP)
		})
		if nothingRunnable {
			k.port.WaitForInterrupt()
			continue
		}
		if new == nil {
			return // no switch: next-to-run thread is already current
		}
		k.trace.Record(uint8(new.PID), *new)
		var fromSP uintptr
		if old != nil {
			fromSP = old.SP
		}
		k.port.Switch(fromSP, newSP)
		return
	}
}

// YieldSame rotates the current thread to the tail of its own priority
// level and requests a reschedule: cooperative round robin within a level,
// never across levels -- there is no time-sliced round robin across
// priorities, only this explicit same-level yield.
func (k *Kernel) YieldSame() {
	k.port.WithCriticalSection(func(cs arch.CS) {
		if !k.hasCurrent {
			return
		}
		prio := k.table.Get(k.current).Priority
		k.table.rq.Advance(prio)
	})
	k.port.RequestSchedule()
	k.reschedule()
}

// Sleep transitions the current thread to Paused and reschedules. It
// returns once some other thread calls Wakeup(CurrentPID()).
func (k *Kernel) Sleep() {
	var id ThreadID
	k.port.WithCriticalSection(func(cs arch.CS) {
		id = k.current
		k.table.SetState(cs, id, Paused)
	})
	k.reschedule()
}

// Wakeup transitions id from Paused to Running. It is the one entry point
// in this package documented safe to call from an ISR / ISR-equivalent
// context: it only ever touches the critical section and RequestSchedule,
// never blocks.
func (k *Kernel) Wakeup(id ThreadID) bool {
	if id == Sentinel || int(id) >= len(k.table.threads) {
		return false
	}
	woke := false
	k.port.WithCriticalSection(func(cs arch.CS) {
		if k.table.Get(id).State != Paused {
			return
		}
		k.table.SetState(cs, id, Running)
		woke = true
	})
	if woke {
		k.port.RequestSchedule()
	}
	return woke
}

// GetPriority returns id's current priority.
func (k *Kernel) GetPriority(id ThreadID) (RunqueueID, bool) {
	if !k.IsValidPID(id) {
		return 0, false
	}
	var prio RunqueueID
	k.port.WithCriticalSection(func(cs arch.CS) {
		prio = k.table.Get(id).Priority
	})
	return prio, true
}

// SetPriority changes id's priority. See Table.SetPriority's precondition
// about not calling this against a lock holder.
func (k *Kernel) SetPriority(id ThreadID, prio RunqueueID) {
	if !k.IsValidPID(id) {
		return
	}
	k.port.WithCriticalSection(func(cs arch.CS) {
		k.table.SetPriority(cs, id, prio)
		k.table.Get(id).BasePriority = prio
	})
	k.port.RequestSchedule()
}

// IsValidPID reports whether id names a currently live thread.
func (k *Kernel) IsValidPID(id ThreadID) bool {
	if id == Sentinel || int(id) >= len(k.table.threads) {
		return false
	}
	var valid bool
	k.port.WithCriticalSection(func(cs arch.CS) {
		valid = k.table.Get(id).State != Invalid
	})
	return valid
}

// CurrentLocked returns the currently running thread's id. Unlike
// CurrentPID it does not itself open a critical section: it is for
// pkg/sync/* callers that already hold one (proven by cs) and would
// deadlock re-entering WithCriticalSection.
func (k *Kernel) CurrentLocked(cs arch.CS) ThreadID {
	return k.current
}

// CurrentPID returns the currently running thread's id. ok is false before
// StartThreading has run.
func (k *Kernel) CurrentPID() (ThreadID, bool) {
	var id ThreadID
	var ok bool
	k.port.WithCriticalSection(func(cs arch.CS) {
		id, ok = k.current, k.hasCurrent
	})
	return id, ok
}

// CreateThread allocates a TCB, asks the port to lay out stack's initial
// frame, and marks the new thread Running. If entry returns, the thread
// becomes Invalid and its id can be reused (see parkForever).
func (k *Kernel) CreateThread(entry func(arg uintptr), arg uintptr, stack []byte, prio RunqueueID) ThreadID {
	id, ok := k.table.GetUnused()
	if !ok {
		panic("kernel: thread table exhausted")
	}
	sp := k.port.InitStack(stack, entry, arg, func() { k.parkForever(id) })

	k.port.WithCriticalSection(func(cs arch.CS) {
		tcb := k.table.Get(id)
		tcb.SP = sp
		tcb.Priority = prio
		tcb.BasePriority = prio
		tcb.Flags = 0
		k.table.SetState(cs, id, Running)
	})
	k.log.WithFields(logrus.Fields{"pid": id, "priority": prio}).Debug("thread created")
	k.port.RequestSchedule()
	return id
}

// CreateThreadNoArg is CreateThread for entry points that take no argument.
func (k *Kernel) CreateThreadNoArg(entry func(), stack []byte, prio RunqueueID) ThreadID {
	return k.CreateThread(func(uintptr) { entry() }, 0, stack, prio)
}

// parkForever is the trampoline every created thread's stack frame returns
// into if its entry function ever returns: the thread transitions to
// Invalid, making its id immediately reusable by a later CreateThread via
// Table.GetUnused.
func (k *Kernel) parkForever(id ThreadID) {
	k.port.WithCriticalSection(func(cs arch.CS) {
		k.table.SetState(cs, id, Invalid)
	})
	k.log.WithField("pid", id).Debug("thread entry returned; id reclaimed")
	k.reschedule()
}

// StartThreading hands control to the highest-priority created thread and
// never returns. It must be called exactly once, after all initial threads
// (including any pkg/autostart registrations) have been created.
func (k *Kernel) StartThreading() {
	var sp uintptr
	k.port.WithCriticalSection(func(cs arch.CS) {
		next, _, ok := k.table.rq.GetNext()
		if !ok {
			panic("kernel: StartThreading with no runnable thread")
		}
		k.current = next
		k.hasCurrent = true
		sp = k.table.Get(next).SP
	})
	k.port.StartThreading(sp)
}

// Port returns the architecture port the kernel was constructed with, for
// packages (pkg/hal/systick, pkg/sync/*) that need to drive critical
// sections or request reschedules themselves.
func (k *Kernel) Port() arch.Port {
	return k.port
}

// Reschedule exposes the internal reschedule loop to pkg/sync/* blocking
// primitives: after they move the current thread out of Running via
// Table.SetState (through Park, below), they call this to actually hand
// off the CPU.
func (k *Kernel) Reschedule() {
	k.reschedule()
}

// TableForSync exposes the thread table to pkg/sync/* packages, which live
// outside this package (they're generic over payload types and a generic
// method on Kernel isn't possible in Go) but still need to call SetState
// and read priorities under the kernel's own critical section.
func (k *Kernel) TableForSync() *Table {
	return k.table
}
