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

// Package kernel is the architecture-independent scheduler core: the thread
// table, the state machine every blocking primitive drives through a single
// chokepoint, and the public API threads call to create, yield, sleep and
// wake each other.
package kernel

import (
	"unsafe"

	"riotkernel.dev/kernel/pkg/sched/runq"
)

var tcbSize = unsafe.Sizeof(TCB{})

// ThreadID identifies a thread control block.
type ThreadID = runq.ThreadID

// Sentinel is the "no thread" id, re-exported from runq for callers that
// only import pkg/kernel.
const Sentinel = runq.Sentinel

// RunqueueID is a scheduling priority level; numerically higher is higher
// priority.
type RunqueueID = runq.RunqueueID

// ThreadState is the state machine every TCB moves through. SetState is the
// sole place that mutates it (see table.go), so it is always consistent
// with runqueue/waitlist membership.
type ThreadState int

const (
	// Invalid marks an unused table slot.
	Invalid ThreadState = iota
	// Paused is "exists, not runnable, not waiting on anything" -- the
	// state Sleep() puts a thread in.
	Paused
	// Running is "runnable": either currently executing or sitting in
	// the runqueue waiting its turn.
	Running
	// LockBlocked is "waiting in some kmutex.Mutex's waitlist".
	LockBlocked
	// FlagBlocked is "waiting on its own thread flags" (kflags keeps no
	// waitlist); WaitMode on the TCB says which combinator (any/all/one).
	FlagBlocked
	// ChanTxBlocked is "waiting to hand a value to a receiver".
	ChanTxBlocked
	// ChanRxBlocked is "waiting to receive a value from a sender".
	ChanRxBlocked
)

func (s ThreadState) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Paused:
		return "paused"
	case Running:
		return "running"
	case LockBlocked:
		return "lock-blocked"
	case FlagBlocked:
		return "flag-blocked"
	case ChanTxBlocked:
		return "chan-tx-blocked"
	case ChanRxBlocked:
		return "chan-rx-blocked"
	default:
		return "unknown"
	}
}

// FlagWaitMode selects which combinator a FlagBlocked thread is waiting
// under; only meaningful when TCB.State == FlagBlocked.
type FlagWaitMode int

const (
	WaitAnyMode FlagWaitMode = iota
	WaitAllMode
	WaitOneMode
)

// TCB is one thread control block. It is embedded directly in the kernel's
// statically sized Table -- there is no dynamic allocation anywhere in the
// scheduler (kconfig.NThreads bounds the table at package init).
type TCB struct {
	// SP is the architecture-opaque stack pointer handle: a real address
	// on cortexm, a goroutine-handoff-channel key on simhost. pkg/kernel
	// never dereferences it -- it only ever hands it back to arch.Port.
	SP uintptr

	State    ThreadState
	WaitMode FlagWaitMode

	Priority     RunqueueID // current, possibly PI-boosted, priority
	BasePriority RunqueueID // priority as set by SetPriority / CreateThread

	Flags uint16 // thread-flags bitmask (pkg/sync/kflags)
	Mask  uint16 // the mask a FlagBlocked thread is waiting on

	PID ThreadID

	entry uintptr // introspection/trace only: the thread's entry point
	name  string
}

// ThreadStructSize reports sizeof(TCB) as Go computes it, a thread struct
// size introspection helper useful for sizing static memory budgets
// against kconfig.NThreads.
func ThreadStructSize() uintptr {
	return tcbSize
}
