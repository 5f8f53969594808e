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

// Package kflags implements per-thread event flags: a 16-bit bitmask every
// thread carries in its own TCB, with wait_any/wait_all/wait_one blocking
// combinators. Unlike kmutex and kchan, flags need no separate waitlist
// object -- a thread only ever waits on its own mask, so the wait state
// (which combinator, which mask) lives directly on the waiting thread's
// TCB and it is linked into no runqueue or waitlist while blocked.
package kflags

import (
	"riotkernel.dev/kernel/pkg/arch"
	"riotkernel.dev/kernel/pkg/kernel"
)

// satisfied evaluates whether flags meets mask under mode, returning the
// bits that should be consumed (cleared) if so.
func satisfied(mode kernel.FlagWaitMode, flags, mask uint16) (ok bool, hit uint16) {
	switch mode {
	case kernel.WaitAnyMode:
		hit = flags & mask
		return hit != 0, hit
	case kernel.WaitAllMode:
		if flags&mask == mask {
			return true, mask
		}
		return false, 0
	case kernel.WaitOneMode:
		hit = flags & mask
		if hit == 0 {
			return false, 0
		}
		return true, hit & (^hit + 1) // lowest set bit only
	default:
		return false, 0
	}
}

// wait is the shared implementation behind WaitAny/WaitAll/WaitOne: if mode
// is already satisfied against the current thread's flags, it consumes and
// returns the satisfying bits immediately; otherwise it blocks until Set
// satisfies it.
func wait(k *kernel.Kernel, mode kernel.FlagWaitMode, mask uint16) uint16 {
	var result uint16
	blocked := false
	k.Port().WithCriticalSection(func(cs arch.CS) {
		id := k.CurrentLocked(cs)
		tcb := k.TableForSync().Get(id)
		if ok, hit := satisfied(mode, tcb.Flags, mask); ok {
			tcb.Flags &^= hit
			result = hit
			return
		}
		tcb.Mask = mask
		tcb.WaitMode = mode
		k.TableForSync().SetState(cs, id, kernel.FlagBlocked)
		blocked = true
	})
	if !blocked {
		return result
	}
	k.Reschedule()
	// Set already consumed the satisfying bits and stashed them in
	// tcb.Mask (its "waiting mask" purpose is done the instant this
	// thread is woken, so the field does double duty as the result).
	k.Port().WithCriticalSection(func(cs arch.CS) {
		id := k.CurrentLocked(cs)
		result = k.TableForSync().Get(id).Mask
	})
	return result
}

// WaitAny blocks until at least one bit in mask is set, then clears and
// returns just the bits that were set.
func WaitAny(k *kernel.Kernel, mask uint16) uint16 { return wait(k, kernel.WaitAnyMode, mask) }

// WaitAll blocks until every bit in mask is set, then clears and returns
// mask.
func WaitAll(k *kernel.Kernel, mask uint16) uint16 { return wait(k, kernel.WaitAllMode, mask) }

// WaitOne blocks until at least one bit in mask is set, then clears and
// returns only the lowest-numbered such bit.
func WaitOne(k *kernel.Kernel, mask uint16) uint16 { return wait(k, kernel.WaitOneMode, mask) }

// Set ORs mask into id's flags and, if id is currently blocked waiting on
// flags and mask now satisfies its wait, wakes it. Safe to call from an ISR
// / ISR-equivalent context.
func Set(k *kernel.Kernel, id kernel.ThreadID, mask uint16) {
	if !k.IsValidPID(id) {
		return
	}
	woke := false
	k.Port().WithCriticalSection(func(cs arch.CS) {
		tcb := k.TableForSync().Get(id)
		tcb.Flags |= mask
		if tcb.State != kernel.FlagBlocked {
			return
		}
		if ok, hit := satisfied(tcb.WaitMode, tcb.Flags, tcb.Mask); ok {
			tcb.Flags &^= hit
			tcb.Mask = hit
			k.TableForSync().SetState(cs, id, kernel.Running)
			woke = true
		}
	})
	if woke {
		k.Port().RequestSchedule()
	}
}

// Clear clears mask from id's flags unconditionally and returns the bits
// that were set beforehand.
func Clear(k *kernel.Kernel, id kernel.ThreadID, mask uint16) uint16 {
	var old uint16
	if !k.IsValidPID(id) {
		return old
	}
	k.Port().WithCriticalSection(func(cs arch.CS) {
		tcb := k.TableForSync().Get(id)
		old = tcb.Flags & mask
		tcb.Flags &^= mask
	})
	return old
}
