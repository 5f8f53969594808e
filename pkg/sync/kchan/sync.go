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

// Package kchan implements the two channel flavors every thread uses to
// hand values to another: Sync, a zero-buffer rendezvous, and Buffered, a
// fixed-capacity ring buffer. Sync passes values directly between the
// sender's and receiver's own stack-resident variables rather than through
// an intermediate copy; Buffered stores values in its ring, except that a
// Send finding a receiver already waiting writes straight into its variable.
package kchan

import (
	"riotkernel.dev/kernel/pkg/arch"
	"riotkernel.dev/kernel/pkg/kernel"
	"riotkernel.dev/kernel/pkg/sched/runq"
)

// rendezvous is the wait-state payload a blocked Sync sender or receiver
// carries: a pointer into its own stack frame and a completion signal.
//
// Preconditions: ptr is only ever dereferenced by the other side of the
// rendezvous from inside the same critical section that also transitions
// this thread back to Running -- the thread that owns the stack ptr points
// into is therefore guaranteed still suspended (never re-entering the
// function that declared it) for the entire window ptr may be read or
// written. This is a precondition this package documents and relies on
// callers to respect; nothing here enforces it statically.
type rendezvous[T any] struct {
	ptr  *T
	done chan struct{}
}

// Sync is a zero-buffer channel: Send blocks until a receiver is ready to
// take the value (or vice versa), so at most one value is ever "in
// flight". Waiters queue in strict arrival order (runq.FifoList), not
// priority order: a sender or receiver that blocked first is served
// first, regardless of what priority either side runs at.
type Sync[T any] struct {
	k         *kernel.Kernel
	senders   *runq.FifoList[*rendezvous[T]]
	receivers *runq.FifoList[*rendezvous[T]]
}

// NewSync returns an empty Sync channel driven by k.
func NewSync[T any](k *kernel.Kernel) *Sync[T] {
	return &Sync[T]{
		k:         k,
		senders:   runq.NewFifoList[*rendezvous[T]](),
		receivers: runq.NewFifoList[*rendezvous[T]](),
	}
}

// Send blocks until a receiver takes v.
func (c *Sync[T]) Send(v T) {
	blocked := false
	var rv *rendezvous[T]
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if _, payload, ok := kernel.Wake(c.k, cs, c.receivers); ok {
			*payload.ptr = v
			close(payload.done)
			return
		}
		rv = &rendezvous[T]{ptr: &v, done: make(chan struct{})}
		kernel.Park(c.k, cs, c.senders, kernel.ChanTxBlocked, rv)
		blocked = true
	})
	c.k.Port().RequestSchedule()
	if blocked {
		c.k.Reschedule()
		<-rv.done
	}
}

// Recv blocks until a sender hands over a value.
func (c *Sync[T]) Recv() T {
	var v T
	blocked := false
	var rv *rendezvous[T]
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if _, payload, ok := kernel.Wake(c.k, cs, c.senders); ok {
			v = *payload.ptr
			close(payload.done)
			return
		}
		rv = &rendezvous[T]{ptr: &v, done: make(chan struct{})}
		kernel.Park(c.k, cs, c.receivers, kernel.ChanRxBlocked, rv)
		blocked = true
	})
	c.k.Port().RequestSchedule()
	if blocked {
		c.k.Reschedule()
		<-rv.done
	}
	return v
}

// TrySend hands v to an already-waiting receiver without blocking.
func (c *Sync[T]) TrySend(v T) bool {
	ok := false
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if _, payload, found := kernel.Wake(c.k, cs, c.receivers); found {
			*payload.ptr = v
			close(payload.done)
			ok = true
		}
	})
	if ok {
		c.k.Port().RequestSchedule()
	}
	return ok
}

// TryRecv takes a value from an already-waiting sender without blocking.
func (c *Sync[T]) TryRecv() (T, bool) {
	var v T
	ok := false
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if _, payload, found := kernel.Wake(c.k, cs, c.senders); found {
			v = *payload.ptr
			close(payload.done)
			ok = true
		}
	})
	if ok {
		c.k.Port().RequestSchedule()
	}
	return v, ok
}
