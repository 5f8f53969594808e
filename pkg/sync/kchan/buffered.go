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

package kchan

import (
	"riotkernel.dev/kernel/pkg/arch"
	"riotkernel.dev/kernel/pkg/kernel"
	"riotkernel.dev/kernel/pkg/sched/runq"
)

// bufPayload is a blocked sender's wait-state payload on a full Buffered
// channel: the value it wants to hand over, and a completion signal raised
// once that value has actually been accepted -- either moved into the ring
// or handed straight to a receiver.
type bufPayload[T any] struct {
	val  T
	done chan struct{}
}

// Buffered is a fixed-capacity ring-buffer channel. Send blocks only once
// the ring is full; Recv blocks only once it's empty. Waiters queue in
// strict arrival order (runq.FifoList), not priority order: a sender or
// receiver that blocked first is served first, regardless of what
// priority either side runs at.
type Buffered[T any] struct {
	k    *kernel.Kernel
	ring []T
	head int
	len  int
	cap  int

	senders   *runq.FifoList[*bufPayload[T]]
	receivers *runq.FifoList[*T]
}

// NewBuffered returns an empty Buffered channel of the given capacity.
func NewBuffered[T any](k *kernel.Kernel, capacity int) *Buffered[T] {
	return &Buffered[T]{
		k:         k,
		ring:      make([]T, capacity),
		cap:       capacity,
		senders:   runq.NewFifoList[*bufPayload[T]](),
		receivers: runq.NewFifoList[*T](),
	}
}

func (c *Buffered[T]) push(v T) {
	idx := (c.head + c.len) % c.cap
	c.ring[idx] = v
	c.len++
}

func (c *Buffered[T]) pop() T {
	v := c.ring[c.head]
	c.head = (c.head + 1) % c.cap
	c.len--
	return v
}

// Send blocks until there is room for v, either in the ring or directly in
// a waiting receiver's hands.
func (c *Buffered[T]) Send(v T) {
	blocked := false
	var bp *bufPayload[T]
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if _, dst, ok := kernel.Wake(c.k, cs, c.receivers); ok {
			*dst = v
			return
		}
		if c.len < c.cap {
			c.push(v)
			return
		}
		bp = &bufPayload[T]{val: v, done: make(chan struct{})}
		kernel.Park(c.k, cs, c.senders, kernel.ChanTxBlocked, bp)
		blocked = true
	})
	c.k.Port().RequestSchedule()
	if blocked {
		c.k.Reschedule()
		<-bp.done
	}
}

// Recv blocks until a value is available, either already in the ring or
// from a waiting sender.
//
// When the ring holds a value and a sender is also waiting (the ring was
// full), the freed slot is given to that waiting sender's value -- pushed
// onto the tail of the ring, not handed straight to this call -- so FIFO
// order across everything ever sent is preserved.
func (c *Buffered[T]) Recv() T {
	var v T
	blocked := false
	var dst *T
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if c.len > 0 {
			v = c.pop()
			if _, bp, ok := kernel.Wake(c.k, cs, c.senders); ok {
				c.push(bp.val)
				close(bp.done)
			}
			return
		}
		if _, bp, ok := kernel.Wake(c.k, cs, c.senders); ok {
			v = bp.val
			close(bp.done)
			return
		}
		dst = &v
		kernel.Park(c.k, cs, c.receivers, kernel.ChanRxBlocked, dst)
		blocked = true
	})
	c.k.Port().RequestSchedule()
	if blocked {
		c.k.Reschedule()
	}
	return v
}

// TrySend pushes v into the ring or hands it to a waiting receiver without
// blocking.
func (c *Buffered[T]) TrySend(v T) bool {
	ok := false
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if _, dst, found := kernel.Wake(c.k, cs, c.receivers); found {
			*dst = v
			ok = true
			return
		}
		if c.len < c.cap {
			c.push(v)
			ok = true
		}
	})
	if ok {
		c.k.Port().RequestSchedule()
	}
	return ok
}

// TryRecv takes a value from the ring or a waiting sender without blocking.
func (c *Buffered[T]) TryRecv() (T, bool) {
	var v T
	ok := false
	c.k.Port().WithCriticalSection(func(cs arch.CS) {
		if c.len > 0 {
			v = c.pop()
			if _, bp, found := kernel.Wake(c.k, cs, c.senders); found {
				c.push(bp.val)
				close(bp.done)
			}
			ok = true
			return
		}
		if _, bp, found := kernel.Wake(c.k, cs, c.senders); found {
			v = bp.val
			close(bp.done)
			ok = true
		}
	})
	if ok {
		c.k.Port().RequestSchedule()
	}
	return v, ok
}
