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

// Package systick drives a periodic timer tick from a goroutine paced by a
// golang.org/x/time/rate limiter, standing in for the Cortex-M SysTick
// exception's fixed period; it has no hardware SysTick path. It is the one
// source of wall-clock-driven wakeups in this
// kernel -- Ticker.Sleep parks the calling thread until a given number of
// ticks have elapsed, the nearest equivalent to a duration-based sleep this
// tick-counted (not wall-clock) kernel can offer.
package systick

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/time/rate"

	"riotkernel.dev/kernel/pkg/kernel"
)

type pending struct {
	wakeAtTick uint64
	id         kernel.ThreadID
}

type pendingHeap []pending

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].wakeAtTick < h[j].wakeAtTick }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(pending)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Ticker drives a kernel's tick count and wakes threads that asked to
// Sleep for a number of ticks.
type Ticker struct {
	k *kernel.Kernel

	mu      sync.Mutex
	tick    uint64
	waiting pendingHeap

	stop chan struct{}
}

// New returns a Ticker for k. It does not start running until Start is
// called.
func New(k *kernel.Kernel) *Ticker {
	t := &Ticker{k: k, stop: make(chan struct{})}
	heap.Init(&t.waiting)
	return t
}

// Start launches the background goroutine that fires at r ticks per
// second, burst sized per rate.NewLimiter's usual convention.
func (t *Ticker) Start(r rate.Limit, burst int) {
	limiter := rate.NewLimiter(r, burst)
	go func() {
		ctx := context.Background()
		for {
			select {
			case <-t.stop:
				return
			default:
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			t.fire()
		}
	}()
}

// Stop halts the background goroutine.
func (t *Ticker) Stop() {
	close(t.stop)
}

func (t *Ticker) fire() {
	t.mu.Lock()
	t.tick++
	now := t.tick
	var due []kernel.ThreadID
	for t.waiting.Len() > 0 && t.waiting[0].wakeAtTick <= now {
		due = append(due, heap.Pop(&t.waiting).(pending).id)
	}
	t.mu.Unlock()

	for _, id := range due {
		t.k.Wakeup(id)
	}
}

// Sleep parks the calling thread for ticks timer ticks.
func (t *Ticker) Sleep(ticks uint64) {
	id, ok := t.k.CurrentPID()
	if !ok {
		return
	}
	t.mu.Lock()
	heap.Push(&t.waiting, pending{wakeAtTick: t.tick + ticks, id: id})
	t.mu.Unlock()
	t.k.Sleep()
}
