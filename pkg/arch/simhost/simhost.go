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

// Package simhost is the host-only arch.Port backend: it stands in for real
// Cortex-M hardware in tests, cmd/ktop, and CI, where the hosted Go toolchain
// cannot produce a freestanding Cortex-M binary. Each kernel thread is a
// parked goroutine rather than a stack frame switched by assembly; the
// "stack pointer" the scheduler core juggles is an opaque handle into a
// table of per-goroutine handoff channels.
package simhost

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"riotkernel.dev/kernel/pkg/arch"
)

type threadCtx struct {
	resume chan struct{}
}

// Simhost implements arch.Port on top of goroutines and a process-wide
// mutex standing in for "interrupts disabled", this port's side of the
// single global critical section model.
type Simhost struct {
	mu sync.Mutex

	wfi *semaphore.Weighted // WFI permits: Acquire is the WFI, Release is the interrupt

	tmu     sync.Mutex
	threads map[uintptr]*threadCtx
	nextSP  uintptr
}

// New returns a ready Simhost backend.
func New() *Simhost {
	return &Simhost{
		wfi:     semaphore.NewWeighted(1),
		threads: make(map[uintptr]*threadCtx),
		nextSP:  1, // 0 is reserved to mean "no prior thread" in Switch
	}
}

// InitStack spawns the goroutine that will run entry(arg); it parks
// immediately, waiting for its first Switch, exactly as a real thread's
// initial stack frame waits to be resumed by the first context switch into
// it.
func (s *Simhost) InitStack(stack []byte, entry func(arg uintptr), arg uintptr, trampoline func()) uintptr {
	s.tmu.Lock()
	sp := s.nextSP
	s.nextSP++
	ctx := &threadCtx{resume: make(chan struct{})}
	s.threads[sp] = ctx
	s.tmu.Unlock()

	go func() {
		<-ctx.resume
		entry(arg)
		trampoline()
	}()
	return sp
}

// RequestSchedule releases a WFI permit: on real hardware pending PendSV is
// itself the interrupt that wakes an idle core, so "ask for a reschedule"
// and "wake the idle loop if it's sleeping" are the same operation here.
// At most one permit is ever outstanding: an already-pending one is taken
// back first, so repeated requests collapse into one instead of releasing
// the weight-1 semaphore more than it holds.
func (s *Simhost) RequestSchedule() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.wfi.TryAcquire(1)
	s.wfi.Release(1)
}

// WithCriticalSection disables "interrupts" by holding the single global
// lock for the duration of f, handing f a capability token that proves it.
func (s *Simhost) WithCriticalSection(f func(arch.CS)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(arch.CS{})
}

// WaitForInterrupt blocks until RequestSchedule (or any other simulated
// interrupt source) next releases a permit.
func (s *Simhost) WaitForInterrupt() {
	_ = s.wfi.Acquire(context.Background(), 1)
}

// Switch hands control to the to thread and blocks the calling goroutine
// until it is itself next switched to. from == 0 means "no thread to park"
// -- used the very first time StartThreading hands off from the boot
// goroutine, which never resumes.
func (s *Simhost) Switch(from, to uintptr) {
	s.tmu.Lock()
	toCtx := s.threads[to]
	var fromCtx *threadCtx
	if from != 0 {
		fromCtx = s.threads[from]
	}
	s.tmu.Unlock()

	toCtx.resume <- struct{}{}
	if fromCtx != nil {
		<-fromCtx.resume
	}
}

// StartThreading hands off from the calling (boot) goroutine to the thread
// at initialSP and blocks forever: on simhost "never returns" means parking
// the boot goroutine, since there is no real reset-stack unwind to discard.
func (s *Simhost) StartThreading(initialSP uintptr) {
	s.Switch(0, initialSP)
	select {}
}
