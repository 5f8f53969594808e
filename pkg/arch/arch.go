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

// Package arch defines the Port interface separating the scheduler core in
// pkg/kernel from the mechanism that actually switches execution contexts:
// one interface, several mutually exclusive backends (cortexm for real
// Cortex-M targets, simhost for tests), selected at build time.
package arch

// CS is the critical-section capability token. A CS value can only be
// obtained by a caller currently inside a Port.WithCriticalSection callback,
// so its mere existence as a function argument documents -- and the race
// detector / vet conventions around unexported zero-sized types discourage
// forging -- that interrupts are disabled for the duration of the call.
// It carries no data: it is a proof token, not a lock.
type CS struct {
	_ [0]int
}

// Port is the architecture-specific mechanism the scheduler core drives.
// Exactly one implementation is linked into any given binary: pkg/arch/cortexm
// for real Cortex-M targets, pkg/arch/simhost for tests, cmd/ktop, and CI.
type Port interface {
	// InitStack lays out a thread's initial stack frame so that the first
	// context switch into it looks, from the switching code's point of
	// view, exactly like resuming a previously-interrupted thread. It
	// returns the initial stack pointer to store in the new thread's TCB.
	InitStack(stack []byte, entry func(arg uintptr), arg uintptr, trampoline func()) uintptr

	// RequestSchedule asks for a reschedule at the next opportunity: on
	// cortexm this pends the PendSV exception; on simhost it signals the
	// scheduling goroutine. It never blocks and is safe to call from an
	// ISR / ISR-equivalent context.
	RequestSchedule()

	// WithCriticalSection disables interrupts (cortexm: BASEPRI/PRIMASK;
	// simhost: a process-wide mutex standing in for "interrupts disabled",
	// the single global critical section every backend models), runs f
	// with a capability token proving that, and restores the prior
	// interrupt state on return -- including when f panics.
	WithCriticalSection(f func(CS))

	// WaitForInterrupt parks the calling (idle) execution context until an
	// interrupt -- real or simulated -- occurs. Cortex-M: WFI. simhost:
	// acquire a semaphore permit released by whatever simulated interrupt
	// source (systick, Wakeup, a waking mutex/channel) next fires.
	WaitForInterrupt()

	// Switch performs the actual transfer of control from the thread
	// whose stack pointer is from to the thread whose stack pointer is
	// to. It always runs outside any WithCriticalSection call -- exactly
	// as real PendSV delivery happens after the scheduling decision's
	// critical section has already been exited -- so it is free to block.
	// On cortexm this is a no-op: the PendSV trampoline performs the
	// switch in assembly immediately after Kernel.sched returns. On
	// simhost this is where control actually changes goroutines: it
	// signals the to goroutine and blocks the calling one until it is
	// next chosen to run.
	Switch(from, to uintptr)

	// StartThreading transfers control from the boot stack to the initial
	// stack pointer and never returns to its caller.
	StartThreading(initialSP uintptr)
}
