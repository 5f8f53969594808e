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

//go:build arm

// Package cortexm is the real-hardware arch.Port backend for single-core
// ARM Cortex-M targets (armv6m/armv7m/armv8m). The PendSV/SVCall exception
// handlers are implemented in Plan 9 assembly in pendsv_arm.s and
// svc_arm.s; the initial stack frame layout and the rest of this file's
// logic don't need to be asm and live directly in Go.
package cortexm

import (
	"unsafe"

	"riotkernel.dev/kernel/pkg/arch"
)

// frameWords is the register count saved by the PendSV handler below the
// hardware-stacked frame: r4-r11, matching thread.rs's Cortex-M port.
const frameWords = 8

// hwFrameWords is the number of words the exception entry itself stacks:
// r0-r3, r12, LR, PC, xPSR.
const hwFrameWords = 8

// CortexM implements arch.Port for real Cortex-M silicon.
type CortexM struct {
	current uintptr
}

// New returns a CortexM port. There is exactly one per binary.
func New() *CortexM {
	return &CortexM{}
}

// InitStack lays out the initial frame bit-for-bit the way exception entry
// would have stacked it, so that the first PendSV into this thread is
// indistinguishable from resuming a thread that was merely interrupted.
//
// Layout, from low to high address, 8-byte aligned top:
//
//	[r4 r5 r6 r7 r8 r9 r10 r11] [r0 r1 r2 r3 r12 LR PC xPSR]
//
// r0 carries arg, PC carries entry, LR carries trampoline (the return
// address used if/when entry ever returns), xPSR is 0x01000000 (Thumb bit
// set, no exception active).
func (c *CortexM) InitStack(stack []byte, entry func(arg uintptr), arg uintptr, trampoline func()) uintptr {
	top := uintptr(unsafe.Pointer(&stack[len(stack)-1])) + 1
	top &^= 7 // 8-byte align

	frame := top - (frameWords+hwFrameWords)*4
	words := (*[frameWords + hwFrameWords]uintptr)(unsafe.Pointer(frame))

	for i := 0; i < frameWords; i++ {
		words[i] = 0 // r4-r11, don't-care initial values
	}
	entryPtr, argPtr := funcToPtrs(entry, trampoline)
	words[frameWords+0] = arg    // r0
	words[frameWords+1] = 0      // r1
	words[frameWords+2] = 0      // r2
	words[frameWords+3] = 0      // r3
	words[frameWords+4] = 0      // r12
	words[frameWords+5] = argPtr // LR = trampoline
	words[frameWords+6] = entryPtr
	words[frameWords+7] = 0x01000000 // xPSR

	return frame
}

// funcToPtrs extracts the code entry points for entry and trampoline. Real
// Cortex-M thread bodies are free functions taking a uintptr, not Go method
// values with captured state; CreateThread's contract (see pkg/kernel)
// guarantees the entry passed down to this layer is always a closure-free
// function value suitable for this conversion.
func funcToPtrs(entry func(arg uintptr), trampoline func()) (entryPtr, trampolinePtr uintptr) {
	type fnValue struct {
		code uintptr
	}
	return (*(*fnValue)(unsafe.Pointer(&entry))).code, (*(*fnValue)(unsafe.Pointer(&trampoline))).code
}

// RequestSchedule pends the PendSV exception.
func (c *CortexM) RequestSchedule() {
	pendSVSet()
}

// WithCriticalSection raises BASEPRI to mask all maskable interrupts,
// implementing this port's side of the single global critical section,
// and restores the prior BASEPRI value on return even if f panics.
func (c *CortexM) WithCriticalSection(f func(arch.CS)) {
	old := disableInterrupts()
	defer restoreInterrupts(old)
	f(arch.CS{})
}

// WaitForInterrupt executes WFI.
func (c *CortexM) WaitForInterrupt() {
	wfi()
}

// Switch is a no-op: the PendSV handler performs the actual register
// save/restore and branch in assembly immediately after Kernel.sched
// returns the new stack pointer.
func (c *CortexM) Switch(from, to uintptr) {}

// StartThreading triggers the one-shot SVCall bootstrap and never returns.
func (c *CortexM) StartThreading(initialSP uintptr) {
	svcStartThreading(initialSP)
}

// Implemented in pendsv_arm.s / svc_arm.s.
func pendSVSet()
func disableInterrupts() uintptr
func restoreInterrupts(saved uintptr)
func wfi()
func svcStartThreading(initialSP uintptr)

// schedTrampoline is called from the PendSV handler with interrupts
// already masked; it is exported (via //go:linkname in pendsv_arm.s's
// caller) so the assembly can call into the architecture-independent
// scheduler core without pkg/kernel importing pkg/arch/cortexm, which
// would be a cyclic import. The concrete wiring (SetSchedFunc) happens
// once at kernel.New time.
var schedTrampoline func(oldSP uintptr) (newSP uintptr)

// SetSchedFunc installs the scheduler core's sched entry point. Called
// exactly once, from kernel.New, when a CortexM port is selected.
func (c *CortexM) SetSchedFunc(f func(oldSP uintptr) (newSP uintptr)) {
	schedTrampoline = f
}
