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

// Package autostart stands in for an attribute-macro-driven autostart
// mechanism some embedded kernels expand into glue code at compile time.
// Go has no procedural-macro attribute system, so the idiomatic equivalent
// is a registration-based pattern familiar from CLI subcommand registries:
// packages that want a thread created at boot call Register from an init
// func, and Kernel.StartThreading's caller drains the registry once,
// immediately before calling StartThreading.
package autostart

import (
	"riotkernel.dev/kernel/pkg/kernel"
	"riotkernel.dev/kernel/pkg/sync/kflags"
)

// readyFlag is a bit reserved out of the 16-bit kflags space for this
// package's own use: autostart threads that wait for MarkReady block on
// it via kflags.WaitAny, the same blocking primitive user code uses for
// its own flags, just with the top bit carved out so it can't collide
// with an application's own flag assignments.
const readyFlag uint16 = 0x8000

// Config describes one autostart thread.
type Config struct {
	Name      string
	StackSize int               // default 2048 if zero
	Priority  kernel.RunqueueID // default 1 if zero
	NoWait    bool              // if true, Entry runs immediately rather than waiting for MarkReady
	Entry     func()
}

const defaultStackSize = 2048

var registry []Config

// MarkReady signals that system initialization is complete: every thread
// in ids (typically CreateAll's return value) that is still waiting --
// any Config registered with NoWait == false -- becomes runnable.
//
// This is implemented as a kflags.Set against each id rather than a
// one-shot channel close, so it works no matter which runs first: Set
// ORs readyFlag into a thread's flags unconditionally, whether or not
// that thread has reached its WaitAny call yet, and WaitAny's first check
// is always against the current flags -- a thread that checks after
// MarkReady already ran simply finds the bit already set and never
// blocks at all. A raw channel read in the entry closure would instead
// have to block the underlying goroutine directly, without going
// through Kernel.Sleep, which would never hand control back to any other
// thread.
func MarkReady(k *kernel.Kernel, ids []kernel.ThreadID) {
	for _, id := range ids {
		kflags.Set(k, id, readyFlag)
	}
}

// Register adds cfg to the autostart registry. Intended to be called from
// an init() func, mirroring the familiar subcommands.Register idiom.
func Register(cfg Config) {
	if cfg.StackSize == 0 {
		cfg.StackSize = defaultStackSize
	}
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
	registry = append(registry, cfg)
}

// CreateAll creates one thread per registered Config via k, returning the
// assigned thread ids in registration order. Intended to be called exactly
// once, after all init funcs have run and before Kernel.StartThreading.
// Threads registered with NoWait == false do not run Entry until
// MarkReady is called with (at least) their id.
func CreateAll(k *kernel.Kernel) []kernel.ThreadID {
	ids := make([]kernel.ThreadID, 0, len(registry))
	for _, cfg := range registry {
		cfg := cfg
		entry := cfg.Entry
		if !cfg.NoWait {
			entry = func() {
				kflags.WaitAny(k, readyFlag)
				cfg.Entry()
			}
		}
		stack := make([]byte, cfg.StackSize)
		ids = append(ids, k.CreateThreadNoArg(entry, stack, cfg.Priority))
	}
	return ids
}
