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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"riotkernel.dev/kernel/pkg/arch/simhost"
	"riotkernel.dev/kernel/pkg/kernel"
	"riotkernel.dev/kernel/pkg/sync/kflags"
	"riotkernel.dev/kernel/pkg/sync/kmutex"
)

// manifest is the demo thread table loaded from a TOML file, e.g.:
//
//	[[thread]]
//	name = "producer"
//	priority = 2
//	stack_size = 4096
type manifest struct {
	Thread []struct {
		Name      string `toml:"name"`
		Priority  uint8  `toml:"priority"`
		StackSize int    `toml:"stack_size"`
	} `toml:"thread"`
}

type runCommand struct {
	manifestPath string
}

func (*runCommand) Name() string     { return "run" }
func (*runCommand) Synopsis() string { return "boot the kernel under the host simulator" }
func (*runCommand) Usage() string {
	return "run [-manifest file.toml]\n  Boot the kernel under simhost and run the built-in priority-inheritance and thread-flags demo.\n"
}

func (r *runCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.manifestPath, "manifest", "", "optional TOML thread manifest (informational only; the demo threads are always created)")
}

func (r *runCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logrus.NewEntry(log)

	if r.manifestPath != "" {
		var m manifest
		if _, err := toml.DecodeFile(r.manifestPath, &m); err != nil {
			fmt.Fprintf(os.Stderr, "ktop: decoding manifest: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, t := range m.Thread {
			entry.WithFields(logrus.Fields{"name": t.Name, "priority": t.Priority}).Info("manifest thread (informational)")
		}
	}

	port := simhost.New()
	k := kernel.New(port, entry)
	mu := kmutex.New(k)

	var high kernel.ThreadID

	lowBody := func() {
		mu.Lock()
		entry.Info("low: acquired lock, doing slow work")
		kflags.Set(k, high, 0x2) // let high contend for the lock low now holds
		for i := 0; i < 1000; i++ {
			k.YieldSame()
		}
		mu.Release()
		entry.Info("low: released lock")
		kflags.Set(k, high, 0x1)
	}
	midBody := func() {
		for i := 0; i < 5; i++ {
			k.YieldSame()
		}
		entry.Info("mid: ran without waiting on low's lock")
	}
	highBody := func() {
		kflags.WaitAny(k, 0x2) // runs first otherwise; wait until low holds the lock
		entry.Info("high: waiting to acquire the lock low is holding")
		mu.Lock()
		entry.Info("high: acquired the lock (low's priority was boosted to get here)")
		mu.Release()
		kflags.WaitAny(k, 0x1)
		entry.Info("high: flag observed, demo complete")
	}

	k.CreateThreadNoArg(lowBody, make([]byte, 4096), 1)
	k.CreateThreadNoArg(midBody, make([]byte, 4096), 2)
	high = k.CreateThreadNoArg(highBody, make([]byte, 4096), 3)

	entry.Info("starting threading")
	k.StartThreading()
	return subcommands.ExitSuccess
}
