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

package autostart_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riotkernel.dev/kernel/pkg/arch/simhost"
	"riotkernel.dev/kernel/pkg/autostart"
	"riotkernel.dev/kernel/pkg/kernel"
)

func TestCreateAllRespectsRegistrationOrderAndDefaults(t *testing.T) {
	started := make(chan string, 3)

	autostart.Register(autostart.Config{
		Name:     "alpha",
		Priority: 3,
		Entry: func() {
			started <- "alpha"
		},
	})
	autostart.Register(autostart.Config{
		Name:      "beta",
		StackSize: 8192,
		Priority:  1,
		Entry: func() {
			started <- "beta"
		},
	})
	autostart.Register(autostart.Config{
		Name:     "gamma",
		Priority: 1,
		NoWait:   true,
		Entry: func() {
			started <- "gamma"
		},
	})

	k := kernel.New(simhost.New(), nil)
	ids := autostart.CreateAll(k)
	require.Len(t, ids, 3)

	prio, ok := k.GetPriority(ids[0])
	require.True(t, ok)
	assert.Equal(t, kernel.RunqueueID(3), prio)

	prio, ok = k.GetPriority(ids[1])
	require.True(t, ok)
	assert.Equal(t, kernel.RunqueueID(1), prio)

	go k.StartThreading()

	select {
	case name := <-started:
		assert.Equal(t, "gamma", name, "a NoWait autostart thread must run without waiting for MarkReady")
	case <-time.After(time.Second):
		t.Fatal("no autostart thread ran")
	}

	select {
	case name := <-started:
		t.Fatalf("non-NoWait thread %q ran before MarkReady", name)
	case <-time.After(50 * time.Millisecond):
	}

	autostart.MarkReady(k, ids)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-started:
			seen[name] = true
		case <-time.After(time.Second):
			t.Fatal("a non-NoWait autostart thread never ran after MarkReady")
		}
	}
	assert.True(t, seen["alpha"])
	assert.True(t, seen["beta"])
}
