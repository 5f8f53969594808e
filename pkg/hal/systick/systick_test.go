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

package systick_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"riotkernel.dev/kernel/pkg/arch/simhost"
	"riotkernel.dev/kernel/pkg/hal/systick"
	"riotkernel.dev/kernel/pkg/kernel"
)

func TestTickerWakesSleeperAfterEnoughTicks(t *testing.T) {
	k := kernel.New(simhost.New(), nil)
	ticker := systick.New(k)
	woke := make(chan struct{})

	k.CreateThreadNoArg(func() {
		ticker.Sleep(3)
		close(woke)
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)

	go k.StartThreading()

	ticker.Start(rate.Limit(200), 1) // fast enough for a test, still real scheduling
	defer ticker.Stop()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("sleeping thread was never woken by the ticker")
	}
}

func TestTickerOrdersMultipleSleepersByDeadline(t *testing.T) {
	k := kernel.New(simhost.New(), nil)
	ticker := systick.New(k)
	order := make(chan string, 2)

	k.CreateThreadNoArg(func() {
		ticker.Sleep(5)
		order <- "long"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)
	k.CreateThreadNoArg(func() {
		ticker.Sleep(2)
		order <- "short"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)

	go k.StartThreading()

	ticker.Start(rate.Limit(200), 1)
	defer ticker.Stop()

	select {
	case first := <-order:
		assert.Equal(t, "short", first, "the sleeper with the earlier deadline must wake first")
	case <-time.After(time.Second):
		t.Fatal("no sleeper woke")
	}
}
