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

package kchan_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riotkernel.dev/kernel/pkg/arch/simhost"
	"riotkernel.dev/kernel/pkg/kernel"
	"riotkernel.dev/kernel/pkg/sync/kchan"
)

func TestBufferedTrySendTryRecvFIFO(t *testing.T) {
	k := kernel.New(simhost.New(), nil)
	ch := kchan.NewBuffered[int](k, 3)

	assert.True(t, ch.TrySend(1))
	assert.True(t, ch.TrySend(2))
	assert.True(t, ch.TrySend(3))
	assert.False(t, ch.TrySend(4), "ring is at capacity")

	v, ok := ch.TryRecv()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, ch.TrySend(4), "popping one slot must free room")

	for _, want := range []int{2, 3, 4} {
		v, ok := ch.TryRecv()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok = ch.TryRecv()
	assert.False(t, ok, "ring is empty")
}

// TestBufferedDrainThenRefillPreservesOrder exercises the case where Recv
// both pops an already-buffered value and, because a sender is also waiting
// on a full ring, pushes that sender's value onto the tail rather than
// handing it straight to this receiver -- so the buffered 1 comes out first,
// the waiting sender's 2 second, and the sender is released.
func TestBufferedDrainThenRefillPreservesOrder(t *testing.T) {
	k := kernel.New(simhost.New(), nil)
	ch := kchan.NewBuffered[int](k, 1)
	order := make(chan string, 3)

	require.True(t, ch.TrySend(1))

	k.CreateThreadNoArg(func() {
		ch.Send(2) // blocks: the ring is already full
		order <- "sender-done"
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)

	k.CreateThreadNoArg(func() {
		first := ch.Recv()
		order <- "first:" + strconv.Itoa(first)
		second := ch.Recv()
		order <- "second:" + strconv.Itoa(second)
		for {
			k.Sleep()
		}
	}, make([]byte, 4096), 1)

	go k.StartThreading()

	assert.Equal(t, "first:1", recvWithin(t, order, time.Second))
	assert.Equal(t, "second:2", recvWithin(t, order, time.Second))
	assert.Equal(t, "sender-done", recvWithin(t, order, time.Second))
}
