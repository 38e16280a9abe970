/*
Copyright (c) The JunctionRelay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushDropsWhenFull(t *testing.T) {
	q := New[int](2)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.False(t, q.Push(3))
	require.EqualValues(t, 1, q.Dropped())
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		v, ok := q.Pop(ctx)
		require.True(t, ok)
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(42)
	require.Equal(t, 42, <-done)
}

func TestConcurrentProducersNoDuplicateDelivery(t *testing.T) {
	const capacity = 10
	const producers = 5
	const perProducer = 10

	q := New[int](capacity)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	seen := map[int]bool{}
	for {
		select {
		case v := <-q.ch:
			require.False(t, seen[v], "duplicate delivery of %d", v)
			seen[v] = true
		default:
			total := producers * perProducer
			require.Equal(t, total-int(q.Dropped()), len(seen))
			require.Equal(t, total, len(seen)+int(q.Dropped()))
			return
		}
	}
}

func TestCloseUnblocksPop(t *testing.T) {
	q := New[int](1)
	ctx := context.Background()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	require.False(t, <-done)
}
