package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSPSCBasic(t *testing.T) {
	q := NewSPSC[int](4)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))

	v, ok := q.Poll()
	require.True(t, ok)
	require.Equal(t, 1, v)
	v, ok = q.Poll()
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, ok = q.Poll()
	require.False(t, ok, "empty ring must report empty, not block")
}

func TestSPSCFullRejectsPush(t *testing.T) {
	q := NewSPSC[int](2)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.False(t, q.Push(3), "full ring must report full, not block")

	q.Poll()
	require.True(t, q.Push(3))
}

func TestSPSCWrapAround(t *testing.T) {
	q := NewSPSC[int](4)
	for round := 0; round < 10; round++ {
		for i := 0; i < 4; i++ {
			require.True(t, q.Push(round*4+i))
		}
		for i := 0; i < 4; i++ {
			v, ok := q.Poll()
			require.True(t, ok)
			require.Equal(t, round*4+i, v)
		}
	}
}

func TestSPSCRequiresPowerOfTwo(t *testing.T) {
	require.Panics(t, func() { NewSPSC[int](3) })
	require.Panics(t, func() { NewMPSC[int](0) })
}

func TestSPSCConcurrentTransfer(t *testing.T) {
	q := NewSPSC[uint64](1 << 10)
	const n = 100000

	var sum uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		received := 0
		for received < n {
			v, ok := q.Poll()
			if !ok {
				continue
			}
			sum += v
			received++
		}
	}()

	for i := uint64(1); i <= n; i++ {
		for !q.Push(i) {
		}
	}
	<-done
	require.Equal(t, uint64(n)*(n+1)/2, sum)
}

func TestMPSCBasic(t *testing.T) {
	q := NewMPSC[string](4)
	require.True(t, q.Push("a"))
	require.True(t, q.Push("b"))

	v, ok := q.Poll()
	require.True(t, ok)
	require.Equal(t, "a", v)

	_, ok = NewMPSC[string](4).Poll()
	require.False(t, ok)
}

func TestMPSCFullRejectsPush(t *testing.T) {
	q := NewMPSC[int](2)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.False(t, q.Push(3))

	q.Poll()
	require.True(t, q.Push(3))
}

func TestMPSCManyProducers(t *testing.T) {
	q := NewMPSC[int](1 << 12)
	const producers = 8
	const perProducer = 5000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.Push(1) {
				}
			}
		}()
	}

	total := 0
	consumed := make(chan int)
	go func() {
		sum := 0
		for sum < producers*perProducer {
			v, ok := q.Poll()
			if !ok {
				continue
			}
			sum += v
		}
		consumed <- sum
	}()

	wg.Wait()
	total = <-consumed
	require.Equal(t, producers*perProducer, total)
}
