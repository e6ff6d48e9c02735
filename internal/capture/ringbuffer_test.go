package capture

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// For all sequences of push/pop, the accounting invariant
// pushed - popped == level holds, and level never exceeds capacity.
func TestPushPopAccounting(t *testing.T) {
	const capacity = 64
	rb := New(capacity)

	var pushed, popped int

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		if rng.Intn(2) == 0 {
			n := rng.Intn(40)
			samples := make([]int16, n)
			accepted := rb.Push(samples)
			pushed += accepted
		} else {
			n := rng.Intn(40)
			out := rb.Pop(n)
			popped += len(out)
		}

		require.LessOrEqual(t, rb.Level(), capacity)
		require.Equal(t, pushed-popped, rb.Level())
	}
}

// Pushing 10x capacity without popping saturates the buffer and drops
// exactly 9x capacity worth of samples.
func TestPushOverrunDropsExcess(t *testing.T) {
	const capacity = 100
	rb := New(capacity)

	samples := make([]int16, 10*capacity)
	accepted := rb.Push(samples)

	require.Equal(t, capacity, accepted)
	require.Equal(t, capacity, rb.Level())
	require.Equal(t, uint64(9*capacity), rb.Dropped())
}

func TestPopFIFOOrder(t *testing.T) {
	rb := New(16)
	rb.Push([]int16{1, 2, 3, 4, 5})

	out := rb.Pop(3)
	require.Equal(t, []int16{1, 2, 3}, out)

	rb.Push([]int16{6, 7})
	out = rb.Pop(10)
	require.Equal(t, []int16{4, 5, 6, 7}, out)
}

func TestPopMoreThanAvailableReturnsWhatThereIs(t *testing.T) {
	rb := New(16)
	rb.Push([]int16{1, 2, 3})
	out := rb.Pop(100)
	require.Equal(t, []int16{1, 2, 3}, out)
	require.Equal(t, 0, rb.Level())
}
