package device

import (
	"math/rand"
	"sort"
	"sync"
	"testing"
)

func TestContextSliceCoversRange(t *testing.T) {
	// Counts that do not divide n evenly must still cover [0,n) exactly.
	cases := []struct{ n, count int }{
		{10, 3}, {7, 4}, {5, 8}, {100, 7}, {1, 3}, {0, 2},
	}
	for _, c := range cases {
		covered := 0
		prevEnd := 0
		for i := 0; i < c.count; i++ {
			start, end := ContextSlice(i, c.n, c.count)
			if start != prevEnd {
				t.Errorf("n=%d count=%d: context %d starts at %d, want %d", c.n, c.count, i, start, prevEnd)
			}
			if end < start {
				t.Errorf("n=%d count=%d: context %d has end %d < start %d", c.n, c.count, i, end, start)
			}
			covered += end - start
			prevEnd = end
		}
		if covered != c.n {
			t.Errorf("n=%d count=%d: covered %d items", c.n, c.count, covered)
		}
		if prevEnd != c.n {
			t.Errorf("n=%d count=%d: last range ends at %d", c.n, c.count, prevEnd)
		}
	}
}

func TestQueueOrdering(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Submit(func() { got = append(got, i) })
	}
	q.Sync()

	if len(got) != 100 {
		t.Fatalf("expected 100 executions, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order execution at %d: %d", i, v)
		}
	}
}

func TestQueueBarrierHappensBefore(t *testing.T) {
	primary := NewQueue()
	secondary := NewQueue()
	defer primary.Close()
	defer secondary.Close()

	var mu sync.Mutex
	var order []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
	}

	primary.Submit(record("direct"))
	e := primary.Marker()
	secondary.Barrier(e)
	secondary.Submit(record("reciprocal"))
	e2 := secondary.Marker()
	primary.Barrier(e2)
	primary.Submit(record("reduce"))

	primary.Sync()
	secondary.Sync()

	want := []string{"direct", "reciprocal", "reduce"}
	for i, s := range want {
		if order[i] != s {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestFixedPointConcurrentSum(t *testing.T) {
	acc := NewFixedPointAccumulator(4)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				acc.Add(i%4, 0.25)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		// 0.25 is exactly representable in 2^-32 steps, so the sum is exact.
		if v := acc.Value(i); v != 500.0 {
			t.Errorf("lane %d: expected exactly 500.0, got %v", i, v)
		}
	}

	acc.Clear()
	if acc.Value(0) != 0 {
		t.Error("expected zero after clear")
	}
}

func TestSortByKey(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 2, 17, 1000, 4096} {
		records := make([]KeyValue, n)
		for i := range records {
			records[i] = KeyValue{Key: int32(rng.Intn(n/2 + 1)), Value: int32(i)}
		}
		SortByKey(NewPool(4), records)
		if !sort.SliceIsSorted(records, func(i, j int) bool { return records[i].Key < records[j].Key }) {
			t.Errorf("n=%d: records not sorted", n)
		}
	}
}

func TestArrayUploadDownload(t *testing.T) {
	a := NewArray[float64]("test", 4)
	if err := a.Upload([]float64{1, 2, 3}); err == nil {
		t.Error("expected size mismatch error")
	}
	if err := a.Upload([]float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	out := make([]float64, 4)
	if err := a.Download(out); err != nil {
		t.Fatalf("download: %v", err)
	}
	if out[3] != 4 {
		t.Errorf("expected 4, got %v", out[3])
	}
	a.Clear()
	if a.Data()[0] != 0 {
		t.Error("expected zero after clear")
	}
}
