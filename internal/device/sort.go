package device

import "sort"

// KeyValue is a record sorted by SortByKey: a numeric key (for PME, the
// flattened grid cell index) and the payload it orders (the particle index).
type KeyValue struct {
	Key   int32
	Value int32
}

// SortByKey sorts records by key using the worker pool: each worker sorts a
// contiguous chunk, then chunks are merged pairwise. Equal keys keep no
// particular order, matching the device sort it stands in for.
func SortByKey(p *Pool, records []KeyValue) {
	n := len(records)
	if n < 2 {
		return
	}
	workers := p.Workers()
	if workers > n/2 {
		workers = 1
	}
	if workers == 1 {
		sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
		return
	}

	bounds := make([]int, workers+1)
	for w := 0; w <= workers; w++ {
		bounds[w] = w * n / workers
	}
	p.Run(workers, func(start, end int) {
		for w := start; w < end; w++ {
			chunk := records[bounds[w]:bounds[w+1]]
			sort.Slice(chunk, func(i, j int) bool { return chunk[i].Key < chunk[j].Key })
		}
	})

	// Pairwise merge until one run remains.
	buf := make([]KeyValue, n)
	for len(bounds) > 2 {
		next := []int{0}
		for i := 0; i+2 < len(bounds); i += 2 {
			merge(records[bounds[i]:bounds[i+1]], records[bounds[i+1]:bounds[i+2]], buf[bounds[i]:bounds[i+2]])
			copy(records[bounds[i]:bounds[i+2]], buf[bounds[i]:bounds[i+2]])
			next = append(next, bounds[i+2])
		}
		if len(bounds)%2 == 0 {
			next = append(next, bounds[len(bounds)-1])
		}
		bounds = next
	}
}

func merge(a, b, dst []KeyValue) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Key <= b[j].Key {
			dst[k] = a[i]
			i++
		} else {
			dst[k] = b[j]
			j++
		}
		k++
	}
	copy(dst[k:], a[i:])
	copy(dst[k+len(a)-i:], b[j:])
}
