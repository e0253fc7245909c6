// Package partition splits a batch of work into contiguous, size-balanced groups.
package partition

// Split divides items into n contiguous groups whose sizes differ by at most one.
// The first len(items)%n groups get the extra item. Groups may be empty when n
// exceeds len(items); callers are expected to skip them.
func Split[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}

	k, m := len(items)/n, len(items)%n
	groups := make([][]T, n)

	for i := 0; i < n; i++ {
		start := i*k + min(i, m)
		end := (i+1)*k + min(i+1, m)
		groups[i] = items[start:end:end]
	}

	return groups
}

// NonEmpty returns the groups that hold at least one item, keeping their order.
func NonEmpty[T any](groups [][]T) [][]T {
	out := make([][]T, 0, len(groups))
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}

	return out
}
