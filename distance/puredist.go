package distance

import "fmt"

// SquaredEuclidean computes the squared euclidean distance rounded down to an
// int64. Skipping the square root does not affect nearest neighbour results
// because it is monotonic, and the integer value gives the search heaps a
// total order to key on. Mismatched lengths are a programmer error.
func SquaredEuclidean(x, y []float32) int64 {
	if len(x) != len(y) {
		panic(fmt.Sprintf("vector length mismatch: %d != %d", len(x), len(y)))
	}
	var sum float32
	for i := range x {
		diff := x[i] - y[i]
		sum += diff * diff
	}
	return int64(sum)
}
