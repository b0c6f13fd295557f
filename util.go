// Package util contains small helpers shared by the revutil tools.
package util

// Chunked splits a sequence into consecutive chunks of at most size
// elements. The final chunk holds whatever remains.
func Chunked[T any](seq []T, size int) [][]T {
	if size < 1 || len(seq) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(seq)+size-1)/size)
	for size < len(seq) {
		chunks = append(chunks, seq[:size])
		seq = seq[size:]
	}

	return append(chunks, seq)
}
