package client

// MaxBatchSize is the maximum number of records sent in one bulk request.
const MaxBatchSize = 500

// forEachChunk calls fn for consecutive chunks of at most size items, in
// order, stopping at the first error. fn is not called for an empty slice.
func forEachChunk[T any](items []T, size int, fn func(offset int, chunk []T) error) error {
	for offset := 0; offset < len(items); offset += size {
		end := min(offset+size, len(items))

		if err := fn(offset, items[offset:end]); err != nil {
			return err
		}
	}

	return nil
}
