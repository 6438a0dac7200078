package postgres

const (
	// queryBatchSize chunks id lists in association lookups.
	queryBatchSize = 50
	// deleteBatchSize chunks junction deletes during a purge.
	deleteBatchSize = 20
)

// inBatches runs fn over items in chunks of size. A failing chunk does not
// stop the remaining ones; all chunk errors are returned in order.
func inBatches[T any](items []T, size int, fn func(batch []T) error) []error {
	var errs []error
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		if err := fn(items[start:end]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
