// Package pagination turns an offset/limit page protocol into either a fully
// materialized slice (Collect, CollectParallel) or a lazily pulled sequence
// (Stream).
//
// Every driver works over a FetchFunc that returns one Page. A page without
// a NextOffset, or with no items, signals exhaustion. Limits are evaluated
// in this order after each page: MaxItems (the result is truncated to
// exactly MaxItems), MaxPages, exhaustion.
//
// Example usage:
//
//	fetch := func(ctx context.Context, offset, limit int) (pagination.Page[Record], error) {
//		return api.ListRecords(ctx, offset, limit)
//	}
//	records, err := pagination.Collect(ctx, fetch, pagination.Options{Limit: 100, MaxItems: 1000})
//
//	for rec, err := range pagination.Stream(ctx, fetch, pagination.Options{Limit: 100}) {
//		if err != nil {
//			return err
//		}
//		process(rec)
//	}
//
// Drivers never reorder items and never skip a failed page: a fetch failure
// ends the whole operation. Retries belong in the FetchFunc.
//
// Every driver wraps a fetch failure with the offset of the failed page
// ("fetch page at offset 20: ..."); CollectParallel prefixes the first page
// and the concurrent pages separately. The original failure stays reachable
// through errors.Is and errors.As.
package pagination
