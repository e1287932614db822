package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/restfilter/internal/domain"
)

// Fetcher loads every related record whose join column matches one of keys.
type Fetcher func(ctx context.Context, keys []string) ([]domain.Record, error)

// KeyFunc returns the join key of a fetched record.
type KeyFunc func(domain.Record) (string, bool)

// RelationLoader batches the lookups of one relation level into a single
// fetch.
type RelationLoader struct {
	Loader *dataloader.Loader
}

// New creates a loader whose results are the related records per key.
func New(fetch Fetcher, keyOf KeyFunc) *RelationLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		records, err := fetch(ctx, keys.Keys())
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		grouped := make(map[string][]domain.Record)
		for _, record := range records {
			if key, ok := keyOf(record); ok {
				grouped[key] = append(grouped[key], record)
			}
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, key := range keys {
			related := grouped[key.String()]
			if related == nil {
				related = []domain.Record{}
			}
			results[i] = &dataloader.Result{Data: related}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &RelationLoader{Loader: loader}
}

// LoadMany returns the related records for every key, in key order.
func (l *RelationLoader) LoadMany(ctx context.Context, keys []string) ([][]domain.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	data, errs := l.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(keys))()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([][]domain.Record, len(data))
	for i, item := range data {
		related, ok := item.([]domain.Record)
		if !ok {
			return nil, fmt.Errorf("unexpected loader result %T for key %s", item, keys[i])
		}
		out[i] = related
	}
	return out, nil
}
