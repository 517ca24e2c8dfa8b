package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
)

// resolveDatasets looks up names in request order. Unknown names come back
// as skipped items; a registry failure aborts the lookup.
func resolveDatasets(ctx context.Context, registry port.DatasetRegistry, names []string) ([]entity.Dataset, []entity.SkippedItem, error) {
	var found []entity.Dataset
	var skipped []entity.SkippedItem
	for _, name := range names {
		ds, ok, err := registry.Lookup(ctx, name)
		if err != nil {
			return nil, nil, fmt.Errorf("lookup dataset %s: %w", name, err)
		}
		if !ok {
			skipped = append(skipped, entity.NewSkippedItem(name, name, fmt.Errorf("%w: %s", entity.ErrUnknownDataset, name)))
			continue
		}
		found = append(found, ds)
	}
	return found, skipped, nil
}

// sortSkipped orders frame items by index.
func sortSkipped(items []entity.SkippedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return frameOf(items[i].Item) < frameOf(items[j].Item)
	})
}

func frameOf(item string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(item, "frame "))
	if err != nil {
		return -1
	}
	return n
}

func countSkipped(dataset string, items []entity.SkippedItem) int {
	n := 0
	for _, it := range items {
		if it.Dataset == dataset {
			n++
		}
	}
	return n
}
