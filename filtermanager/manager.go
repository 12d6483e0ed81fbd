package filtermanager

import (
	"github.com/aarsakian/FSRecover/filters"
	"github.com/aarsakian/FSRecover/tree"
)

type FilterManager struct {
	filters []filters.Filter
}

func (filterManager *FilterManager) Register(filter filters.Filter) {
	filterManager.filters = append(filterManager.filters, filter)
}

func (filterManager FilterManager) Len() int {
	return len(filterManager.filters)
}

func (filterManager FilterManager) ApplyFilters(entries []tree.Entry) []tree.Entry {
	for _, filter := range filterManager.filters {
		entries = filter.Execute(entries)
	}
	return entries
}
