package datatable

import (
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/usecase/translate"
)

// Slot names one independently fetched part of a table.
type Slot string

// Fetch slots.
const (
	SlotPage      Slot = "page"
	SlotCount     Slot = "count"
	SlotAggregate Slot = "aggregate"
	SlotGroupBy   Slot = "group_by"
)

// FetchError is a failed fetch of one slot.
type FetchError struct {
	Slot Slot
	Err  error
}

func (e *FetchError) Error() string { return "fetch " + string(e.Slot) + ": " + e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// SlotStatus is the loading and error state of one slot.
type SlotStatus struct {
	Loading bool
	Err     error
}

// Snapshot is the observable state of a Coordinator.
type Snapshot struct {
	Rows []row.Row
	// HasData is false until the first page arrives.
	HasData bool
	Page    SlotStatus

	// TotalCount is fetched apart from the rows; a failed count keeps the rows.
	TotalCount  int
	PageCount   int
	CountStatus SlotStatus

	Aggregates      aggregate.Result
	AggregateStatus SlotStatus

	Groups      []aggregate.Group
	GroupStatus SlotStatus

	Warnings []translate.Warning
	// State is the committed query state; SearchTerm is the raw, not yet debounced, input.
	State      query.State
	SearchTerm string
}

// IsLoading reports whether any slot is loading.
func (s Snapshot) IsLoading() bool {
	return s.Page.Loading || s.CountStatus.Loading || s.AggregateStatus.Loading || s.GroupStatus.Loading
}

// Error returns the page error, or nil.
func (s Snapshot) Error() error { return s.Page.Err }

// TableModel is the rendering handle of a table: columns, rows and pagination.
type TableModel struct {
	columns   []string
	rows      []row.Row
	state     query.State
	total     int
	pageCount int
}

// ColumnIDs returns the configured columns in display order.
func (m TableModel) ColumnIDs() []string { return m.columns }

// Rows returns the current page's rows.
func (m TableModel) Rows() []row.Row { return m.rows }

// State returns the committed query state.
func (m TableModel) State() query.State { return m.state }

// TotalCount returns the number of matching rows.
func (m TableModel) TotalCount() int { return m.total }

// PageCount returns the number of pages at the current page size.
func (m TableModel) PageCount() int { return m.pageCount }

// CanPreviousPage reports whether a previous page exists.
func (m TableModel) CanPreviousPage() bool { return m.state.PageIndex > 0 }

// CanNextPage reports whether a next page exists.
func (m TableModel) CanNextPage() bool { return m.state.PageIndex+1 < m.pageCount }
