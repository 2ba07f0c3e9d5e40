package datatable

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/usecase/querystate"
	"github.com/kailas-cloud/tablekit/internal/usecase/table"
	"github.com/kailas-cloud/tablekit/internal/usecase/translate"
)

type job struct {
	slot Slot
	gen  uint64
	ctx  context.Context
	run  func(ctx context.Context) (any, error)
}

// sync issues a request for every slot whose key changed. force re-issues all of them.
func (c *Coordinator) sync(force bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	st, version := c.store.Versioned()
	c.synced = version
	params, warnings := translate.ToServerParams(st, translate.Options{
		Schema:       c.cfg.Schema,
		SearchFields: c.searchFieldNames(),
		DateColumns:  c.cfg.DateColumns,
		Static:       c.cfg.AdditionalFilters,
	})
	c.warnings = warnings
	for _, w := range warnings {
		c.logger.Debug("Filter dropped", zap.String("doctype", c.cfg.Doctype), zap.Error(w))
	}

	var jobs []job
	fields := c.fetchFields()
	pageKey := strings.Join([]string{
		strings.Join(fields, ","), params.Key(), strconv.Itoa(st.PageIndex), strconv.Itoa(st.PageSize),
	}, "|")
	if j, ok := c.issueLocked(SlotPage, pageKey, force); ok {
		req := table.PageRequest{
			Doctype:   c.cfg.Doctype,
			Fields:    fields,
			Filters:   params.Filters,
			Sort:      params.Sort,
			PageIndex: st.PageIndex,
			PageSize:  st.PageSize,
			SkipCount: true,
		}
		j.run = func(ctx context.Context) (any, error) { return c.source.Page(ctx, req) }
		jobs = append(jobs, j)
	}

	// the total depends on the filters alone, so paging and sorting reuse it
	filterKey := params.Filters.Key()
	if j, ok := c.issueLocked(SlotCount, filterKey, force); ok {
		filters := params.Filters
		j.run = func(ctx context.Context) (any, error) {
			return c.source.Count(ctx, c.cfg.Doctype, filters)
		}
		jobs = append(jobs, j)
	}
	if len(c.cfg.Aggregates) > 0 {
		if j, ok := c.issueLocked(SlotAggregate, filterKey, force); ok {
			aggs, filters := c.cfg.Aggregates, params.Filters
			j.run = func(ctx context.Context) (any, error) {
				return c.source.Aggregate(ctx, c.cfg.Doctype, filters, aggs)
			}
			jobs = append(jobs, j)
		}
	}
	if c.cfg.GroupBy != nil {
		if j, ok := c.issueLocked(SlotGroupBy, filterKey, force); ok {
			cfg, filters := *c.cfg.GroupBy, params.Filters
			j.run = func(ctx context.Context) (any, error) {
				return c.source.GroupBy(ctx, c.cfg.Doctype, filters, cfg)
			}
			jobs = append(jobs, j)
		}
	}
	c.mu.Unlock()

	c.notify()
	if len(jobs) > 0 {
		go c.runJobs(jobs)
	}
}

// issueLocked starts a new generation of slot s unless key is already issued.
// The previous request of the slot is cancelled.
func (c *Coordinator) issueLocked(s Slot, key string, force bool) (job, bool) {
	sl := c.slots[s]
	if !force && sl.issued && sl.key == key {
		return job{}, false
	}
	if sl.cancel != nil {
		sl.cancel()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	sl.gen++
	sl.key = key
	sl.issued = true
	sl.cancel = cancel
	sl.loading = true
	c.inflight++
	return job{slot: s, gen: sl.gen, ctx: ctx}, true
}

func (c *Coordinator) runJobs(jobs []job) {
	var wg conc.WaitGroup
	for _, j := range jobs {
		wg.Go(func() { c.runJob(j) })
	}
	wg.Wait()
}

func (c *Coordinator) runJob(j job) {
	start := time.Now()
	res, err := j.run(j.ctx)
	elapsed := time.Since(start)

	// released last so WaitIdle also covers the page clamp below
	defer c.release()

	c.mu.Lock()
	sl := c.slots[j.slot]
	if j.gen != sl.gen || c.closed {
		c.mu.Unlock()
		c.recorder.Stale(string(j.slot))
		c.logger.Debug("Stale response discarded",
			zap.String("doctype", c.cfg.Doctype),
			zap.String("slot", string(j.slot)),
		)
		return
	}
	sl.loading = false
	sl.cancel = nil
	lastPage, version := -1, uint64(0)
	if err != nil {
		// keep the previous data; the same key is retried on the next sync
		sl.err = &FetchError{Slot: j.slot, Err: err}
		sl.issued = false
	} else {
		sl.err = nil
		c.applyLocked(j, res)
		lastPage, version = c.clampLocked()
	}
	c.mu.Unlock()

	c.recorder.FetchDone(string(j.slot), err, elapsed)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		c.logger.Debug("Fetch canceled", zap.String("slot", string(j.slot)))
	default:
		c.logger.Warn("Fetch failed",
			zap.String("doctype", c.cfg.Doctype),
			zap.String("slot", string(j.slot)),
			zap.Error(err),
		)
	}
	c.notify()

	if lastPage >= 0 {
		// conditional: any change committed since the clamp was computed wins
		if _, err := c.store.UpdateAt(version, pageChange(lastPage)); err != nil {
			c.logger.Warn("Page clamp rejected", zap.Error(err))
		}
	}
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
}

func (c *Coordinator) applyLocked(j job, res any) {
	switch j.slot {
	case SlotPage:
		pg, _ := res.(row.Page)
		c.rows = pg.Rows
		c.hasData = true
	case SlotCount:
		c.total, _ = res.(int)
		c.hasCount = true
	case SlotAggregate:
		c.aggregates, _ = res.(aggregate.Result)
	case SlotGroupBy:
		c.groups, _ = res.([]aggregate.Group)
	}
}

// clampLocked returns the last valid page index and the state version it was computed
// against when the committed page lies beyond the total, -1 otherwise. The total only
// counts once it answers the filters of the current state.
func (c *Coordinator) clampLocked() (int, uint64) {
	cs := c.slots[SlotCount]
	if !c.hasCount || cs.loading || !cs.issued {
		return -1, 0
	}
	st, version := c.store.Versioned()
	if version != c.synced {
		return -1, 0
	}
	if n := row.PageCount(c.total, st.PageSize); n > 0 && st.PageIndex >= n {
		return n - 1, version
	}
	return -1, 0
}

func (c *Coordinator) searchFieldNames() []string {
	out := make([]string, 0, len(c.cfg.SearchFields))
	for _, f := range c.cfg.SearchFields {
		out = append(out, f.Name)
	}
	return out
}

func (c *Coordinator) fetchFields() []string {
	if len(c.cfg.FetchFields) > 0 {
		return c.cfg.FetchFields
	}
	return c.cfg.Columns
}

func pageChange(i int) querystate.Change { return querystate.Change{PageIndex: &i} }
