package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFetchRecorder(t *testing.T) {
	var r FetchRecorder
	okBefore := testutil.ToFloat64(FetchTotal.WithLabelValues("page", "ok"))
	errBefore := testutil.ToFloat64(FetchTotal.WithLabelValues("page", "error"))
	canceledBefore := testutil.ToFloat64(FetchTotal.WithLabelValues("page", "canceled"))
	staleBefore := testutil.ToFloat64(StaleResponsesTotal.WithLabelValues("page"))

	r.FetchDone("page", nil, 10*time.Millisecond)
	r.FetchDone("page", errors.New("boom"), time.Millisecond)
	r.FetchDone("page", fmt.Errorf("list: %w", context.Canceled), time.Millisecond)
	r.Stale("page")

	if got := testutil.ToFloat64(FetchTotal.WithLabelValues("page", "ok")) - okBefore; got != 1 {
		t.Errorf("ok delta = %v", got)
	}
	if got := testutil.ToFloat64(FetchTotal.WithLabelValues("page", "error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v", got)
	}
	if got := testutil.ToFloat64(FetchTotal.WithLabelValues("page", "canceled")) - canceledBefore; got != 1 {
		t.Errorf("canceled delta = %v", got)
	}
	if got := testutil.ToFloat64(StaleResponsesTotal.WithLabelValues("page")) - staleBefore; got != 1 {
		t.Errorf("stale delta = %v", got)
	}
	if testutil.CollectAndCount(FetchDuration) == 0 {
		t.Error("expected duration observations")
	}
}

func TestRegisterTableMetrics_Idempotent(t *testing.T) {
	RegisterTableMetrics()
	RegisterTableMetrics()
}
