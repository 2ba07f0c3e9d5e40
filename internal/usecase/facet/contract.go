package facet

import (
	"context"
	"time"

	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	domfacet "github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/usecase/table"
)

// Source reads facet values.
type Source interface {
	Facets(ctx context.Context, req table.FacetRequest) ([]domfacet.Option, error)
}

type doctypeSource interface {
	Doctype(name string) (doctype.Doctype, error)
}

// Recorder observes fetches. metrics.FetchRecorder implements it.
type Recorder interface {
	FetchDone(slot string, err error, d time.Duration)
	Stale(slot string)
}

type nopRecorder struct{}

func (nopRecorder) FetchDone(string, error, time.Duration) {}
func (nopRecorder) Stale(string)                           {}
