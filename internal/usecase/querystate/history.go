package querystate

import (
	"net/url"
	"sync"
)

// History is the shareable query-string of the page the tables live on.
type History interface {
	// Values returns a copy of the current parameters.
	Values() url.Values
	// Update mutates the parameters atomically. The Store calls it while holding its
	// own lock, so fn must not call back into a Store.
	Update(fn func(url.Values))
}

// URLHistory is an in-memory address bar. Safe for concurrent use.
type URLHistory struct {
	mu   sync.RWMutex
	vals url.Values
}

// NewURLHistory creates an empty history.
func NewURLHistory() *URLHistory {
	return &URLHistory{vals: url.Values{}}
}

// Values returns a copy of the current parameters.
func (h *URLHistory) Values() url.Values {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneValues(h.vals)
}

// Update mutates the parameters under the write lock.
func (h *URLHistory) Update(fn func(url.Values)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.vals)
}

// String renders the query string, suitable for sharing a link.
func (h *URLHistory) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.vals.Encode()
}

// Load replaces the parameters with a raw query string (restoring a shared link).
func (h *URLHistory) Load(rawQuery string) error {
	vals, err := url.ParseQuery(rawQuery)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.vals = vals
	h.mu.Unlock()
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
