package aggregate

import (
	"fmt"
	"strconv"

	"hermannm.dev/enumnames"
)

// Function is a numeric aggregate function evaluated by the remote store.
type Function uint8

// Supported aggregate functions.
const (
	Sum Function = iota + 1
	Avg
	Min
	Max
	Count
)

var functionNames = enumnames.NewMap(map[Function]string{
	Sum:   "sum",
	Avg:   "avg",
	Min:   "min",
	Max:   "max",
	Count: "count",
})

// IsValid checks if the function is supported.
func (f Function) IsValid() bool {
	return functionNames.ContainsEnumValue(f)
}

func (f Function) String() string {
	return functionNames.GetNameOrFallback(f, "invalid")
}

// MarshalJSON encodes the function by name.
func (f Function) MarshalJSON() ([]byte, error) {
	return functionNames.MarshalToNameJSON(f)
}

// UnmarshalJSON decodes the function from its name.
func (f *Function) UnmarshalJSON(bytes []byte) error {
	return functionNames.UnmarshalFromNameJSON(bytes, f)
}

// ParseFunction parses a function name ("sum", "avg", "min", "max", "count").
func ParseFunction(name string) (Function, error) {
	var f Function
	if err := f.UnmarshalJSON([]byte(strconv.Quote(name))); err != nil {
		return 0, fmt.Errorf("unknown aggregate function %q", name)
	}
	return f, nil
}

// Config declares one aggregate over a field.
type Config struct {
	Field    string   `json:"field"`
	Function Function `json:"function"`
}

// Key returns the result map key "<function>_of_<field>".
func (c Config) Key() string {
	return c.Function.String() + "_of_" + c.Field
}

// Validate checks the config is complete.
func (c Config) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("aggregate field is required")
	}
	if !c.Function.IsValid() {
		return fmt.Errorf("invalid aggregate function for field %q", c.Field)
	}
	return nil
}

// Result maps "<function>_of_<field>" to a value. A nil value means no rows matched.
type Result map[string]*float64

// Value returns the aggregate for c and whether any row matched.
func (r Result) Value(c Config) (float64, bool) {
	v, ok := r[c.Key()]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Compute evaluates fn over values. It returns nil for an empty input, for every function.
func Compute(fn Function, values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var out float64
	switch fn {
	case Sum, Avg:
		for _, v := range values {
			out += v
		}
		if fn == Avg {
			out /= float64(len(values))
		}
	case Min:
		out = values[0]
		for _, v := range values[1:] {
			out = min(out, v)
		}
	case Max:
		out = values[0]
		for _, v := range values[1:] {
			out = max(out, v)
		}
	case Count:
		out = float64(len(values))
	default:
		return nil
	}
	return &out
}
