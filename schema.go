package tablekit

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/tablekit/internal/config"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

const tagKey = "tablekit"

var timeType = reflect.TypeOf(time.Time{})

// schemaMeta holds parsed struct tag metadata.
type schemaMeta struct {
	typ reflect.Type

	// Declared doctype fields, in struct order.
	fields []config.FieldConfig

	// Every tagged struct field, declared or not.
	columns []fieldMapping
}

type fieldMapping struct {
	structIdx int
	name      string
}

// parseSchema reflects on T and extracts tablekit struct tag metadata.
// A tag is `tablekit:"<name>[,<type>[,sortable]]"`; without a type the field is only decoded.
func parseSchema[T any]() (*schemaMeta, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, fmt.Errorf("tablekit: type parameter must be a struct")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tablekit: type %s is not a struct", t)
	}

	meta := &schemaMeta{typ: t}
	seen := make(map[string]bool)
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		if err := applyTag(meta, i, f, tag, seen); err != nil {
			return nil, err
		}
	}
	if len(meta.columns) == 0 {
		return nil, fmt.Errorf("tablekit: no field with a `tablekit` tag in %s", t)
	}
	return meta, nil
}

func applyTag(meta *schemaMeta, idx int, f reflect.StructField, tag string, seen map[string]bool) error {
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		return fmt.Errorf("tablekit: empty column name on field %s", f.Name)
	}
	if seen[name] {
		return fmt.Errorf("tablekit: duplicate column %q on field %s", name, f.Name)
	}
	seen[name] = true
	meta.columns = append(meta.columns, fieldMapping{structIdx: idx, name: name})

	if len(parts) == 1 {
		return nil
	}
	fc := config.FieldConfig{Name: name, Type: parts[1]}
	for _, mod := range parts[2:] {
		if mod != "sortable" {
			return fmt.Errorf("tablekit: unknown modifier %q on field %s", mod, f.Name)
		}
		fc.Sortable = true
	}
	if err := checkKind(fc.Type, f); err != nil {
		return err
	}
	meta.fields = append(meta.fields, fc)
	return nil
}

// checkKind rejects Go types a column of type ft cannot decode into.
func checkKind(ft string, f reflect.StructField) error {
	k := f.Type.Kind()
	ok := false
	switch ft {
	case "tag", "text":
		ok = k == reflect.String
	case "numeric":
		ok = isNumberKind(k)
	case "date":
		ok = k == reflect.String || f.Type == timeType
	default:
		return fmt.Errorf("tablekit: unknown field type %q on field %s", ft, f.Name)
	}
	if !ok {
		return fmt.Errorf("tablekit: field %s of type %s cannot hold a %s column", f.Name, f.Type, ft)
	}
	return nil
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ScanRows decodes table rows into T using its tablekit struct tags.
// Missing and null values leave the zero value.
func ScanRows[T any](rows []Row) ([]T, error) {
	meta, err := parseSchema[T]()
	if err != nil {
		return nil, err
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		v := reflect.ValueOf(&out[i]).Elem()
		if v.Kind() == reflect.Pointer {
			v.Set(reflect.New(meta.typ))
			v = v.Elem()
		}
		for _, c := range meta.columns {
			raw, ok := r[c.name]
			if !ok || raw == nil {
				continue
			}
			if err := setValue(v.Field(c.structIdx), raw); err != nil {
				return nil, fmt.Errorf("tablekit: row %d column %s: %w", i, c.name, err)
			}
		}
	}
	return out, nil
}

func setValue(dst reflect.Value, raw any) error {
	if dst.Type() == timeType {
		t, err := toTime(raw)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		if s, ok := raw.(string); ok {
			dst.SetString(s)
		} else {
			dst.SetString(fmt.Sprint(raw))
		}
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(raw)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := toFloat(raw)
		if err != nil {
			return err
		}
		dst.SetInt(int64(f))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := toFloat(raw)
		if err != nil {
			return err
		}
		if f < 0 {
			return fmt.Errorf("negative value %v for %s", f, dst.Type())
		}
		dst.SetUint(uint64(f))
	default:
		rv := reflect.ValueOf(raw)
		if !rv.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("cannot assign %T to %s", raw, dst.Type())
		}
		dst.Set(rv)
	}
	return nil
}

func toFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("not a number: %v", raw)
}

var dateLayouts = []string{filter.DateTimeLayout, "2006-01-02", time.RFC3339}

func toTime(raw any) (time.Time, error) {
	switch x := raw.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, x, time.UTC); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", x)
	}
	return time.Time{}, fmt.Errorf("not a date: %v", raw)
}
