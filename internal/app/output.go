package app

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/output"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/RyanBlaney/spectro-stream/configs"
)

// Tabular is implemented by reports that can render as a table
type Tabular interface {
	Header() []string
	Rows() [][]any
}

// NewFormatter returns the formatter for format. Unknown formats fall back
// to JSON.
func NewFormatter(format string, precision int) output.Formatter {
	switch format {
	case configs.FormatYAML:
		return &output.YAMLFormatter{}
	case configs.FormatCSV:
		return &CSVFormatter{Precision: precision}
	case configs.FormatTable:
		return &TableFormatter{Precision: precision}
	default:
		return &JSONFormatter{}
	}
}

// JSONFormatter wraps the common JSON formatter. NaN and infinities become
// zero and the output ends with a newline.
type JSONFormatter struct {
	output.JSONFormatter
}

func (f *JSONFormatter) Format(data any, pretty bool) ([]byte, error) {
	out, err := f.JSONFormatter.Format(data, pretty)
	if err != nil && strings.Contains(err.Error(), "unsupported value") {
		out, err = f.JSONFormatter.Format(sanitizeForJSON(data), pretty)
	}
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// TableFormatter renders Tabular reports as aligned columns with
// locale-grouped numbers. Anything else is flattened into KEY/VALUE rows.
type TableFormatter struct {
	Precision int
}

func (f *TableFormatter) Format(data any, _ bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.write(&buf, tabularOf(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *TableFormatter) write(w io.Writer, t Tabular) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(t.Header(), "\t"))
	for _, row := range t.Rows() {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = f.cell(p, v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func (f *TableFormatter) cell(p *message.Printer, v any) string {
	switch x := v.(type) {
	case int:
		return p.Sprintf("%d", x)
	case int64:
		return p.Sprintf("%d", x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "-"
		}
		return p.Sprintf(fmt.Sprintf("%%.%df", f.Precision), x)
	case nil:
		return "-"
	default:
		return output.ConvertValueToString(x)
	}
}

// CSVFormatter renders the same rows as the table formatter as RFC 4180
// records without digit grouping
type CSVFormatter struct {
	Precision int
}

func (f *CSVFormatter) Format(data any, _ bool) ([]byte, error) {
	t := tabularOf(data)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, len(t.Header()))
	for i, h := range t.Header() {
		header[i] = strings.ToLower(h)
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range t.Rows() {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = f.cell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *CSVFormatter) cell(v any) string {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', f.Precision, 64)
	default:
		return output.ConvertValueToString(x)
	}
}

// flatTable is the KEY/VALUE view of data that has no table of its own
type flatTable struct {
	values map[string]any
}

func tabularOf(data any) Tabular {
	if t, ok := data.(Tabular); ok {
		return t
	}
	return flatTable{values: output.ExtractFlattenedData(data, "")}
}

func (t flatTable) Header() []string { return []string{"KEY", "VALUE"} }

func (t flatTable) Rows() [][]any {
	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k, t.values[k]})
	}
	return rows
}

// sanitizeForJSON recursively replaces infinite and NaN values
func sanitizeForJSON(data any) any {
	switch v := data.(type) {
	case time.Time, time.Duration:
		return v
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0.0
		}
		return v
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			result[k] = sanitizeForJSON(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = sanitizeForJSON(val)
		}
		return result
	case []float64:
		result := make([]float64, len(v))
		for i, val := range v {
			if !math.IsInf(val, 0) && !math.IsNaN(val) {
				result[i] = val
			}
		}
		return result
	default:
		return sanitizeWithReflection(data)
	}
}

// sanitizeWithReflection walks structs, slices and maps, keyed by json tag
func sanitizeWithReflection(data any) any {
	if data == nil {
		return nil
	}

	val := reflect.ValueOf(data)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Struct:
		result := make(map[string]any)
		typ := val.Type()
		for i := range val.NumField() {
			field := val.Field(i)
			if !field.CanInterface() {
				continue
			}

			jsonTag := typ.Field(i).Tag.Get("json")
			if jsonTag == "-" {
				continue
			}
			name, _, _ := strings.Cut(jsonTag, ",")
			if name == "" {
				name = typ.Field(i).Name
			}
			result[name] = sanitizeForJSON(field.Interface())
		}
		return result
	case reflect.Slice:
		if val.IsNil() {
			return nil
		}
		result := make([]any, val.Len())
		for i := range val.Len() {
			result[i] = sanitizeForJSON(val.Index(i).Interface())
		}
		return result
	case reflect.Map:
		result := make(map[string]any)
		for _, key := range val.MapKeys() {
			result[fmt.Sprintf("%v", key.Interface())] = sanitizeForJSON(val.MapIndex(key).Interface())
		}
		return result
	case reflect.Float64, reflect.Float32:
		f := val.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0.0
		}
		return f
	default:
		return val.Interface()
	}
}
