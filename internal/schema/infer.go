package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Sizing constants for inferred columns.
const (
	IdentifierLength = 50
	NumericPrecision = 20
	NumericScale     = 6

	longTextThreshold = 50
	longTextHeadroom  = 50
	longTextCap       = 2000
	minTextLength     = 50
	maxTextLength     = 255
)

var (
	integerNames = []string{"objectid", "fid"}
	guidNames    = []string{"globalid", "uuid", "guid"}
	measureNames = []string{"luas", "area", "panjang", "length", "shape_"}
)

// InferType picks a column type for the named field from sampled values.
// Name-based rules take precedence over the values; the first match wins.
func InferType(name string, samples []any) ColumnType {
	lname := strings.ToLower(name)
	values := stringify(samples)

	switch {
	case lname == "id" || containsAny(lname, integerNames):
		return ColumnType{Kind: Integer, Wide: anyWide(values)}
	case containsAny(lname, guidNames):
		return ColumnType{Kind: Text, Length: max(IdentifierLength, maxLen(values))}
	case lname == "year" || strings.Contains(lname, "tahun"):
		return ColumnType{Kind: Integer, Wide: anyWide(values)}
	case containsAny(lname, measureNames):
		return numericType()
	}

	if len(values) == 0 {
		return ColumnType{Kind: Text}
	}

	longest := maxLen(values)
	if longest > longTextThreshold {
		if longest > longTextCap {
			return ColumnType{Kind: Text}
		}
		return ColumnType{Kind: Text, Length: min(longest+longTextHeadroom, longTextCap)}
	}

	if all(values, isInteger) {
		return ColumnType{Kind: Integer, Wide: anyWide(values)}
	}
	if all(values, isNumeric) {
		return numericType()
	}
	return ColumnType{Kind: Text, Length: min(max(2*longest, minTextLength), maxTextLength)}
}

// InferColumns infers a nullable column for every field from the sampled
// attribute records.
func InferColumns(fields []string, records []map[string]any) []Column {
	cols := make([]Column, 0, len(fields))
	for _, f := range fields {
		samples := make([]any, 0, len(records))
		for _, r := range records {
			samples = append(samples, r[f])
		}
		cols = append(cols, Column{Name: f, Type: InferType(f, samples), Nullable: true})
	}
	return cols
}

func numericType() ColumnType {
	return ColumnType{Kind: Numeric, Precision: NumericPrecision, Scale: NumericScale}
}

// stringify renders the non-null samples; blank strings count as null.
func stringify(samples []any) []string {
	out := make([]string, 0, len(samples))
	for _, v := range samples {
		var s string
		switch t := v.(type) {
		case nil:
			continue
		case string:
			s = strings.TrimSpace(t)
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case float32:
			s = strconv.FormatFloat(float64(t), 'f', -1, 32)
		default:
			s = fmt.Sprint(t)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isNumeric(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func anyWide(values []string) bool {
	for _, s := range values {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil && (n > math.MaxInt32 || n < math.MinInt32) {
			return true
		}
	}
	return false
}

func all(values []string, pred func(string) bool) bool {
	for _, s := range values {
		if !pred(s) {
			return false
		}
	}
	return true
}

func maxLen(values []string) int {
	n := 0
	for _, s := range values {
		n = max(n, utf8.RuneCountInString(s))
	}
	return n
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
