// Package mapping describes how each destination column is populated and
// resolves per-feature row values from those descriptions.
package mapping

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrInvalidMapping is returned for column mappings that cannot be resolved.
var ErrInvalidMapping = eris.New("mapping: invalid column mapping")

// Mode selects how a column's value is produced.
type Mode string

const (
	ModeShapefile Mode = "shapefile"
	ModeYear      Mode = "year"
	ModeNull      Mode = "null"
	ModeAuto      Mode = "auto"
	ModeManual    Mode = "manual"
	ModeSkip      Mode = "skip"
)

// AutoMode selects the generator for ModeAuto columns.
type AutoMode string

const (
	AutoSequence AutoMode = "sequence"
	AutoContinue AutoMode = "continue"
	AutoRandom   AutoMode = "random"
)

// DefaultRandomLength is the token length used when Length is unset.
const DefaultRandomLength = 8

// AutoGenerate parameterises generated values.
type AutoGenerate struct {
	Mode      AutoMode `json:"mode" yaml:"mode"`
	StartFrom int64    `json:"startFrom,omitempty" yaml:"start_from,omitempty"`
	Increment int64    `json:"increment,omitempty" yaml:"increment,omitempty"`
	Length    int      `json:"length,omitempty" yaml:"length,omitempty"`
	Prefix    string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Column maps one destination column to its value source.
type Column struct {
	Column string        `json:"column" yaml:"column"`
	Mode   Mode          `json:"mode" yaml:"mode"`
	Source string        `json:"source,omitempty" yaml:"source,omitempty"`
	Year   int           `json:"year,omitempty" yaml:"year,omitempty"`
	Auto   *AutoGenerate `json:"auto,omitempty" yaml:"auto,omitempty"`
	Manual ManualTable   `json:"manual,omitempty" yaml:"manual,omitempty"`
}

// ManualTable holds caller-entered values keyed by insertion ordinal.
type ManualTable map[int]any

// UnmarshalJSON accepts an ordinal-keyed object or a plain array, where
// array position is the ordinal.
func (m *ManualTable) UnmarshalJSON(data []byte) error {
	var list []any
	if err := json.Unmarshal(data, &list); err == nil {
		*m = fromList(list)
		return nil
	}
	var keyed map[string]any
	if err := json.Unmarshal(data, &keyed); err != nil {
		return eris.Wrap(err, "mapping: decode manual table")
	}
	t, err := fromKeyed(keyed)
	if err != nil {
		return err
	}
	*m = t
	return nil
}

// UnmarshalYAML accepts the same two shapes as UnmarshalJSON.
func (m *ManualTable) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []any
		if err := node.Decode(&list); err != nil {
			return eris.Wrap(err, "mapping: decode manual table")
		}
		*m = fromList(list)
		return nil
	case yaml.MappingNode:
		var keyed map[string]any
		if err := node.Decode(&keyed); err != nil {
			return eris.Wrap(err, "mapping: decode manual table")
		}
		t, err := fromKeyed(keyed)
		if err != nil {
			return err
		}
		*m = t
		return nil
	default:
		return eris.Errorf("mapping: manual table must be a list or a map, line %d", node.Line)
	}
}

// MarshalJSON always writes the ordinal-keyed form.
func (m ManualTable) MarshalJSON() ([]byte, error) {
	keyed := make(map[string]any, len(m))
	for k, v := range m {
		keyed[strconv.Itoa(k)] = v
	}
	return json.Marshal(keyed)
}

// Ordinals returns the populated ordinals in ascending order.
func (m ManualTable) Ordinals() []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func fromList(list []any) ManualTable {
	t := make(ManualTable, len(list))
	for i, v := range list {
		t[i] = v
	}
	return t
}

func fromKeyed(keyed map[string]any) (ManualTable, error) {
	t := make(ManualTable, len(keyed))
	for k, v := range keyed {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 0 {
			return nil, eris.Wrapf(ErrInvalidMapping, "manual table key %q is not an ordinal", k)
		}
		t[n] = v
	}
	return t, nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)

// ColumnName derives a lower-case SQL identifier from a shapefile field name.
func ColumnName(field string) string {
	name := unsafeChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(field)), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "field"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "f_" + name
	}
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// FromFields maps every field straight through to a column of the derived
// name, as used when no mapping is supplied.
func FromFields(fields []string) []Column {
	cols := make([]Column, 0, len(fields))
	seen := make(map[string]int, len(fields))
	for _, f := range fields {
		name := ColumnName(f)
		if n := seen[name]; n > 0 {
			name = name + "_" + strconv.Itoa(n)
		}
		seen[ColumnName(f)]++
		cols = append(cols, Column{Column: name, Mode: ModeShapefile, Source: f})
	}
	return cols
}
