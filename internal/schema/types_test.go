package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumnType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"integer", "INTEGER"},
		{"INT", "INTEGER"},
		{"bigint", "BIGINT"},
		{"numeric", "NUMERIC"},
		{"NUMERIC(12, 3)", "NUMERIC(12,3)"},
		{"decimal(10)", "NUMERIC(10,0)"},
		{"double precision", "NUMERIC"},
		{"varchar(100)", "VARCHAR(100)"},
		{"character varying (20)", "VARCHAR(20)"},
		{"varchar", "TEXT"},
		{"text", "TEXT"},
		{"boolean", "BOOLEAN"},
		{"date", "DATE"},
		{"timestamp", "TIMESTAMP"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseColumnType(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.SQL())
		})
	}
}

func TestParseColumnType_Invalid(t *testing.T) {
	for _, raw := range []string{"", "geometry", "varchar(abc)", "numeric(2,5)", "text; DROP TABLE x"} {
		_, err := ParseColumnType(raw)
		assert.Error(t, err, raw)
	}
}

func TestColumn_Definition(t *testing.T) {
	c := Column{Name: "nama_desa", Type: ColumnType{Kind: Text, Length: 80}, Nullable: true}
	assert.Equal(t, `"nama_desa" VARCHAR(80)`, c.Definition())

	c.Nullable = false
	assert.Equal(t, `"nama_desa" VARCHAR(80) NOT NULL`, c.Definition())
}

func TestColumn_MarshalJSON(t *testing.T) {
	c := Column{Name: "luas", Type: ColumnType{Kind: Numeric, Precision: 20, Scale: 6}, Nullable: true}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"luas","type":"NUMERIC(20,6)","kind":"numeric","nullable":true}`, string(data))
}
