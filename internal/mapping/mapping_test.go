package mapping

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestManualTable_UnmarshalJSON(t *testing.T) {
	var keyed ManualTable
	require.NoError(t, json.Unmarshal([]byte(`{"0":"Sleman","2":"Bantul"}`), &keyed))
	assert.Equal(t, ManualTable{0: "Sleman", 2: "Bantul"}, keyed)

	var list ManualTable
	require.NoError(t, json.Unmarshal([]byte(`["Sleman", null, "Bantul"]`), &list))
	assert.Equal(t, ManualTable{0: "Sleman", 1: nil, 2: "Bantul"}, list)

	var bad ManualTable
	err := json.Unmarshal([]byte(`{"first":"x"}`), &bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMapping))
}

func TestManualTable_UnmarshalYAML(t *testing.T) {
	doc := `
- column: kabupaten
  mode: manual
  manual: [Sleman, Bantul]
- column: kecamatan
  mode: manual
  manual:
    1: Depok
`
	var cols []Column
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cols))
	require.Len(t, cols, 2)
	assert.Equal(t, "Bantul", cols[0].Manual[1])
	assert.Equal(t, "Depok", cols[1].Manual[1])
	assert.Equal(t, []int{1}, cols[1].Manual.Ordinals())
}

func TestManualTable_MarshalJSONRoundTripsKeyedForm(t *testing.T) {
	data, err := json.Marshal(ManualTable{3: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"3":"x"}`, string(data))
}

func TestColumn_DecodeJSON(t *testing.T) {
	body := `[
		{"column":"kode","mode":"auto","auto":{"mode":"sequence","startFrom":100,"increment":5}},
		{"column":"nama","mode":"shapefile","source":"NAMOBJ"},
		{"column":"tahun","mode":"year","year":2024},
		{"column":"ignored","mode":"skip"}
	]`
	var cols []Column
	require.NoError(t, json.Unmarshal([]byte(body), &cols))
	require.Len(t, cols, 4)
	assert.Equal(t, AutoSequence, cols[0].Auto.Mode)
	assert.Equal(t, int64(100), cols[0].Auto.StartFrom)
	assert.Equal(t, "NAMOBJ", cols[1].Source)
	assert.Equal(t, 2024, cols[2].Year)
	assert.Equal(t, ModeSkip, cols[3].Mode)
}

func TestColumnName(t *testing.T) {
	tests := map[string]string{
		"NAMOBJ":       "namobj",
		"Shape_Leng":   "shape_leng",
		"Luas (Ha)":    "luas_ha",
		"2019_banjir":  "f_2019_banjir",
		"  ":           "field",
		"KODE-DESA.01": "kode_desa_01",
	}
	for in, want := range tests {
		assert.Equal(t, want, ColumnName(in), in)
	}
}

func TestFromFields(t *testing.T) {
	cols := FromFields([]string{"NAMA", "nama", "LUAS"})
	require.Len(t, cols, 3)
	assert.Equal(t, "nama", cols[0].Column)
	assert.Equal(t, "nama_1", cols[1].Column)
	assert.Equal(t, "luas", cols[2].Column)
	for _, c := range cols {
		assert.Equal(t, ModeShapefile, c.Mode)
	}
	assert.Equal(t, "LUAS", cols[2].Source)
}
