package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/progress"
	"github.com/sells-group/disaster-gis/internal/runlog"
	"github.com/sells-group/disaster-gis/internal/upload"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var insertKecamatan = regexp.QuoteMeta(
	`INSERT INTO "public"."kecamatan" ("name", "pop", "luas", "geom") VALUES ($1, $2, $3, ST_GeomFromEWKB($4))`)

type fixture struct {
	srv    *Server
	mock   pgxmock.PgxPoolIface
	hub    *progress.Hub
	stager *upload.Stager
}

func newFixture(t *testing.T, withRuns bool) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	stager, err := upload.NewStager(t.TempDir())
	require.NoError(t, err)
	hub := progress.NewHub(progress.Options{})

	var runs *runlog.Store
	if withRuns {
		runs = runlog.NewStore(mock)
	}
	srv := New(mock, ingest.New(mock, ingest.Options{}), hub, stager, runs, Options{})
	return &fixture{srv: srv, mock: mock, hub: hub, stager: stager}
}

// writeKecamatan writes a two-polygon shapefile and returns its directory.
func writeKecamatan(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "kecamatan")
	w, err := shp.Create(base+".shp", shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("POP", 10),
		shp.FloatField("LUAS", 12, 3),
	}))

	rows := []struct {
		ring []shp.Point
		name string
		pop  int
		luas float64
	}{
		{[]shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0.5, Y: 1.001}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}, "Kemang", 1200, 1.5},
		{[]shp.Point{{X: 10, Y: 10}, {X: 10, Y: 20}, {X: 20, Y: 20}, {X: 20, Y: 10}, {X: 10, Y: 10}}, "Cilandak", 98000, 22.125},
	}
	for _, row := range rows {
		n := w.Write((*shp.Polygon)(shp.NewPolyLine([][]shp.Point{row.ring})))
		require.NoError(t, w.WriteAttribute(int(n), 0, row.name))
		require.NoError(t, w.WriteAttribute(int(n), 1, row.pop))
		require.NoError(t, w.WriteAttribute(int(n), 2, row.luas))
	}
	w.Close()
	// go-shp names the attribute table "<base>dbf".
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return dir
}

// multipartRequest builds a POST with every file in dir as a "files" part
// plus the given form fields.
func multipartRequest(t *testing.T, target, dir string, fields map[string]string, skip ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if contains(skip, filepath.Ext(e.Name())) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		part, err := mw.CreateFormFile("files", e.Name())
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func serve(f *fixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// stagingEntries lists what is left in the staging root.
func stagingEntries(t *testing.T, f *fixture) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.stager.Root())
	require.NoError(t, err)
	return entries
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := serve(f, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/shp/upload-direct", nil)
	req.Header.Set("Origin", "https://dashboard.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(f, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAnalyzeStructure(t *testing.T) {
	f := newFixture(t, false)
	dir := writeKecamatan(t)

	rec := serve(f, multipartRequest(t, "/shp/analyze-structure", dir, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.EqualValues(t, 2, out["totalFeatures"])
	cols := out["columns"].([]any)
	require.Len(t, cols, 3)
	assert.Equal(t, "NAME", cols[0].(map[string]any)["name"])
	assert.Equal(t, "NUMERIC(20,6)", cols[2].(map[string]any)["type"])
	assert.Empty(t, stagingEntries(t, f))
}

func TestAnalyzeStructure_MissingDBF(t *testing.T) {
	f := newFixture(t, false)
	dir := writeKecamatan(t)

	rec := serve(f, multipartRequest(t, "/shp/analyze-structure", dir, nil, ".dbf"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["message"], "missing")
	assert.Empty(t, stagingEntries(t, f))
}

func TestAnalyzeStructure_NotMultipart(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodPost, "/shp/analyze-structure", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(f, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTable(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(
		`CREATE TABLE "public"."banjir" ("kode" INTEGER NOT NULL, "nama" VARCHAR(120), "geom" geometry(Geometry, 4326))`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	f.mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX "idx_banjir_geom"`)).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	f.mock.ExpectCommit()

	body := `{"tableName":"banjir","columns":[{"name":"kode","type":"integer","nullable":false},{"name":"nama","type":"varchar(120)"}]}`
	rec := serve(f, httptest.NewRequest(http.MethodPost, "/tables/create", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "public.banjir", decode(t, rec)["table"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTable_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{`},
		{"bad table name", `{"tableName":"drop table;","columns":[{"name":"a","type":"text"}]}`},
		{"no columns", `{"tableName":"banjir","columns":[]}`},
		{"unknown type", `{"tableName":"banjir","columns":[{"name":"a","type":"blob"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec := serve(f, httptest.NewRequest(http.MethodPost, "/tables/create", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, decode(t, rec)["success"])
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestSimplifyPreview(t *testing.T) {
	f := newFixture(t, false)
	dir := writeKecamatan(t)

	rec := serve(f, multipartRequest(t, "/shp/simplify", dir, map[string]string{
		"targetPercentage":    "30",
		"preventShapeRemoval": "true",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.EqualValues(t, 2, out["totalFeatures"])
	assert.Len(t, out["features"], 2)
	assert.Equal(t, "douglas-peucker", out["config"].(map[string]any)["algorithm"])
	assert.LessOrEqual(t, out["simplifiedPoints"].(float64), out["originalPoints"].(float64))
}

func TestSimplifyPreview_RequiresTarget(t *testing.T) {
	f := newFixture(t, false)
	rec := serve(f, multipartRequest(t, "/shp/simplify", writeKecamatan(t), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimplifyPreview_BadAlgorithm(t *testing.T) {
	f := newFixture(t, false)
	rec := serve(f, multipartRequest(t, "/shp/simplify", writeKecamatan(t), map[string]string{
		"simplification": `{"algorithm":"chaikin","targetPercentage":20}`,
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadDirect(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 2; i++ {
		f.mock.ExpectExec(insertKecamatan).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	f.mock.ExpectQuery("INSERT INTO gis.ingest_runs").
		WithArgs("public.kecamatan", "completed", false, 2, 2, 0, 0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rec := serve(f, multipartRequest(t, "/shp/upload-direct", writeKecamatan(t), map[string]string{
		"tableName":        "kecamatan",
		"sessionId":        "sess-1",
		"targetPercentage": "50",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "sess-1", out["sessionId"])
	assert.EqualValues(t, 2, out["insertedCount"])
	// upload-direct never simplifies
	assert.EqualValues(t, 0, out["simplifiedCount"])
	assert.Empty(t, stagingEntries(t, f))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUploadToDB_FirstInsertFails(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectExec(insertKecamatan).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(io.ErrUnexpectedEOF)

	rec := serve(f, multipartRequest(t, "/shp/upload-to-db", writeKecamatan(t), map[string]string{
		"tableName": "kecamatan",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.EqualValues(t, 0, out["inserted"])
	assert.Equal(t, "failed", out["state"])
	assert.Empty(t, stagingEntries(t, f))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTableAndUpload_WithMapping(t *testing.T) {
	f := newFixture(t, false)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(
		`CREATE TABLE "public"."kecamatan" ("nama" VARCHAR(50), "tahun" INTEGER, "geom" geometry(Geometry, 4326))`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	f.mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX "idx_kecamatan_geom"`)).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	f.mock.ExpectCommit()
	insert := regexp.QuoteMeta(`INSERT INTO "public"."kecamatan" ("nama", "tahun", "geom")`)
	f.mock.ExpectExec(insert).WithArgs("Kemang", 2024, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec(insert).WithArgs("Cilandak", 2024, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mappingJSON := `[{"column":"nama","mode":"shapefile","source":"NAME"},{"column":"tahun","mode":"year","year":2024},{"column":"pop","mode":"skip"}]`
	rec := serve(f, multipartRequest(t, "/shp/create-table-and-upload", writeKecamatan(t), map[string]string{
		"tableName":     "kecamatan",
		"columnMapping": mappingJSON,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["tableCreated"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpload_InvalidMapping(t *testing.T) {
	f := newFixture(t, false)
	rec := serve(f, multipartRequest(t, "/shp/upload-to-db", writeKecamatan(t), map[string]string{
		"tableName":     "kecamatan",
		"columnMapping": `{"not":"a list"}`,
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stagingEntries(t, f))
}

func TestUploadProgressStream(t *testing.T) {
	f := newFixture(t, false)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/upload-progress/sess-9")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Equal(t, 1, f.hub.Len())
	f.hub.Send("sess-9", progress.Event{Phase: progress.PhaseStart, TotalFeatures: 20})
	f.hub.Send("sess-9", progress.Event{Phase: progress.PhaseComplete, TotalFeatures: 20, InsertedCount: 20, Percentage: 100})

	var data []progress.Event
	done := false
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: done") {
			done = true
			break
		}
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			var ev progress.Event
			require.NoError(t, json.Unmarshal([]byte(payload), &ev))
			data = append(data, ev)
		}
	}

	assert.True(t, done)
	require.Len(t, data, 2)
	assert.Equal(t, progress.PhaseStart, data[0].Phase)
	assert.Equal(t, progress.PhaseComplete, data[1].Phase)
	assert.Equal(t, 20, data[1].InsertedCount)
}

func TestCleanupTempFiles(t *testing.T) {
	f := newFixture(t, false)
	root := f.stager.Root()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "upload-abc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), nil, 0o644))

	rec := serve(f, httptest.NewRequest(http.MethodPost, "/cleanup-temp-files",
		strings.NewReader(`{"fragments":["upload-abc"]}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"upload-abc"}, decode(t, rec)["removed"])

	entries := stagingEntries(t, f)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())
}

func TestRuns(t *testing.T) {
	f := newFixture(t, true)
	f.mock.ExpectQuery("FROM gis.ingest_runs").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "table_name", "state", "table_created", "total_features", "inserted_count",
			"simplified_count", "error_count", "reduction_percent", "message", "duration_ms", "finished_at",
		}))

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ingest.ErrInvalidRequest, http.StatusBadRequest},
		{upload.ErrMissingFiles, http.StatusBadRequest},
		{ingest.ErrFirstInsert, http.StatusUnprocessableEntity},
		{ingest.ErrSchemaCreate, http.StatusInternalServerError},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
