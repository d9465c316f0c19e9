package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/vectable"
	"github.com/helixml/vectable/domain/embedding"
	"github.com/helixml/vectable/infrastructure/api"
	"github.com/helixml/vectable/infrastructure/api/jsonapi"
)

type listDoc struct {
	Data []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type tableDoc struct {
	Data struct {
		ID         string                  `json:"id"`
		Attributes jsonapi.TableAttributes `json:"attributes"`
	} `json:"data"`
}

type searchDoc struct {
	Data []map[string]any `json:"data"`
	Meta map[string]any   `json:"meta"`
}

func newTestServer(t *testing.T, opts ...api.APIServerOption) http.Handler {
	t.Helper()
	ctx := context.Background()

	conn, err := vectable.Connect(
		vectable.WithSQLite(filepath.Join(t.TempDir(), "api.db")),
		vectable.WithBuiltins(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "text", Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"apple pie", "beef stew", "apple crumble"}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	builder, err := conn.CreateTable("recipes", schema).
		Data(rec).
		AddEmbedding(vectable.NewEmbeddingDefinition("text", "hash", "vector").WithParams(embedding.Params{"dim": 64}))
	require.NoError(t, err)
	_, err = builder.Execute(ctx)
	require.NoError(t, err)

	return api.NewAPIServer(conn, "test", opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestAPIServer_Health(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, w.Body.String())
}

func TestAPIServer_ListFunctions(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/api/v1/functions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var doc listDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	ids := make([]string, 0, len(doc.Data))
	for _, r := range doc.Data {
		assert.Equal(t, jsonapi.TypeFunction, r.Type)
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"hash", "openai", "sentence-transformers"}, ids)
}

func TestAPIServer_Tables(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/v1/tables", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list listDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "recipes", list.Data[0].ID)

	w = do(t, h, http.MethodGet, "/api/v1/tables/recipes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var doc tableDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	attrs := doc.Data.Attributes
	assert.Equal(t, int64(3), attrs.Rows)
	assert.Equal(t, int64(1), attrs.Version)
	require.Len(t, attrs.Fields, 3)
	assert.Equal(t, "vector", attrs.Fields[2].Name)
	require.Len(t, attrs.Definitions, 1)
	assert.Equal(t, "hash", attrs.Definitions[0].Function)
	assert.Equal(t, "text", attrs.Definitions[0].SourceColumn)

	w = do(t, h, http.MethodGet, "/api/v1/tables/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIServer_Search(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/tables/recipes/search", `{"query":"apple pie","limit":2,"select":["id","text"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var doc searchDoc
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Data, 2)
	assert.Equal(t, "apple pie", doc.Data[0]["text"])
	assert.Equal(t, "apple crumble", doc.Data[1]["text"])
	assert.Contains(t, doc.Data[0], vectable.DistanceColumn)
	assert.Equal(t, "cosine", doc.Meta["metric"])
	assert.EqualValues(t, 2, doc.Meta["count"])
}

func TestAPIServer_SearchErrors(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad json", "/api/v1/tables/recipes/search", `{`, http.StatusBadRequest},
		{"bad query", "/api/v1/tables/recipes/search", `{"query":42}`, http.StatusBadRequest},
		{"bad metric", "/api/v1/tables/recipes/search", `{"query":"x","metric":"manhattan"}`, http.StatusBadRequest},
		{"wrong dimension", "/api/v1/tables/recipes/search", `{"query":[1,2]}`, http.StatusBadRequest},
		{"unknown column", "/api/v1/tables/recipes/search", `{"query":"x","column":"nope"}`, http.StatusBadRequest},
		{"missing table", "/api/v1/tables/nope/search", `{"query":"x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAPIServer_Docs(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/docs/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/docs/openapi.json"`)

	req := httptest.NewRequest(http.MethodGet, "/docs/openapi.json", nil)
	req.Host = "vectors.example:9000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "http://vectors.example:9000/api/v1", doc.Servers[0].URL)
	assert.Contains(t, doc.Paths, "/tables/{name}/search")
}

func TestAPIServer_CORS(t *testing.T) {
	h := newTestServer(t, api.WithCORSOrigins("https://app.example"))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tables", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tables", nil)
	req.Header.Set("Origin", "https://other.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
