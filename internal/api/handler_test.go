package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factoryflow/internal/normalize"
	"factoryflow/internal/optimizer"
	"factoryflow/internal/plans"
	"factoryflow/internal/store"
)

type stubOptimizer struct {
	body string
	err  error
}

func (s stubOptimizer) Optimize(_ context.Context, _ []optimizer.Upload) (*normalize.Artifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return normalize.New(nil).Normalize(normalize.Response{Header: h, Body: strings.NewReader(s.body)})
}

const scheduleJSON = `{"data":[{"shift":"Night Shift","machine":"M1","code":"A1","quantity":"5"}],"delivery_status":"sent"}`

func newRouter(t *testing.T, mem *store.MemoryStore, opt plans.Optimizer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := plans.NewService(mem, mem, opt, plans.Options{})
	h := NewHandler(svc, StatusInfo{Version: "test", OptimizerURL: "http://optimizer.local"}, nil)

	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func multipartBody(t *testing.T, field string, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(r http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (Response, map[string]any) {
	t.Helper()

	var raw struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	var data map[string]any
	if len(raw.Data) > 0 && raw.Data[0] == '{' {
		require.NoError(t, json.Unmarshal(raw.Data, &data))
	}
	return Response{Code: raw.Code, Message: raw.Message}, data
}

func createPlan(t *testing.T, r http.Handler) string {
	t.Helper()

	body, ct := multipartBody(t, "files", map[string]string{"orders.csv": "code,quantity\nA1,5"}, nil)
	rec := do(r, http.MethodPost, "/api/plans", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp, data := decode(t, rec)
	require.Equal(t, codeOK, resp.Code)
	require.Equal(t, "orders - Optimized", data["name"])
	return data["id"].(string)
}

func TestPlanLifecycle(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	r := newRouter(t, mem, stubOptimizer{body: scheduleJSON})

	id := createPlan(t, r)

	rec := do(r, http.MethodGet, "/api/plans/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := decode(t, rec)
	stats := data["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["totalOrders"])
	assert.EqualValues(t, 5, stats["totalUnits"])

	rec = do(r, http.MethodGet, "/api/plans/"+id+"/download?reorder=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "code,quantity,machine,shift\nA1,5,M1,Night Shift", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="optimized_schedule.csv"`)

	rec = do(r, http.MethodGet, "/api/plans/"+id+"/download?variant=original", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "code,quantity\nA1,5", rec.Body.String())

	rec = do(r, http.MethodGet, "/api/plans/"+id+"/download?variant=other", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodGet, "/api/plans/grouped", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label"`)

	rec = do(r, http.MethodGet, "/api/dashboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, data = decode(t, rec)
	assert.EqualValues(t, 1, data["totalPlans"])

	rec = do(r, http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, data = decode(t, rec)
	assert.Equal(t, "http://optimizer.local", data["optimizerUrl"])
	assert.EqualValues(t, 1, data["totalPlans"])

	rec = do(r, http.MethodDelete, "/api/plans/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/api/plans/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, codeNotFound, resp.Code)
}

func TestCreatePlan_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		opt    plans.Optimizer
		fail   error
		file   string
		status int
		code   int
	}{
		{"invalid extension", stubOptimizer{body: scheduleJSON}, nil, "orders.pdf", http.StatusBadRequest, codeInvalidFile},
		{"timeout", stubOptimizer{err: optimizer.ErrTimeout}, nil, "orders.csv", http.StatusGatewayTimeout, codeTimeout},
		{"upstream status", stubOptimizer{err: &optimizer.StatusError{Code: 500, Reason: "Internal Server Error"}}, nil, "orders.csv", http.StatusBadGateway, codeUpstream},
		{"network", stubOptimizer{err: &optimizer.TransportError{Op: "request", Err: errors.New("connection refused")}}, nil, "orders.csv", http.StatusBadGateway, codeNetwork},
		{"save failed", stubOptimizer{body: scheduleJSON}, errors.New("disk full"), "orders.csv", http.StatusInsufficientStorage, codeSaveFailed},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mem := store.NewMemoryStore()
			mem.SetFailWrites(tc.fail)
			r := newRouter(t, mem, tc.opt)

			body, ct := multipartBody(t, "files", map[string]string{tc.file: "code\nA1"}, nil)
			rec := do(r, http.MethodPost, "/api/plans", body, ct)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			resp, _ := decode(t, rec)
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestCreatePlan_TimeoutMessage(t *testing.T) {
	t.Parallel()

	r := newRouter(t, store.NewMemoryStore(), stubOptimizer{err: optimizer.ErrTimeout})
	body, ct := multipartBody(t, "files", map[string]string{"orders.csv": "x"}, nil)
	rec := do(r, http.MethodPost, "/api/plans", body, ct)

	resp, _ := decode(t, rec)
	assert.Equal(t, optimizer.TimeoutMessage, resp.Message)
}

func TestCreatePlan_MissingFile(t *testing.T) {
	t.Parallel()

	r := newRouter(t, store.NewMemoryStore(), stubOptimizer{body: scheduleJSON})
	body, ct := multipartBody(t, "files", nil, map[string]string{"note": "x"})
	rec := do(r, http.MethodPost, "/api/plans", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	r := newRouter(t, store.NewMemoryStore(), stubOptimizer{})
	body, ct := multipartBody(t, "body",
		map[string]string{"response.json": scheduleJSON},
		map[string]string{"contentType": "application/json"})
	rec := do(r, http.MethodPost, "/api/normalize", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, data := decode(t, rec)
	assert.Equal(t, "json", data["shape"])
	artifact := data["artifact"].(map[string]any)
	assert.Equal(t, "sent", artifact["deliveryStatus"])
}

func TestContentDisposition(t *testing.T) {
	t.Parallel()

	got := contentDisposition("排产 plan.csv")
	assert.Equal(t, `attachment; filename="__ plan.csv"; filename*=UTF-8''%E6%8E%92%E4%BA%A7%20plan.csv`, got)
}
