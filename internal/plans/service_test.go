package plans

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factoryflow/internal/normalize"
	"factoryflow/internal/optimizer"
	"factoryflow/internal/store"
	"factoryflow/internal/table"
	"factoryflow/internal/workbook"
)

// fakeOptimizer 把预置的原始响应交给真实的规范化器
type fakeOptimizer struct {
	header http.Header
	body   []byte
	err    error
	calls  int
}

func (f *fakeOptimizer) Optimize(_ context.Context, uploads []optimizer.Upload) (*normalize.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	h := f.header
	if h == nil {
		h = http.Header{}
	}
	return normalize.New(nil).Normalize(normalize.Response{Header: h, Body: bytes.NewReader(f.body)})
}

func jsonOptimizer(body string) *fakeOptimizer {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &fakeOptimizer{header: h, body: []byte(body)}
}

const scheduleJSON = `{"data":[` +
	`{"code":"A1","quantity":"5","machine":"M1","shift":"Night Shift"},` +
	`{"code":"A2","quantity":"7","machine":"M2","shift":"Morning"}` +
	`],"delivery_status":"Email Sent"}`

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func upload(name, content string) optimizer.Upload {
	return optimizer.Upload{Name: name, Data: []byte(content)}
}

func TestCreate_PersistsPlanWithStats(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	opt := jsonOptimizer(scheduleJSON)
	svc := NewService(mem, mem, opt, Options{Now: fixedClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))})

	plan, err := svc.Create(context.Background(), []optimizer.Upload{upload("week 11 orders.csv", "code,quantity\nA1,5\nA2,7")})
	require.NoError(t, err)

	assert.Equal(t, "week 11 orders - Optimized", plan.Name)
	assert.Equal(t, "week 11 orders.csv", plan.OriginalFilename)
	assert.Equal(t, normalize.DelimitedFilename, plan.OptimizedFilename)
	assert.Equal(t, "sent", plan.DeliveryStatus)
	require.NotNil(t, plan.Stats)
	assert.Equal(t, 2, plan.Stats.TotalOrders)
	assert.Equal(t, 12, plan.Stats.TotalUnits)

	stored, err := mem.Get(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Name, stored.Name)

	blobs, err := mem.GetBlobs(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "code,quantity\nA1,5\nA2,7", string(blobs.OriginalPayload))
	assert.Equal(t, "text/csv", blobs.OriginalContentType)
	assert.Equal(t, "code,quantity,machine,shift\nA1,5,M1,Night Shift\nA2,7,M2,Morning", string(blobs.OptimizedPayload))
}

func TestCreate_EmptyResponseStoresPlaceholder(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	svc := NewService(mem, mem, &fakeOptimizer{}, Options{})

	plan, err := svc.Create(context.Background(), []optimizer.Upload{upload("orders.xlsx", "PK")})
	require.NoError(t, err)
	require.NotNil(t, plan.Stats)
	assert.Equal(t, 1, plan.Stats.TotalOrders)
	assert.Equal(t, "unknown", plan.DeliveryStatus)
}

func TestCreate_JSONFallbackHasNoStats(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	svc := NewService(mem, mem, jsonOptimizer(`{"status":"queued"}`), Options{})

	plan, err := svc.Create(context.Background(), []optimizer.Upload{upload("orders.csv", "x")})
	require.NoError(t, err)
	assert.Nil(t, plan.Stats)
	assert.Equal(t, normalize.JSONFilename, plan.OptimizedFilename)

	d, err := svc.Detail(plan.ID)
	require.NoError(t, err)
	assert.False(t, d.Tabular)
	assert.Empty(t, d.Sheets)
}

func TestCreate_ValidationRejectsBeforeOptimizing(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	opt := jsonOptimizer(scheduleJSON)
	svc := NewService(mem, mem, opt, Options{MaxUploadBytes: 4})

	cases := [][]optimizer.Upload{
		nil,
		{upload("orders.pdf", "x")},
		{upload("orders.csv", "too large")},
		{upload("orders.csv", "")},
		{upload("ok.csv", "x"), upload("bad.txt", "x")},
	}
	for _, uploads := range cases {
		_, err := svc.Create(context.Background(), uploads)
		assert.ErrorIs(t, err, ErrInvalidFile)
	}
	assert.Equal(t, 0, opt.calls)
	assert.Equal(t, 0, mem.Count())
}

func TestCreate_OptimizerErrorsPassThrough(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	svc := NewService(mem, mem, &fakeOptimizer{err: optimizer.ErrTimeout}, Options{})

	_, err := svc.Create(context.Background(), []optimizer.Upload{upload("orders.csv", "x")})
	require.ErrorIs(t, err, optimizer.ErrTimeout)
	assert.Equal(t, 0, mem.Count())
}

func TestCreate_StorageFailureIsSaveFailed(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	boom := errors.New("quota exceeded")
	mem.SetFailWrites(boom)
	svc := NewService(mem, mem, jsonOptimizer(scheduleJSON), Options{})

	_, err := svc.Create(context.Background(), []optimizer.Upload{upload("orders.csv", "x")})
	require.ErrorIs(t, err, ErrSaveFailed)
	assert.ErrorIs(t, err, boom)
}

func TestGroupByMonth(t *testing.T) {
	t.Parallel()

	plans := []store.Plan{
		{ID: "c", UploadDate: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)},
		{ID: "b", UploadDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "a", UploadDate: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)},
	}
	groups := GroupByMonth(plans)
	require.Len(t, groups, 2)
	assert.Equal(t, "March 2026", groups[0].Label)
	assert.Len(t, groups[0].Plans, 2)
	assert.Equal(t, "February 2026", groups[1].Label)
	assert.Equal(t, "a", groups[1].Plans[0].ID)
}

func TestDetailDashboardAndDelete(t *testing.T) {
	t.Parallel()

	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	opt := jsonOptimizer(scheduleJSON)
	svc := NewService(s, s, opt, Options{Now: func() time.Time { return clock }})

	dash, err := svc.DashboardStats()
	require.NoError(t, err)
	assert.Nil(t, dash.Plan)

	first, err := svc.Create(context.Background(), []optimizer.Upload{upload("a.csv", "x")})
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	second, err := svc.Create(context.Background(), []optimizer.Upload{upload("b.csv", "x")})
	require.NoError(t, err)

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	d, err := svc.Detail(first.ID)
	require.NoError(t, err)
	require.Len(t, d.Sheets, 1)
	assert.Equal(t, []string{"code", "quantity", "machine", "shift"}, d.Sheets[0].Headers)
	assert.Equal(t, 2, d.Stats.TotalOrders)

	dash, err = svc.DashboardStats()
	require.NoError(t, err)
	assert.Equal(t, second.ID, dash.Plan.ID)
	assert.Equal(t, 2, dash.Total)

	require.NoError(t, svc.Delete(first.ID))
	_, err = svc.Detail(first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(first.ID), store.ErrNotFound)
}

func TestDownload(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	svc := NewService(mem, mem, jsonOptimizer(`{"data":[{"shift":"Night","machine":"M1","code":"A1"}]}`), Options{})
	plan, err := svc.Create(context.Background(), []optimizer.Upload{upload("orders.csv", "code\nA1")})
	require.NoError(t, err)

	f, err := svc.Download(plan.ID, DownloadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "shift,machine,code\nNight,M1,A1", string(f.Data))
	assert.Equal(t, "optimized_schedule.csv", f.Filename)

	f, err = svc.Download(plan.ID, DownloadOptions{Reorder: true})
	require.NoError(t, err)
	assert.Equal(t, "code,machine,shift\nA1,M1,Night", string(f.Data))

	f, err = svc.Download(plan.ID, DownloadOptions{Variant: VariantOriginal})
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", f.Filename)
	assert.Equal(t, "code\nA1", string(f.Data))

	f, err = svc.Download(plan.ID, DownloadOptions{Reorder: true, Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "optimized_schedule.xlsx", f.Filename)
	assert.Equal(t, workbook.ContentType, f.ContentType)
	sheets := workbook.NewExtractor(nil).ExtractSheets(f.Data)
	require.Len(t, sheets, 1)
	assert.Equal(t, "orders", sheets[0].Name)
	assert.Equal(t, []string{"code", "machine", "shift"}, sheets[0].Headers)

	_, err = svc.Download(plan.ID, DownloadOptions{Format: "pdf"})
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = svc.Download("missing", DownloadOptions{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDownload_ReorderWorkbook(t *testing.T) {
	t.Parallel()

	src, err := workbook.Write([]table.Table{
		{Name: "Schedule", Headers: []string{"shift", "notes", "code"}, Rows: [][]string{{"Night", "rush", "A1"}}},
		{Name: "Teams", Headers: []string{"team", "code"}, Rows: [][]string{{"Blue", "A1"}}},
	})
	require.NoError(t, err)

	h := http.Header{}
	h.Set("Content-Type", workbook.ContentType)
	h.Set("Content-Disposition", `attachment; filename="plan.xlsx"`)
	mem := store.NewMemoryStore()
	svc := NewService(mem, mem, &fakeOptimizer{header: h, body: src}, Options{})

	plan, err := svc.Create(context.Background(), []optimizer.Upload{upload("orders.csv", "x")})
	require.NoError(t, err)
	require.NotNil(t, plan.Stats)
	assert.Equal(t, "plan.xlsx", plan.OptimizedFilename)

	f, err := svc.Download(plan.ID, DownloadOptions{Reorder: true})
	require.NoError(t, err)
	assert.Equal(t, "plan.xlsx", f.Filename)

	sheets := workbook.NewExtractor(nil).ExtractSheets(f.Data)
	require.Len(t, sheets, 2)
	assert.Equal(t, []string{"code", "shift", "notes"}, sheets[0].Headers)
	assert.Equal(t, [][]string{{"A1", "Night", "rush"}}, sheets[0].Rows)
	assert.Equal(t, []string{"team", "code"}, sheets[1].Headers)
}

func TestDownload_WorkbookAsCSV(t *testing.T) {
	t.Parallel()

	src, err := workbook.Write([]table.Table{
		{Name: "Schedule", Headers: []string{"shift", "notes", "code"}, Rows: [][]string{{"Night", "rush, today", "A1"}}},
		{Name: "Teams", Headers: []string{"team"}, Rows: [][]string{{"Blue"}}},
	})
	require.NoError(t, err)

	h := http.Header{}
	h.Set("Content-Type", workbook.ContentType)
	h.Set("Content-Disposition", `attachment; filename="plan.xlsx"`)
	mem := store.NewMemoryStore()
	svc := NewService(mem, mem, &fakeOptimizer{header: h, body: src}, Options{})

	plan, err := svc.Create(context.Background(), []optimizer.Upload{upload("orders.csv", "x")})
	require.NoError(t, err)

	f, err := svc.Download(plan.ID, DownloadOptions{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "plan.csv", f.Filename)
	assert.Equal(t, "text/csv", f.ContentType)
	assert.Equal(t, "shift,notes,code\nNight,\"rush, today\",A1", string(f.Data))

	f, err = svc.Download(plan.ID, DownloadOptions{Format: "csv", Reorder: true})
	require.NoError(t, err)
	assert.Equal(t, "code,shift,notes\nA1,Night,\"rush, today\"", string(f.Data))
}

func TestPlanName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "orders - Optimized", PlanName("orders.xlsx"))
	assert.Equal(t, "march.v2 - Optimized", PlanName(`C:\uploads\march.v2.csv`))
	assert.Equal(t, "noext - Optimized", PlanName("noext"))
}

func TestPreview(t *testing.T) {
	t.Parallel()

	mem := store.NewMemoryStore()
	svc := NewService(mem, mem, &fakeOptimizer{}, Options{})

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	p, err := svc.Preview(normalize.Response{Header: h, Body: bytes.NewReader([]byte(scheduleJSON))})
	require.NoError(t, err)
	assert.Equal(t, "json", p.Shape)
	require.Len(t, p.Sheets, 1)
	require.NotNil(t, p.Stats)
	assert.Equal(t, []string{"code", "quantity", "machine", "shift"}, p.Sheets[0].Headers)
}
