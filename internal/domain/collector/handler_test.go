package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childhealth/fieldsync/internal/domain/child"
	"github.com/childhealth/fieldsync/internal/platform/auth"
)

type memRepo struct {
	mu      sync.Mutex
	records map[string]*StoredRecord
	err     error
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]*StoredRecord{}}
}

func (m *memRepo) Upsert(_ context.Context, r *child.Record, receivedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	prev, exists := m.records[r.HealthID]
	count := 1
	if exists {
		count = prev.UploadCount + 1
	}
	m.records[r.HealthID] = &StoredRecord{Record: *r, UploadedAt: time.Now(), ReceivedBy: receivedBy, UploadCount: count}
	return !exists, nil
}

func (m *memRepo) GetByHealthID(_ context.Context, healthID string) (*StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.records[healthID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) All(context.Context) ([]*StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*StoredRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HealthID < out[j].HealthID })
	return out, nil
}

func (m *memRepo) List(ctx context.Context, limit, offset int) ([]*StoredRecord, int, error) {
	all, err := m.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memRepo) DeleteAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.records))
	m.records = map[string]*StoredRecord{}
	return n, nil
}

func newTestServer(repo Repository) *echo.Echo {
	e := echo.New()
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := c.Request().Header.Get("X-Test-Role")
			if role == "" {
				role = auth.RoleRepresentative
			}
			ctx := auth.WithUser(c.Request().Context(), "rep_42", role)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(NewService(repo, zerolog.New(io.Discard))).RegisterRoutes(api)
	return e
}

func do(e *echo.Echo, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const uploadBody = `{
	"id": "r1",
	"healthId": "CHR-ABC-12345678",
	"childName": "Asha",
	"age": 3,
	"childWeight": 10,
	"childHeight": 90,
	"parentGuardianName": "Ravi",
	"representativeId": "rep_42",
	"language": "kn"
}`

func TestUploadRecord(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(repo)

	rec := do(e, http.MethodPost, "/api/child-records", uploadBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"healthId":"CHR-ABC-12345678","created":true}`, rec.Body.String())

	stored := repo.records["CHR-ABC-12345678"]
	require.NotNil(t, stored)
	assert.Equal(t, "rep_42", stored.ReceivedBy)
	assert.Equal(t, child.LangKannada, stored.Language)
	assert.False(t, stored.CreatedAt.IsZero())

	// the same health id again is an update, not a second record
	rec = do(e, http.MethodPost, "/api/child-records", uploadBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, repo.records, 1)
	assert.Equal(t, 2, repo.records["CHR-ABC-12345678"].UploadCount)
}

func TestUploadRecord_Validation(t *testing.T) {
	e := newTestServer(newMemRepo())

	for _, body := range []string{
		`{"childName":"Asha"}`,
		`{"healthId":"CHR-1","childName":"  "}`,
	} {
		rec := do(e, http.MethodPost, "/api/child-records", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "Missing required fields")
	}

	rec := do(e, http.MethodPost, "/api/child-records", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRecord_StoreFailure(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("db down")
	rec := do(newTestServer(repo), http.MethodPost, "/api/child-records", uploadBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRecordAndBooklet(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(repo)
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/child-records", uploadBody).Code)

	rec := do(e, http.MethodGet, "/api/child-records/CHR-ABC-12345678", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got StoredRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Asha", got.ChildName)
	assert.True(t, got.IsUploaded)

	rec = do(e, http.MethodGet, "/api/health-booklet/CHR-ABC-12345678", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var b Booklet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "CHR-ABC-12345678", b.HealthID)
	assert.InDelta(t, 12.3, b.BMI, 0.001)
	assert.Equal(t, child.StatusSevere.String(), b.NutritionStatus)
	assert.Equal(t, "/api/health-booklet/CHR-ABC-12345678/download", b.DownloadURL)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/child-records/CHR-NOPE", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/health-booklet/CHR-NOPE", "").Code)
}

func TestListRecords(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(repo)

	rec := do(e, http.MethodGet, "/api/child-records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"total":0,"limit":50,"offset":0,"hasMore":false}`, rec.Body.String())

	for _, id := range []string{"CHR-A", "CHR-B", "CHR-C"} {
		body := strings.Replace(uploadBody, "CHR-ABC-12345678", id, 1)
		require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/child-records", body).Code)
	}

	rec = do(e, http.MethodGet, "/api/child-records?limit=2", "")
	var page struct {
		Data    []StoredRecord `json:"data"`
		Total   int            `json:"total"`
		HasMore bool           `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
}

func TestStatistics(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(repo)

	bodies := []string{
		uploadBody, // BMI 12.3, severe
		`{"healthId":"CHR-N","childName":"B","age":4,"childWeight":16,"childHeight":100,"representativeId":"rep_42"}`,
		`{"healthId":"CHR-M","childName":"C","age":4,"childWeight":14,"childHeight":100,"representativeId":"rep_7"}`,
	}
	for _, b := range bodies {
		require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/child-records", b).Code)
	}

	rec := do(e, http.MethodGet, "/api/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.TotalRecords)
	assert.Equal(t, 3, st.UploadedRecords)
	assert.Equal(t, 0, st.PendingRecords)
	assert.Equal(t, 1, st.NormalCases)
	assert.Equal(t, 1, st.ModerateCases)
	assert.Equal(t, 1, st.SevereCases)
	assert.Equal(t, 2, st.MalnutritionCases)
	assert.Equal(t, 2, st.ActiveRepresentatives)
	assert.Equal(t, []RepresentativeCount{{"rep_42", 2}, {"rep_7", 1}}, st.Representatives)
}

func TestDeleteAll_RequiresAdmin(t *testing.T) {
	repo := newMemRepo()
	e := newTestServer(repo)
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/child-records", uploadBody).Code)

	assert.Equal(t, http.StatusForbidden, do(e, http.MethodDelete, "/api/child-records", "").Code)
	assert.Len(t, repo.records, 1)

	rec := do(e, http.MethodDelete, "/api/child-records", "", "X-Test-Role", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":1`)
	assert.Empty(t, repo.records)
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(newMemRepo()), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}
