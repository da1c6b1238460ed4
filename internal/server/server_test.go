package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DanikLP1/filevault/internal/auth"
	"github.com/DanikLP1/filevault/internal/clock"
	"github.com/DanikLP1/filevault/internal/config"
	"github.com/DanikLP1/filevault/internal/db"
	"github.com/DanikLP1/filevault/internal/db/dbtest"
	"github.com/DanikLP1/filevault/internal/drop"
	"github.com/DanikLP1/filevault/internal/files"
	"github.com/DanikLP1/filevault/internal/logging"
	"github.com/DanikLP1/filevault/internal/promo"
	"github.com/DanikLP1/filevault/internal/storage"
	"github.com/DanikLP1/filevault/internal/storage/fsdriver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "server-test-secret"

type testEnv struct {
	h     http.Handler
	db    *db.DB
	clock *clock.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d := dbtest.Open(t)
	st := storage.NewWithDriver(fsdriver.New(t.TempDir()))
	clk := clock.NewFake(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	log := logging.Discard()
	cfg := config.Config{
		JWTSecret:         testSecret,
		AdminEmails:       []string{"admin@example.com"},
		PublicBaseURL:     "https://vault.test",
		DropMaxBytes:      1 << 20,
		UploadMaxBytes:    1 << 20,
		DefaultQuotaBytes: 1 << 20,
	}
	srv := New(Deps{
		DB:     d,
		Promos: promo.NewService(d, clk, log, promo.Options{}),
		Drops:  drop.NewService(d, st, clk, log, drop.Options{MaxBytes: cfg.DropMaxBytes}),
		Files:  files.NewService(d, st, clk, log, files.Options{MaxBytes: cfg.UploadMaxBytes}),
		Config: cfg,
		Logger: log,
	})
	return &testEnv{h: srv.Handler(), db: d, clock: clk}
}

func bearer(t *testing.T, email string) string {
	t.Helper()
	tok, err := auth.GenerateToken(email, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (e *testEnv) do(t *testing.T, method, path, authz string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) json(t *testing.T, method, path, authz string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return e.do(t, method, path, authz, body, "application/json")
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func (e *testEnv) createPromo(t *testing.T, p db.PromoCode) *db.PromoCode {
	t.Helper()
	p.Active = true
	p.CreatedAt = e.clock.Now()
	require.NoError(t, e.db.CreatePromoTx(e.db.DB, &p))
	return &p
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = e.do(t, http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/me", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/me", "Bearer nope", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/me", bearer(t, "a@example.com"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[meResponse](t, rec)
	assert.Equal(t, "a@example.com", me.Email)
	assert.False(t, me.IsStaff)
	assert.Equal(t, int64(1<<20), me.Quota)
	assert.Equal(t, "1 MB", me.QuotaDisplay)
}

func TestStaffOnly(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/promos", bearer(t, "a@example.com"), nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/promos", bearer(t, "admin@example.com"), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedeemFlow(t *testing.T) {
	e := newTestEnv(t)
	user := bearer(t, "a@example.com")
	e.createPromo(t, db.PromoCode{Code: "HELLO", GrantSubscription: true, ExtraStorageBytes: 1 << 30, DiscountPercent: 25})

	rec := e.json(t, http.MethodPost, "/api/promos/redeem", user, map[string]string{"code": " hello "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[redeemResponse](t, rec)
	assert.Equal(t, []string{"subscription activated", "quota increased by 1 GB", "discount 25%"}, res.Effects)
	assert.True(t, res.IsSubscribed)
	assert.Equal(t, int64(1<<20+1<<30), res.StorageQuota)
	assert.Equal(t, int64(1), res.Promo.UseCount)

	rec = e.json(t, http.MethodPost, "/api/promos/redeem", user, map[string]string{"code": "HELLO"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_redeemed", decode[errorBody](t, rec).Error)

	rec = e.json(t, http.MethodPost, "/api/promos/redeem", user, map[string]string{"code": "MISSING"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "code_not_found", decode[errorBody](t, rec).Error)

	rec = e.json(t, http.MethodPost, "/api/promos/redeem", user, map[string]string{"code": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/pricing", user, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[promo.Quote](t, rec)
	require.NotNil(t, q.Discount)
	assert.Equal(t, "HELLO", q.Discount.Code)
	assert.Equal(t, int64(224), q.Discount.StandardPrice)
	assert.Equal(t, int64(674), q.Discount.PremiumPrice)

	rec = e.do(t, http.MethodGet, "/api/pricing", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[promo.Quote](t, rec).Discount)

	rec = e.do(t, http.MethodGet, "/api/redemptions", user, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rs := decode[struct {
		Items []redemptionView `json:"items"`
	}](t, rec)
	require.Len(t, rs.Items, 1)
	assert.Equal(t, "HELLO", rs.Items[0].Code)
	assert.Equal(t, "1 GB", rs.Items[0].ExtraStorage)
}

func TestGenerateAndDeletePromo(t *testing.T) {
	e := newTestEnv(t)
	admin := bearer(t, "admin@example.com")
	user := bearer(t, "a@example.com")

	rec := e.json(t, http.MethodPost, "/api/promos/generate", admin, map[string]any{
		"quantity": 2, "length": 8, "prefix": "vip", "grant_subscription": true, "extra_storage_gb": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gen := decode[struct {
		Codes []string `json:"codes"`
	}](t, rec)
	require.Len(t, gen.Codes, 2)
	assert.True(t, strings.HasPrefix(gen.Codes[0], "VIP-"))

	rec = e.json(t, http.MethodPost, "/api/promos/generate", admin, map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.json(t, http.MethodPost, "/api/promos/redeem", user, map[string]string{"code": strings.ToLower(gen.Codes[0])})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	promoID := decode[redeemResponse](t, rec).Promo.ID

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/api/promos/%d", promoID), user, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/api/promos/%d", promoID), admin, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decode[promo.DeleteReport](t, rec)
	assert.Equal(t, 1, rep.Redemptions)
	assert.Equal(t, 1, rep.SubscriptionsRevoked)

	rec = e.do(t, http.MethodGet, "/api/me", user, nil, "")
	me := decode[meResponse](t, rec)
	assert.False(t, me.IsSubscribed)
	assert.Equal(t, int64(1<<20), me.Quota)

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/api/promos/%d", promoID), admin, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDropUploadAndDownload(t *testing.T) {
	e := newTestEnv(t)
	body, ct := multipartBody(t, "note.txt", "hello", nil)

	rec := e.do(t, http.MethodPost, "/drop/upload", "", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	up := decode[dropUploadResponse](t, rec)
	assert.Equal(t, "note.txt", up.Name)
	assert.Equal(t, int64(5), up.Size)
	assert.Equal(t, "https://vault.test/s/"+up.Token, up.URL)
	exp, err := time.Parse(time.RFC3339, up.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, e.clock.Now().Add(72*time.Hour), exp, 2*time.Minute)

	rec = e.do(t, http.MethodGet, "/s/"+up.Token, "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "note.txt")

	e.clock.Advance(73 * time.Hour)
	rec = e.do(t, http.MethodGet, "/s/"+up.Token, "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/s/unknown", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDropUploadValidation(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/drop/upload", "", strings.NewReader("raw"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "x"))
	require.NoError(t, mw.Close())
	rec = e.do(t, http.MethodPost, "/drop/upload", "", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := multipartBody(t, "big.bin", strings.Repeat("x", 1<<20+1), nil)
	rec = e.do(t, http.MethodPost, "/drop/upload", "", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestFilesFlow(t *testing.T) {
	e := newTestEnv(t)
	user := bearer(t, "a@example.com")

	body, ct := multipartBody(t, "a.txt", "abc", nil)
	rec := e.do(t, http.MethodPost, "/api/files", user, body, ct)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "subscription_required", decode[errorBody](t, rec).Error)

	e.createPromo(t, db.PromoCode{Code: "SUB", GrantSubscription: true})
	rec = e.json(t, http.MethodPost, "/api/promos/redeem", user, map[string]string{"code": "SUB"})
	require.Equal(t, http.StatusOK, rec.Code)

	body, ct = multipartBody(t, "a.txt", "abc", map[string]string{"name": "renamed.md"})
	rec = e.do(t, http.MethodPost, "/api/files", user, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	f := decode[fileView](t, rec)
	assert.Equal(t, "renamed.md", f.Name)
	assert.Equal(t, int64(3), f.Size)

	rec = e.do(t, http.MethodGet, "/api/files", user, nil, "")
	list := decode[filesResponse](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, int64(3), list.Used)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", f.ID), user, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())

	other := bearer(t, "b@example.com")
	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d", f.ID), other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/files/%d/purge", f.ID), user, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/files/%d/delete", f.ID), user, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/trash", user, nil, "")
	trash := decode[filesResponse](t, rec)
	require.Len(t, trash.Items, 1)
	assert.NotNil(t, trash.Items[0].DeletedAt)
	assert.Zero(t, trash.Used)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/files/%d/restore", f.ID), user, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/files/%d/delete", f.ID), user, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/files/%d/purge", f.ID), user, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/trash", user, nil, "")
	assert.Empty(t, decode[filesResponse](t, rec).Items)

	rec = e.do(t, http.MethodGet, "/api/files/abc", user, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuotaExceededOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	user := bearer(t, "a@example.com")
	e.createPromo(t, db.PromoCode{Code: "SUB", GrantSubscription: true})
	rec := e.json(t, http.MethodPost, "/api/promos/redeem", user, map[string]string{"code": "SUB"})
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := e.db.EnsureUser(context.Background(), "a@example.com", 0, false)
	require.NoError(t, err)
	require.NoError(t, e.db.UpdateUserFieldsTx(e.db.DB, u.ID, map[string]any{"storage_quota": 4}))

	body, ct := multipartBody(t, "a.txt", "12345", nil)
	rec = e.do(t, http.MethodPost, "/api/files", user, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "quota_exceeded", decode[errorBody](t, rec).Error)
}

func TestRecoverWritesJSON(t *testing.T) {
	s := New(Deps{Logger: logging.Discard()})
	h := WrapWriteCheck(s.WithRequestLogger(s.WithRecover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[errorBody](t, rec).Error)
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"transient", promo.ErrTransientConflict, http.StatusServiceUnavailable, "transient_conflict", promo.ErrTransientConflict.Error()},
		{"transient with driver text", fmt.Errorf("%w: database is locked", promo.ErrTransientConflict), http.StatusServiceUnavailable, "transient_conflict", promo.ErrTransientConflict.Error()},
		{"already redeemed", promo.ErrAlreadyRedeemed, http.StatusConflict, "already_redeemed", promo.ErrAlreadyRedeemed.Error()},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error", "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodPost, "/api/promos/redeem", nil), "redeem", tc.err)
			assert.Equal(t, tc.status, rec.Code)
			body := decode[errorBody](t, rec)
			assert.Equal(t, tc.code, body.Error)
			assert.Equal(t, tc.message, body.Message)
			if tc.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rec.Header().Get("Retry-After"))
			}
		})
	}
}
