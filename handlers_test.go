package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/ai"
	"boringexpenses/pkg/receipts"
	"boringexpenses/pkg/storage"
	"boringexpenses/pkg/store"
	"boringexpenses/pkg/workflow"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProfiles map[uuid.UUID]*models.Profile

func (f fakeProfiles) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeExtractor struct {
	data *receipts.Data
	err  error
	mime string
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Extract(ctx context.Context, image []byte, mime string) (*receipts.Data, error) {
	f.mime = mime
	return f.data, f.err
}

type testEnv struct {
	srv      *Server
	router   *gin.Engine
	employee *models.Profile
	admin    *models.Profile
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	objects, err := storage.NewLocal(t.TempDir(), []byte("test-secret"))
	require.NoError(t, err)
	company := uuid.New()
	admin := &models.Profile{ID: uuid.New(), FullName: "Ada Admin", Email: "ada@example.com", Role: models.RoleAdmin, CompanyID: &company}
	employee := &models.Profile{ID: uuid.New(), FullName: "Eve Employee", Email: "eve@example.com", Role: models.RoleEmployee, CompanyID: &company, ManagerID: &admin.ID}
	s := &Server{
		cfg:      Config{JWTSecret: "test-secret", SignedURLTTL: time.Minute, DefaultCurrency: "GBP"},
		profiles: fakeProfiles{admin.ID: admin, employee.ID: employee},
		objects:  objects,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	return &testEnv{srv: s, router: s.Routes(), employee: employee, admin: admin}
}

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) token(t *testing.T, p *models.Profile) string {
	t.Helper()
	tok, err := e.srv.issueAccessToken(p)
	require.NoError(t, err)
	return tok
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := performRequest(env.router, http.MethodGet, "/claims", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = performRequest(env.router, http.MethodGet, "/claims", nil, "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stranger := &models.Profile{ID: uuid.New(), Email: "ghost@example.com", Role: models.RoleEmployee}
	rec = performRequest(env.router, http.MethodGet, "/me", nil, env.token(t, stranger), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user not found", errorOf(t, rec))

	rec = performRequest(env.router, http.MethodGet, "/me", nil, env.token(t, env.employee), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eve@example.com")
}

func TestAccessTokenExpires(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.employee)

	id, err := env.srv.parseAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, env.employee.ID, id)

	env.srv.now = func() time.Time { return time.Now().Add(accessTokenTTL + time.Minute) }
	_, err = env.srv.parseAccessToken(tok)
	assert.Error(t, err)

	other := &Server{cfg: Config{JWTSecret: "another-secret"}, now: time.Now}
	_, err = other.parseAccessToken(tok)
	assert.Error(t, err)
}

func TestCreateExpenseValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.employee)

	cases := map[string]string{
		"zero amount":      `{"description":"Lunch","amount":0,"date":"2025-01-10"}`,
		"negative amount":  `{"description":"Lunch","amount":"-4.50","date":"2025-01-10"}`,
		"missing amount":   `{"description":"Lunch","date":"2025-01-10"}`,
		"sub-cent amount":  `{"description":"Lunch","amount":"0.004","date":"2025-01-10"}`,
		"blank desc":       `{"description":"   ","amount":12,"date":"2025-01-10"}`,
		"unknown currency": `{"description":"Lunch","amount":12,"currency":"XYZ","date":"2025-01-10"}`,
		"missing date":     `{"description":"Lunch","amount":12}`,
		"bad date":         `{"description":"Lunch","amount":12,"date":"10/01/2025"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := performRequest(env.router, http.MethodPost, "/expenses", strings.NewReader(body), tok, "application/json")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminRoutesRejectEmployees(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.employee)

	rec := performRequest(env.router, http.MethodPost, "/categories", strings.NewReader(`{"name":"Parking"}`), tok, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = performRequest(env.router, http.MethodGet, "/users", nil, tok, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = performRequest(env.router, http.MethodPost, "/invites", strings.NewReader(`{"email":"new@example.com"}`), tok, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = performRequest(env.router, http.MethodPut, "/users/"+env.admin.ID.String()+"/role", strings.NewReader(`{"role":"employee"}`), tok, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetRoleRejectsOwnRole(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.admin)
	rec := performRequest(env.router, http.MethodPut, "/users/"+env.admin.ID.String()+"/role", strings.NewReader(`{"role":"employee"}`), tok, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "you cannot change your own role", errorOf(t, rec))

	rec = performRequest(env.router, http.MethodPut, "/users/"+env.employee.ID.String()+"/role", strings.NewReader(`{"role":"owner"}`), tok, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClaimStatusRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.employee)

	rec := performRequest(env.router, http.MethodPost, "/claims/not-a-uuid/status", strings.NewReader(`{"status":"filed"}`), tok, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = performRequest(env.router, http.MethodGet, "/claims?scope=company", nil, tok, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = performRequest(env.router, http.MethodGet, "/claims?status=archived", nil, tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := performRequest(env.router, http.MethodGet, "/healthz", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(env.router, http.MethodGet, "/currencies", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 10)
	assert.Equal(t, "GBP", list[0]["code"])
}

func TestSignedFileAccess(t *testing.T) {
	env := newTestEnv(t)
	key := storage.ReceiptPath(env.employee.ID, ".png")
	content := pngBytes(t)
	require.NoError(t, env.srv.objects.Put(context.Background(), key, content))

	url, err := env.srv.objects.SignURL(key, time.Minute)
	require.NoError(t, err)
	rec := performRequest(env.router, http.MethodGet, url, nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())

	rec = performRequest(env.router, http.MethodGet, "/files/"+key, nil, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	other := storage.ReceiptPath(env.admin.ID, ".png")
	rec = performRequest(env.router, http.MethodGet, strings.Replace(url, key, other, 1), nil, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		w, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestExtractReceipt(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.employee)
	ext := &fakeExtractor{data: &receipts.Data{
		Description: "Taxi ride",
		Date:        "2025-03-02",
		Amount:      decimal.RequireFromString("23.40"),
		Currency:    "GBP",
		Confidence:  0.9,
		Source:      "fake",
	}}
	env.srv.extractor = ext

	body, ct := multipartBody(t, "", "", nil, map[string]string{"description": "x"})
	rec := performRequest(env.router, http.MethodPost, "/receipts/extract", body, tok, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No image file provided", errorOf(t, rec))

	big := make([]byte, storage.MaxUploadSize+10)
	body, ct = multipartBody(t, "image", "big.jpg", big, nil)
	rec = performRequest(env.router, http.MethodPost, "/receipts/extract", body, tok, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	body, ct = multipartBody(t, "image", "notes.txt", []byte("just some text"), nil)
	rec = performRequest(env.router, http.MethodPost, "/receipts/extract", body, tok, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, "image", "receipt.png", pngBytes(t), map[string]string{"description": "Airport taxi"})
	rec = performRequest(env.router, http.MethodPost, "/receipts/extract", body, tok, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", ext.mime)

	var resp struct {
		Filled  []string            `json:"filled"`
		Expense models.ExpenseInput `json:"expense"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"date", "amount", "currency"}, resp.Filled)
	assert.Equal(t, "Airport taxi", resp.Expense.Description)
	assert.True(t, decimal.RequireFromString("23.40").Equal(resp.Expense.Amount))

	ext.data, ext.err = nil, errors.New("model down")
	body, ct = multipartBody(t, "image", "receipt.png", pngBytes(t), nil)
	rec = performRequest(env.router, http.MethodPost, "/receipts/extract", body, tok, ct)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatRequiresQuestionAndConfiguration(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.employee)

	rec := performRequest(env.router, http.MethodPost, "/chat", strings.NewReader(`{"question":"   "}`), tok, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please provide a valid question", errorOf(t, rec))

	rec = performRequest(env.router, http.MethodPost, "/chat", strings.NewReader(`{"question":"What did I spend on travel?"}`), tok, "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{badRequest("nope"), http.StatusBadRequest},
		{models.ErrAmountNotPositive, http.StatusBadRequest},
		{workflow.ErrInvalidStatus, http.StatusBadRequest},
		{errInvalidCredentials, http.StatusUnauthorized},
		{workflow.ErrForbidden, http.StatusForbidden},
		{workflow.ErrTransitionNotAllowed, http.StatusForbidden},
		{errClaimLocked, http.StatusForbidden},
		{store.ErrNotOwner, http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrConflict, http.StatusConflict},
		{errEmailTaken, http.StatusConflict},
		{storage.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{ai.ErrNotConfigured, http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
	_, msg := statusFor(errors.New("pq: relation does not exist"))
	assert.NotContains(t, msg, "relation")
}

func TestCurrencyValidatorRegistered(t *testing.T) {
	registerValidators()
	type form struct {
		Currency string `binding:"currency"`
	}
	assert.NoError(t, binding.Validator.ValidateStruct(form{Currency: "GBP"}))
	assert.Error(t, binding.Validator.ValidateStruct(form{Currency: "XYZ"}))
}

func TestUpdateProfileRejectsIncompleteBankDetails(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, env.employee)

	body := `{"full_name":"Eve","bank_details":{"account_name":"Eve","sort_code":"12-34-56"}}`
	rec := performRequest(env.router, http.MethodPut, "/profile", strings.NewReader(body), tok, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, models.ErrBankAccountIncomplete.Error(), errorOf(t, rec))
}
