package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/vetflow"
	apimodel "github.com/blnkfinance/vetflow/api/model"
	"github.com/blnkfinance/vetflow/backend"
	"github.com/blnkfinance/vetflow/cache"
	"github.com/blnkfinance/vetflow/config"
	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/request"
	"github.com/blnkfinance/vetflow/model"
)

type stubBackend struct {
	submits int
}

func (s *stubBackend) FetchServices(context.Context) (model.Catalog, error) {
	return model.DefaultCatalog(), nil
}

func (s *stubBackend) Submit(context.Context, *model.SubmissionPayload) (*backend.SubmitResponse, error) {
	s.submits++
	return &backend.SubmitResponse{Reference: "BK-7", Status: "received"}, nil
}

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response == nil {
		return resp, nil
	}
	err := json.NewDecoder(bytes.NewReader(resp.Body.Bytes())).Decode(s.Response)
	if err != nil {
		return resp, err
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *stubBackend) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		Backend: config.BackendConfig{BaseURL: "http://backend.test", TimeoutSec: 5, CatalogCacheTTL: 60},
		Payment: config.PaymentConfig{Currency: "USD"},
	})

	stub := &stubBackend{}
	v, err := vetflow.NewVetflow(database.NewWithStore(database.NewMemoryStore()),
		vetflow.WithBackend(stub),
		vetflow.WithSettler(&vetflow.SimulatedSettler{}),
		vetflow.WithCache(cache.NewCache(nil)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	return NewAPI(v).Router(), stub
}

func call(t *testing.T, router *gin.Engine, method, route string, payload interface{}, response interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		buf, err := request.ToJsonReq(payload)
		require.NoError(t, err)
		body = buf
	}
	resp, err := SetUpTestRequest(TestRequest{Payload: body, Router: router, Response: response, Method: method, Route: route})
	require.NoError(t, err)
	return resp
}

func toggle(t *testing.T, router *gin.Engine, id string, services ...model.ServiceType) selectionResponse {
	t.Helper()
	var sel selectionResponse
	for _, svc := range services {
		resp := call(t, router, http.MethodPost, "/sessions/"+id+"/selection/toggle", apimodel.ToggleService{ServiceID: string(svc)}, &sel)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}
	return sel
}

func pay(t *testing.T, router *gin.Engine, id string) {
	t.Helper()
	resp := call(t, router, http.MethodPost, "/sessions/"+id+"/payment/proceed", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var outcome model.PaymentOutcome
	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/payment", apimodel.Payment{Method: "upi", UpiID: "x@oksbi"}, &outcome)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, model.PaymentSuccess, outcome.Status)
}

func setField(t *testing.T, router *gin.Engine, id string, svc model.ServiceType, field, value string) {
	t.Helper()
	resp := call(t, router, http.MethodPut, "/sessions/"+id+"/forms/"+string(svc)+"/fields", apimodel.UpdateField{Field: field, Value: value}, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func upload(t *testing.T, router *gin.Engine, route, fileName string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("document", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, route, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t)

	var msg string
	resp := call(t, router, http.MethodGet, "/", nil, &msg)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "server running...", msg)
}

func TestSessionLifecycle(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()

	var errBody map[string]interface{}
	resp := call(t, router, http.MethodGet, "/sessions/"+id, nil, &errBody)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", errBody["code"])

	var session model.Session
	resp = call(t, router, http.MethodPut, "/sessions/"+id, nil, &session)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StepSelectServices, session.Step)
	assert.NotEmpty(t, session.Catalog)

	var catalog model.Catalog
	resp = call(t, router, http.MethodGet, "/sessions/"+id+"/catalog", nil, &catalog)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, catalog, len(model.ServiceTypes))

	resp = call(t, router, http.MethodDelete, "/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = call(t, router, http.MethodGet, "/sessions/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = call(t, router, http.MethodPut, "/sessions/bad%20id", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestToggleService(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()

	sel := toggle(t, router, id, model.ServiceIdentity, model.ServiceAddress)
	assert.Equal(t, []model.ServiceType{model.ServiceIdentity, model.ServiceAddress}, sel.Selected)
	assert.Equal(t, "34.98", sel.Total)

	sel = toggle(t, router, id, model.ServiceAddress)
	assert.Equal(t, "14.99", sel.Total)

	resp := call(t, router, http.MethodPost, "/sessions/"+id+"/selection/toggle", apimodel.ToggleService{ServiceID: "dna"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var got selectionResponse
	resp = call(t, router, http.MethodGet, "/sessions/"+id+"/selection", nil, &got)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []model.ServiceType{model.ServiceIdentity}, got.Selected)
}

func TestSubmitPayment(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceCredit)

	resp := call(t, router, http.MethodPost, "/sessions/"+id+"/payment", apimodel.Payment{Method: "upi", UpiID: "x@oksbi"}, nil)
	assert.Equal(t, http.StatusConflict, resp.Code, "payment before proceeding")

	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/payment/proceed", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var errBody map[string]interface{}
	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/payment", apimodel.Payment{Method: "card", CardNumber: "4111"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])

	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/payment", apimodel.Payment{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	declined := apimodel.Payment{Method: "card", CardNumber: "5111 1111 1111 1111", HolderName: gofakeit.Name(), Expiry: "12/30", CVV: "123"}
	errBody = nil
	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/payment", declined, &errBody)
	assert.Equal(t, http.StatusPaymentRequired, resp.Code)
	details, ok := errBody["details"].(map[string]interface{})
	require.True(t, ok, resp.Body.String())
	assert.Equal(t, "failure", details["status"])
	assert.NotEmpty(t, details["hint"])

	var outcome model.PaymentOutcome
	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/payment", apimodel.Payment{Method: "upi", UpiID: "x@oksbi"}, &outcome)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, outcome.Succeeded())

	var session model.Session
	call(t, router, http.MethodGet, "/sessions/"+id, nil, &session)
	assert.Equal(t, model.StepPaymentSuccess, session.Step)
}

func TestCancelPayment(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceCredit)
	call(t, router, http.MethodPost, "/sessions/"+id+"/payment/proceed", nil, nil)

	var session model.Session
	resp := call(t, router, http.MethodPost, "/sessions/"+id+"/payment/cancel", nil, &session)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StepSelectServices, session.Step)

	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/payment/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestFormsToSubmission(t *testing.T) {
	router, stub := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceIdentity, model.ServiceAddress)
	pay(t, router, id)

	identity := map[string]string{
		model.FieldIDType:           "passport",
		model.FieldIDNumber:         "P1234567",
		model.FieldIssueDate:        "2020-01-01",
		model.FieldExpiryDate:       "2030-01-01",
		model.FieldIssuingAuthority: "Passport Office",
	}
	for field, value := range identity {
		setField(t, router, id, model.ServiceIdentity, field, value)
	}
	address := map[string]string{
		model.FieldStreet:         gofakeit.Street(),
		model.FieldCity:           gofakeit.City(),
		model.FieldState:          gofakeit.StateAbr(),
		model.FieldZipCode:        gofakeit.Zip(),
		model.FieldCountry:        "US",
		model.FieldResidenceSince: "2019-05",
	}
	for field, value := range address {
		setField(t, router, id, model.ServiceAddress, field, value)
	}

	resp := call(t, router, http.MethodPut, "/sessions/"+id+"/forms/identity/fields", apimodel.UpdateField{Field: "shoeSize", Value: "9"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var errBody map[string]interface{}
	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/forms/identity/complete", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "identity needs its document")

	png := []byte("\x89PNG\r\n\x1a\n0000")
	resp = upload(t, router, "/sessions/"+id+"/forms/identity/documents/0", "passport.png", png)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var doc model.Document
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &doc))
	assert.Equal(t, "/sessions/"+id+"/forms/identity/documents/0", doc.PreviewURL)
	assert.Empty(t, doc.Data)

	resp = upload(t, router, "/sessions/"+id+"/forms/identity/documents/0", "passport.exe", png)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	preview := httptest.NewRecorder()
	router.ServeHTTP(preview, httptest.NewRequest(http.MethodGet, doc.PreviewURL, nil))
	require.Equal(t, http.StatusOK, preview.Code)
	assert.Equal(t, png, preview.Body.Bytes())
	assert.Equal(t, "image/png", preview.Header().Get("Content-Type"))

	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/final", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "forms not complete yet")

	for _, svc := range []string{"identity", "address"} {
		resp = call(t, router, http.MethodPost, "/sessions/"+id+"/forms/"+svc+"/complete", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}

	var readiness model.Readiness
	resp = call(t, router, http.MethodGet, "/sessions/"+id+"/readiness", nil, &readiness)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, readiness.Ready)

	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/final", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/submit", apimodel.Submit{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, 0, stub.submits)

	var receipt model.SubmissionReceipt
	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/submit", apimodel.Submit{ConsentGiven: true}, &receipt)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.True(t, strings.HasPrefix(receipt.ReferenceID, "VRF-"))
	assert.Equal(t, "BK-7", receipt.BackendReference)
	assert.Equal(t, 1, stub.submits)

	var session model.Session
	call(t, router, http.MethodGet, "/sessions/"+id, nil, &session)
	assert.Equal(t, model.StepSelectServices, session.Step)
}

func TestListItems(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceAcademic)

	var form model.AcademicForm
	resp := call(t, router, http.MethodPost, "/sessions/"+id+"/forms/academic/items", apimodel.ListItem{List: model.ListDegrees}, &form)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Len(t, form.Degrees, 2)

	resp = call(t, router, http.MethodDelete, "/sessions/"+id+"/forms/academic/items", apimodel.ListItem{List: model.ListDegrees, Index: 1}, &form)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, form.Degrees, 1)

	resp = call(t, router, http.MethodDelete, "/sessions/"+id+"/forms/academic/items", apimodel.ListItem{List: model.ListDegrees}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "last item stays")

	resp = call(t, router, http.MethodGet, "/sessions/"+id+"/forms/credit", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "credit is not selected")
}

func TestStreamReadiness(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceCredit)

	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sessions/"+id+"/readiness/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan model.Readiness, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var r model.Readiness
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &r) == nil {
				events <- r
			}
		}
		close(events)
	}()

	select {
	case r := <-events:
		assert.Equal(t, []model.ServiceType{model.ServiceCredit}, r.Selected)
		assert.False(t, r.Ready)
	case <-ctx.Done():
		t.Fatal("no readiness event received")
	}

	toggle(t, router, id, model.ServiceIdentity)
	for {
		select {
		case r, ok := <-events:
			require.True(t, ok)
			if len(r.Selected) == 2 {
				return
			}
		case <-ctx.Done():
			t.Fatal("selection change was not streamed")
		}
	}
}

func TestVerifyAndChecks(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceIdentity)
	pay(t, router, id)

	resp := upload(t, router, "/sessions/"+id+"/forms/identity/documents/0", "id.pdf", []byte("%PDF-1.4 test"))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var check model.DocumentCheck
	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/forms/identity/verify", apimodel.VerifyDocument{}, &check)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, model.CheckStatusPassed, check.Status)

	var checks map[model.ServiceType]*model.DocumentCheck
	resp = call(t, router, http.MethodGet, "/sessions/"+id+"/checks", nil, &checks)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, checks, model.ServiceIdentity)

	resp = call(t, router, http.MethodPost, "/sessions/"+id+"/forms/identity/documents/0/attest", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code, "no wallet connected")
}

func TestAttachDocumentSizeLimit(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceIdentity)
	pay(t, router, id)
	route := "/sessions/" + id + "/forms/identity/documents/0"

	oversize := bytes.Repeat([]byte{'a'}, 5<<20+1)
	resp := upload(t, router, route, "passport.pdf", oversize)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "byte limit")

	// Far past the limit the body itself is cut off.
	resp = upload(t, router, route, "passport.pdf", bytes.Repeat([]byte{'a'}, 7<<20))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var form model.IdentityForm
	resp = call(t, router, http.MethodGet, "/sessions/"+id+"/forms/identity", nil, &form)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, form.Document)
}

func TestFormResponsesOmitFileContents(t *testing.T) {
	router, _ := setupRouter(t)
	id := gofakeit.UUID()
	toggle(t, router, id, model.ServiceIdentity)
	pay(t, router, id)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	resp := upload(t, router, "/sessions/"+id+"/forms/identity/documents/0", "passport.png", png)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var form model.IdentityForm
	resp = call(t, router, http.MethodPut, "/sessions/"+id+"/forms/identity/fields", apimodel.UpdateField{Field: model.FieldIDNumber, Value: "P1234567"}, &form)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, form.Document)
	assert.Empty(t, form.Document.Data)
	assert.Equal(t, "passport.png", form.Document.FileName)

	form = model.IdentityForm{}
	resp = call(t, router, http.MethodGet, "/sessions/"+id+"/forms/identity", nil, &form)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, form.Document)
	assert.Empty(t, form.Document.Data)

	// The file itself is still served for previews.
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/forms/identity/documents/0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, png, rec.Body.Bytes())
}
