package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dinein/ordering-service/internal/apperr"
	"dinein/ordering-service/internal/catalogue"
	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/session"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeSessions struct {
	createFn  func(ctx context.Context, input session.CreateInput) (session.CreateResult, error)
	statusFn  func(ctx context.Context, input session.StatusInput) (session.StatusResult, error)
	confirmFn func(ctx context.Context, input session.ConfirmInput) (session.Summary, error)
}

func (f fakeSessions) CreateOrReuse(ctx context.Context, input session.CreateInput) (session.CreateResult, error) {
	if f.createFn == nil {
		return session.CreateResult{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeSessions) CheckStatus(ctx context.Context, input session.StatusInput) (session.StatusResult, error) {
	if f.statusFn == nil {
		return session.StatusResult{}, nil
	}
	return f.statusFn(ctx, input)
}

func (f fakeSessions) ConfirmPayment(ctx context.Context, input session.ConfirmInput) (session.Summary, error) {
	if f.confirmFn == nil {
		return session.Summary{}, nil
	}
	return f.confirmFn(ctx, input)
}

type fakeCatalogue struct {
	listCategoriesFn func(ctx context.Context, restaurantID string) ([]string, error)
	addCategoryFn    func(ctx context.Context, restaurantID, name string) (models.Category, error)
	setIconFn        func(ctx context.Context, restaurantID, categoryName, iconName string) (models.Category, error)
	iconsFn          func(ctx context.Context, restaurantID string) (map[string]*string, error)
	addItemFn        func(ctx context.Context, input catalogue.AddItemInput) (models.Item, error)
	listItemsFn      func(ctx context.Context, restaurantID, categoryName string) ([]models.Item, error)
	editPortionFn    func(ctx context.Context, restaurantID string, itemID int64, portionName string, price float64) (models.Portion, error)
	editAttributeFn  func(ctx context.Context, restaurantID string, itemID int64, attribute string, value any) (models.Item, error)
}

func (f fakeCatalogue) ListCategories(ctx context.Context, restaurantID string) ([]string, error) {
	if f.listCategoriesFn == nil {
		return []string{}, nil
	}
	return f.listCategoriesFn(ctx, restaurantID)
}

func (f fakeCatalogue) AddCategory(ctx context.Context, restaurantID, name string) (models.Category, error) {
	if f.addCategoryFn == nil {
		return models.Category{}, nil
	}
	return f.addCategoryFn(ctx, restaurantID, name)
}

func (f fakeCatalogue) SetCategoryIcon(ctx context.Context, restaurantID, categoryName, iconName string) (models.Category, error) {
	if f.setIconFn == nil {
		return models.Category{}, nil
	}
	return f.setIconFn(ctx, restaurantID, categoryName, iconName)
}

func (f fakeCatalogue) CategoryIcons(ctx context.Context, restaurantID string) (map[string]*string, error) {
	if f.iconsFn == nil {
		return map[string]*string{}, nil
	}
	return f.iconsFn(ctx, restaurantID)
}

func (f fakeCatalogue) AddItem(ctx context.Context, input catalogue.AddItemInput) (models.Item, error) {
	if f.addItemFn == nil {
		return models.Item{}, nil
	}
	return f.addItemFn(ctx, input)
}

func (f fakeCatalogue) ListItems(ctx context.Context, restaurantID, categoryName string) ([]models.Item, error) {
	if f.listItemsFn == nil {
		return []models.Item{}, nil
	}
	return f.listItemsFn(ctx, restaurantID, categoryName)
}

func (f fakeCatalogue) EditPortion(ctx context.Context, restaurantID string, itemID int64, portionName string, price float64) (models.Portion, error) {
	if f.editPortionFn == nil {
		return models.Portion{}, nil
	}
	return f.editPortionFn(ctx, restaurantID, itemID, portionName, price)
}

func (f fakeCatalogue) EditItemAttribute(ctx context.Context, restaurantID string, itemID int64, attribute string, value any) (models.Item, error) {
	if f.editAttributeFn == nil {
		return models.Item{}, nil
	}
	return f.editAttributeFn(ctx, restaurantID, itemID, attribute, value)
}

func newTestHandler(sessions SessionService, menu CatalogueService, options Options) http.Handler {
	logger, _ := logtest.NewNullLogger()
	options.Logger = logger
	return NewHandler(sessions, menu, options).Routes()
}

func doJSON(t *testing.T, handler http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestCreateSessionCreated(t *testing.T) {
	sessionID := uuid.NewString()
	var got session.CreateInput
	handler := newTestHandler(fakeSessions{
		createFn: func(ctx context.Context, input session.CreateInput) (session.CreateResult, error) {
			got = input
			return session.CreateResult{
				Outcome: session.OutcomeCreated,
				Summary: session.Summary{SessionID: sessionID, BillID: "2025JUN021", PaymentStatus: models.PaymentPending},
			}, nil
		},
	}, fakeCatalogue{}, Options{})

	rec := doJSON(t, handler, "/session/createsession", map[string]string{
		"mobileNum":    " 9990001111 ",
		"restaurantId": "R1",
		"tableId":      "T1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.CustomerNumber != "9990001111" || got.RestaurantID != "R1" || got.TableID != "T1" {
		t.Fatalf("unexpected input: %+v", got)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["sessionId"] != sessionID || resp["billId"] != "2025JUN021" || resp["paymentStatus"] != "Pending" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestCreateSessionExpired(t *testing.T) {
	handler := newTestHandler(fakeSessions{
		createFn: func(ctx context.Context, input session.CreateInput) (session.CreateResult, error) {
			return session.CreateResult{Outcome: session.OutcomeExpired, SessionStatus: models.SessionExpired}, nil
		},
	}, fakeCatalogue{}, Options{})

	rec := doJSON(t, handler, "/session/createsession", map[string]string{
		"mobileNum":    "9990001111",
		"restaurantId": "R1",
		"tableId":      "T1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp["sessionStatus"] != "Expired" {
		t.Fatalf("expected only sessionStatus Expired, got %v", resp)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	called := false
	handler := newTestHandler(fakeSessions{
		createFn: func(ctx context.Context, input session.CreateInput) (session.CreateResult, error) {
			called = true
			return session.CreateResult{}, nil
		},
	}, fakeCatalogue{}, Options{})

	tests := []struct {
		name string
		body any
		code string
	}{
		{"missing table", map[string]string{"mobileNum": "1", "restaurantId": "R1"}, "invalid_request"},
		{"blank mobile", map[string]string{"mobileNum": "  ", "restaurantId": "R1", "tableId": "T1"}, "invalid_request"},
		{"unknown field", map[string]string{"mobileNum": "1", "restaurantId": "R1", "tableId": "T1", "extra": "x"}, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, "/session/createsession", tt.body, map[string]string{RequestIDHeader: "req-1"})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error.Code != tt.code {
				t.Fatalf("expected %s, got %s", tt.code, resp.Error.Code)
			}
			if resp.RequestID != "req-1" {
				t.Fatalf("expected request id echo, got %q", resp.RequestID)
			}
		})
	}
	if called {
		t.Fatalf("service should not be called for invalid input")
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.NotFound("session not found"), http.StatusNotFound, "not_found"},
		{apperr.Validation("bad"), http.StatusBadRequest, "validation"},
		{apperr.Conflict("dup"), http.StatusConflict, "conflict"},
		{apperr.Unauthorized("nope"), http.StatusUnauthorized, "unauthorized"},
		{apperr.Configuration("missing key"), http.StatusInternalServerError, "configuration"},
		{apperr.Transient("try again", errors.New("collision")), http.StatusServiceUnavailable, "transient"},
		{apperr.Internal("db", errors.New("connection reset")), http.StatusInternalServerError, "internal"},
		{errors.New("raw"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := tt.err
			handler := newTestHandler(fakeSessions{
				confirmFn: func(ctx context.Context, input session.ConfirmInput) (session.Summary, error) {
					return session.Summary{}, err
				},
			}, fakeCatalogue{}, Options{})

			rec := doJSON(t, handler, "/session/paymentconfirm", map[string]string{
				"sessionId":        uuid.NewString(),
				"signedPaymentKey": "k",
			}, nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, resp.Error.Code)
			}
			if tt.status == http.StatusInternalServerError && tt.code == "internal" && resp.Error.Message != "internal server error" {
				t.Fatalf("internal details leaked: %s", resp.Error.Message)
			}
		})
	}
}

func TestSessionStatusRequiresUUIDv4(t *testing.T) {
	handler := newTestHandler(fakeSessions{
		statusFn: func(ctx context.Context, input session.StatusInput) (session.StatusResult, error) {
			return session.StatusResult{SessionStatus: models.SessionActive}, nil
		},
	}, fakeCatalogue{}, Options{})

	rec := doJSON(t, handler, "/session/sessionstatus", map[string]string{
		"restaurantId": "R1",
		"sessionId":    "not-a-uuid",
		"tableId":      "T1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, handler, "/session/sessionstatus", map[string]string{
		"restaurantId": "R1",
		"sessionId":    uuid.NewString(),
		"tableId":      "T1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp session.StatusResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionStatus != models.SessionActive {
		t.Fatalf("unexpected status: %s", resp.SessionStatus)
	}
}

func TestPaymentConfirmRequiresKey(t *testing.T) {
	handler := newTestHandler(fakeSessions{}, fakeCatalogue{}, Options{})
	rec := doJSON(t, handler, "/session/paymentconfirm", map[string]string{"sessionId": uuid.NewString()}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(fakeSessions{}, fakeCatalogue{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/session/createsession", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	ready := errors.New("down")
	handler := newTestHandler(fakeSessions{}, fakeCatalogue{}, Options{
		Ready: func(context.Context) error { return ready },
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCatalogueWritesRequireAdminKey(t *testing.T) {
	added := false
	handler := newTestHandler(fakeSessions{}, fakeCatalogue{
		addCategoryFn: func(ctx context.Context, restaurantID, name string) (models.Category, error) {
			added = true
			return models.Category{CategoryID: 1, RestaurantID: restaurantID, Name: name}, nil
		},
	}, Options{AdminKey: "admin"})

	body := map[string]string{"restaurantId": "R1", "name": "Mains"}
	rec := doJSON(t, handler, "/catalogue/addcategories", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	rec = doJSON(t, handler, "/catalogue/addcategories", body, map[string]string{AdminKeyHeader: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}
	if added {
		t.Fatalf("service should not be called without a valid key")
	}

	rec = doJSON(t, handler, "/catalogue/addcategories", body, map[string]string{AdminKeyHeader: "admin"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, "/catalogue/categories", map[string]string{"restaurantId": "R1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reads should not need the admin key, got %d", rec.Code)
	}
}

func TestCatalogueRoutes(t *testing.T) {
	var gotItem catalogue.AddItemInput
	var gotValue any
	handler := newTestHandler(fakeSessions{}, fakeCatalogue{
		listCategoriesFn: func(ctx context.Context, restaurantID string) ([]string, error) {
			return []string{"Desserts", "Mains"}, nil
		},
		addItemFn: func(ctx context.Context, input catalogue.AddItemInput) (models.Item, error) {
			gotItem = input
			return models.Item{ItemID: 7, Name: input.ItemName}, nil
		},
		editAttributeFn: func(ctx context.Context, restaurantID string, itemID int64, attribute string, value any) (models.Item, error) {
			gotValue = value
			return models.Item{ItemID: itemID}, nil
		},
		editPortionFn: func(ctx context.Context, restaurantID string, itemID int64, portionName string, price float64) (models.Portion, error) {
			return models.Portion{}, apperr.Validation("item 7 does not offer portions")
		},
	}, Options{})

	rec := doJSON(t, handler, "/catalogue/categories", map[string]string{"restaurantId": "R1"}, nil)
	var categories map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &categories); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(categories["categories"]) != 2 {
		t.Fatalf("unexpected categories: %v", categories)
	}

	rec = doJSON(t, handler, "/catalogue/addcategoryitem", map[string]any{
		"restaurantId": "R1",
		"categoryName": "Mains",
		"itemName":     "Dal",
		"price":        120.5,
		"availStatus":  true,
		"portionAvail": false,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotItem.Price == nil || *gotItem.Price != 120.5 || !gotItem.AvailStatus || gotItem.PortionAvail {
		t.Fatalf("unexpected item input: %+v", gotItem)
	}

	rec = doJSON(t, handler, "/catalogue/addcategoryitem", map[string]any{
		"restaurantId": "R1",
		"categoryName": "Mains",
		"itemName":     "Dal",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without availability flags, got %d", rec.Code)
	}

	rec = doJSON(t, handler, "/catalogue/edititemattribute", map[string]any{
		"restaurantId":   "R1",
		"itemId":         7,
		"attributeName":  "availStatus",
		"attributeValue": false,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotValue != false {
		t.Fatalf("expected boolean false, got %#v", gotValue)
	}

	rec = doJSON(t, handler, "/catalogue/editportion", map[string]any{
		"restaurantId": "R1",
		"itemId":       7,
		"portionName":  "Half",
		"portionPrice": 60,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRateLimiterPerRestaurant(t *testing.T) {
	handler := newTestHandler(fakeSessions{}, fakeCatalogue{}, Options{})
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1000, IPBurst: 1000, RestaurantPerMinute: 1, RestaurantBurst: 1})
	limited := limiter.Middleware(handler)

	rec := doJSON(t, limited, "/catalogue/categories", map[string]string{"restaurantId": "R1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec = doJSON(t, limited, "/catalogue/categories", map[string]string{"restaurantId": "R1"}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	rec = doJSON(t, limited, "/catalogue/categories", map[string]string{"restaurantId": "R2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("other restaurants are unaffected, got %d", rec.Code)
	}
}

func TestRequestIDNestedKeepsOuter(t *testing.T) {
	var inner string
	handler := RequestID(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = RequestIDFromContext(r.Context())
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if inner == "" || inner != rec.Header().Get(RequestIDHeader) {
		t.Fatalf("expected header %q to match context %q", rec.Header().Get(RequestIDHeader), inner)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces")
	handler.ServeHTTP(rec, req)
	if inner == "bad id with spaces" {
		t.Fatalf("invalid request ids must be replaced")
	}
}
