package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/car-sharing/internal/adapter/storage"
	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/core/service"
	"github.com/rl1809/car-sharing/internal/port"
)

var now = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

// Mock PaymentProvider
type fakeProvider struct {
	mu   sync.Mutex
	n    int
	paid map[string]bool
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, _ port.CheckoutRequest) (*port.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	id := "cs_" + strconv.Itoa(p.n)
	return &port.CheckoutSession{ID: id, URL: "https://pay.example.com/" + id}, nil
}

func (p *fakeProvider) SessionPaid(_ context.Context, id string) (bool, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paid[id] {
		return true, "paid", nil
	}
	return false, "unpaid", nil
}

type nopQueue struct{}

func (nopQueue) Enqueue(domain.Event) {}

type testServer struct {
	store    *storage.MemoryAdapter
	provider *fakeProvider
	rentals  *service.RentalService
	payments *service.PaymentService
	srv      *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []service.Option{
		service.WithClock(func() time.Time { return now }),
		service.WithLogger(log),
	}

	ts := &testServer{store: storage.NewMemoryAdapter(), provider: &fakeProvider{paid: map[string]bool{}}}
	ts.store.AddUser(domain.User{ID: 1, Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"})

	ts.rentals = service.NewRentalService(ts.store, service.NewInventoryLedger(), nopQueue{}, opts...)
	ts.payments = service.NewPaymentService(ts.store, ts.provider, storage.NewMemoryLocker(), nopQueue{},
		service.PaymentConfig{BaseURL: "http://localhost"}, opts...)
	h := NewHTTPHandler(service.NewCarService(ts.store), ts.rentals, ts.payments, log)

	ts.srv = httptest.NewServer(h.Routes())
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

var (
	asCustomer = map[string]string{HeaderUserID: "1", HeaderUserRoles: "CUSTOMER"}
	asStranger = map[string]string{HeaderUserID: "2"}
	asManager  = map[string]string{HeaderUserID: "9", HeaderUserRoles: "MANAGER"}
)

const carBody = `{"brand":"Toyota","model":"Corolla","type":"SEDAN","inventory":1,"daily_fee":"50.00"}`

func TestHTTP_HealthCheck(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestHTTP_Cars(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/cars", carBody, asCustomer)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, domain.KindForbidden, body["error"])

	status, _ = ts.do(t, http.MethodPost, "/cars", carBody, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = ts.do(t, http.MethodPost, "/cars", `{"brand":"","model":"X","type":"TRUCK"}`, asManager)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, domain.KindInvalidInput, body["error"])
	fields, _ := body["fields"].([]any)
	assert.Len(t, fields, 3)

	status, body = ts.do(t, http.MethodPost, "/cars", carBody, asManager)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(1), body["id"])

	status, body = ts.do(t, http.MethodGet, "/cars/1", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Corolla", body["model"])

	status, _ = ts.do(t, http.MethodGet, "/cars/2", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodGet, "/cars/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodDelete, "/cars/1", "", asManager)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestHTTP_RentalFlow(t *testing.T) {
	ts := newTestServer(t)
	status, _ := ts.do(t, http.MethodPost, "/cars", carBody, asManager)
	require.Equal(t, http.StatusCreated, status)

	status, body := ts.do(t, http.MethodPost, "/rentals", `{"car_id":1,"return_date":"2025-03-09"}`, asCustomer)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, domain.KindInvalidInput, body["error"])

	status, body = ts.do(t, http.MethodPost, "/rentals", `{"car_id":1,"return_date":"03/12/2025"}`, asCustomer)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ts.do(t, http.MethodPost, "/rentals", `{"car_id":1,"return_date":"2025-03-12"}`, asCustomer)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "2025-03-10", body["rental_date"])
	assert.Equal(t, "2025-03-12", body["return_date"])
	assert.Nil(t, body["actual_return_date"])

	status, body = ts.do(t, http.MethodPost, "/rentals", `{"car_id":1,"return_date":"2025-03-12"}`, asCustomer)
	assert.Equal(t, http.StatusGone, status)
	assert.Equal(t, domain.KindNoAvailableUnits, body["error"])

	status, _ = ts.do(t, http.MethodGet, "/rentals/1", "", asStranger)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.do(t, http.MethodGet, "/rentals?user_id=1", "", asStranger)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.do(t, http.MethodGet, "/rentals?is_active=maybe", "", asCustomer)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ts.do(t, http.MethodPost, "/payments", `{"rental_id":1,"payment_type":"PAYMENT"}`, asCustomer)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cs_1", body["session_id"])

	status, body = ts.do(t, http.MethodPost, "/payments", `{"rental_id":1,"payment_type":"FINE"}`, asCustomer)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, domain.KindInvalidState, body["error"])

	status, body = ts.do(t, http.MethodGet, "/payments/success?session_id=cs_1", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.SessionStatusPending, body["status"])

	ts.provider.mu.Lock()
	ts.provider.paid["cs_1"] = true
	ts.provider.mu.Unlock()

	status, body = ts.do(t, http.MethodGet, "/payments/success?session_id=cs_1", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.SessionStatusSuccess, body["status"])

	status, body = ts.do(t, http.MethodPost, "/payments", `{"rental_id":1,"payment_type":"PAYMENT"}`, asCustomer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, domain.KindAlreadyPaid, body["error"])

	status, body = ts.do(t, http.MethodGet, "/payments/cancel?session_id=cs_9", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.SessionStatusCancelled, body["status"])

	status, _ = ts.do(t, http.MethodGet, "/payments/success?session_id=cs_9", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = ts.do(t, http.MethodPost, "/rentals/1/return", "", asCustomer)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2025-03-10", body["actual_return_date"])

	status, body = ts.do(t, http.MethodPost, "/rentals/1/return", "", asCustomer)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, domain.KindAlreadyReturned, body["error"])

	status, body = ts.do(t, http.MethodPost, "/payments", `{"rental_id":1,"payment_type":"FINE"}`, asCustomer)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, domain.KindNoFineRequired, body["error"])
}

func TestHTTP_ListPayments(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	car := domain.Car{Brand: "Kia", Model: "Rio", Type: domain.CarTypeHatchback, Inventory: 1, DailyFee: decimal.NewFromInt(30)}
	require.NoError(t, ts.store.CreateCar(ctx, &car))
	_, err := ts.rentals.Create(ctx, domain.Caller{UserID: 1, Roles: []domain.Role{domain.RoleCustomer}},
		service.CreateRentalInput{CarID: car.ID, ReturnDate: now.AddDate(0, 0, 2)})
	require.NoError(t, err)

	status, _ := ts.do(t, http.MethodPost, "/payments", `{"rental_id":1,"payment_type":"PAYMENT"}`, asCustomer)
	require.Equal(t, http.StatusOK, status)

	for _, tc := range []struct {
		name    string
		path    string
		headers map[string]string
		want    int
		count   int
	}{
		{"customer sees own", "/payments", asCustomer, http.StatusOK, 1},
		{"stranger sees none", "/payments", asStranger, http.StatusOK, 0},
		{"manager sees all", "/payments", asManager, http.StatusOK, 1},
		{"manager filters", "/payments?user_id=1", asManager, http.StatusOK, 1},
		{"manager unknown user", "/payments?user_id=5", asManager, http.StatusNotFound, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.srv.URL+tc.path, nil)
			require.NoError(t, err)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tc.want, resp.StatusCode)
			if tc.want != http.StatusOK {
				return
			}
			var payments []map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payments))
			assert.Len(t, payments, tc.count)
		})
	}
}

func TestHTTP_ListCarsPaged(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for _, model := range []string{"Rio", "Ceed", "Sportage"} {
		car := domain.Car{Brand: "Kia", Model: model, Type: domain.CarTypeHatchback, Inventory: 1, DailyFee: decimal.NewFromInt(30)}
		require.NoError(t, ts.store.CreateCar(ctx, &car))
	}

	for _, tc := range []struct {
		name   string
		query  string
		want   int
		models []string
	}{
		{"default page", "", http.StatusOK, []string{"Rio", "Ceed", "Sportage"}},
		{"first page", "?page=0&size=2", http.StatusOK, []string{"Rio", "Ceed"}},
		{"second page", "?page=1&size=2", http.StatusOK, []string{"Sportage"}},
		{"past the end", "?page=5&size=2", http.StatusOK, []string{}},
		{"negative page", "?page=-1", http.StatusBadRequest, nil},
		{"size too large", "?size=1000", http.StatusBadRequest, nil},
		{"not a number", "?page=first", http.StatusBadRequest, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.srv.URL + "/cars" + tc.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tc.want, resp.StatusCode)
			if tc.want != http.StatusOK {
				return
			}
			var cars []domain.Car
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&cars))
			models := make([]string, 0, len(cars))
			for _, c := range cars {
				models = append(models, c.Model)
			}
			assert.Equal(t, tc.models, models)
		})
	}
}

func TestCallerFromHeaders(t *testing.T) {
	c, err := CallerFromHeaders("7", "manager, CUSTOMER")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.UserID)
	assert.True(t, c.IsManager())
	assert.True(t, c.Has(domain.RoleCustomer))

	c, err = CallerFromHeaders("7", "")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleCustomer}, c.Roles)

	_, err = CallerFromHeaders("", "CUSTOMER")
	assert.Error(t, err)
	_, err = CallerFromHeaders("7", "ADMIN")
	assert.Error(t, err)
}
