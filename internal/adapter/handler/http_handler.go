package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/core/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Identity headers set by the gateway after authentication.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

const (
	dateLayout          = "2006-01-02"
	kindUnauthenticated = "UNAUTHENTICATED"
)

var errUnauthenticated = errors.New("missing or invalid caller identity")

type HTTPHandler struct {
	cars     *service.CarService
	rentals  *service.RentalService
	payments *service.PaymentService
	validate *validator.Validate
	log      *slog.Logger
}

type CarHTTPRequest struct {
	Brand     string          `json:"brand" validate:"required,max=100"`
	Model     string          `json:"model" validate:"required,max=100"`
	Type      string          `json:"type" validate:"required,oneof=SEDAN SUV HATCHBACK UNIVERSAL"`
	Inventory *int            `json:"inventory" validate:"required,gte=0"`
	DailyFee  decimal.Decimal `json:"daily_fee"`
}

type CreateRentalHTTPRequest struct {
	CarID      int64  `json:"car_id" validate:"required,gt=0"`
	ReturnDate string `json:"return_date" validate:"required,datetime=2006-01-02"`
}

type CreatePaymentHTTPRequest struct {
	RentalID int64  `json:"rental_id" validate:"required,gt=0"`
	Type     string `json:"payment_type" validate:"required,oneof=PAYMENT FINE"`
}

type RentalHTTPResponse struct {
	ID               int64   `json:"id"`
	CarID            int64   `json:"car_id"`
	UserID           int64   `json:"user_id"`
	RentalDate       string  `json:"rental_date"`
	ReturnDate       string  `json:"return_date"`
	ActualReturnDate *string `json:"actual_return_date"`
}

type ErrorHTTPResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

func NewHTTPHandler(cars *service.CarService, rentals *service.RentalService, payments *service.PaymentService, log *slog.Logger) *HTTPHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &HTTPHandler{cars: cars, rentals: rentals, payments: payments, validate: v, log: log}
}

func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("GET /cars", h.ListCars)
	mux.HandleFunc("GET /cars/{id}", h.GetCar)
	mux.HandleFunc("POST /cars", h.CreateCar)
	mux.HandleFunc("PUT /cars/{id}", h.UpdateCar)
	mux.HandleFunc("DELETE /cars/{id}", h.DeleteCar)

	mux.HandleFunc("POST /rentals", h.CreateRental)
	mux.HandleFunc("GET /rentals", h.ListRentals)
	mux.HandleFunc("GET /rentals/{id}", h.GetRental)
	mux.HandleFunc("POST /rentals/{id}/return", h.ReturnRental)

	mux.HandleFunc("POST /payments", h.CreatePayment)
	mux.HandleFunc("GET /payments", h.ListPayments)
	mux.HandleFunc("GET /payments/success", h.PaymentSuccess)
	mux.HandleFunc("GET /payments/cancel", h.PaymentCancel)
	return mux
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListCars(w http.ResponseWriter, r *http.Request) {
	page, ok := h.queryPage(w, r)
	if !ok {
		return
	}
	cars, err := h.cars.List(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cars)
}

func (h *HTTPHandler) GetCar(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	car, err := h.cars.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (h *HTTPHandler) CreateCar(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CarHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	car, err := h.cars.Create(r.Context(), caller, req.car())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, car)
}

func (h *HTTPHandler) UpdateCar(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req CarHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	car, err := h.cars.Update(r.Context(), caller, id, req.car())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (h *HTTPHandler) DeleteCar(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.cars.Delete(r.Context(), caller, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CreateRental(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateRentalHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	returnDate, _ := time.Parse(dateLayout, req.ReturnDate)

	rental, err := h.rentals.Create(r.Context(), caller, service.CreateRentalInput{CarID: req.CarID, ReturnDate: returnDate})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rentalResponse(*rental))
}

func (h *HTTPHandler) ListRentals(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	userID, ok := h.queryUserID(w, r)
	if !ok {
		return
	}
	active := true
	if v := r.URL.Query().Get("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, fieldError("is_active", "must be true or false"))
			return
		}
		active = b
	}
	page, ok := h.queryPage(w, r)
	if !ok {
		return
	}

	rentals, err := h.rentals.List(r.Context(), caller, userID, active, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]RentalHTTPResponse, 0, len(rentals))
	for _, rental := range rentals {
		out = append(out, rentalResponse(rental))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetRental(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rental, err := h.rentals.Get(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rentalResponse(*rental))
}

func (h *HTTPHandler) ReturnRental(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rental, err := h.rentals.Return(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rentalResponse(*rental))
}

func (h *HTTPHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreatePaymentHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.payments.CreateSession(r.Context(), caller, req.RentalID, domain.PaymentType(req.Type))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ListPayments returns the caller's payments. Managers get everyone's,
// optionally narrowed with user_id.
func (h *HTTPHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	userID, ok := h.queryUserID(w, r)
	if !ok {
		return
	}
	page, ok := h.queryPage(w, r)
	if !ok {
		return
	}

	var (
		payments []domain.Payment
		err      error
	)
	if caller.IsManager() {
		payments, err = h.payments.ListAll(r.Context(), caller, userID, page)
	} else {
		payments, err = h.payments.ListMine(r.Context(), caller, page)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// PaymentSuccess is the provider redirect target and carries no identity.
func (h *HTTPHandler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.writeError(w, r, fieldError("session_id", "required"))
		return
	}
	result, err := h.payments.ConfirmSuccess(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) PaymentCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		h.writeError(w, r, fieldError("session_id", "required"))
		return
	}
	writeJSON(w, http.StatusOK, h.payments.ConfirmCancel(r.Context(), sessionID))
}

func (req CarHTTPRequest) car() domain.Car {
	c := domain.Car{
		Brand:    strings.TrimSpace(req.Brand),
		Model:    strings.TrimSpace(req.Model),
		Type:     domain.CarType(req.Type),
		DailyFee: req.DailyFee,
	}
	if req.Inventory != nil {
		c.Inventory = *req.Inventory
	}
	return c
}

func rentalResponse(r domain.Rental) RentalHTTPResponse {
	resp := RentalHTTPResponse{
		ID:         r.ID,
		CarID:      r.CarID,
		UserID:     r.UserID,
		RentalDate: r.RentalDate.Format(dateLayout),
		ReturnDate: r.ReturnDate.Format(dateLayout),
	}
	if r.ActualReturnDate != nil {
		s := r.ActualReturnDate.Format(dateLayout)
		resp.ActualReturnDate = &s
	}
	return resp
}

// CallerFromHeaders resolves the identity forwarded by the gateway. A caller
// without roles is a customer.
func CallerFromHeaders(userID, roles string) (domain.Caller, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil || id <= 0 {
		return domain.Caller{}, errUnauthenticated
	}

	caller := domain.Caller{UserID: id}
	for _, s := range strings.Split(roles, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		role, ok := domain.ParseRole(s)
		if !ok {
			return domain.Caller{}, errUnauthenticated
		}
		caller.Roles = append(caller.Roles, role)
	}
	if len(caller.Roles) == 0 {
		caller.Roles = []domain.Role{domain.RoleCustomer}
	}
	return caller, nil
}

func (h *HTTPHandler) caller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, err := CallerFromHeaders(r.Header.Get(HeaderUserID), r.Header.Get(HeaderUserRoles))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorHTTPResponse{Error: kindUnauthenticated, Message: err.Error()})
		return domain.Caller{}, false
	}
	return caller, true
}

func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, fieldError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) queryUserID(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	v := r.URL.Query().Get("user_id")
	if v == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, fieldError("user_id", "must be a positive integer"))
		return nil, false
	}
	return &id, true
}

// queryPage reads the zero based page and size query parameters.
func (h *HTTPHandler) queryPage(w http.ResponseWriter, r *http.Request) (domain.Page, bool) {
	q := r.URL.Query()
	number, size := 0, 0
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &number}, {"size", &size}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, fieldError(p.name, "must be an integer"))
			return domain.Page{}, false
		}
		*p.dst = n
	}

	page, err := domain.NewPage(number, size)
	if err != nil {
		h.writeError(w, r, err)
		return domain.Page{}, false
	}
	return page, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, fieldError("body", "invalid JSON"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return fieldError("body", err.Error())
	}
	var v domain.ValidationError
	for _, fe := range fields {
		v.Add(fe.Field(), constraintMessage(fe))
	}
	return v.Err()
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "datetime":
		return "must be a date formatted as " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "failed " + fe.Tag()
}

func fieldError(field, message string) error {
	var v domain.ValidationError
	v.Add(field, message)
	return v.Err()
}

func httpStatus(kind string) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNoAvailableUnits:
		return http.StatusGone
	case domain.KindAlreadyReturned, domain.KindAlreadyPaid:
		return http.StatusConflict
	case domain.KindNoFineRequired, domain.KindInvalidState:
		return http.StatusUnprocessableEntity
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindPaymentProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	status := httpStatus(kind)

	resp := ErrorHTTPResponse{Error: kind, Message: err.Error()}
	var v *domain.ValidationError
	if errors.As(err, &v) {
		resp.Fields = v.Fields
	}
	if status == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
