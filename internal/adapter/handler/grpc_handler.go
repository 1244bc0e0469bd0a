package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/core/service"
)

const GRPCServiceName = "carshare.v1.RentalService"

type CreateRentalRequest struct {
	CarID      int64  `json:"car_id"`
	ReturnDate string `json:"return_date"`
}

type ReturnRentalRequest struct {
	RentalID int64 `json:"rental_id"`
}

type CreatePaymentSessionRequest struct {
	RentalID int64  `json:"rental_id"`
	Type     string `json:"payment_type"`
}

type ConfirmPaymentRequest struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
}

type RentalServiceServer interface {
	CreateRental(context.Context, *CreateRentalRequest) (*RentalHTTPResponse, error)
	ReturnRental(context.Context, *ReturnRentalRequest) (*RentalHTTPResponse, error)
	CreatePaymentSession(context.Context, *CreatePaymentSessionRequest) (*domain.PaymentSession, error)
	ConfirmPayment(context.Context, *ConfirmPaymentRequest) (*domain.PaymentStatusResult, error)
}

var RentalServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*RentalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateRental", Handler: unary("CreateRental", RentalServiceServer.CreateRental)},
		{MethodName: "ReturnRental", Handler: unary("ReturnRental", RentalServiceServer.ReturnRental)},
		{MethodName: "CreatePaymentSession", Handler: unary("CreatePaymentSession", RentalServiceServer.CreatePaymentSession)},
		{MethodName: "ConfirmPayment", Handler: unary("ConfirmPayment", RentalServiceServer.ConfirmPayment)},
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req, Resp any](method string, call func(RentalServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + GRPCServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RentalServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RentalServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	rentals  *service.RentalService
	payments *service.PaymentService
	log      *slog.Logger
}

var _ RentalServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(rentals *service.RentalService, payments *service.PaymentService, log *slog.Logger) *GRPCHandler {
	return &GRPCHandler{rentals: rentals, payments: payments, log: log}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	s.RegisterService(&RentalServiceDesc, h)
}

func (h *GRPCHandler) CreateRental(ctx context.Context, req *CreateRentalRequest) (*RentalHTTPResponse, error) {
	caller, err := callerFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	returnDate, err := time.Parse(dateLayout, req.ReturnDate)
	if err != nil {
		return nil, h.status(ctx, fieldError("return_date", "must be a date formatted as "+dateLayout))
	}

	rental, err := h.rentals.Create(ctx, caller, service.CreateRentalInput{CarID: req.CarID, ReturnDate: returnDate})
	if err != nil {
		return nil, h.status(ctx, err)
	}
	resp := rentalResponse(*rental)
	return &resp, nil
}

func (h *GRPCHandler) ReturnRental(ctx context.Context, req *ReturnRentalRequest) (*RentalHTTPResponse, error) {
	caller, err := callerFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	rental, err := h.rentals.Return(ctx, caller, req.RentalID)
	if err != nil {
		return nil, h.status(ctx, err)
	}
	resp := rentalResponse(*rental)
	return &resp, nil
}

func (h *GRPCHandler) CreatePaymentSession(ctx context.Context, req *CreatePaymentSessionRequest) (*domain.PaymentSession, error) {
	caller, err := callerFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	session, err := h.payments.CreateSession(ctx, caller, req.RentalID, domain.PaymentType(req.Type))
	if err != nil {
		return nil, h.status(ctx, err)
	}
	return session, nil
}

func (h *GRPCHandler) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest) (*domain.PaymentStatusResult, error) {
	if req.SessionID == "" {
		return nil, h.status(ctx, fieldError("session_id", "required"))
	}
	if req.Cancelled {
		return h.payments.ConfirmCancel(ctx, req.SessionID), nil
	}
	result, err := h.payments.ConfirmSuccess(ctx, req.SessionID)
	if err != nil {
		return nil, h.status(ctx, err)
	}
	return result, nil
}

func callerFromMetadata(ctx context.Context) (domain.Caller, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	caller, err := CallerFromHeaders(first(md.Get(HeaderUserID)), first(md.Get(HeaderUserRoles)))
	if err != nil {
		return domain.Caller{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return caller, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func grpcCode(kind string) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInvalidInput:
		return codes.InvalidArgument
	case domain.KindNoAvailableUnits:
		return codes.ResourceExhausted
	case domain.KindAlreadyReturned, domain.KindAlreadyPaid:
		return codes.AlreadyExists
	case domain.KindNoFineRequired, domain.KindInvalidState:
		return codes.FailedPrecondition
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindPaymentProviderUnavailable:
		return codes.Unavailable
	}
	return codes.Internal
}

func (h *GRPCHandler) status(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	code := grpcCode(domain.Kind(err))
	if code == codes.Internal {
		h.log.ErrorContext(ctx, "rpc failed", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
