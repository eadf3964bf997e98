//go:build protogen

// Package invoicegrpc serves the synchronous invoice fast path used by the
// scheduling service when an appointment completes.
package invoicegrpc

import (
	"context"

	"google.golang.org/grpc"

	billingv1 "github.com/clinicflow/clinicflow/protos/gen/billing/v1"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/invoices"
)

type server struct {
	billingv1.UnimplementedBillingServiceServer
	svc *invoices.Service
}

func Register(grpcServer *grpc.Server, svc *invoices.Service) {
	billingv1.RegisterBillingServiceServer(grpcServer, &server{svc: svc})
}

func (s *server) EnsureInvoice(ctx context.Context, req *billingv1.EnsureInvoiceRequest) (*billingv1.EnsureInvoiceResponse, error) {
	var estimate *int64
	if req.GetHasEstimate() {
		v := req.GetEstimateCents()
		estimate = &v
	}
	inv, err := s.svc.Ensure(ctx, invoices.EnsureRequest{
		ClinicID:      req.GetClinicId(),
		AppointmentID: req.GetAppointmentId(),
		PatientID:     req.GetPatientId(),
		ServiceID:     req.GetServiceId(),
		EstimateCents: estimate,
	})
	if err != nil {
		return nil, err
	}
	return &billingv1.EnsureInvoiceResponse{
		InvoiceId:   inv.ID,
		AmountCents: inv.AmountCents,
		Currency:    inv.Currency,
		Status:      string(inv.Status),
	}, nil
}
