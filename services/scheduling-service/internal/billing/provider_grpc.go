//go:build protogen

package billing

import (
	"context"
	"time"

	"github.com/clinicflow/clinicflow/libs/grpcx"
	billingv1 "github.com/clinicflow/clinicflow/protos/gen/billing/v1"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
)

type InvoiceRef struct {
	InvoiceID   string
	AmountCents int64
	Currency    string
	Status      string
}

// Provider is the synchronous billing fast path. The outbox event stream is
// the durable trigger; this only shortens the time to a visible invoice.
type Provider interface {
	EnsureInvoice(ctx context.Context, clinicID string, appt model.Appointment) (InvoiceRef, error)
}

type grpcProvider struct {
	client billingv1.BillingServiceClient
}

func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: billingv1.NewBillingServiceClient(conn)}, nil
}

func (p *grpcProvider) EnsureInvoice(ctx context.Context, clinicID string, appt model.Appointment) (InvoiceRef, error) {
	req := &billingv1.EnsureInvoiceRequest{
		ClinicId:      clinicID,
		AppointmentId: appt.ID,
		PatientId:     appt.PatientID,
		ServiceId:     appt.ServiceID,
	}
	if appt.EstimateCents != nil {
		req.EstimateCents = *appt.EstimateCents
		req.HasEstimate = true
	}
	resp, err := p.client.EnsureInvoice(ctx, req)
	if err != nil {
		return InvoiceRef{}, err
	}
	return InvoiceRef{
		InvoiceID:   resp.GetInvoiceId(),
		AmountCents: resp.GetAmountCents(),
		Currency:    resp.GetCurrency(),
		Status:      resp.GetStatus(),
	}, nil
}
