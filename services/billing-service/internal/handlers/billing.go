// Package handlers is the billing HTTP surface: invoice listing and lookup,
// Stripe checkout for invoice payment, and the webhook endpoints that settle
// invoices.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/clinicflow/clinicflow/libs/httpx"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/invoices"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/storage"
)

type Handler struct {
	repo                   *storage.Repository
	svc                    *invoices.Service
	logger                 *slog.Logger
	stripeSecretKey        string
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	checkoutSuccessURL     string
	checkoutCancelURL      string
}

type Config struct {
	StripeSecretKey               string
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	CheckoutSuccessURL            string
	CheckoutCancelURL             string
}

func New(repo *storage.Repository, svc *invoices.Service, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &Handler{
		repo:                   repo,
		svc:                    svc,
		logger:                 logger,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		checkoutSuccessURL:     strings.TrimSpace(cfg.CheckoutSuccessURL),
		checkoutCancelURL:      strings.TrimSpace(cfg.CheckoutCancelURL),
	}
}

type invoiceItem struct {
	InvoiceID     string `json:"invoice_id"`
	ClinicID      string `json:"clinic_id"`
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	ServiceID     string `json:"service_id,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaidAt        string `json:"paid_at,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func invoiceToItem(inv invoices.Invoice) invoiceItem {
	item := invoiceItem{
		InvoiceID:     inv.ID,
		ClinicID:      inv.ClinicID,
		AppointmentID: inv.AppointmentID,
		PatientID:     inv.PatientID,
		ServiceID:     inv.ServiceID,
		AmountCents:   inv.AmountCents,
		Currency:      inv.Currency,
		Status:        string(inv.Status),
		CreatedAt:     inv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if inv.PaidAt != nil {
		item.PaidAt = inv.PaidAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	if clinicID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id required")
		return
	}

	var status invoices.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		switch invoices.Status(raw) {
		case invoices.StatusPending, invoices.StatusPaid, invoices.StatusVoid:
			status = invoices.Status(raw)
		default:
			httpx.WriteError(w, http.StatusBadRequest, "invalid_status", "status must be pending, paid or void")
			return
		}
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	list, err := h.repo.ListInvoices(r.Context(), clinicID, status, limit)
	if err != nil {
		h.logger.Error("invoice list failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to list invoices")
		return
	}
	items := make([]invoiceItem, 0, len(list))
	for _, inv := range list {
		items = append(items, invoiceToItem(inv))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Get looks an invoice up by id or by appointment id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	invoiceID := strings.TrimSpace(r.URL.Query().Get("invoice_id"))
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if clinicID == "" || (invoiceID == "" && appointmentID == "") {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id and invoice_id or appointment_id required")
		return
	}

	var inv invoices.Invoice
	var err error
	if invoiceID != "" {
		inv, err = h.repo.GetInvoice(r.Context(), clinicID, invoiceID)
	} else {
		inv, err = h.repo.GetInvoiceByAppointment(r.Context(), clinicID, appointmentID)
	}
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "invoice not found")
			return
		}
		h.logger.Error("invoice lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to load invoice")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, invoiceToItem(inv))
}

type payRequest struct {
	ClinicID   string `json:"clinic_id"`
	InvoiceID  string `json:"invoice_id"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// Pay creates a Stripe Checkout session (payment mode) for a pending
// invoice and stores the session id so the webhook can settle it.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if h.stripeSecretKey == "" {
		httpx.WriteError(w, http.StatusNotImplemented, "not_configured", "stripe payments not configured")
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	if req.ClinicID == "" || req.InvoiceID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id and invoice_id are required")
		return
	}

	inv, err := h.repo.GetInvoice(r.Context(), req.ClinicID, req.InvoiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "invoice not found")
			return
		}
		h.logger.Error("invoice lookup failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to load invoice")
		return
	}
	if inv.Status != invoices.StatusPending {
		httpx.WriteError(w, http.StatusConflict, "not_payable", "invoice is not pending")
		return
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = h.checkoutSuccessURL
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = h.checkoutCancelURL
	}
	if successURL == "" || cancelURL == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "success_url and cancel_url are required or must be configured")
		return
	}

	stripe.Key = h.stripeSecretKey

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(inv.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(inv.Currency),
					UnitAmount: stripe.Int64(inv.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Appointment " + inv.AppointmentID),
					},
				},
			},
		},
		Metadata: map[string]string{
			"invoice_id":     inv.ID,
			"clinic_id":      inv.ClinicID,
			"appointment_id": inv.AppointmentID,
		},
	}
	// Stripe-level idempotency so retried Pay calls reuse one session.
	if idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key")); idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	} else {
		params.IdempotencyKey = stripe.String("pay:" + inv.ID)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err, "invoice_id", inv.ID)
		httpx.WriteError(w, http.StatusBadGateway, "stripe_error", "failed to create checkout session")
		return
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "db error")
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()
	if err := h.repo.SetStripeSession(r.Context(), tx, inv.ID, sess.ID); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to persist session")
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to commit")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}

type localWebhookRequest struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"` // invoice.paid | invoice.void
	ClinicID   string `json:"clinic_id"`
	InvoiceID  string `json:"invoice_id"`
	OccurredAt string `json:"occurred_at"`
}

// LocalWebhook settles invoices without Stripe, for dev and for clinics on
// cash payment. Deduped by event id.
func (h *Handler) LocalWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req localWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	req.Type = strings.TrimSpace(req.Type)
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	if req.EventID == "" || req.Type == "" || req.ClinicID == "" || req.InvoiceID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "event_id, type, clinic_id and invoice_id are required")
		return
	}
	occurredAt := time.Now().UTC()
	if raw := strings.TrimSpace(req.OccurredAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "occurred_at must be RFC3339")
			return
		}
		occurredAt = t
	}

	payloadRaw, _ := json.Marshal(req)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "db error")
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "local",
		ProviderEventID: req.EventID,
		EventType:       req.Type,
		Payload:         payloadRaw,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to record provider event")
		return
	}

	switch req.Type {
	case "invoice.paid":
		if err := h.repo.MarkInvoicePaid(r.Context(), tx, req.InvoiceID, occurredAt); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to mark invoice paid")
			return
		}
	case "invoice.void":
		if err := h.repo.VoidInvoice(r.Context(), tx, req.ClinicID, req.InvoiceID); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to void invoice")
			return
		}
	default:
		httpx.WriteError(w, http.StatusBadRequest, "unsupported_type", "unsupported type")
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to commit")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
