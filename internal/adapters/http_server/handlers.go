package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lodgebook/internal/app"
	"lodgebook/internal/domain"
)

const dateLayout = "2006-01-02"

type Handlers struct {
	B *app.BookingService
	Q *app.QueryService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Get("/v1/bookings/code/{code}", h.getBookingByCode)
	s.mux.Post("/v1/bookings/{id}/transition", h.transition)
	s.mux.Post("/v1/bookings/{id}/cancel", h.cancel)
	s.mux.Put("/v1/bookings/{id}/guest-details", h.setGuestDetails)
	s.mux.Get("/v1/bookings/{id}/payment-status", h.paymentStatus)
	s.mux.Get("/v1/bookings/{id}/actions", h.availableActions)
	s.mux.Get("/v1/quote", h.quote)
	s.mux.Post("/v1/webhooks/payment", h.paymentWebhook)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses. The title is
// stable so callers can branch on it (notably RefundOverrideRequired, which
// invites a retry with override_confirmed=true).
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, domain.ErrInvalidDateRange):
		writeProblem(w, http.StatusBadRequest, "InvalidDateRange", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "InvalidTransition", err.Error())
	case errors.Is(err, domain.ErrOverlapConflict):
		writeProblem(w, http.StatusConflict, "OverlapConflict", err.Error())
	case errors.Is(err, domain.ErrRefundOverrideRequired):
		writeProblem(w, http.StatusConflict, "RefundOverrideRequired", err.Error())
	case errors.Is(err, domain.ErrMissingGuestDetails):
		writeProblem(w, http.StatusUnprocessableEntity, "MissingGuestDetails", err.Error())
	case errors.Is(err, domain.ErrMissingCancellationReason):
		writeProblem(w, http.StatusUnprocessableEntity, "MissingCancellationReason", err.Error())
	case errors.Is(err, domain.ErrRepositoryUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "RepositoryUnavailable", "transient storage failure, retry the operation")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// ---- requests ----

type stayRequest struct {
	UnitID           int64  `json:"unit_id"`
	CheckIn          string `json:"check_in"`
	CheckOut         string `json:"check_out"`
	Adults           int    `json:"adults"`
	Children         int    `json:"children"`
	Infants          int    `json:"infants"`
	HasPet           bool   `json:"has_pet"`
	Policy           string `json:"policy"`
	NightlyRateCents int64  `json:"nightly_rate_cents"`
	CreditCents      int64  `json:"credit_cents"`
}

func (sr stayRequest) toParams() (domain.StayParams, error) {
	in, err := time.Parse(dateLayout, sr.CheckIn)
	if err != nil {
		return domain.StayParams{}, domain.ErrInvalidDateRange
	}
	out, err := time.Parse(dateLayout, sr.CheckOut)
	if err != nil {
		return domain.StayParams{}, domain.ErrInvalidDateRange
	}
	return domain.StayParams{
		UnitID:           sr.UnitID,
		CheckIn:          in,
		CheckOut:         out,
		Adults:           sr.Adults,
		Children:         sr.Children,
		Infants:          sr.Infants,
		HasPet:           sr.HasPet,
		Policy:           domain.CancellationPolicy(sr.Policy),
		NightlyRateCents: sr.NightlyRateCents,
		CreditCents:      sr.CreditCents,
	}, nil
}

// ---- handlers ----

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var sr stayRequest
	if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidBody", "malformed JSON body")
		return
	}
	p, err := sr.toParams()
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.B.Create(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "InvalidID", "id must be a positive number")
		return
	}
	b, err := h.Q.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	etag, body := calcETagAndBody(b)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getBooking body")
	}
}

// getBookingByCode resolves the guest-facing confirmation code. Uncached:
// it is a support-desk path, not a hot one.
func (h *Handlers) getBookingByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeProblem(w, http.StatusBadRequest, "InvalidCode", "confirmation code is required")
		return
	}
	b, err := h.Q.GetBookingByCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "InvalidID", "id must be a positive number")
		return
	}
	var req struct {
		Target                string `json:"target"`
		ManualPaymentOverride bool   `json:"manual_payment_override"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidBody", "malformed JSON body")
		return
	}
	b, err := h.B.Transition(r.Context(), id, domain.Status(req.Target),
		domain.TransitionContext{ManualPaymentOverride: req.ManualPaymentOverride})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "InvalidID", "id must be a positive number")
		return
	}
	var req domain.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidBody", "malformed JSON body")
		return
	}
	b, err := h.B.Cancel(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) setGuestDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "InvalidID", "id must be a positive number")
		return
	}
	var req struct {
		Complete bool `json:"complete"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidBody", "malformed JSON body")
		return
	}
	b, err := h.B.SetGuestDetails(r.Context(), id, req.Complete)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "InvalidID", "id must be a positive number")
		return
	}
	st, err := h.Q.PaymentStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	// derived on every read; make sure intermediaries don't hold on to it
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"payment_status": string(st)})
}

func (h *Handlers) availableActions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "InvalidID", "id must be a positive number")
		return
	}
	actions, err := h.Q.AvailableActions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handlers) quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	atoi := func(k string) int {
		n, _ := strconv.Atoi(q.Get(k))
		return n
	}
	unitID, _ := strconv.ParseInt(q.Get("unit_id"), 10, 64)
	rate, _ := strconv.ParseInt(q.Get("nightly_rate_cents"), 10, 64)
	credit, _ := strconv.ParseInt(q.Get("credit_cents"), 10, 64)

	sr := stayRequest{
		UnitID:           unitID,
		CheckIn:          q.Get("check_in"),
		CheckOut:         q.Get("check_out"),
		Adults:           atoi("adults"),
		Children:         atoi("children"),
		Infants:          atoi("infants"),
		HasPet:           q.Get("pet") == "true" || q.Get("pet") == "1",
		Policy:           q.Get("policy"),
		NightlyRateCents: rate,
		CreditCents:      credit,
	}
	p, err := sr.toParams()
	if err != nil {
		writeError(w, err)
		return
	}
	bd, err := h.Q.Quote(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bd)
}

func (h *Handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID   int64  `json:"booking_id"`
		AmountCents int64  `json:"amount_cents"`
		Status      string `json:"status"`
		Reference   string `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "InvalidBody", "malformed JSON body")
		return
	}
	b, err := h.B.RecordPayment(r.Context(), req.BookingID, domain.PaymentRecord{
		AmountCents: req.AmountCents,
		Status:      domain.PaymentRecordStatus(req.Status),
		Reference:   req.Reference,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id": b.ID,
		"status":     b.Status,
	})
}
