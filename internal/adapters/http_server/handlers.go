package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"vetreview/internal/app"
	"vetreview/internal/domain"
)

const maxBodyBytes = 1 << 20

type Submitter interface {
	Submit(ctx context.Context, req app.SubmitRequest) (domain.Review, error)
}

type Queries interface {
	ListClinicReviews(ctx context.Context, clinicID int64, limit int) ([]domain.Review, error)
	SearchReviews(ctx context.Context, q domain.ReviewSearch) ([]domain.Review, error)
	SearchClinics(ctx context.Context, q domain.ClinicSearch) ([]domain.Clinic, error)
	GetClinic(ctx context.Context, id int64) (domain.Clinic, error)
}

type Handlers struct {
	S Submitter
	Q Queries
	// Ready lists dependency checks for /healthz; empty means always ready.
	Ready []Check
}

// Check pings one dependency.
type Check func(ctx context.Context) error

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", h.healthz)
	s.mux.Get("/reviews", h.listReviews)
	s.mux.Post("/reviews", h.submitReview)
	s.mux.Get("/clinics", h.searchClinics)
	s.mux.Get("/clinics/{id}", h.getClinic)
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	var errs []error
	for _, check := range h.Ready {
		if err := check(r.Context()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("readiness check failed")
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	var req app.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, domain.NewError(domain.KindMissingField, "request body is required."))
			return
		}
		writeError(w, domain.WrapError(domain.KindInvalidField, err, "request body is not valid JSON."))
		return
	}

	rv, err := h.S.Submit(r.Context(), req)
	if err != nil {
		var se *domain.SubmissionError
		if !errors.As(err, &se) {
			k, _ := domain.KindOf(err)
			se = domain.WrapError(k, err, "")
		}
		writeError(w, se)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Items: []domain.Review{rv}, Message: successMessage})
}

// listReviews serves both the per-clinic list (clinicId, or the legacy id)
// and the region search (sidoNm/sigunNm/dongNm).
func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	limit, ok := parseLimit(w, qs.Get("limit"))
	if !ok {
		return
	}

	search := domain.ReviewSearch{
		SidoNm:  strings.TrimSpace(qs.Get("sidoNm")),
		SigunNm: strings.TrimSpace(qs.Get("sigunNm")),
		DongNm:  strings.TrimSpace(qs.Get("dongNm")),
		Limit:   limit,
	}
	idStr := strings.TrimSpace(qs.Get("clinicId"))
	if idStr == "" {
		idStr = strings.TrimSpace(qs.Get("id"))
	}
	if idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, domain.NewError(domain.KindInvalidField, "id must be a positive number."))
			return
		}
		search.ClinicID = id
	}
	if search.Empty() {
		writeError(w, domain.NewError(domain.KindMissingField, "id is required."))
		return
	}

	rs, err := h.Q.SearchReviews(r.Context(), search)
	if err != nil {
		log.Error().Err(err).Int64("clinic_id", search.ClinicID).Msg("list reviews failed")
		writeError(w, domain.WrapError(domain.KindDatastoreError, err, ""))
		return
	}
	writeItems(w, r, rs)
}

func (h *Handlers) searchClinics(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	limit, ok := parseLimit(w, qs.Get("limit"))
	if !ok {
		return
	}
	cs, err := h.Q.SearchClinics(r.Context(), domain.ClinicSearch{
		SidoNm:  strings.TrimSpace(qs.Get("sidoNm")),
		SigunNm: strings.TrimSpace(qs.Get("sigunNm")),
		DongNm:  strings.TrimSpace(qs.Get("dongNm")),
		Name:    strings.TrimSpace(qs.Get("name")),
		Limit:   limit,
	})
	if err != nil {
		log.Error().Err(err).Msg("search clinics failed")
		writeError(w, domain.WrapError(domain.KindDatastoreError, err, ""))
		return
	}
	writeItems(w, r, cs)
}

func (h *Handlers) getClinic(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, domain.NewError(domain.KindInvalidField, "id must be a positive number."))
		return
	}
	c, err := h.Q.GetClinic(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, domain.NewError(domain.KindClinicNotFound, ""))
			return
		}
		log.Error().Err(err).Int64("clinic_id", id).Msg("get clinic failed")
		writeError(w, domain.WrapError(domain.KindDatastoreError, err, ""))
		return
	}
	writeItems(w, r, []domain.Clinic{c})
}

func parseLimit(w http.ResponseWriter, s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > app.MaxListLimit {
		writeError(w, domain.NewError(domain.KindInvalidField,
			"limit must be an integer between 1 and "+strconv.Itoa(app.MaxListLimit)+"."))
		return 0, false
	}
	return n, true
}
