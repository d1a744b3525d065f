package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"vetreview/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the body of every /reviews and /clinics response. ErrorCode is
// null on success.
type envelope struct {
	ErrorCode *int   `json:"errorCode"`
	Items     any    `json:"items"`
	Message   string `json:"message"`
}

const successMessage = "success"

func statusFor(k domain.Kind) int {
	if k.Expected() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// messageFor shows validation details to the client; every other kind gets
// its fixed message so internals never leak.
func messageFor(e *domain.SubmissionError) string {
	switch e.Kind {
	case domain.KindMissingField, domain.KindInvalidField:
		if e.Detail != "" {
			return e.Detail
		}
	}
	return e.Kind.Message()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal response failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, e *domain.SubmissionError) {
	writeErrorStatus(w, statusFor(e.Kind), e)
}

func writeErrorStatus(w http.ResponseWriter, status int, e *domain.SubmissionError) {
	code := e.Kind.Code()
	writeJSON(w, status, envelope{ErrorCode: &code, Items: []any{}, Message: messageFor(e)})
}

// writeItems answers GETs with a weak ETag so clients can revalidate.
func writeItems(w http.ResponseWriter, r *http.Request, items any) {
	etag, body := calcETagAndBody(envelope{Items: items, Message: successMessage})
	if body == nil {
		writeError(w, domain.NewError(domain.KindDatastoreError, "encode"))
		return
	}
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("write response failed")
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
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}
