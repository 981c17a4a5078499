package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	billingapp "github.com/tbeaudouin05/billing-reconciler/api/services/billing/app"
	"github.com/tbeaudouin05/billing-reconciler/api/services/identity"
)

// errBadRequest marks request bodies that could not be decoded or validated.
var errBadRequest = errors.New("bad request")

type envelope struct {
	Status  string `json:"status"`
	Results *int   `json:"results,omitempty"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "error", Message: message})
}

// statusFor maps the service error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, billingapp.ErrAuthenticity),
		errors.Is(err, billingapp.ErrBadEvent),
		errors.Is(err, billingapp.ErrValidation),
		errors.Is(err, identity.ErrValidation),
		errors.Is(err, identity.ErrEmailTaken),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, billingapp.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, billingapp.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, billingapp.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an error envelope. Server-side failures are
// logged in full and reported generically.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		message := "internal server error"
		if status == http.StatusBadGateway {
			message = "payment provider unavailable, please retry"
		}
		writeError(w, status, message)
		return
	}
	logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	writeError(w, status, err.Error())
}

// decodeBody reads a JSON body of at most maxBodyBytes into dst and
// validates its struct tags.
func (rt *router) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if err := rt.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", errBadRequest, fieldMessage(verrs[0]))
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters long"
	default:
		return fe.Field() + " is invalid"
	}
}
