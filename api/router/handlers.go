package router

import (
	"errors"
	"io"
	"net/http"

	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
)

const (
	maxBodyBytes    = 1 << 16
	maxWebhookBytes = 1 << 20
)

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type subscribeRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// handleWebhook passes the raw body, untouched, to signature verification.
func (rt *router) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "webhook body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read webhook body")
		return
	}

	if _, err := rt.billing.HandleWebhook(r.Context(), body, r.Header.Get(rt.signatureHeader)); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (rt *router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := rt.decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	session, err := rt.identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Status: "success", Token: session.Token, Data: map[string]any{"user": session.User}})
}

func (rt *router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := rt.decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	session, err := rt.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Token: session.Token, Data: map[string]any{"user": session.User}})
}

func (rt *router) handleMe(w http.ResponseWriter, r *http.Request, user billingdb.User) {
	profile, err := rt.identity.Me(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": profile})
}

func (rt *router) handleSubscribe(w http.ResponseWriter, r *http.Request, user billingdb.User) {
	var req subscribeRequest
	if err := rt.decodeBody(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	checkout, err := rt.billing.CreateSubscription(r.Context(), user.ID, req.Plan)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, checkout)
}

func (rt *router) handleCancel(w http.ResponseWriter, r *http.Request, user billingdb.User) {
	if err := rt.billing.CancelSubscription(r.Context(), user.ID); err != nil {
		respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "Subscription canceled successfully"})
}

func (rt *router) handleGetSubscription(w http.ResponseWriter, r *http.Request, user billingdb.User) {
	sub, err := rt.billing.GetSubscription(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"subscription": sub})
}

func (rt *router) handlePayments(w http.ResponseWriter, r *http.Request, user billingdb.User) {
	payments, err := rt.billing.PaymentHistory(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n := len(payments)
	writeJSON(w, http.StatusOK, envelope{Status: "success", Results: &n, Data: map[string]any{"payments": payments}})
}

var premiumFeatures = []string{
	"Advanced Analytics",
	"Priority Support",
	"Custom Integrations",
	"Unlimited Exports",
	"API Access",
}

func (rt *router) handlePremiumContent(w http.ResponseWriter, _ *http.Request, sub billingdb.Subscription) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"message":  "You have access to premium content",
		"plan":     sub.Plan,
		"features": premiumFeatures,
	})
}
