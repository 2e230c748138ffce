package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

// ============================================================
// Autenticação
// ============================================================

func signUpHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signup")
		defer span.End()

		var req domain.Credentials
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := authSvc.SignUp(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func loginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req domain.Credentials
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := authSvc.SignIn(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func refreshHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/refresh")
		defer span.End()

		var req domain.RefreshRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := authSvc.Refresh(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func googleSignInHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/google")
		defer span.End()

		var req domain.FederatedSignIn
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := authSvc.SignInWithGoogle(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// googleLoginHandler redirects the browser to Google's consent screen.
func googleLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := authSvc.GoogleLoginURL()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

func googleCallbackHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/google/callback")
		defer span.End()

		q := r.URL.Query()
		if reason := q.Get("error"); reason != "" {
			logger.Info("google consent denied", zap.String("reason", reason))
			writeError(w, http.StatusUnauthorized, "Login com Google cancelado.")
			return
		}
		resp, err := authSvc.GoogleCallback(ctx, q.Get("state"), q.Get("code"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func logoutHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		if err := authSvc.Logout(ctx, UserIDFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Conta
// ============================================================

func profileHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/me")
		defer span.End()

		profile, err := authSvc.Profile(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// setPremiumHandler answers with the flag as written. The session picks the
// change up with the next snapshot.
func setPremiumHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/me/premium")
		defer span.End()

		var req domain.PremiumUpdate
		if !decodeJSON(w, r, &req) {
			return
		}
		identity := IdentityFromContext(ctx)
		if err := ledger.SetPremium(ctx, identity.UserID, req.IsPremium); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.Profile{
			UserID:    identity.UserID,
			Email:     identity.Email,
			IsPremium: req.IsPremium,
			ShowAds:   !req.IsPremium,
		})
	}
}

func resetDataHandler(ledger *service.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/me/data")
		defer span.End()

		if err := ledger.Reset(ctx, UserIDFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
