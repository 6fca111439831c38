package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/diagnosis/stays-bookings/pkg/auth"
	"github.com/diagnosis/stays-bookings/pkg/config"
	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/diagnosis/stays-bookings/pkg/response"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	bookingService service.BookingService
	auth           config.AuthConfig
}

func New(bookingService service.BookingService, authCfg config.AuthConfig) *Handlers {
	return &Handlers{bookingService: bookingService, auth: authCfg}
}

// Routes mounts the booking API. createLimit wraps only booking creation.
func (h *Handlers) Routes(r chi.Router, createLimit ...func(http.Handler) http.Handler) {
	r.Route("/bookings", func(r chi.Router) {
		r.Use(h.RequireUser)
		r.With(createLimit...).Post("/", h.CreateBooking)
		r.Get("/", h.ListMyBookings)
		r.Get("/{id}", h.GetBooking)
		r.Post("/{id}/accept", h.AcceptBooking)
		r.Post("/{id}/decline", h.DeclineBooking)
		r.Post("/{id}/cancel", h.CancelBooking)
		r.Post("/{id}/complete", h.CompleteBooking)
	})

	r.With(h.RequireUser).Get("/listings/{id}/bookings", h.ListListingBookings)

	r.Route("/admin/bookings", func(r chi.Router) {
		r.Use(h.RequireUser, RequireRole(auth.RoleAdmin, auth.RoleSystem))
		r.Get("/", h.ListBookingsByStatus)
		r.Post("/sweep", h.SweepBookings)
		r.Post("/{id}/complete", h.ForceCompleteBooking)
	})
}

type claimsKey struct{}

// RequireUser authenticates the bearer token and stores its claims.
func (h *Handlers) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(w, "Missing or invalid authorization header")
			return
		}

		claims, err := auth.Parse(strings.TrimPrefix(authHeader, "Bearer "), h.auth.Audience, h.auth.JWTSecret)
		if err != nil {
			response.Unauthorized(w, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole must run after RequireUser.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := getClaims(r)
			if claims == nil {
				response.Unauthorized(w, "Authentication required")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "Insufficient permissions")
		})
	}
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// actorFor turns the caller into a lifecycle actor. Service tokens act as the
// system; everyone else acts as themselves.
func actorFor(claims *auth.Claims) domain.Actor {
	if claims.Role == auth.RoleSystem {
		return domain.SystemActor()
	}
	return domain.Actor{UserID: claims.Sub}
}

func isOperator(claims *auth.Claims) bool {
	return claims.Role == auth.RoleAdmin || claims.Role == auth.RoleSystem
}

// parseFilter reads limit, offset and status from the query string.
func parseFilter(r *http.Request) (domain.BookingFilter, bool) {
	f := domain.BookingFilter{}
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	if raw := q.Get("status"); raw != "" {
		st, ok := domain.ParseBookingStatus(raw)
		if !ok {
			return f, false
		}
		f.Status = &st
	}
	return f.Normalize(), true
}
