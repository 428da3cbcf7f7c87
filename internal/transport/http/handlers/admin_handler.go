package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/service"
	"github.com/vedran77/duet/internal/transport/http/middleware"
	"github.com/vedran77/duet/pkg/validator"
)

type AdminHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

func NewAdminHandler(authService *service.AuthService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{authService: authService, log: log}
}

type RestrictRequest struct {
	Restricted *bool `json:"restricted" validate:"required"`
}

// Restrict handles PATCH /admin/users/{id}/restrict.
func (h *AdminHandler) Restrict(w http.ResponseWriter, r *http.Request) {
	var input RestrictRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.Struct(input); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	actor := middleware.GetIdentity(r.Context())
	target := domain.UserID(chi.URLParam(r, "id"))

	user, err := h.authService.SetRestricted(r.Context(), actor, target, *input.Restricted)
	if err != nil {
		writeServiceError(w, h.log, "restrict", err)
		return
	}

	h.log.Info().
		Str("admin_id", string(actor.UserID)).
		Str("user_id", string(target)).
		Bool("restricted", user.IsRestricted).
		Msg("restriction changed")
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
