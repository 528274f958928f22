package rest

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxBodyBytes bounds admin and interaction request bodies.
const maxBodyBytes = 1 << 20

var (
	errMalformedBody = errors.New("malformed request body")
	errInvalidBody   = errors.New("invalid request body")
	errUnauthorized  = errors.New("invalid admin key")
)

// adminRequest carries the shared secret every mutating admin route requires.
type adminRequest struct {
	AdminKey string `json:"admin_key" validate:"required"` //nolint:tagliatelle // public API contract
}

// settingsRequest changes bot settings.
type settingsRequest struct {
	adminRequest
	NotificationsEnabled *bool `json:"notifications_enabled"` //nolint:tagliatelle // public API contract
}

// refreshRequest triggers a manual refresh.
type refreshRequest struct {
	adminRequest
	SuppressNotifications bool `json:"suppress_notifications"` //nolint:tagliatelle // public API contract
}

type healthResponse struct {
	CurrentTime string `json:"current_time"` //nolint:tagliatelle // public API contract
}

type messageResponse struct {
	Message string `json:"message"`
}

// key returns the admin key of the request.
func (a *adminRequest) key() string { return a.AdminKey }

// keyed is implemented by every admin request body.
type keyed interface{ key() string }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{CurrentTime: time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Settings.Snapshot(r.Context()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !s.decodeAdmin(w, r, &req) {
		return
	}

	if req.NotificationsEnabled == nil {
		s.writeJSON(w, http.StatusOK, s.deps.Settings.Snapshot(r.Context()))
		return
	}

	snapshot, err := s.deps.Settings.SetNotificationsEnabled(r.Context(), *req.NotificationsEnabled)
	if err != nil {
		s.logger.Error("Failed to save settings", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	s.logger.Info("Settings updated", zap.Bool("notifications_enabled", snapshot.NotificationsEnabled))
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.deps.Tracks.GetRecentTracks(r.Context(), s.maxListing)
	if err != nil {
		s.logger.Error("Failed to list maps", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list maps")
		return
	}

	s.writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeAdmin(w, r, &req) {
		return
	}

	if !s.trigger.Allow() {
		w.Header().Set("Retry-After", "60")
		s.writeError(w, http.StatusTooManyRequests, "refresh was triggered too recently")
		return
	}

	s.deps.Trigger.TriggerRefresh(req.SuppressNotifications)

	s.logger.Info("Manual refresh triggered", zap.Bool("suppress_notifications", req.SuppressNotifications))
	s.writeJSON(w, http.StatusAccepted, messageResponse{Message: "Data refresh triggered"})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Subscriptions.GetAllSubscriptions(r.Context())
	if err != nil {
		s.logger.Error("Failed to list subscriptions", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	s.writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleDeleteSubscriptions(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decodeAdmin(w, r, &req) {
		return
	}

	if s.isProduction() {
		s.writeError(w, http.StatusMethodNotAllowed, "deleting all subscriptions is disabled in production")
		return
	}

	if err := s.deps.Subscriptions.TruncateSubscriptions(r.Context()); err != nil {
		s.logger.Error("Failed to delete subscriptions", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete subscriptions")
		return
	}

	s.logger.Warn("All subscriptions deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.Statuses.GetAllStatuses(r.Context())
	if err != nil {
		s.logger.Error("Failed to list job statuses", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list job statuses")
		return
	}

	s.writeJSON(w, http.StatusOK, statuses)
}

// decodeAdmin parses, validates and authorizes an admin request body.
// It writes the error response itself and reports whether handling should continue.
func (s *Server) decodeAdmin(w http.ResponseWriter, r *http.Request, dst keyed) bool {
	err := s.decodeBody(r, dst)
	if err == nil && subtle.ConstantTimeCompare([]byte(dst.key()), []byte(s.adminKey)) != 1 {
		err = errUnauthorized
	}

	if err == nil && s.adminKey == "" {
		err = errUnauthorized
	}

	var validationErrs validator.ValidationErrors

	switch {
	case err == nil:
		return true
	case errors.As(err, &validationErrs):
		details := make([]string, len(validationErrs))
		for i, fe := range validationErrs {
			details[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}

		s.writeError(w, http.StatusUnprocessableEntity, errInvalidBody.Error(), details...)
	case errors.Is(err, errUnauthorized):
		s.logger.Warn("Rejected admin request", zap.String("path", r.URL.Path))
		s.writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.writeError(w, http.StatusBadRequest, errMalformedBody.Error())
	}

	return false
}

// decodeBody unmarshals and validates a JSON body.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}

	if err := sonic.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}

	return s.validate.Struct(dst)
}
