package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/automend/automend/internal/api"
	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// handleScanPreview handles GET /api/patterns/scan. It runs the detectors and
// matches actions without executing anything, so operators can see what a
// scheduled scan would do.
func (h *APIHandler) handleScanPreview(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	settings, err := database.GetOrCreateEngineSettings(h.db)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load engine settings")
		return
	}

	opts := patterns.ScanOptions{
		WindowMinutes: settings.TimeWindowMinutes,
		MinSeverity:   database.PatternSeverity(settings.MinSeverity),
	}
	if types := r.URL.Query().Get("types"); types != "" {
		opts.Types = strings.Split(types, ",")
	}
	if window := r.URL.Query().Get("window"); window != "" {
		minutes, err := strconv.Atoi(window)
		if err != nil || minutes <= 0 {
			api.RespondError(w, http.StatusBadRequest, "window must be a positive number of minutes")
			return
		}
		opts.WindowMinutes = minutes
	}
	if severity := r.URL.Query().Get("min_severity"); severity != "" {
		opts.MinSeverity = database.PatternSeverity(severity)
	}

	found := h.scanner.Scan(orgID, opts)
	if _, err := h.matcher.Match(orgID, found); err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to match actions")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"patterns":       found,
		"count":          len(found),
		"window_minutes": opts.WindowMinutes,
	})
}

// handleListEscalations handles GET /api/escalations
func (h *APIHandler) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	query := h.db.Where("organization_id = ?", orgID).Order("created_at DESC")
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var escalations []database.Escalation
	if err := query.Limit(200).Find(&escalations).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get escalations")
		return
	}
	api.RespondJSON(w, http.StatusOK, escalations)
}

// handleListAudit handles GET /api/audit
func (h *APIHandler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := h.auditService.List(orgID, limit)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get audit log")
		return
	}
	api.RespondJSON(w, http.StatusOK, entries)
}

// handleListNotifications handles GET /api/notifications
func (h *APIHandler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromQuery(w, r)
	if !ok {
		return
	}
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		api.RespondError(w, http.StatusBadRequest, "recipient query parameter is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	notifications, err := h.notificationService.ListForRecipient(orgID, recipient, limit)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get notifications")
		return
	}
	api.RespondJSON(w, http.StatusOK, notifications)
}
