package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"civicreport/internal/anchor"
	"civicreport/internal/audit"
	"civicreport/internal/auth"
	"civicreport/internal/incident"
	"civicreport/internal/ledger"
	"civicreport/internal/rbac"
	"civicreport/pkg/logger"
	"civicreport/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Incidents *incident.Service
	Sweep     *anchor.Sweep
	Ledger    ledger.Client
	Audit     *audit.Service

	// RDB backs the per-reporter submission rate limit; nil disables it.
	RDB         *redis.Client
	ReportLimit int
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Incidents ---

type createIncidentRequest struct {
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Location    incident.Location `json:"location"`
}

func (h Handlers) CreateIncident(c *gin.Context) {
	if h.Incidents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "incidents not configured"})
		return
	}
	reporterID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if h.RDB != nil && h.ReportLimit > 0 {
		ok, err := utils.AllowRate(c.Request.Context(), h.RDB, "rate:reports:"+reporterID, h.ReportLimit, time.Minute)
		if err != nil {
			// Rate limiting is protective, not critical; let the report through.
			logger.FromGin(c).Warn("rate limit check failed", "err", err)
		} else if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "report limit reached, try again later"})
			return
		}
	}

	var req createIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	inc, err := h.Incidents.Report(c.Request.Context(), incident.ReportRequest{
		ReporterID:  reporterID,
		Category:    incident.Category(req.Category),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
	})
	if err != nil {
		if errors.Is(err, incident.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "category, title required; category must be a known value"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusCreated, inc)
}

func (h Handlers) ListIncidents(c *gin.Context) {
	if h.Incidents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "incidents not configured"})
		return
	}

	f := incident.Filter{
		Status:     incident.Status(c.Query("status")),
		Category:   incident.Category(c.Query("category")),
		ReporterID: c.Query("reporter_id"),
	}
	f.Page, _ = strconv.Atoi(c.Query("page"))
	f.PageSize, _ = strconv.Atoi(c.Query("page_size"))

	list, err := h.Incidents.List(c.Request.Context(), f)
	if err != nil {
		if errors.Is(err, incident.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status or category filter"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": list})
}

func (h Handlers) GetIncident(c *gin.Context) {
	if h.Incidents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "incidents not configured"})
		return
	}
	inc, err := h.Incidents.Get(c.Request.Context(), c.Param("incident_id"))
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "incident_id required"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

type setStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// SetIncidentStatus moves an incident through the verification workflow.
// RBAC: authority, admin or super_admin (enforced on the route).
func (h Handlers) SetIncidentStatus(c *gin.Context) {
	if h.Incidents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "incidents not configured"})
		return
	}
	actorID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	actorRole, _ := auth.Role(c.Request.Context())

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	inc, err := h.Incidents.SetStatus(c.Request.Context(), c.Param("incident_id"), incident.StatusChangeRequest{
		Status:    incident.Status(req.Status),
		ActorID:   actorID,
		ActorRole: actorRole,
		Notes:     req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		case errors.Is(err, incident.ErrInvalidTransition):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "status must be VERIFIED, FALSE or RESOLVED"})
		case errors.Is(err, incident.ErrInvalidArgument):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, inc)
}

// GetIncidentAnchor returns the ledger-side view of an incident together
// with a freshness check against the locally stored fingerprint.
func (h Handlers) GetIncidentAnchor(c *gin.Context) {
	if h.Incidents == nil || h.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "anchoring not configured"})
		return
	}
	inc, err := h.Incidents.Get(c.Request.Context(), c.Param("incident_id"))
	if err != nil {
		if errors.Is(err, incident.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "incident_id required"})
		return
	}
	if inc.LedgerRecordID == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "incident not anchored yet"})
		return
	}

	rec, err := h.Ledger.FetchRecord(c.Request.Context(), inc.LedgerRecordID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotConfigured):
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		case errors.Is(err, ledger.ErrRecordNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "ledger record not found"})
		default:
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "ledger lookup failed"})
		}
		return
	}

	confirmed := false
	if rec.TxID != "" {
		ok, err := h.Ledger.VerifyTransaction(c.Request.Context(), rec.TxID)
		if err != nil {
			logger.FromGin(c).Warn("transaction verification failed", "incident_id", inc.ID, "tx_id", rec.TxID, "err", err)
		} else {
			confirmed = ok
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"record":     rec,
		"confirmed":  confirmed,
		"local_hash": inc.IncidentHash,
		"hash_match": rec.Hash == inc.IncidentHash,
	})
}

// --- Admin ---

// Reconcile runs a ledger reconciliation sweep over unanchored incidents.
// RBAC: admin or super_admin (enforced on the route).
func (h Handlers) Reconcile(c *gin.Context) {
	if h.Sweep == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciliation not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	report, err := h.Sweep.ReconcilePending(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
		return
	}

	if h.Audit != nil {
		actorID, _ := auth.UserID(c.Request.Context())
		actorRole, _ := auth.Role(c.Request.Context())
		summary, _ := json.Marshal(report)
		// Best-effort; the sweep already ran.
		_ = h.Audit.LogReconciliation(c.Request.Context(), actorID, actorRole, string(summary))
	}

	c.JSON(http.StatusOK, report)
}

// Convenience middleware bundles.

func RequireVerifierRole() []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireAuthenticated(), rbac.RequireVerifier()}
}
