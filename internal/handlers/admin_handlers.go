package handlers

import (
	"net/http"
	"strconv"

	"connectsprobot/internal/caching"
	"connectsprobot/internal/fleet"
	"connectsprobot/internal/jobs/background"
	"connectsprobot/internal/repositories"
	"connectsprobot/internal/services"

	"github.com/labstack/echo/v4"
)

// AdminHandlers exposes the management API: owner administration, fleet
// inspection, broadcasts and job control.
type AdminHandlers struct {
	owners       repositories.OwnerRepository
	cacheSvc     caching.CacheService
	orch         *fleet.Orchestrator
	registry     *fleet.Registry
	broadcastSvc *services.BroadcastService
	scheduler    *background.JobScheduler
}

// NewAdminHandlers creates a new admin handlers instance
func NewAdminHandlers(
	owners repositories.OwnerRepository,
	cacheSvc caching.CacheService,
	orch *fleet.Orchestrator,
	registry *fleet.Registry,
	broadcastSvc *services.BroadcastService,
	scheduler *background.JobScheduler,
) *AdminHandlers {
	return &AdminHandlers{
		owners:       owners,
		cacheSvc:     cacheSvc,
		orch:         orch,
		registry:     registry,
		broadcastSvc: broadcastSvc,
		scheduler:    scheduler,
	}
}

// ListOwners returns all registered owners
func (h *AdminHandlers) ListOwners(c echo.Context) error {
	ctx := c.Request().Context()

	owners, err := h.owners.List(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list owners")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"owners": owners,
		"total":  len(owners),
	})
}

// GetOwner returns one owner with its activity stats
func (h *AdminHandlers) GetOwner(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ownerIDParam(c)
	if err != nil {
		return err
	}

	owner, err := h.owners.GetByTelegramID(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load owner")
	}
	if owner == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Owner not found")
	}

	stats, err := h.owners.Stats(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load owner stats")
	}

	_, running := h.registry.Get(id)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"owner":            owner,
		"stats":            stats,
		"instance_running": running,
	})
}

// SetOwnerActive activates or deactivates an owner. Deactivating a dedicated
// owner also stops its running instance.
func (h *AdminHandlers) SetOwnerActive(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ownerIDParam(c)
	if err != nil {
		return err
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := h.owners.SetActive(ctx, id, req.Active); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update owner")
	}
	h.invalidateOwner(c, id)

	if !req.Active {
		if err := h.orch.Deregister(ctx, id); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Owner deactivated but instance shutdown failed")
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"telegram_id": id,
		"active":      req.Active,
	})
}

// ExpireTrial force-expires an owner's trial and stops its instance
func (h *AdminHandlers) ExpireTrial(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ownerIDParam(c)
	if err != nil {
		return err
	}

	fresh, err := h.owners.MarkTrialExpired(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to expire trial")
	}
	h.invalidateOwner(c, id)

	if err := h.orch.Deregister(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Trial expired but instance shutdown failed")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"telegram_id":   id,
		"fresh_expiry":  fresh,
		"trial_expired": true,
	})
}

// FleetStatus returns a snapshot of running dedicated instances
func (h *AdminHandlers) FleetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"running":   h.registry.Len(),
		"owner_ids": h.registry.IDs(),
	})
}

// TriggerTrialSweep runs the trial sweep immediately
func (h *AdminHandlers) TriggerTrialSweep(c echo.Context) error {
	summary, err := h.orch.CheckTrials(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Trial sweep failed")
	}
	return c.JSON(http.StatusOK, summary)
}

// BroadcastRequest represents the broadcast request payload
type BroadcastRequest struct {
	Audience string `json:"audience"`
	Text     string `json:"text"`
}

// Broadcast fans an announcement out to the selected audience
func (h *AdminHandlers) Broadcast(c echo.Context) error {
	ctx := c.Request().Context()

	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Broadcast text is required")
	}

	audience := services.Audience(req.Audience)
	switch audience {
	case services.AudienceUsers, services.AudienceOwners, services.AudienceDedicatedUsers:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown audience")
	}

	sent, failed, err := h.broadcastSvc.Send(ctx, audience, req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Broadcast failed")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"audience": audience,
		"sent":     sent,
		"failed":   failed,
	})
}

// JobStatus returns the background job registry
func (h *AdminHandlers) JobStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.GetJobStatus())
}

// RunJob triggers a named background job immediately
func (h *AdminHandlers) RunJob(c echo.Context) error {
	name := c.Param("name")
	if err := h.scheduler.RunJobNow(name); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to run job")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"job":    name,
		"status": "triggered",
	})
}

func (h *AdminHandlers) invalidateOwner(c echo.Context, id int64) {
	// Cache failure is tolerable; the TTL bounds the staleness.
	_ = h.cacheSvc.DeleteOwner(c.Request().Context(), id)
}

func ownerIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid owner id")
	}
	return id, nil
}
