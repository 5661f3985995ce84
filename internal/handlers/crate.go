package handlers

import (
	"errors"
	"net/http"

	"cratebench/internal/crate"

	"github.com/gin-gonic/gin"
)

// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loadRequest struct {
	// Serials selects the cards; empty means every registered card.
	Serials []string `json:"serials"`
	// Powers is either one total wattage applied to each selected card or
	// one value per serial.
	Powers []float64 `json:"powers" binding:"required"`
}

// @Summary      Crate status
// @Description  Live report of every card: per-channel temperatures, load powers and OT flags.
// @Tags         crate
// @Produce      json
// @Param        serial  query  string  false  "Restrict to one card serial"
// @Success      200  {object}  map[string]interface{}  "count, cards"
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/crate/status [get]
// @Security     BearerAuth
func (h *Handler) crateStatus(c *gin.Context) {
	var serials []string
	if s := c.Query("serial"); s != "" {
		serials = []string{s}
	}

	reports, err := h.services.Crate.Status(c.Request.Context(), serials)
	if err != nil {
		if errors.Is(err, crate.ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if h.log != nil {
			h.log.Errorw("crate_status_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read crate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(reports),
		"cards": reports,
	})
}

// @Summary      Set card load power
// @Description  Distributes a total per-card power evenly across the card's load channels. Requests above a card's maximum are clamped.
// @Tags         crate
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/crate/load [post]
// @Security     BearerAuth
func (h *Handler) setLoadPower(c *gin.Context) {
	var input loadRequest
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	err := h.services.Crate.SetLoadPower(c.Request.Context(), input.Serials, input.Powers)
	if err != nil {
		switch {
		case errors.Is(err, crate.ErrCardNotFound),
			errors.Is(err, crate.ErrPowerListLength),
			errors.Is(err, crate.ErrPowerOutOfRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			if h.log != nil {
				h.log.Errorw("set_load_power_failed", "err", err)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set load power"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary      Shut down all loads
// @Description  Zeroes every load channel on every registered card.
// @Tags         crate
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/crate/shutdown [post]
// @Security     BearerAuth
func (h *Handler) shutdownLoads(c *gin.Context) {
	if err := h.services.Crate.ShutdownAll(c.Request.Context()); err != nil {
		if h.log != nil {
			h.log.Errorw("shutdown_loads_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
