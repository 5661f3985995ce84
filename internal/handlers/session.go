package handlers

import (
	"errors"
	"net/http"
	"time"

	"cratebench/internal/monitor"
	"cratebench/internal/service"

	"github.com/gin-gonic/gin"
)

// Durations come in as seconds; the wire format mirrors the CSV column
// units rather than Go duration strings.
type sessionRequest struct {
	Name      string  `json:"name"`
	DurationS float64 `json:"duration_s" binding:"required"`
	IntervalS float64 `json:"interval_s" binding:"required"`

	SteadyThreshold float64 `json:"steady_threshold"`
	SteadyWindowS   float64 `json:"steady_window_s"`

	ShutdownCardOnOT bool `json:"shutdown_card_on_ot"`
	StopOnOT         bool `json:"stop_on_ot"`
	StopOnSteady     bool `json:"stop_on_steady"`
	ShutdownAtEnd    bool `json:"shutdown_at_end"`
	SaveEveryTick    bool `json:"save_every_tick"`

	Serials           []string `json:"serials"`
	MonitoredChannels int      `json:"monitored_channels"`
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// @Summary      Start a monitoring session
// @Description  Launches the sampling loop in the background. Only one session runs at a time.
// @Tags         session
// @Accept       json
// @Produce      json
// @Success      200  {object}  service.SessionStatus
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/session/start [post]
// @Security     BearerAuth
func (h *Handler) startSession(c *gin.Context) {
	var input sessionRequest
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	st, err := h.services.Bench.StartSession(c.Request.Context(), service.SessionParams{
		Name:              input.Name,
		Duration:          secondsToDuration(input.DurationS),
		Interval:          secondsToDuration(input.IntervalS),
		SteadyThreshold:   input.SteadyThreshold,
		SteadyWindow:      secondsToDuration(input.SteadyWindowS),
		ShutdownCardOnOT:  input.ShutdownCardOnOT,
		StopOnOT:          input.StopOnOT,
		StopOnSteady:      input.StopOnSteady,
		ShutdownAtEnd:     input.ShutdownAtEnd,
		SaveEveryTick:     input.SaveEveryTick,
		Serials:           input.Serials,
		MonitoredChannels: input.MonitoredChannels,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionActive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, monitor.ErrNoInterval),
			errors.Is(err, monitor.ErrNoDuration),
			errors.Is(err, monitor.ErrNoWindow):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			if h.log != nil {
				h.log.Errorw("session_start_failed", "err", err)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		}
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Stop the running session
// @Description  Cancels the sampling loop and waits for the finalize step (flush, shutdown, summary).
// @Tags         session
// @Produce      json
// @Success      200  {object}  service.SessionStatus
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/session/stop [post]
// @Security     BearerAuth
func (h *Handler) stopSession(c *gin.Context) {
	st, err := h.services.Bench.StopSession(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if h.log != nil {
			h.log.Errorw("session_stop_failed", "err", err)
		}
		// The session ended; its error rides along in the status payload.
		c.JSON(http.StatusOK, st)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Session status
// @Description  The running session, or the last finished one.
// @Tags         session
// @Produce      json
// @Success      200  {object}  service.SessionStatus
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/session/status [get]
// @Security     BearerAuth
func (h *Handler) sessionStatus(c *gin.Context) {
	st, err := h.services.Bench.Status(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

type stepRequest struct {
	StepNo     int     `json:"step_no"`
	Power      float64 `json:"power"`
	FanVoltage float64 `json:"fan_voltage"`

	Serials []string `json:"serials"`

	MaxDurationS    float64 `json:"max_duration_s"`
	IntervalS       float64 `json:"interval_s"`
	SteadyThreshold float64 `json:"steady_threshold"`
	SteadyWindowS   float64 `json:"steady_window_s"`
	CooldownS       float64 `json:"cooldown_s"`
}

// @Summary      Run a scenario step
// @Description  Sets the fan voltage, applies the step power and monitors until steady state, OT, or the step deadline. Blocks until the step (and optional cooldown) finishes.
// @Tags         bench
// @Accept       json
// @Produce      json
// @Success      200  {object}  service.StepResult
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/bench/step [post]
// @Security     BearerAuth
func (h *Handler) runStep(c *gin.Context) {
	var input stepRequest
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	res, err := h.services.Bench.RunStep(c.Request.Context(), service.StepParams{
		StepNo:          input.StepNo,
		Power:           input.Power,
		FanVoltage:      input.FanVoltage,
		Serials:         input.Serials,
		MaxDuration:     secondsToDuration(input.MaxDurationS),
		Interval:        secondsToDuration(input.IntervalS),
		SteadyThreshold: input.SteadyThreshold,
		SteadyWindow:    secondsToDuration(input.SteadyWindowS),
		Cooldown:        secondsToDuration(input.CooldownS),
	})
	if err != nil {
		if errors.Is(err, service.ErrSessionActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if h.log != nil {
			h.log.Errorw("bench_step_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
