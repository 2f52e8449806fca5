package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stockml-engine/internal/backtest"
	apperrors "stockml-engine/internal/errors"
	"stockml-engine/internal/store"
	"stockml-engine/internal/validate"
	"stockml-engine/pkg/utils"
)

// Every response carries a success flag; payloads go under data and
// failures under error, so clients branch on one field.
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, response{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidConfiguration),
		apperrors.Is(err, apperrors.ErrTemporalLeakage):
		status = http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrModelNotFound),
		apperrors.Is(err, apperrors.ErrDataNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, response{Success: false, Error: err.Error()})
}

func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.POST("/backtest/run", s.handleBacktest)
	api.POST("/historical/run", s.handleValidation)
	api.POST("/future/predict", s.handleForecast)

	api.GET("/status", s.handleStatus)
	api.GET("/status/:instrument", s.handleInstrumentStatus)
	api.GET("/models", s.handleModels)
	api.GET("/reports", s.handleReports)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Commission is a pointer so an explicit zero (free trading) is
// distinguishable from an omitted field, which falls back to the
// configured default.
type backtestRequest struct {
	Instruments []string `json:"instruments" binding:"required,min=1"`
	Start       string   `json:"start" binding:"required"`
	End         string   `json:"end" binding:"required"`
	Cash        float64  `json:"cash"`
	Commission  *float64 `json:"commission"`
	Threshold   float64  `json:"threshold"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Success: false, Error: err.Error()})
		return
	}

	start, err := utils.ParseDate(req.Start)
	if err != nil {
		fail(c, err)
		return
	}
	end, err := utils.ParseDate(req.End)
	if err != nil {
		fail(c, err)
		return
	}

	cfg := backtest.RunConfig{
		Start:      start,
		End:        end,
		Cash:       req.Cash,
		Commission: -1,
		Threshold:  req.Threshold,
	}
	if req.Commission != nil {
		cfg.Commission = *req.Commission
	}

	result, err := s.engine.RunBatch(c.Request.Context(), req.Instruments, cfg)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

type validationRequest struct {
	Instruments []string `json:"instruments" binding:"required,min=1"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
}

func (s *Server) handleValidation(c *gin.Context) {
	var req validationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Success: false, Error: err.Error()})
		return
	}

	var start, end time.Time
	var err error
	if req.Start != "" {
		if start, err = utils.ParseDate(req.Start); err != nil {
			fail(c, err)
			return
		}
	}
	if req.End != "" {
		if end, err = utils.ParseDate(req.End); err != nil {
			fail(c, err)
			return
		}
	}

	ok(c, s.validator.RunBatch(c.Request.Context(), req.Instruments, validate.RunConfig{
		Start: start,
		End:   end,
	}))
}

// ConfidenceThreshold is a pointer for the same reason as
// backtestRequest.Commission: zero is a valid explicit value.
type forecastRequest struct {
	Instruments         []string `json:"instruments" binding:"required,min=1"`
	Horizon             int      `json:"horizon"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
}

func (s *Server) handleForecast(c *gin.Context) {
	var req forecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Success: false, Error: err.Error()})
		return
	}
	if req.Horizon == 0 {
		req.Horizon = s.cfg.MaxHorizonDays
	}
	confidence := -1.0
	if req.ConfidenceThreshold != nil {
		confidence = *req.ConfidenceThreshold
	}

	forecasts, errors, err := s.projector.ProjectBatch(c.Request.Context(), req.Instruments, req.Horizon, confidence)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"forecasts": forecasts, "errors": errors})
}

func (s *Server) handleStatus(c *gin.Context) {
	instruments, err := s.store.ListInstruments(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	statuses := make([]*store.InstrumentStatus, 0, len(instruments))
	for _, instrument := range instruments {
		status, err := s.store.InstrumentStatus(c.Request.Context(), instrument)
		if err != nil {
			fail(c, err)
			return
		}
		statuses = append(statuses, status)
	}
	ok(c, statuses)
}

func (s *Server) handleInstrumentStatus(c *gin.Context) {
	status, err := s.store.InstrumentStatus(c.Request.Context(), c.Param("instrument"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, status)
}

func (s *Server) handleModels(c *gin.Context) {
	ok(c, s.registry.Statuses())
}

func (s *Server) handleReports(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, response{Success: false, Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := s.store.GetReports(c.Request.Context(),
		c.Query("instrument"), store.RunKind(c.Query("kind")), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, records)
}
