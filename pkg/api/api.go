// Package api provides a REST API for a scale
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/scale"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// API denotes a REST API for a scale
type API struct {
	scale   scale.Basic
	router  *fiber.App
	metrics http.Handler
	logger  scale.Logger
}

// WeightResponse denotes the response to a weight request
type WeightResponse struct {
	TimeStamp time.Time      `json:"timestamp"`
	Weight    float64        `json:"weight"`
	Unit      scale.Unit     `json:"unit"`
	Stable    bool           `json:"stable"`
	Status    StatusResponse `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// StatusResponse denotes the decoded status flags of the scale
type StatusResponse struct {
	Raw               string `json:"raw"`
	Variant           string `json:"variant"`
	InMotion          bool   `json:"in_motion"`
	AtZero            bool   `json:"at_zero"`
	UnderCapacity     bool   `json:"under_capacity"`
	OverCapacity      bool   `json:"over_capacity"`
	RAMError          bool   `json:"ram_error"`
	EEPROMError       bool   `json:"eeprom_error"`
	ROMError          bool   `json:"rom_error"`
	FaultyCalibration bool   `json:"faulty_calibration"`
	NetWeight         bool   `json:"net_weight"`
	InitialZeroError  bool   `json:"initial_zero_error"`
	Error             string `json:"error,omitempty"`
}

// UnitResponse denotes the response to a unit change
type UnitResponse struct {
	Unit scale.Unit `json:"unit"`
}

// HealthResponse denotes the connection state of the scale
type HealthResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// WithMetrics exposes the provided handler under /metrics
func WithMetrics(h http.Handler) func(*API) {
	return func(api *API) {
		api.metrics = h
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) func(*API) {
	return func(api *API) {
		api.logger = logger
	}
}

// New instantiates a new API. If endpoint is non-empty, the API starts to
// listen on it in the background
func New(s scale.Basic, endpoint string, options ...func(*API)) *API {

	api := API{
		scale: s,
		router: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(&api)
	}

	// Setup routes
	api.router.Get("/weight", api.handleWeight())
	api.router.Get("/status", api.handleStatus())
	api.router.Post("/zero", api.handleZero())
	api.router.Post("/units", api.handleUnits())
	api.router.Get("/health", api.handleHealth())
	if api.metrics != nil {
		api.router.Get("/metrics", adaptor.HTTPHandler(api.metrics))
	}

	// Start to listen in goroutine
	if endpoint != "" {
		go func() {
			if err := api.router.Listen(endpoint); err != nil {
				api.logger.Errorf("failed to serve API on %s: %s", endpoint, err)
			}
		}()
	}

	return &api
}

// App returns the underlying fiber application
func (api *API) App() *fiber.App {
	return api.router
}

// Shutdown stops the API
func (api *API) Shutdown() error {
	return api.router.Shutdown()
}

////////////////////////////////////////////////////////////////////////////////

func (api *API) handleWeight() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		dp, err := api.scale.Weight(c.UserContext())
		if err != nil && dp.TimeStamp.IsZero() {
			return api.fail(c, "weight", err)
		}

		resp := WeightResponse{
			TimeStamp: dp.TimeStamp,
			Weight:    dp.Weight,
			Unit:      dp.Unit,
			Stable:    dp.Stable,
			Status:    newStatusResponse(dp.Status),
		}
		if err != nil {
			resp.Error = err.Error()
			return c.Status(fiber.StatusBadGateway).JSON(resp)
		}

		return c.JSON(resp)
	}
}

func (api *API) handleStatus() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		st, err := api.scale.Status(c.UserContext())
		return api.statusReply(c, "status", st, err)
	}
}

func (api *API) handleZero() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		st, err := api.scale.Zero(c.UserContext())
		return api.statusReply(c, "zero", st, err)
	}
}

func (api *API) handleUnits() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		unit, err := api.scale.ChangeUnits(c.UserContext())
		if err != nil {
			return api.fail(c, "units", err)
		}
		return c.JSON(UnitResponse{Unit: unit})
	}
}

func (api *API) handleHealth() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		status := api.scale.ConnectionStatus()
		resp := HealthResponse{State: status.State.String()}
		if status.Error != nil {
			resp.Error = status.Error.Error()
		}
		if status.State != scale.StateConnected {
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		return c.JSON(resp)
	}
}

func (api *API) statusReply(c *fiber.Ctx, cmd string, st nci.Status, err error) error {

	// Status reports with invalid sentinel bits or terminators are still returned,
	// responses that never reached the status bytes are not
	if err != nil && !st.Decoded() {
		return api.fail(c, cmd, err)
	}

	resp := newStatusResponse(st)
	if err != nil {
		resp.Error = err.Error()
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}

	return c.JSON(resp)
}

func (api *API) fail(c *fiber.Ctx, cmd string, err error) error {
	api.logger.Warnf("failed to handle %s request: %s", cmd, err)
	return c.Status(httpStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, nci.ErrTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, nci.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, nci.ErrUnrecognizedCommand):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusBadGateway
	}
}

func newStatusResponse(st nci.Status) StatusResponse {
	return StatusResponse{
		Raw:               st.String(),
		Variant:           st.Variant.String(),
		InMotion:          st.InMotion(),
		AtZero:            st.AtZero(),
		UnderCapacity:     st.UnderCapacity(),
		OverCapacity:      st.OverCapacity(),
		RAMError:          st.RAMError(),
		EEPROMError:       st.EEPROMError(),
		ROMError:          st.ROMError(),
		FaultyCalibration: st.FaultyCalibration(),
		NetWeight:         st.NetWeight(),
		InitialZeroError:  st.InitialZeroError(),
	}
}
