package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-tile-refresh/internal/geocode"
	"github.com/i474232898/weather-tile-refresh/internal/scheduler"
	"github.com/i474232898/weather-tile-refresh/internal/store"
	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

var validate = validator.New()

const defaultRequestTimeout = 20 * time.Second

// Controller is the subset of *scheduler.Scheduler the API drives.
type Controller interface {
	RequestImmediate()
	SetCoordinate(coord weather.Coordinate) error
	SetInterval(d time.Duration) error
	State() scheduler.State
}

// Geocoder resolves place names. *geocode.Resolver implements it.
type Geocoder interface {
	Resolve(ctx context.Context, name string) (weather.Coordinate, error)
}

// TileFetcher runs a one-shot fetch. *weather.Service implements it.
type TileFetcher interface {
	Fetch(ctx context.Context, coord weather.Coordinate) (weather.Snapshot, error)
}

// Deps groups everything the routes need.
type Deps struct {
	Scheduler Controller
	Geocoder  Geocoder
	Fetcher   TileFetcher
	Store     weather.Store

	// RequestTimeout bounds geocoding and one-shot fetches made on behalf
	// of a request.
	RequestTimeout time.Duration
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = defaultRequestTimeout
	}
	h := &handlers{deps: deps}

	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", h.current)
	v1.Get("/weather/history", h.history)
	v1.Get("/weather/tile", h.tile)

	v1.Get("/status", h.status)
	v1.Post("/refresh", h.refresh)
	v1.Put("/location", h.location)
	v1.Put("/interval", h.interval)
	v1.Get("/geocode", h.geocode)
}

type handlers struct {
	deps Deps
}

func (h *handlers) current(c *fiber.Ctx) error {
	outcome, err := h.deps.Store.GetLatest()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no refresh outcome recorded yet")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
	return c.JSON(outcome)
}

func (h *handlers) history(c *fiber.Ctx) error {
	var req historyQuery
	if err := req.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	outcomes, err := h.deps.Store.GetRange(req.From, req.To)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
	}

	return c.JSON(fiber.Map{
		"from":     req.From,
		"to":       req.To,
		"outcomes": outcomes,
	})
}

// tile fetches the tile once without touching the scheduler. Without lat/lon
// it uses the scheduler's current coordinate.
func (h *handlers) tile(c *fiber.Ctx) error {
	coord := h.deps.Scheduler.State().Coordinate
	if c.Query("lat") != "" || c.Query("lon") != "" {
		q, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		coord = weather.Coordinate{Latitude: q.Latitude, Longitude: q.Longitude}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.deps.RequestTimeout)
	defer cancel()

	snap, err := h.deps.Fetcher.Fetch(ctx, coord)
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(fiber.Map{
		"coordinate": coord,
		"snapshot":   snap,
	})
}

type statusResponse struct {
	Coordinate      weather.Coordinate `json:"coordinate"`
	IntervalSeconds float64            `json:"intervalSeconds"`
	Running         bool               `json:"running"`
	CycleInProgress bool               `json:"cycleInProgress"`
	Cycles          int64              `json:"cycles"`
}

func (h *handlers) status(c *fiber.Ctx) error {
	return c.JSON(toStatus(h.deps.Scheduler.State()))
}

func (h *handlers) refresh(c *fiber.Ctx) error {
	st := h.deps.Scheduler.State()
	if !st.Running {
		return fiber.NewError(fiber.StatusConflict, "scheduler is not running")
	}
	h.deps.Scheduler.RequestImmediate()
	return c.Status(fiber.StatusAccepted).JSON(toStatus(st))
}

// locationRequest accepts either a coordinate pair or a place name.
type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Name      string   `json:"name" validate:"omitempty,max=200"`
	Refresh   bool     `json:"refresh"`
}

func (r locationRequest) hasCoordinate() bool {
	return r.Latitude != nil && r.Longitude != nil
}

func (h *handlers) location(c *fiber.Ctx) error {
	var req locationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if !req.hasCoordinate() && strings.TrimSpace(req.Name) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "either latitude and longitude or name is required")
	}

	var coord weather.Coordinate
	if req.hasCoordinate() {
		coord = weather.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	} else {
		resolved, err := h.resolve(c, req.Name)
		if err != nil {
			return err
		}
		coord = resolved
	}

	if err := h.deps.Scheduler.SetCoordinate(coord); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	if req.Refresh {
		h.deps.Scheduler.RequestImmediate()
	}
	return c.JSON(toStatus(h.deps.Scheduler.State()))
}

type intervalRequest struct {
	Seconds int `json:"seconds" validate:"required,min=1"`
}

func (h *handlers) interval(c *fiber.Ctx) error {
	var req intervalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.deps.Scheduler.SetInterval(time.Duration(req.Seconds) * time.Second); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(toStatus(h.deps.Scheduler.State()))
}

func (h *handlers) geocode(c *fiber.Ctx) error {
	name := c.Query("q")
	coord, err := h.resolve(c, name)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"query":      strings.TrimSpace(name),
		"coordinate": coord,
	})
}

func (h *handlers) resolve(c *fiber.Ctx, name string) (weather.Coordinate, error) {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.deps.RequestTimeout)
	defer cancel()

	coord, err := h.deps.Geocoder.Resolve(ctx, name)
	switch {
	case err == nil:
		return coord, nil
	case errors.Is(err, geocode.ErrEmptyQuery):
		return weather.Coordinate{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, geocode.ErrNotFound):
		return weather.Coordinate{}, fiber.NewError(fiber.StatusNotFound, "location not found: "+strings.TrimSpace(name))
	default:
		return weather.Coordinate{}, upstreamError(err)
	}
}

func upstreamError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "upstream request timed out")
	case errors.Is(err, weather.ErrNetwork), errors.Is(err, weather.ErrMalformedResponse):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func toStatus(st scheduler.State) statusResponse {
	return statusResponse{
		Coordinate:      st.Coordinate,
		IntervalSeconds: st.Interval.Seconds(),
		Running:         st.Running,
		CycleInProgress: st.CycleInProgress,
		Cycles:          st.Cycles,
	}
}

// coordinateQuery holds the lat/lon query parameters.
type coordinateQuery struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

func parseCoordinateQuery(c *fiber.Ctx) (coordinateQuery, error) {
	var q coordinateQuery

	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return q, errors.New("lat must be a decimal number")
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		return q, errors.New("lon must be a decimal number")
	}
	q.Latitude = lat
	q.Longitude = lon

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
