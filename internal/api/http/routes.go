package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/location-data-aggregation/internal/location"
)

var validate = validator.New()

// Updater controls the aggregation engine.
type Updater interface {
	Start()
	Stop()
	Running() bool
}

// Snapshots is the store surface exposed over HTTP.
type Snapshots interface {
	Current() location.Snapshot
	ClearError() location.Snapshot
	ToggleStationListExpanded() location.Snapshot
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, updates Updater, snapshots Snapshots) {
	v1 := app.Group("/api/v1")

	v1.Get("/snapshot", func(c *fiber.Ctx) error {
		return c.JSON(snapshots.Current())
	})

	v1.Post("/snapshot/clear-error", func(c *fiber.Ctx) error {
		return c.JSON(snapshots.ClearError())
	})

	v1.Post("/snapshot/toggle-stations", func(c *fiber.Ctx) error {
		return c.JSON(snapshots.ToggleStationListExpanded())
	})

	v1.Get("/updates", func(c *fiber.Ctx) error {
		return c.JSON(updatesState(updates))
	})

	v1.Post("/updates/start", func(c *fiber.Ctx) error {
		updates.Start()
		return c.JSON(updatesState(updates))
	})

	v1.Post("/updates/stop", func(c *fiber.Ctx) error {
		updates.Stop()
		return c.JSON(updatesState(updates))
	})

	v1.Get("/gravity", func(c *fiber.Ctx) error {
		var q gravityQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(fiber.Map{
			"latitude":  *q.Latitude,
			"elevation": q.Elevation,
			"gravity":   location.GravityAt(*q.Latitude, q.Elevation),
		})
	})
}

// RegisterMetrics exposes a net/http metrics handler at /metrics.
func RegisterMetrics(app *fiber.App, handler http.Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(handler))
}

func updatesState(u Updater) fiber.Map {
	return fiber.Map{"running": u.Running()}
}

// gravityQuery holds query parameters for the gravity calculator.
type gravityQuery struct {
	Latitude  *float64 `validate:"required,min=-90,max=90"`
	Elevation float64  `validate:"min=-11000,max=9000"`
}

func (g *gravityQuery) bind(c *fiber.Ctx) error {
	latStr := c.Query("lat")
	if latStr == "" {
		return errors.New("lat query parameter is required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return errors.New("lat must be a number")
	}
	g.Latitude = &lat

	if elevStr := c.Query("elevation"); elevStr != "" {
		elev, err := strconv.ParseFloat(elevStr, 64)
		if err != nil {
			return errors.New("elevation must be a number")
		}
		g.Elevation = elev
	}
	return nil
}
