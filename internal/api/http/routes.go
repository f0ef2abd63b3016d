package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-pipeline/internal/agent"
	"github.com/i474232898/weather-pipeline/internal/service"
	"github.com/i474232898/weather-pipeline/internal/weather"
)

var validate = validator.New()

const defaultHistoryDays = 7

// NewApp creates a Fiber app with the JSON codec and centralized error responses.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		UnescapePath:          true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc *service.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/latest/:city", func(c *fiber.Ctx) error {
		city := c.Params("city")
		o, err := svc.GetLatest(c.UserContext(), city)
		if err != nil {
			return readError(err, "no weather data found for "+city)
		}
		return c.JSON(o)
	})

	v1.Get("/weather/history/:city", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		observations, err := svc.GetHistory(c.UserContext(), req.City, req.Days)
		if err != nil {
			return readError(err, "no weather history found for "+req.City)
		}

		return c.JSON(fiber.Map{
			"city":         svc.ResolveCity(req.City),
			"days":         req.Days,
			"count":        len(observations),
			"observations": observations,
		})
	})

	v1.Get("/weather/cities", func(c *fiber.Ctx) error {
		cities := svc.ListCities()
		return c.JSON(fiber.Map{
			"cities": cities,
			"count":  len(cities),
		})
	})

	v1.Post("/agent/query", func(c *fiber.Ctx) error {
		var req queryRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(svc.QueryAgent(c.UserContext(), req.Query, req.ConversationHistory))
	})

	v1.Get("/agent/health", func(c *fiber.Ctx) error {
		return c.JSON(svc.AgentHealth())
	})

	v1.Get("/scheduler/jobs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"jobs": svc.Jobs(),
		})
	})
}

// readError maps read-path failures onto HTTP status codes.
func readError(err error, notFound string) error {
	switch {
	case errors.Is(err, weather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, notFound)
	case errors.Is(err, service.ErrInvalidCity), errors.Is(err, service.ErrInvalidDays):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
}

// historyQuery holds the path and query parameters of the history endpoint.
type historyQuery struct {
	City string `validate:"required"`
	Days int    `validate:"min=1,max=60"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.City = c.Params("city")
	h.Days = defaultHistoryDays

	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return errors.New("days must be an integer")
		}
		h.Days = days
	}
	return nil
}

// queryRequest is the body of an agent query.
type queryRequest struct {
	Query               string          `json:"query" validate:"required,max=2000"`
	ConversationHistory []agent.Message `json:"conversation_history" validate:"omitempty,max=50,dive"`
}
