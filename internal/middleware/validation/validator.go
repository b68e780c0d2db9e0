package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var scriptPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxQueryLength int
	Logger         *zap.Logger
}

// Middleware rejects malformed query payloads on the /query and /query/chat
// endpoints before they reach a handler: missing query text, oversized
// queries, or embedded markup. Other routes validate in their handlers.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if c.Method() != fiber.MethodPost || (path != "/query" && path != "/query/chat") {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		query, ok := req["query"].(string)
		if !ok || query == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query is required and must be a string",
			})
		}
		if len(query) > cfg.MaxQueryLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query exceeds maximum length",
			})
		}
		if scriptPattern.MatchString(query) {
			cfg.Logger.Warn("rejected query with embedded markup",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid query content",
			})
		}

		return c.Next()
	}
}
