package api

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

const headerRequestID = "X-Request-Id"

// withRequestID tags every request with an id, keeping one the caller sent.
func withRequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := c.Request().Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

func requestID(c *echo.Context) string {
	id, _ := c.Get(headerRequestID).(string)
	return id
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, newInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return out, nil
}

// normalizeInput accepts a string or an array of strings.
func normalizeInput(input any) ([]string, error) {
	switch v := input.(type) {
	case nil:
		return nil, newInvalidRequest("input is required")
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, raw := range v {
			s, ok := raw.(string)
			if !ok {
				return nil, newInvalidRequest(fmt.Sprintf("input[%d]: expected string", i))
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, newInvalidRequest("input must not be empty")
		}
		return out, nil
	default:
		return nil, newInvalidRequest("input: expected string or array of strings")
	}
}
