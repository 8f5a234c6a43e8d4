// Package api serves a loaded model over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/model"
	"github.com/samcharles93/lmpeek/internal/sampling"
	"github.com/samcharles93/lmpeek/internal/version"
	"github.com/samcharles93/lmpeek/pkg/lmpeek"
)

// Backend is the model the server forwards requests to. *lmpeek.Model
// satisfies it.
type Backend interface {
	Encode(ctx context.Context, text string) ([]int, error)
	Decode(ctx context.Context, ids []int) (string, error)
	ForwardBatch(ctx context.Context, texts []string, opts ...lmpeek.ForwardOption) (*model.Outputs, error)
	Sample(ctx context.Context, logits []float32, opts sampling.Options) ([]sampling.TokenProb, error)
	NextToken(ctx context.Context, text string, opts sampling.Options, fwd ...lmpeek.ForwardOption) ([]sampling.TokenProb, error)
}

type Server struct {
	backend Backend
	log     logger.Logger
}

func NewServer(backend Backend, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{backend: backend, log: log.With("component", "api")}
}

// Register mounts the routes and the request id middleware on e.
func (s *Server) Register(e *echo.Echo) {
	e.Use(withRequestID)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", handleMetrics)
	e.POST("/v1/encode", s.handleEncode)
	e.POST("/v1/decode", s.handleDecode)
	e.POST("/v1/forward", s.handleForward)
	e.POST("/v1/sample", s.handleSample)
	e.POST("/v1/next-token", s.handleNextToken)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: version.String()})
}

func handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleEncode(c *echo.Context) error {
	req, err := decodeJSON[EncodeRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	ids, err := s.backend.Encode(c.Request().Context(), req.Text)
	if err != nil {
		return s.fail(c, "encode", err)
	}
	return c.JSON(http.StatusOK, EncodeResponse{TokenIDs: ids})
}

func (s *Server) handleDecode(c *echo.Context) error {
	req, err := decodeJSON[DecodeRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	text, err := s.backend.Decode(c.Request().Context(), req.TokenIDs)
	if err != nil {
		return s.fail(c, "decode", err)
	}
	return c.JSON(http.StatusOK, DecodeResponse{Text: text})
}

func (s *Server) handleForward(c *echo.Context) error {
	req, err := decodeJSON[ForwardRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	inputs, err := normalizeInput(req.Input)
	if err != nil {
		return writeError(c, err)
	}
	out, err := s.backend.ForwardBatch(c.Request().Context(), inputs, forwardOpts(req.BOSToken)...)
	if err != nil {
		return s.fail(c, "forward", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSample(c *echo.Context) error {
	req, err := decodeJSON[SampleRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	if len(req.Logits) == 0 {
		return writeError(c, newInvalidRequest("logits must not be empty"))
	}
	ranked, err := s.backend.Sample(c.Request().Context(), req.Logits, req.Options)
	if err != nil {
		return s.fail(c, "sample", err)
	}
	return c.JSON(http.StatusOK, SampleResponse{Tokens: ranked})
}

func (s *Server) handleNextToken(c *echo.Context) error {
	req, err := decodeJSON[NextTokenRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	if req.Limit < 0 {
		return writeError(c, newInvalidRequest("limit must not be negative"))
	}
	ranked, err := s.backend.NextToken(c.Request().Context(), req.Text, req.Options, forwardOpts(req.BOSToken)...)
	if err != nil {
		return s.fail(c, "next-token", err)
	}
	if req.Limit > 0 && req.Limit < len(ranked) {
		ranked = ranked[:req.Limit]
	}
	return c.JSON(http.StatusOK, SampleResponse{Tokens: ranked})
}

func (s *Server) fail(c *echo.Context, op string, err error) error {
	status, _ := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "op", op, "request_id", requestID(c), "error", err)
	} else {
		s.log.Debug("request rejected", "op", op, "request_id", requestID(c), "error", err)
	}
	return writeError(c, err)
}

func forwardOpts(bos bool) []lmpeek.ForwardOption {
	if bos {
		return []lmpeek.ForwardOption{lmpeek.WithBOS()}
	}
	return nil
}
