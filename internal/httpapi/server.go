package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/relabel/internal/globaltime"
	"horse.fit/relabel/internal/pipeline"
	runschema "horse.fit/relabel/schema"
)

const maxRequestBody = 64 << 10

// PipelineFactory builds a pipeline service for the requested detector and
// translator provider names. Empty names use the configured defaults.
type PipelineFactory interface {
	Pipeline(detector, translator string) (*pipeline.Service, error)
	ProviderNames() (detectors, translators []string)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	APIKeyHash         string
	DefaultTargetLang  string
	DefaultConcurrency int
}

type Server struct {
	factory PipelineFactory
	logger  zerolog.Logger
	opts    Options
}

func NewServer(factory PipelineFactory, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Catalog runs are synchronous; give them room.
		writeTimeout = 15 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	targetLang := strings.TrimSpace(opts.DefaultTargetLang)
	if targetLang == "" {
		targetLang = "en"
	}

	return &Server{
		factory: factory,
		logger:  logger,
		opts: Options{
			Host:               host,
			Port:               port,
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			ShutdownTimeout:    shutdownTimeout,
			APIKeyHash:         opts.APIKeyHash,
			DefaultTargetLang:  targetLang,
			DefaultConcurrency: opts.DefaultConcurrency,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.factory == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(strconv.Itoa(maxRequestBody)))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/providers", s.handleProviders)
	api.POST("/translate", s.handleTranslateAll, s.requireAPIKey())
	api.POST("/images/:image_id/translate", s.handleTranslateImage, s.requireAPIKey())

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("relabel web server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("relabel web server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "relabel",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleProviders(c echo.Context) error {
	detectors, translators := s.factory.ProviderNames()
	return success(c, map[string]any{
		"detectors":   detectors,
		"translators": translators,
	})
}

func (s *Server) handleTranslateAll(c echo.Context) error {
	req, err := s.decodeRunRequest(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	svc, err := s.factory.Pipeline(req.Detector, req.Translator)
	if err != nil {
		return failValidation(c, map[string]string{"provider": err.Error()})
	}

	stats, err := svc.Run(c.Request().Context(), s.runOptions(req))
	if err != nil {
		s.logger.Error().Err(err).Msg("translation run failed")
		return internalError(c, "Translation run failed")
	}
	return success(c, map[string]any{
		"message": fmt.Sprintf("%d images translated and replaced.", stats.Translated),
		"stats":   stats,
	})
}

func (s *Server) handleTranslateImage(c echo.Context) error {
	imageID, err := strconv.ParseInt(strings.TrimSpace(c.Param("image_id")), 10, 64)
	if err != nil || imageID <= 0 {
		return failValidation(c, map[string]string{"image_id": "must be a positive integer"})
	}

	req, err := s.decodeRunRequest(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	svc, err := s.factory.Pipeline(req.Detector, req.Translator)
	if err != nil {
		return failValidation(c, map[string]string{"provider": err.Error()})
	}

	stats, err := svc.RunImage(c.Request().Context(), imageID, s.runOptions(req))
	if err != nil {
		if errors.Is(err, pipeline.ErrImageNotFound) {
			return failNotFound(c, fmt.Sprintf("Image not found: %d", imageID))
		}
		s.logger.Error().Err(err).Int64("image_id", imageID).Msg("image translation failed")
		return internalError(c, "Image translation failed")
	}
	return success(c, map[string]any{"stats": stats})
}

func (s *Server) decodeRunRequest(c echo.Context) (*runschema.RunRequest, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRequestBody))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return runschema.ValidateRunRequest(body)
}

func (s *Server) runOptions(req *runschema.RunRequest) pipeline.RunOptions {
	opts := pipeline.RunOptions{
		TargetLang:  req.TargetLang,
		Concurrency: req.Concurrency,
		DryRun:      req.DryRun,
		Force:       req.Force,
	}
	if opts.TargetLang == "" {
		opts.TargetLang = s.opts.DefaultTargetLang
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = s.opts.DefaultConcurrency
	}
	return opts
}
