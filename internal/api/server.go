package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"
)

type Server struct {
	store   *GenerationStore
	service *GenerationService
	models  ModelProvider
}

func NewServer(store *GenerationStore, service *GenerationService, models ModelProvider) *Server {
	if store == nil {
		store = NewGenerationStore(0)
	}
	return &Server{store: store, service: service, models: models}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/healthz", s.handleHealth)
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/generations/:id", s.handleGetGeneration)
	e.DELETE("/v1/generations/:id", s.handleDeleteGeneration)
}

func (s *Server) handleHealth(c *echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.models != nil {
		resp.Model, resp.Vocab = s.models.Info()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerate(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generation service not configured", "")
	}
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	var writer *SSEStreamWriter
	var stream StreamWriter
	if req.Stream != nil && *req.Stream {
		w, err := NewSSEStreamWriter(c)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		writer = w
		stream = w
	}

	resp, err := s.service.Generate(c.Request().Context(), &req, stream)
	if resp != nil {
		s.store.Save(*resp)
	}
	if err != nil {
		if writer != nil && writer.Started() {
			return nil
		}
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	if writer != nil {
		return nil
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetGeneration(c *echo.Context) error {
	id := c.Param("id")
	resp, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "generation "+id+" not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteGeneration(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "generation "+id+" not found")
	}
	return c.JSON(http.StatusOK, DeleteResponse{ID: id, Object: "generation.deleted", Deleted: true})
}
