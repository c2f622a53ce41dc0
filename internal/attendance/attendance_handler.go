package attendance

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"go-attendance/internal/middleware"
	"go-attendance/internal/shared/apperror"
	"go-attendance/internal/shared/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

func writeBindError(c *gin.Context, err error) {
	writeServiceError(c, apperror.MapValidationError(err))
}

// bindJSON treats an empty body as an empty request so the service reports
// which field is missing.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		writeBindError(c, err)
		return false
	}
	return true
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		EmployeeID: c.GetString(middleware.ContextEmployeeID),
		Email:      c.GetString(middleware.ContextEmail),
		Name:       c.GetString(middleware.ContextName),
	}
}

func (h *Handler) InitiateClockIn(c *gin.Context) {
	var req LocationRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.InitiateClockIn(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) VerifyClockIn(c *gin.Context) {
	var req VerifyClockInRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.VerifyClockIn(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, resp, nil)
}

func (h *Handler) InitiateClockOut(c *gin.Context) {
	var req LocationRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.InitiateClockOut(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) VerifyClockOut(c *gin.Context) {
	var req VerifyClockOutRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.VerifyClockOut(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) GetToday(c *gin.Context) {
	resp, err := h.service.GetToday(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) GetAll(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}

	canReadAll := c.GetBool(middleware.ContextCanReadAll)
	resp, err := h.service.List(c.Request.Context(), actorFrom(c), canReadAll, q)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	rows, meta := response.Paginate(resp, page, pageSize)
	response.Success(c, http.StatusOK, rows, &meta)
}
