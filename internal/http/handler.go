package http

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"incident-service/internal/config"
	"incident-service/internal/http/middleware"
	"incident-service/internal/pipeline"
	"incident-service/internal/service"
	"incident-service/internal/vision"
)

// maxFrameUpload bounds the multipart frame body.
const maxFrameUpload = 10 << 20

type Handler struct {
	processor       *pipeline.Processor
	incidentService *service.IncidentService
	config          *config.Config
	log             zerolog.Logger
}

func NewHandler(
	processor *pipeline.Processor,
	incidentService *service.IncidentService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		processor:       processor,
		incidentService: incidentService,
		config:          cfg,
		log:             log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/frames", h.ingestFrame)
		public.GET("/incidents", h.listIncidents)
		public.GET("/incidents/export", h.exportIncidents)
		public.GET("/incidents/:id", h.getIncident)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.DELETE("/sources/:id", h.removeSource)
	}
}

func (h *Handler) ingestFrame(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameUpload)
	if err := c.Request.ParseMultipartForm(maxFrameUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse("frame upload exceeds the size limit"))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse("invalid multipart payload"))
		return
	}

	sourceID := strings.TrimSpace(c.PostForm("source_id"))
	if sourceID == "" {
		c.JSON(http.StatusBadRequest, errorResponse("source_id is required"))
		return
	}

	frameIndex, err := strconv.ParseInt(c.PostForm("frame_index"), 10, 64)
	if err != nil || frameIndex < 0 {
		c.JSON(http.StatusBadRequest, errorResponse("frame_index must be a non-negative integer"))
		return
	}

	sceneContext := strings.TrimSpace(c.PostForm("context"))

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("image file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to open image file"))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to read image file"))
		return
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		h.log.Warn().
			Err(err).
			Str("source_id", sourceID).
			Str("filename", fileHeader.Filename).
			Msg("failed to decode frame image")
		c.JSON(http.StatusBadRequest, errorResponse("image must be a valid jpeg or png"))
		return
	}

	frame := vision.FromImage(img)

	result, err := h.processor.ProcessFrame(c.Request.Context(), sourceID, frame, raw, frameIndex, sceneContext)
	if err != nil {
		if errors.Is(err, pipeline.ErrOutOfOrder) {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.log.Error().
			Err(err).
			Str("source_id", sourceID).
			Int64("frame_index", frameIndex).
			Msg("failed to process frame")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	h.log.Debug().
		Str("source_id", sourceID).
		Int64("frame_index", frameIndex).
		Str("format", format).
		Str("decision", string(result.Decision)).
		Float64("probability", result.Score.Probability).
		Msg("processed frame")

	status := http.StatusOK
	if result.Event != nil {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *Handler) listIncidents(c *gin.Context) {
	sourceID, incidentType, from, to := incidentFilters(c)

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	incidents, err := h.incidentService.FindIncidents(c.Request.Context(), sourceID, incidentType, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(incidents))
}

func (h *Handler) getIncident(c *gin.Context) {
	info, err := h.incidentService.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(info))
}

func (h *Handler) exportIncidents(c *gin.Context) {
	sourceID, incidentType, from, to := incidentFilters(c)

	filename := fmt.Sprintf("incidents_%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := h.incidentService.ExportIncidents(c.Request.Context(), c.Writer, sourceID, incidentType, from, to); err != nil {
		h.log.Error().Err(err).Msg("failed to export incidents")
		h.handleError(c, err)
	}
}

func (h *Handler) removeSource(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok || !principal.CanManageSources() {
		c.JSON(http.StatusForbidden, errorResponse("insufficient role"))
		return
	}

	sourceID := c.Param("id")
	removed := h.processor.RemoveSource(sourceID)

	h.log.Info().
		Str("source_id", sourceID).
		Str("user_id", principal.UserID.String()).
		Bool("removed", removed).
		Msg("source state removal requested")

	if !removed {
		c.JSON(http.StatusNotFound, errorResponse("source not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "source_id": sourceID})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func incidentFilters(c *gin.Context) (sourceID, incidentType, from, to *string) {
	if s := strings.TrimSpace(c.Query("source_id")); s != "" {
		sourceID = &s
	}
	if t := strings.TrimSpace(c.Query("type")); t != "" {
		incidentType = &t
	}
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}
	return
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
