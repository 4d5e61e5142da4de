package transport

import (
	"net/http"

	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type TemplateHandler struct {
	templateService   service.TemplateService
	allocationService service.AllocationService
}

func NewTemplateHandler(templateService service.TemplateService, allocationService service.AllocationService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService, allocationService: allocationService}
}

func (h *TemplateHandler) CreateSessionType(c *gin.Context) {
	var req service.CreateSessionTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	st, err := h.templateService.CreateSessionType(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "session type created", st)
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	t, err := h.templateService.CreateTemplate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "template created", t)
}

// GetSlots expands the template into candidate slots for ?from&to
func (h *TemplateHandler) GetSlots(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		respondError(c, err)
		return
	}

	slots, err := h.templateService.ExpandSlots(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", slots)
}

func (h *TemplateHandler) ListAllocations(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		respondError(c, err)
		return
	}

	allocations, err := h.allocationService.ListForTemplate(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", allocations)
}
