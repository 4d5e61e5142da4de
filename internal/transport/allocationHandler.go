package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type AllocationHandler struct {
	allocationService  service.AllocationService
	reservationService service.ReservationService
}

func NewAllocationHandler(allocationService service.AllocationService, reservationService service.ReservationService) *AllocationHandler {
	return &AllocationHandler{allocationService: allocationService, reservationService: reservationService}
}

type getOrCreateAllocationRequest struct {
	TemplateID string    `json:"template_id" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
}

type setAllocationStatusRequest struct {
	Status entity.AllocationStatus `json:"status" binding:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (h *AllocationHandler) GetOrCreate(c *gin.Context) {
	var req getOrCreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	a, err := h.allocationService.GetOrCreate(c.Request.Context(), req.TemplateID, req.StartTime)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", a)
}

func (h *AllocationHandler) Get(c *gin.Context) {
	a, err := h.allocationService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", a)
}

func (h *AllocationHandler) SetStatus(c *gin.Context) {
	var req setAllocationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	a, err := h.allocationService.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "allocation status updated", a)
}

func (h *AllocationHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "allocation cancelled"
	}

	a, err := h.allocationService.CancelAllocation(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "allocation cancelled", a)
}

func (h *AllocationHandler) ListReservations(c *gin.Context) {
	reservations, err := h.reservationService.ListAllocationReservations(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", reservations)
}
