package transport

import (
	"net/http"

	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	reservationService service.ReservationService
}

func NewReservationHandler(reservationService service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

func (h *ReservationHandler) Create(c *gin.Context) {
	var req service.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.reservationService.CreateReservation(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "reservation created", res)
}

func (h *ReservationHandler) CreateGroup(c *gin.Context) {
	var req service.CreateGroupReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	g, err := h.reservationService.CreateGroupReservation(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "group reservation created", g)
}

func (h *ReservationHandler) Get(c *gin.Context) {
	res, err := h.reservationService.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", res)
}

func (h *ReservationHandler) Confirm(c *gin.Context) {
	res, err := h.reservationService.ConfirmReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "reservation confirmed", res)
}

func (h *ReservationHandler) Validate(c *gin.Context) {
	res, err := h.reservationService.ValidateReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "reservation validated", res)
}

func (h *ReservationHandler) Cancel(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	res, err := h.reservationService.CancelReservation(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "reservation cancelled", res)
}

func (h *ReservationHandler) GetGroup(c *gin.Context) {
	g, err := h.reservationService.GetGroupReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", g)
}
