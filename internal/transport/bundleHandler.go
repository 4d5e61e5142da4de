package transport

import (
	"net/http"

	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type BundleHandler struct {
	bundleService service.BundleService
	ledgerService service.LedgerService
}

func NewBundleHandler(bundleService service.BundleService, ledgerService service.LedgerService) *BundleHandler {
	return &BundleHandler{bundleService: bundleService, ledgerService: ledgerService}
}

func (h *BundleHandler) Create(c *gin.Context) {
	var req service.CreateBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.bundleService.CreateBundle(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "bundle created", b)
}

// Get returns the bundle with its balance replayed from the ledger
func (h *BundleHandler) Get(c *gin.Context) {
	b, err := h.bundleService.GetBundle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", b)
}

func (h *BundleHandler) Events(c *gin.Context) {
	events, err := h.ledgerService.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", events)
}

func (h *BundleHandler) Expire(c *gin.Context) {
	b, err := h.bundleService.ExpireBundle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "bundle expired", b)
}

func (h *BundleHandler) Cancel(c *gin.Context) {
	b, err := h.bundleService.CancelBundle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "bundle cancelled", b)
}
