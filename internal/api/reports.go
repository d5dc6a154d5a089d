package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) dailySales(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}

	daily, err := h.svc.Reports.GetDailySales(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, "Failed to load daily sales", err)
		return
	}

	c.JSON(http.StatusOK, daily)
}

func (h *Handler) salesSummary(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}

	summary, err := h.svc.Reports.GetSummaryByPeriod(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, "Failed to load summary", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) productSummary(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}

	series, err := h.svc.Reports.GetProductSummary(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, "Failed to load product summary", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": series})
}

func (h *Handler) compareSales(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	kind := service.ComparisonType(c.DefaultQuery("type", string(service.PreviousDay)))

	cmp, err := h.svc.Reports.ComparePeriods(c.Request.Context(), date, kind)
	if err != nil {
		h.fail(c, "Failed to compare periods", err)
		return
	}

	c.JSON(http.StatusOK, cmp)
}

func (h *Handler) resetToday(c *gin.Context) {
	removed, err := h.svc.Recorder.ResetTodaysSalesData(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to reset today's sales", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": removed})
}

func (h *Handler) attendees(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}

	list, err := h.svc.Attendees.GetAttendees(c.Request.Context(), date, c.DefaultQuery("source", service.AttendeeSourceAll))
	if err != nil {
		h.fail(c, "Failed to load attendees", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":      date.Format(models.DateLayout),
		"count":     len(list),
		"attendees": list,
	})
}

func (h *Handler) listMappings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mappings": h.svc.Mappings.GetAllMappings(c.Request.Context())})
}

func (h *Handler) getMapping(c *gin.Context) {
	productID, ok := productParam(c)
	if !ok {
		return
	}

	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			badRequest(c, "Invalid date", err)
			return
		}
	}

	c.JSON(http.StatusOK, h.svc.Mappings.GetMapping(c.Request.Context(), productID, date, c.Query("time")))
}

func (h *Handler) saveBaseMapping(c *gin.Context) {
	productID, ok := productParam(c)
	if !ok {
		return
	}

	var ids models.MappingIDs
	if err := c.ShouldBindJSON(&ids); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.svc.Mappings.SaveBaseMapping(c.Request.Context(), productID, ids); err != nil {
		h.fail(c, "Failed to save mapping", err)
		return
	}

	c.JSON(http.StatusOK, h.svc.Mappings.GetMapping(c.Request.Context(), productID, "", ""))
}

// OverridesRequest replaces every date override of a product.
type OverridesRequest struct {
	Overrides []models.DateOverride `json:"overrides"`
}

func (h *Handler) saveDateOverrides(c *gin.Context) {
	productID, ok := productParam(c)
	if !ok {
		return
	}

	var req OverridesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.svc.Mappings.SaveDateOverrides(c.Request.Context(), productID, req.Overrides); err != nil {
		h.fail(c, "Failed to save date overrides", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"overrides":  len(req.Overrides),
	})
}

func (h *Handler) listEvents(c *gin.Context) {
	q := platform.EventQuery{
		Date:   c.Query("date"),
		Status: c.Query("status"),
	}
	if q.Date != "" {
		if _, err := time.Parse(models.DateLayout, q.Date); err != nil {
			badRequest(c, "Invalid date", err)
			return
		}
	}

	events, err := h.svc.Events.ListEvents(c.Request.Context(), q)
	if err != nil {
		h.fail(c, "Failed to list events", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func productParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return 0, false
	}
	return id, true
}

func dateParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		badRequest(c, fmt.Sprintf("Invalid %s", name), err)
		return time.Time{}, false
	}
	return date, true
}

func dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, ok := dateParam(c, "start")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := dateParam(c, "end")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
