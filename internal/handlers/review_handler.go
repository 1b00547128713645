package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recon-review-gateway/internal/controller"
	"recon-review-gateway/internal/stats"
	"recon-review-gateway/internal/upstream"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReviewHandler adapts the review controller to the HTTP surface. Every
// request runs its own controller session; selection state is never
// shared between concurrent clients.
type ReviewHandler struct {
	newSession func() *controller.Controller
	client     *upstream.Client
	log        *logrus.Logger
}

func NewReviewHandler(newSession func() *controller.Controller, client *upstream.Client, log *logrus.Logger) *ReviewHandler {
	return &ReviewHandler{newSession: newSession, client: client, log: log}
}

// batchRouteID normalizes a route parameter to the display id: both
// "RB-7" and "7" address batch 7.
func batchRouteID(param string) string {
	if _, err := strconv.ParseInt(param, 10, 64); err == nil {
		return "RB-" + param
	}
	return param
}

func (h *ReviewHandler) ListBatches(c *gin.Context) {
	ctrl := h.newSession()
	if err := ctrl.LoadBatches(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load batches", "retryable": true})
		return
	}

	ctrl.SetSearchTerm(c.Query("search"))
	ctrl.SetBatchStatusFilter(c.Query("status"))
	if field := c.Query("sortBy"); field != "" {
		ctrl.SetSort(field, c.Query("sortDir") != "desc")
	}

	c.JSON(http.StatusOK, gin.H{"batches": ctrl.Batches()})
}

// syncToBatch opens a fresh session, loads the list, and drives the
// route sync for the addressed batch. A stale id answers 404 with the
// list route as redirect target.
func (h *ReviewHandler) syncToBatch(c *gin.Context) (*controller.Controller, bool) {
	ctrl := h.newSession()
	if err := ctrl.LoadBatches(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load batches", "retryable": true})
		return nil, false
	}
	id := batchRouteID(c.Param("batchId"))
	if err := ctrl.SyncRoute(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found", "redirect": "/batches"})
		return nil, false
	}
	return ctrl, true
}

func (h *ReviewHandler) GetBatch(c *gin.Context) {
	ctrl, ok := h.syncToBatch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": ctrl.SelectedBatch()})
}

func (h *ReviewHandler) ListRecords(c *gin.Context) {
	ctrl, ok := h.syncToBatch(c)
	if !ok {
		return
	}
	ctrl.SetRecordStatusFilter(c.Query("status"))
	records := ctrl.Records()
	if q := c.Query("resolved"); q != "" {
		want, err := strconv.ParseBool(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be true or false"})
			return
		}
		filtered := records[:0]
		for i := range records {
			if records[i].Resolved == want {
				filtered = append(filtered, records[i])
			}
		}
		records = filtered
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *ReviewHandler) GetBatchStats(c *gin.Context) {
	ctrl, ok := h.syncToBatch(c)
	if !ok {
		return
	}
	batch := ctrl.SelectedBatch()
	c.JSON(http.StatusOK, gin.H{
		"match_rate":       batch.MatchRate,
		"debit_credit":     stats.ComputeDebitCredit(batch.Records),
		"status_breakdown": stats.ComputeStatusBreakdown(batch.Records),
		"discrepancies":    stats.ComputeDiscrepancies(batch.Records),
	})
}

func (h *ReviewHandler) RetryBatch(c *gin.Context) {
	ctrl, ok := h.syncToBatch(c)
	if !ok {
		return
	}
	if err := ctrl.RetryBatch(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "batch retry failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "batch retry started", "batch": ctrl.SelectedBatch()})
}

func (h *ReviewHandler) ExportIssues(c *gin.Context) {
	ctrl, ok := h.syncToBatch(c)
	if !ok {
		return
	}
	filename, data, err := ctrl.ExportIssues(time.Now())
	if err != nil {
		if errors.Is(err, controller.ErrNoProblematicRecords) {
			c.JSON(http.StatusOK, gin.H{"message": "no problematic records to export"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

type annotatePayload struct {
	BatchID string `json:"batch_id" binding:"required"`
	Comment string `json:"comment"`
}

func (h *ReviewHandler) annotateRecord(c *gin.Context, resolve bool) {
	recordID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record ID"})
		return
	}

	var payload annotatePayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctrl := h.newSession()
	if err := ctrl.LoadBatches(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load batches", "retryable": true})
		return
	}
	if err := ctrl.SyncRoute(c.Request.Context(), batchRouteID(payload.BatchID)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found", "redirect": "/batches"})
		return
	}
	if err := ctrl.SelectRecord(recordID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	if resolve {
		err = ctrl.ResolveRecord(c.Request.Context(), payload.Comment)
	} else {
		err = ctrl.AddComment(c.Request.Context(), payload.Comment)
	}
	switch {
	case errors.Is(err, controller.ErrEmptyComment):
		c.JSON(http.StatusBadRequest, gin.H{"error": "a comment is required"})
	case errors.Is(err, controller.ErrRecordResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "record is already resolved"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to update record"})
	default:
		record, _ := ctrl.SelectedRecord()
		c.JSON(http.StatusOK, gin.H{"message": "record updated", "record": record})
	}
}

func (h *ReviewHandler) ResolveRecord(c *gin.Context) {
	h.annotateRecord(c, true)
}

func (h *ReviewHandler) AddComment(c *gin.Context) {
	h.annotateRecord(c, false)
}

// Upload forwards a reconciliation batch upload: both source files and
// their template selections are validated before any upstream call.
func (h *ReviewHandler) Upload(c *gin.Context) {
	backoffice, boHeader, err := c.Request.FormFile("backofficeFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backoffice file required"})
		return
	}
	defer backoffice.Close()

	vendor, vendorHeader, err := c.Request.FormFile("vendorFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vendor file required"})
		return
	}
	defer vendor.Close()

	boTemplateID, err := strconv.ParseInt(c.PostForm("backofficeTemplateId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backoffice template selection required"})
		return
	}
	vendorTemplateID, err := strconv.ParseInt(c.PostForm("vendorTemplateId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vendor template selection required"})
		return
	}

	batchID, err := h.client.UploadReconciliationBatch(
		c.Request.Context(),
		boHeader.Filename, backoffice,
		vendorHeader.Filename, vendor,
		boTemplateID, vendorTemplateID,
	)
	if err != nil {
		h.log.WithField("funcName", "Upload").Error(err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "status": "processing"})
}

// AdminProxy relays user/role/template/auth administration verbatim; the
// gateway does not interpret those payloads beyond the status code.
func (h *ReviewHandler) AdminProxy(c *gin.Context) {
	path := "/api/admin" + c.Param("path")
	if c.Request.URL.RawQuery != "" {
		path += "?" + c.Request.URL.RawQuery
	}

	status, contentType, body, err := h.client.Forward(
		c.Request.Context(),
		c.Request.Method,
		path,
		c.ContentType(),
		c.Request.Body,
	)
	if err != nil {
		h.log.WithField("funcName", "AdminProxy").Error(err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		return
	}

	if strings.TrimSpace(string(body)) == "" {
		c.Status(status)
		return
	}
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(status, contentType, body)
}
