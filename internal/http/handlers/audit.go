package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/http/response"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/services"
)

type AuditHandler struct {
	log       *logger.Logger
	auditor   services.GraphAuditor
	corrector services.GraphCorrector
	reporter  services.AuditReporter
}

func NewAuditHandler(
	log *logger.Logger,
	auditor services.GraphAuditor,
	corrector services.GraphCorrector,
	reporter services.AuditReporter,
) *AuditHandler {
	return &AuditHandler{
		log:       log.With("handler", "AuditHandler"),
		auditor:   auditor,
		corrector: corrector,
		reporter:  reporter,
	}
}

type auditRequest struct {
	// Empty document id audits the whole graph.
	DocumentID string `json:"document_id"`
}

// POST /v1/audit
func (h *AuditHandler) RunAudit(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_audit_payload", err)
		return
	}

	var (
		conflicts []*types.Conflict
		err       error
	)
	if req.DocumentID == "" {
		conflicts, err = h.auditor.AuditAll(c.Request.Context())
	} else {
		conflicts, err = h.auditor.AuditDocument(c.Request.Context(), req.DocumentID)
	}
	if err != nil {
		h.log.Error("RunAudit failed", "error", err, "document_id", req.DocumentID)
		respondServiceError(c, "audit_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"document_id": req.DocumentID,
		"conflicts":   conflicts,
	})
}

// POST /v1/audit/correct
func (h *AuditHandler) RunCorrection(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_audit_payload", err)
		return
	}

	var (
		conflicts []*types.Conflict
		err       error
	)
	if req.DocumentID == "" {
		conflicts, err = h.auditor.AuditAll(c.Request.Context())
	} else {
		conflicts, err = h.auditor.AuditDocument(c.Request.Context(), req.DocumentID)
	}
	if err != nil {
		h.log.Error("RunCorrection failed (audit)", "error", err, "document_id", req.DocumentID)
		respondServiceError(c, "audit_failed", err)
		return
	}

	corrected, err := h.corrector.CorrectConflicts(c.Request.Context(), conflicts)
	if err != nil {
		h.log.Error("RunCorrection failed (correct)", "error", err, "document_id", req.DocumentID)
		respondServiceError(c, "correction_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"document_id": req.DocumentID,
		"detected":    len(conflicts),
		"corrected":   corrected,
	})
}

// POST /v1/audit/report
func (h *AuditHandler) GenerateReport(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_audit_payload", err)
		return
	}

	report, conflicts, err := h.reporter.Generate(c.Request.Context(), req.DocumentID)
	if err != nil {
		h.log.Error("GenerateReport failed", "error", err, "document_id", req.DocumentID)
		respondServiceError(c, "audit_report_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"report":    report,
		"conflicts": conflicts,
	})
}
