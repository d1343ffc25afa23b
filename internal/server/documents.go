package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/pipetrade/internal/approval/domain"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	obsmiddleware "github.com/smallbiznis/pipetrade/internal/observability/logger"
	revisiondomain "github.com/smallbiznis/pipetrade/internal/revision/domain"
)

type createDocumentRequest struct {
	DocumentType string                     `json:"document_type"`
	DocumentDate string                     `json:"document_date"`
	Attributes   map[string]any             `json:"attributes"`
	Lines        []documentdomain.LineInput `json:"lines"`
}

func (s *Server) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	documentDate, err := parseOptionalTime(req.DocumentDate, false, s.location)
	if err != nil {
		AbortWithError(c, newValidationError("document_date", "invalid_document_date", "invalid document_date"))
		return
	}

	documentType := strings.ToUpper(strings.TrimSpace(req.DocumentType))
	c.Set(obsmiddleware.ContextDocumentTypeKey, documentType)

	in := documentdomain.CreateRequest{
		DocumentType: documentType,
		Attributes:   req.Attributes,
		Lines:        req.Lines,
		Actor:        actorFromContext(c),
	}
	if documentDate != nil {
		in.DocumentDate = *documentDate
	}

	resp, err := s.documentSvc.Create(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetDocumentByID(c *gin.Context) {
	resp, err := s.documentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(obsmiddleware.ContextDocumentTypeKey, resp.DocumentType)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDocumentRevisions(c *gin.Context) {
	resp, err := s.documentSvc.ListRevisions(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAvailableActions(c *gin.Context) {
	resp, err := s.approvalSvc.AvailableActions(c.Request.Context(), strings.TrimSpace(c.Param("id")), actorFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type amendmentChanges struct {
	Attributes   map[string]any              `json:"attributes"`
	Lines        *[]documentdomain.LineInput `json:"lines"`
	DocumentDate string                      `json:"document_date"`
}

type createAmendmentRequest struct {
	Changes amendmentChanges `json:"changes"`
	Reason  string           `json:"reason"`
}

func (s *Server) CreateAmendment(c *gin.Context) {
	var req createAmendmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var documentDate *time.Time
	if strings.TrimSpace(req.Changes.DocumentDate) != "" {
		parsed, err := parseOptionalTime(req.Changes.DocumentDate, false, s.location)
		if err != nil {
			AbortWithError(c, newValidationError("document_date", "invalid_document_date", "invalid document_date"))
			return
		}
		documentDate = parsed
	}

	resp, err := s.revisionSvc.CreateAmendment(c.Request.Context(), revisiondomain.CreateAmendmentRequest{
		OriginalID: strings.TrimSpace(c.Param("id")),
		Changes: revisiondomain.FieldChanges{
			Attributes:   req.Changes.Attributes,
			Lines:        req.Changes.Lines,
			DocumentDate: documentDate,
		},
		Reason: req.Reason,
		Actor:  actorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(obsmiddleware.ContextDocumentTypeKey, resp.DocumentType)

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type transitionRequest struct {
	Action  string `json:"action"`
	Remarks string `json:"remarks"`
}

func (s *Server) TransitionDocument(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		AbortWithError(c, newValidationError("action", "required", "action is required"))
		return
	}

	resp, err := s.approvalSvc.Transition(c.Request.Context(), approvaldomain.TransitionRequest{
		DocumentID: strings.TrimSpace(c.Param("id")),
		Action:     req.Action,
		Actor:      actorFromContext(c),
		Remarks:    req.Remarks,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(obsmiddleware.ContextDocumentTypeKey, resp.DocumentType)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
