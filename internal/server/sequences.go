package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obsmiddleware "github.com/smallbiznis/pipetrade/internal/observability/logger"
)

func (s *Server) GetSequenceCounter(c *gin.Context) {
	documentType := strings.ToUpper(strings.TrimSpace(c.Param("type")))
	c.Set(obsmiddleware.ContextDocumentTypeKey, documentType)

	resp, err := s.sequenceSvc.Current(c.Request.Context(), documentType, c.Param("fy"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
