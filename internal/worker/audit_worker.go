package worker

import (
	"github.com/spec-kit/office-hours/internal/service"
)

// StartAuditWorker registers the ticket history handlers.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
