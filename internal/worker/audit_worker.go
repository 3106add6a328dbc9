package worker

import (
	"github.com/spec-kit/storefront-auth/internal/service"
)

// StartAuditWorker registers security event handlers.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
