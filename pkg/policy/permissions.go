// Package policy enforces role-based permissions and mandatory tenant
// scoping at every service boundary.
package policy

import (
	"errors"
	"fmt"

	"github.com/eap-project/eap/pkg/models"
)

// Permission names a platform operation subject to role checks.
type Permission string

// Platform permissions.
const (
	PermChatSend          Permission = "chat.send"
	PermDocumentRead      Permission = "document.read"
	PermDocumentUpload    Permission = "document.upload"
	PermDocumentDelete    Permission = "document.delete"
	PermConversationRead  Permission = "conversation.read"
	PermConversationWrite Permission = "conversation.write"
	PermConversationDel   Permission = "conversation.delete"
	PermFeedbackSubmit    Permission = "feedback.submit"
	PermPlanCreate        Permission = "plan.create"
	PermPlanApprove       Permission = "plan.approve"
	PermAnalyticsRead     Permission = "analytics.read"
	PermFinetuningRead    Permission = "finetuning.read"
	PermFinetuningExport  Permission = "finetuning.export"
	PermAdminTenants      Permission = "admin.tenants"
	PermAdminUsers        Permission = "admin.users"
	PermAdminWebhooks     Permission = "admin.webhooks"
	PermAuditRead         Permission = "audit.read"
	PermPIIViewUnredacted Permission = "pii.view_unredacted"
)

// minRole maps each permission to the minimum role that may exercise it.
var minRole = map[Permission]models.Role{
	PermChatSend:          models.RoleViewer,
	PermDocumentRead:      models.RoleViewer,
	PermConversationRead:  models.RoleViewer,
	PermConversationWrite: models.RoleViewer,
	PermFeedbackSubmit:    models.RoleViewer,

	PermDocumentUpload:  models.RoleOperator,
	PermConversationDel: models.RoleOperator,
	PermPlanCreate:      models.RoleOperator,
	PermPlanApprove:     models.RoleOperator,
	PermAnalyticsRead:   models.RoleOperator,
	PermFinetuningRead:  models.RoleOperator,

	PermDocumentDelete:    models.RoleAdmin,
	PermAdminTenants:      models.RoleAdmin,
	PermAdminUsers:        models.RoleAdmin,
	PermAdminWebhooks:     models.RoleAdmin,
	PermAuditRead:         models.RoleAdmin,
	PermPIIViewUnredacted: models.RoleAdmin,
	PermFinetuningExport:  models.RoleAdmin,
}

// ErrPermissionDenied is the refusal for an insufficient role. The message
// deliberately does not reveal which role the operation requires.
var ErrPermissionDenied = errors.New("insufficient permissions")

// ErrUnknownPermission is returned for permissions missing from the table.
// Unknown permissions are always refused.
var ErrUnknownPermission = errors.New("unknown permission")

// CheckPermission returns nil when role meets the permission's minimum
// role, ErrPermissionDenied otherwise.
func CheckPermission(role models.Role, perm Permission) error {
	min, ok := minRole[perm]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
	}
	if !role.AtLeast(min) {
		return ErrPermissionDenied
	}
	return nil
}
