package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/care-intake-portal/shared/models"
)

// TenantEventsTopic carries tenant changes from the portal to the notifier
const TenantEventsTopic = "tenant-events"

type EventType string

const (
	EventTenantCreated       EventType = "tenant.created"
	EventTenantDeleted       EventType = "tenant.deleted"
	EventFeaturesUpdated     EventType = "tenant.features_updated"
	EventStatusChanged       EventType = "tenant.status_changed"
	EventDetailsUpdated      EventType = "tenant.details_updated"
	EventOnboardingCompleted EventType = "onboarding.completed"
)

// TenantEvent records a tenant change made by a user
type TenantEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	TenantID   string    `json:"tenant_id"`
	TenantName string    `json:"tenant_name"`
	ActorID    string    `json:"actor_id"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTenantEvent stamps an event with an id and the current time
func NewTenantEvent(typ EventType, tenant models.Tenant, actorID string) TenantEvent {
	return TenantEvent{
		ID:         uuid.New().String(),
		Type:       typ,
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// Notification renders the event for the actor's dropdown
func (e TenantEvent) Notification() models.Notification {
	n := models.Notification{Severity: models.SeveritySuccess}
	switch e.Type {
	case EventTenantCreated:
		n.Title = "Tenant created"
		n.Message = fmt.Sprintf("%s has been created", e.TenantName)
		n.Link = "/admin/tenants/" + e.TenantID
	case EventTenantDeleted:
		n.Severity = models.SeverityWarning
		n.Title = "Tenant deleted"
		n.Message = fmt.Sprintf("%s has been deleted", e.TenantName)
		n.Link = "/admin/tenants"
	case EventFeaturesUpdated:
		n.Title = "Features updated"
		n.Message = fmt.Sprintf("Features updated for %s", e.TenantName)
		n.Link = "/admin/tenants/" + e.TenantID
	case EventStatusChanged:
		n.Severity = models.SeverityInfo
		n.Title = "Status changed"
		n.Message = fmt.Sprintf("%s is now %s", e.TenantName, e.Detail)
		n.Link = "/admin/tenants/" + e.TenantID
	case EventDetailsUpdated:
		n.Title = "Settings saved"
		n.Message = fmt.Sprintf("Settings saved for %s", e.TenantName)
		n.Link = "/settings"
	case EventOnboardingCompleted:
		n.Title = "Welcome aboard"
		n.Message = fmt.Sprintf("%s is ready to use", e.TenantName)
		n.Link = "/dashboard"
	default:
		n.Severity = models.SeverityInfo
		n.Message = fmt.Sprintf("%s changed", e.TenantName)
	}
	return n
}
