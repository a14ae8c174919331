package models

import "time"

// AlertCategory groups alerts by the subsystem that raised them.
type AlertCategory string

const (
	CategoryPerformance AlertCategory = "performance"
	CategorySecurity    AlertCategory = "security"
	CategoryStorage     AlertCategory = "storage"
	CategoryAutomation  AlertCategory = "automation"
)

// Alert is the persisted record of a breaching (device, metric) pair.
// The lifecycle manager guarantees at most one active alert per
// (device_id, metric) at any point in time.
type Alert struct {
	ID          string                 `json:"id"`
	DeviceID    string                 `json:"device_id"`
	Metric      MetricType             `json:"metric"`
	Category    AlertCategory          `json:"category"`
	Severity    Severity               `json:"severity"`
	Message     string                 `json:"message"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IsActive    bool                   `json:"is_active"`
	TriggeredAt time.Time              `json:"triggered_at"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
}

// AlertPatch carries the mutable fields of an alert update.
type AlertPatch struct {
	Severity Severity               `json:"severity,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AlertAction names the state transition a reconcile pass decided on.
type AlertAction string

const (
	ActionNone       AlertAction = "none"       // nothing breaching, nothing active
	ActionCreated    AlertAction = "created"    // new alert opened
	ActionUpdated    AlertAction = "updated"    // active alert refreshed
	ActionResolved   AlertAction = "resolved"   // active alert closed
	ActionSuppressed AlertAction = "suppressed" // held back by hysteresis or cool-down
)

// AlertTransition is the outcome of one reconcile pass for a (device, metric)
// observation.
type AlertTransition struct {
	Action   AlertAction `json:"action"`
	Alert    *Alert      `json:"alert,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	DeviceID string      `json:"device_id"`
	Metric   MetricType  `json:"metric"`
	Value    float64     `json:"value"`
	Severity Severity    `json:"severity"`
}
