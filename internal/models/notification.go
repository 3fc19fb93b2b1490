package models

import "time"

// NotificationType categorises an alert and fixes its priority.
type NotificationType string

const (
	NotificationUrgent  NotificationType = "URGENT"
	NotificationWarning NotificationType = "WARNING"
	NotificationAlert   NotificationType = "ALERT"
	NotificationInfo    NotificationType = "INFO"
)

// Priority is 1 for the most pressing type; unknown types sort last.
func (t NotificationType) Priority() int {
	switch t {
	case NotificationUrgent:
		return 1
	case NotificationWarning:
		return 2
	case NotificationAlert:
		return 3
	case NotificationInfo:
		return 4
	default:
		return 5
	}
}

// Valid reports whether the type is known.
func (t NotificationType) Valid() bool {
	return t.Priority() <= 4
}

// NotificationStatus is the inbox state of a persisted notification.
type NotificationStatus string

const (
	NotificationUnread   NotificationStatus = "UNREAD"
	NotificationRead     NotificationStatus = "READ"
	NotificationArchived NotificationStatus = "ARCHIVED"
)

func (s NotificationStatus) rank() int {
	switch s {
	case NotificationUnread:
		return 0
	case NotificationRead:
		return 1
	case NotificationArchived:
		return 2
	default:
		return -1
	}
}

// Valid reports whether the status is known.
func (s NotificationStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransition reports whether moving from s to next keeps the state
// machine monotonic. Nothing returns to UNREAD.
func (s NotificationStatus) CanTransition(next NotificationStatus) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	return to > from
}

// Notification is a persisted alert owned by one recipient.
type Notification struct {
	ID          string             `db:"id" json:"id"`
	RecipientID string             `db:"recipient_id" json:"recipient_id"`
	Type        NotificationType   `db:"type" json:"type"`
	Title       string             `db:"title" json:"title"`
	Message     string             `db:"message" json:"message"`
	Status      NotificationStatus `db:"status" json:"status"`
	ActionURL   *string            `db:"action_url" json:"action_url,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	ReadAt      *time.Time         `db:"read_at" json:"read_at,omitempty"`
}

// NotificationDraft is a generated alert that has not been stored.
type NotificationDraft struct {
	RecipientID string           `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ActionURL   *string          `json:"action_url,omitempty"`
	SubjectID   string           `json:"subject_id,omitempty"`
	CourseID    string           `json:"course_id,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// NotificationFilter scopes inbox listings.
type NotificationFilter struct {
	RecipientID string
	Status      *NotificationStatus
	Type        *NotificationType
	Page        int
	PageSize    int
}
