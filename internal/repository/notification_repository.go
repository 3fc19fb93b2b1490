package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// NotificationRepository persists inbox notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, recipient_id, type, title, message, status, action_url, created_at, read_at`

const insertNotification = `INSERT INTO notifications (id, recipient_id, type, title, message, status, action_url, created_at, read_at)
        VALUES (:id, :recipient_id, :type, :title, :message, :status, :action_url, :created_at, :read_at)`

func prepareNotification(n *models.Notification, now time.Time) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.Status == "" {
		n.Status = models.NotificationUnread
	}
}

// Create inserts a single notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	prepareNotification(notification, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertNotification, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// CreateBatch inserts notifications in one transaction.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification batch: %w", err)
	}
	now := time.Now().UTC()
	for i := range notifications {
		prepareNotification(&notifications[i], now)
		if _, err := tx.NamedExecContext(ctx, insertNotification, notifications[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert notification batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification batch: %w", err)
	}
	return nil
}

// GetByID returns a notification owned by recipientID.
func (r *NotificationRepository) GetByID(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND recipient_id = $2 LIMIT 1`
	var notification models.Notification
	if err := r.db.GetContext(ctx, &notification, query, id, recipientID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &notification, nil
}

// List returns a page of the recipient's notifications and the total count.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := ` WHERE recipient_id = $1`
	args := []interface{}{filter.RecipientID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	} else {
		where += fmt.Sprintf(" AND status <> '%s'", models.NotificationArchived)
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", size, (page-1)*size)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// UpdateStatus moves a notification to status. The from guard keeps the
// update from racing a concurrent transition.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id, recipientID string, from, to models.NotificationStatus, readAt *time.Time) (bool, error) {
	const query = `UPDATE notifications SET status = $4, read_at = COALESCE(read_at, $5)
        WHERE id = $1 AND recipient_id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, id, recipientID, from, to, readAt)
	if err != nil {
		return false, fmt.Errorf("update notification status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update notification status: %w", err)
	}
	return affected > 0, nil
}

// MarkAllRead flags every unread notification of the recipient as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int64, error) {
	const query = `UPDATE notifications SET status = $2, read_at = $3 WHERE recipient_id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, recipientID, models.NotificationRead, readAt, models.NotificationUnread)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return affected, nil
}

// CountUnread returns the recipient's unread notification count.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND status = $2`
	var total int
	if err := r.db.GetContext(ctx, &total, query, recipientID, models.NotificationUnread); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return total, nil
}
