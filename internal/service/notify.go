package service

import (
	"context"
	"time"

	"storefront/internal/notification"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dispatcher sends best-effort notifications. Nothing it does can fail the caller.
type dispatcher struct {
	notifier   notification.Notifier
	users      repository.UserRepository
	adminEmail string
	logger     *zap.Logger
}

func newDispatcher(notifier notification.Notifier, users repository.UserRepository, adminEmail string, logger *zap.Logger) *dispatcher {
	return &dispatcher{notifier: notifier, users: users, adminEmail: adminEmail, logger: logger}
}

// toUser resolves the account's email and sends msg to it
func (d *dispatcher) toUser(ctx context.Context, userID uuid.UUID, msg notification.Message) {
	if d == nil || d.notifier == nil {
		return
	}

	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		d.failed(msg, err, zap.String("user_id", userID.String()))
		return
	}

	msg.Recipient = user.Email
	d.send(ctx, msg)
}

// toAdmin sends msg to the operator alert address
func (d *dispatcher) toAdmin(ctx context.Context, msg notification.Message) {
	if d == nil || d.notifier == nil {
		return
	}
	if d.adminEmail == "" {
		d.logger.Warn("No admin alert address configured, dropping notification", zap.String("kind", string(msg.Kind)))
		return
	}

	msg.Recipient = d.adminEmail
	d.send(ctx, msg)
}

func (d *dispatcher) send(ctx context.Context, msg notification.Message) {
	msg.CreatedAt = time.Now().UTC()
	if err := d.notifier.Send(ctx, msg); err != nil {
		d.failed(msg, err)
	}
}

func (d *dispatcher) failed(msg notification.Message, err error, fields ...zap.Field) {
	notificationFailuresTotal.Inc()
	d.logger.Warn("Failed to send notification",
		append(fields, zap.String("kind", string(msg.Kind)), zap.Error(err))...,
	)
}
