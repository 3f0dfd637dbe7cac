// Package alerting notifies operators when a task dead-letters. Alerts are
// best-effort: a failed publish is logged and dropped, never retried, so the
// coordinator's commit path stays untangled from AWS availability.
package alerting

import (
	"context"
	"fmt"

	"ace-pipeline/internal/common/config"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/ledger"
	"ace-pipeline/internal/models"
)

// TopicPublisher is satisfied by the SNS wrapper.
type TopicPublisher interface {
	PublishAlert(ctx context.Context, topicARN, subject, message string) error
}

// EmailSender is satisfied by the SES wrapper.
type EmailSender interface {
	SendPlainEmail(ctx context.Context, from string, to []string, subject, body string) error
}

// Alerter fans a dead-letter event out to the configured channels.
type Alerter struct {
	config config.AlertsConfig
	topic  TopicPublisher
	email  EmailSender
	logger logger.Logger
}

func New(cfg config.AlertsConfig, topic TopicPublisher, email EmailSender, log logger.Logger) *Alerter {
	return &Alerter{
		config: cfg,
		topic:  topic,
		email:  email,
		logger: log,
	}
}

// NotifyDeadLetter implements the coordinator's Notifier contract.
func (a *Alerter) NotifyDeadLetter(ctx context.Context, outcome *models.TaskOutcome, entry ledger.Entry) {
	subject := fmt.Sprintf("[ace-pipeline] task %s dead-lettered (%s)", outcome.TaskID, entry.Code)
	body := fmt.Sprintf(
		"Task %s for learner %s, assignment %s, was dead-lettered after %d attempt(s).\n\nCode: %s\nMessage: %s\nRecorded: %s\n",
		outcome.TaskID, outcome.LearnerID, outcome.AssignmentID,
		outcome.Attempts, entry.Code, entry.Message, entry.RecordedAt.Format("2006-01-02 15:04:05 UTC"),
	)

	if a.config.SNS.Enabled && a.topic != nil {
		if err := a.topic.PublishAlert(ctx, a.config.SNS.TopicARN, subject, body); err != nil {
			a.logger.WithError(err).Warn("sns dead-letter alert failed", map[string]interface{}{
				"taskId": outcome.TaskID,
			})
		}
	}

	if a.config.Email.Enabled && a.email != nil {
		if err := a.email.SendPlainEmail(ctx, a.config.Email.FromEmail, a.config.Email.To, subject, body); err != nil {
			a.logger.WithError(err).Warn("email dead-letter alert failed", map[string]interface{}{
				"taskId": outcome.TaskID,
			})
		}
	}
}
