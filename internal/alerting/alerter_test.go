// internal/alerting/alerter_test.go
package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ace-pipeline/internal/common/config"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/ledger"
	"ace-pipeline/internal/models"
)

type fakeTopic struct {
	calls    int
	topicARN string
	subject  string
	message  string
	err      error
}

func (f *fakeTopic) PublishAlert(ctx context.Context, topicARN, subject, message string) error {
	f.calls++
	f.topicARN = topicARN
	f.subject = subject
	f.message = message
	return f.err
}

type fakeEmail struct {
	calls int
	to    []string
	err   error
}

func (f *fakeEmail) SendPlainEmail(ctx context.Context, from string, to []string, subject, body string) error {
	f.calls++
	f.to = to
	return f.err
}

func deadLetterEvent() (*models.TaskOutcome, ledger.Entry) {
	outcome := &models.TaskOutcome{
		TaskID:       "t-1",
		LearnerID:    "learner-1",
		AssignmentID: "assignment-1",
		State:        models.StateDeadLettered,
		Failure:      &models.FailureReason{Code: "RETRY_BUDGET_EXHAUSTED"},
		Attempts:     5,
		RecordedAt:   time.Now().UTC(),
	}
	entry := ledger.Entry{
		TaskID:     "t-1",
		Attempt:    5,
		Code:       "RETRY_BUDGET_EXHAUSTED",
		Message:    "Retry budget exhausted",
		Terminal:   true,
		RecordedAt: outcome.RecordedAt,
	}
	return outcome, entry
}

func alertsConfig(snsEnabled, emailEnabled bool) config.AlertsConfig {
	var cfg config.AlertsConfig
	cfg.AWSRegion = "eu-west-1"
	cfg.SNS.Enabled = snsEnabled
	cfg.SNS.TopicARN = "arn:aws:sns:eu-west-1:123456789:pipeline-alerts"
	cfg.Email.Enabled = emailEnabled
	cfg.Email.FromEmail = "pipeline@example.com"
	cfg.Email.To = []string{"ops@example.com"}
	return cfg
}

func TestAlerter_NotifyDeadLetter_AllChannels(t *testing.T) {
	topic := &fakeTopic{}
	email := &fakeEmail{}
	a := New(alertsConfig(true, true), topic, email, logger.NewTestLogger(t))

	outcome, entry := deadLetterEvent()
	a.NotifyDeadLetter(context.Background(), outcome, entry)

	assert.Equal(t, 1, topic.calls)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123456789:pipeline-alerts", topic.topicARN)
	assert.Contains(t, topic.subject, "t-1")
	assert.Contains(t, topic.message, "RETRY_BUDGET_EXHAUSTED")
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, []string{"ops@example.com"}, email.to)
}

func TestAlerter_NotifyDeadLetter_DisabledChannelsStaySilent(t *testing.T) {
	topic := &fakeTopic{}
	email := &fakeEmail{}
	a := New(alertsConfig(false, false), topic, email, logger.NewTestLogger(t))

	outcome, entry := deadLetterEvent()
	a.NotifyDeadLetter(context.Background(), outcome, entry)

	assert.Zero(t, topic.calls)
	assert.Zero(t, email.calls)
}

func TestAlerter_NotifyDeadLetter_PublishErrorIsSwallowed(t *testing.T) {
	topic := &fakeTopic{err: assert.AnError}
	a := New(alertsConfig(true, false), topic, nil, logger.NewTestLogger(t))

	outcome, entry := deadLetterEvent()
	// must not panic or propagate
	a.NotifyDeadLetter(context.Background(), outcome, entry)

	assert.Equal(t, 1, topic.calls)
}
