// internal/ingress/zeebe.go
package ingress

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/coordinator"
	"ace-pipeline/internal/models"
)

// ZeebeIngress bridges a Zeebe broker into the pipeline. Each job carries one
// canonical task in its variables; the job completes as soon as the task is
// accepted onto the queue. Evaluation results flow through the normal outcome
// path, not back through the broker.
type ZeebeIngress struct {
	client zbc.Client
	worker worker.JobWorker
	queue  coordinator.TaskQueue
	logger logger.Logger
}

// jobVariables is the shape of the task embedded in the Zeebe job.
type jobVariables struct {
	Task models.Task `json:"task"`
}

func NewZeebeIngress(brokerAddress, taskType string, maxJobsActive int, queue coordinator.TaskQueue, log logger.Logger) (*ZeebeIngress, error) {
	client, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         brokerAddress,
		UsePlaintextConnection: true,
	})
	if err != nil {
		return nil, err
	}

	z := &ZeebeIngress{
		client: client,
		queue:  queue,
		logger: log.WithFields(map[string]interface{}{"taskType": taskType}),
	}

	z.worker = client.NewJobWorker().
		JobType(taskType).
		Handler(z.handleJob).
		MaxJobsActive(maxJobsActive).
		Open()

	log.Info("zeebe ingress started", map[string]interface{}{
		"broker":   brokerAddress,
		"taskType": taskType,
	})
	return z, nil
}

func (z *ZeebeIngress) handleJob(client worker.JobClient, job entities.Job) {
	var vars jobVariables
	if err := json.Unmarshal([]byte(job.Variables), &vars); err != nil {
		z.failJob(client, job, "PARSE_ERROR", "decode job variables: "+err.Error())
		return
	}
	if err := vars.Task.Validate(); err != nil {
		z.failJob(client, job, "SCHEMA_ERROR", err.Error())
		return
	}

	ctx := context.Background()
	if err := z.queue.Enqueue(ctx, &vars.Task); err != nil {
		z.logger.WithError(err).Error("enqueue from zeebe job failed", map[string]interface{}{
			"jobKey": job.Key,
			"taskId": vars.Task.TaskID,
		})
		// leave retries to the broker
		_, _ = client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(job.Retries - 1).
			ErrorMessage(err.Error()).
			Send(ctx)
		return
	}

	if _, err := client.NewCompleteJobCommand().JobKey(job.Key).Send(ctx); err != nil {
		z.logger.WithError(err).Error("complete job failed", map[string]interface{}{
			"jobKey": job.Key,
		})
		return
	}

	z.logger.Info("task accepted from zeebe", map[string]interface{}{
		"jobKey": job.Key,
		"taskId": vars.Task.TaskID,
		"kind":   string(vars.Task.Kind),
	})
}

func (z *ZeebeIngress) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	z.logger.Error("zeebe job rejected", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		z.logger.WithError(err).Error("throw error failed", nil)
	}
}

// Close stops the job worker and the broker connection.
func (z *ZeebeIngress) Close() {
	if z.worker != nil {
		z.worker.Close()
	}
	if z.client != nil {
		_ = z.client.Close()
	}
}
