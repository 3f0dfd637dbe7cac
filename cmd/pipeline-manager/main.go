// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ace-pipeline/internal/aggregator"
	"ace-pipeline/internal/alerting"
	"ace-pipeline/internal/common/aws"
	"ace-pipeline/internal/common/config"
	"ace-pipeline/internal/common/database"
	"ace-pipeline/internal/common/genai"
	"ace-pipeline/internal/common/logger"
	"ace-pipeline/internal/common/observability"
	"ace-pipeline/internal/coordinator"
	"ace-pipeline/internal/evaluators/audio"
	"ace-pipeline/internal/evaluators/mcq"
	"ace-pipeline/internal/evaluators/text"
	"ace-pipeline/internal/ingress"
	"ace-pipeline/internal/ledger"
	"ace-pipeline/internal/models"
	"ace-pipeline/internal/router"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("pipeline-manager")
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis initialization")
	if err != nil {
		zapLog.Fatal("Redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected", zap.String("address", cfg.Database.Redis.Address))

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "PostgreSQL initialization")
	if err != nil {
		zapLog.Fatal("PostgreSQL connection failed", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected", zap.String("host", cfg.Database.Postgres.Host))

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 10, 2*time.Second, zapLog, "Elasticsearch initialization")
	if err != nil {
		zapLog.Fatal("Elasticsearch connection failed", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected")

	// --- Rubrics & Evaluators ---
	rubrics := config.NewRubricTable(cfg.Rubrics)

	scoringClient := genai.NewScoringClient(
		cfg.Evaluators.Scoring.BaseURL,
		cfg.Evaluators.Scoring.APIKey,
		time.Duration(cfg.Evaluators.Scoring.TimeoutMS)*time.Millisecond,
	)
	transcriptionClient := genai.NewTranscriptionClient(
		cfg.Evaluators.Transcription.BaseURL,
		cfg.Evaluators.Transcription.APIKey,
		time.Duration(cfg.Evaluators.Transcription.TimeoutMS)*time.Millisecond,
	)

	rt := router.New(log)
	rt.Register(mcq.NewHandler(mcq.DefaultConfig(), rubrics, log))
	rt.Register(text.NewHandler(text.DefaultConfig(), scoringClient, rubrics, log))
	rt.Register(audio.NewHandler(audio.DefaultConfig(), transcriptionClient, scoringClient, rubrics, log))
	zapLog.Info("evaluators registered", zap.Int("kinds", len(rt.Kinds())))

	// --- Fault Ledger, Outcome Store, Queue ---
	faults := ledger.NewPostgresLedger(pg.DB)
	if _, err := pg.DB.ExecContext(ctx, ledger.Schema); err != nil {
		zapLog.Fatal("fault ledger schema setup failed", zap.Error(err))
	}

	store := coordinator.NewRedisOutcomeStore(redisClient.Client)
	queue := coordinator.NewRedisTaskQueue(redisClient.Client)

	// --- Aggregation ---
	archive := aggregator.NewElasticsearchArchive(esClient.Client, cfg.Aggregation.ReportIndex)
	dimWeights := make(map[models.Dimension]float64, len(cfg.Aggregation.DimensionWeights))
	for dim, w := range cfg.Aggregation.DimensionWeights {
		dimWeights[models.Dimension(dim)] = w
	}
	agg := aggregator.New(aggregator.Thresholds{
		PassingScore:        cfg.Aggregation.PassingScore,
		ExcellenceThreshold: cfg.Aggregation.ExcellenceThreshold,
		DimensionWeights:    dimWeights,
	}, archive, log)
	collector := aggregator.NewCollector(agg, log)

	// --- Coordinator & Worker Pools ---
	coord := coordinator.New(coordinator.Config{
		TimeoutFor:  cfg.Pipeline.Timeout,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BackoffBase: time.Duration(cfg.Pipeline.BackoffBaseMS) * time.Millisecond,
		BackoffCap:  time.Duration(cfg.Pipeline.BackoffCapMS) * time.Millisecond,
	}, rt, store, queue, faults, collector, log).WithObservability(obs)

	if cfg.Alerts.SNS.Enabled || cfg.Alerts.Email.Enabled {
		var topic alerting.TopicPublisher
		var email alerting.EmailSender

		if cfg.Alerts.SNS.Enabled {
			snsClient, err := aws.NewSNSClient(ctx, cfg.Alerts.AWSRegion)
			if err != nil {
				zapLog.Fatal("SNS client initialization failed", zap.Error(err))
			}
			topic = snsClient
		}
		if cfg.Alerts.Email.Enabled {
			sesClient, err := aws.NewSESClient(ctx, cfg.Alerts.AWSRegion)
			if err != nil {
				zapLog.Fatal("SES client initialization failed", zap.Error(err))
			}
			email = sesClient
		}

		coord = coord.WithNotifier(alerting.New(cfg.Alerts, topic, email, log))
		zapLog.Info("dead-letter alerting enabled",
			zap.Bool("sns", cfg.Alerts.SNS.Enabled),
			zap.Bool("email", cfg.Alerts.Email.Enabled),
		)
	}

	interactivePool := coordinator.NewPool(coordinator.LaneInteractive, cfg.Pipeline.InteractiveWorkers, coord, queue, log)
	audioPool := coordinator.NewPool(coordinator.LaneAudio, cfg.Pipeline.AudioWorkers, coord, queue, log)
	interactivePool.Start(ctx)
	audioPool.Start(ctx)
	zapLog.Info("worker pools started",
		zap.Int("interactiveWorkers", cfg.Pipeline.InteractiveWorkers),
		zap.Int("audioWorkers", cfg.Pipeline.AudioWorkers),
	)

	// --- Submission Ingress ---
	submitter := ingress.NewSubmitter(queue, log)

	var zeebeIngress *ingress.ZeebeIngress
	if cfg.Ingress.Zeebe.Enabled {
		zeebeIngress, err = ingress.NewZeebeIngress(
			cfg.Ingress.Zeebe.BrokerAddress,
			cfg.Ingress.Zeebe.TaskType,
			cfg.Ingress.Zeebe.MaxJobsActive,
			queue,
			log,
		)
		if err != nil {
			zapLog.Fatal("Zeebe ingress initialization failed", zap.Error(err))
		}
	}

	// --- Health, Metrics & Submission API ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())

		http.HandleFunc("/v1/submissions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var sub ingress.Submission
			if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
				http.Error(w, "invalid submission body: "+err.Error(), http.StatusBadRequest)
				return
			}
			manifest, err := submitter.Submit(r.Context(), &sub)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if _, err := collector.RegisterManifest(r.Context(), manifest); err != nil {
				log.WithError(err).Error("manifest registration failed", map[string]interface{}{
					"assignmentId": manifest.AssignmentID,
				})
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(manifest)
		})

		http.HandleFunc("/v1/reports", func(w http.ResponseWriter, r *http.Request) {
			assignmentID := r.URL.Query().Get("assignment_id")
			if assignmentID == "" {
				http.Error(w, "assignment_id is required", http.StatusBadRequest)
				return
			}
			report, err := collector.Report(r.Context(), assignmentID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			if report == nil {
				http.Error(w, "assignment withdrawn", http.StatusGone)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(report)
		})

		http.HandleFunc("/v1/withdrawals", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			assignmentID := r.URL.Query().Get("assignment_id")
			if assignmentID == "" {
				http.Error(w, "assignment_id is required", http.StatusBadRequest)
				return
			}
			agg.Withdraw(assignmentID)
			w.WriteHeader(http.StatusNoContent)
		})

		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := http.ListenAndServe(cfg.App.MetricsAddr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping worker pools...")
	cancel()

	if zeebeIngress != nil {
		zeebeIngress.Close()
	}
	interactivePool.Wait()
	audioPool.Wait()

	zapLog.Info("Pipeline manager stopped gracefully")
}
