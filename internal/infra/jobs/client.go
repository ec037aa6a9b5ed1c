package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/tenantaudit/api/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScanTenantApps enqueues a tenant app scan job.
func (c *Client) EnqueueScanTenantApps(ctx context.Context, payload ScanTenantAppsPayload) error {
	task, err := NewScanTenantAppsTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue app scan",
			"run_id", payload.RunID,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("app scan queued",
		"task_id", info.ID,
		"run_id", payload.RunID,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueReconcileOneDrive enqueues a OneDrive reconciliation job.
func (c *Client) EnqueueReconcileOneDrive(ctx context.Context, payload ReconcileOneDrivePayload) error {
	task, err := NewReconcileOneDriveTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue reconciliation",
			"run_id", payload.RunID,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("reconciliation queued",
		"task_id", info.ID,
		"run_id", payload.RunID,
		"queue", info.Queue,
	)
	return nil
}
