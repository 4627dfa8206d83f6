package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/jordanhubbard/gauntlet/pkg/config"
)

const (
	dialAttempts = 5
	dialTimeout  = 15 * time.Second
)

// Client wraps the Temporal client with the gauntlet task queue settings
type Client struct {
	temporal client.Client
	config   config.TemporalConfig
	logger   *zap.Logger
}

// New dials Temporal, retrying with exponential backoff (2s, 4s, 8s, 16s).
func New(ctx context.Context, cfg config.TemporalConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("temporal host cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempt := 0
	c, err := backoff.Retry(ctx, func() (client.Client, error) {
		attempt++
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return client.DialContext(dialCtx, client.Options{
			HostPort:  cfg.Host,
			Namespace: cfg.Namespace,
			Logger:    NewLogger(logger),
			ConnectionOptions: client.ConnectionOptions{
				DialOptions: []grpc.DialOption{
					grpc.WithBlock(),
					grpc.FailOnNonTempDialError(false),
				},
			},
		})
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(dialAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("temporal connection failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("in", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client after %d attempts: %w", attempt, err)
	}

	logger.Info("connected to temporal", zap.String("host", cfg.Host), zap.String("namespace", cfg.Namespace))
	return &Client{temporal: c, config: cfg, logger: logger}, nil
}

// Close closes the Temporal client connection
func (c *Client) Close() {
	if c.temporal != nil {
		c.temporal.Close()
	}
}

// GetClient returns the underlying Temporal client
func (c *Client) GetClient() client.Client {
	return c.temporal
}

// GetTaskQueue returns the configured task queue
func (c *Client) GetTaskQueue() string {
	return c.config.TaskQueue
}

// ExecuteWorkflow starts a new workflow execution
func (c *Client) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	return c.temporal.ExecuteWorkflow(ctx, options, workflow, args...)
}

// QueryWorkflow sends a query to a running workflow
func (c *Client) QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error) {
	return c.temporal.QueryWorkflow(ctx, workflowID, runID, queryType, args...)
}

// CancelWorkflow requests cancellation of a workflow execution
func (c *Client) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	return c.temporal.CancelWorkflow(ctx, workflowID, runID)
}

// GetWorkflow returns a handle to an existing workflow
func (c *Client) GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun {
	return c.temporal.GetWorkflow(ctx, workflowID, runID)
}

// Logger adapts zap to Temporal's key/value logger.
type Logger struct {
	s *zap.SugaredLogger
}

// NewLogger wraps l for the Temporal SDK.
func NewLogger(l *zap.Logger) *Logger {
	return &Logger{s: l.Named("temporal").Sugar()}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }

func (l *Logger) Info(msg string, keyvals ...interface{}) { l.s.Infow(msg, keyvals...) }

func (l *Logger) Warn(msg string, keyvals ...interface{}) { l.s.Warnw(msg, keyvals...) }

func (l *Logger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }
