// Package queue wraps the SQS transcode job queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/reelworks/vod-pipeline/pkg/models"
)

// Retry policy for transcode jobs. A job that fails MaxAttempts times is not
// requeued; the caller surfaces status=error on the video instead.
const (
	MaxAttempts      = 5
	BaseRetryDelay   = 30 * time.Second
	MaxRetryDelay    = 900 * time.Second // SQS DelaySeconds ceiling
	DefaultSQSWindow = 30 * time.Second
)

// Client enqueues transcode jobs and reports queue depth.
type Client struct {
	sqs      *sqs.Client
	queueURL string
}

// New creates a queue Client from a configured SQS client.
func New(client *sqs.Client, queueURL string) *Client {
	return &Client{
		sqs:      client,
		queueURL: queueURL,
	}
}

// Enqueue submits a transcode job for immediate delivery.
func (c *Client) Enqueue(ctx context.Context, job *models.TranscodeJob) error {
	return c.send(ctx, job, 0)
}

// Requeue resubmits a failed job with exponential backoff, or reports
// ErrRetriesExhausted once the attempt budget is spent.
func (c *Client) Requeue(ctx context.Context, job *models.TranscodeJob) error {
	if job.Attempt+1 >= MaxAttempts {
		return ErrRetriesExhausted
	}
	job.Attempt++
	return c.send(ctx, job, RetryDelay(job.Attempt))
}

// ErrRetriesExhausted reports that a job has used its full attempt budget.
var ErrRetriesExhausted = fmt.Errorf("transcode job retries exhausted after %d attempts", MaxAttempts)

// RetryDelay returns the backoff delay for the given attempt number.
func RetryDelay(attempt int) time.Duration {
	delay := BaseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	if delay > MaxRetryDelay {
		return MaxRetryDelay
	}
	return delay
}

func (c *Client) send(ctx context.Context, job *models.TranscodeJob, delay time.Duration) error {
	if err := job.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal transcode job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultSQSWindow)
	defer cancel()

	_, err = c.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(c.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to queue transcode job: %v", models.ErrProviderUnavailable, err)
	}

	return nil
}

// Depth returns the approximate number of queued jobs.
func (c *Client) Depth(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultSQSWindow)
	defer cancel()

	out, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(c.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get queue attributes: %w", err)
	}

	raw := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	depth, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("unexpected queue depth %q: %w", raw, err)
	}

	return depth, nil
}
