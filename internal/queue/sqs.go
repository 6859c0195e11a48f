package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"media-pipeline/internal/logging"
)

// SQS defaults.
const (
	DefaultWaitTimeSeconds   = 20
	DefaultVisibilityTimeout = 960
	maxVisibilityTimeout     = 43200
	maxReceiveBackoff        = 30 * time.Second
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSConfig configures an SQSQueue.
type SQSConfig struct {
	QueueURL string
	// WaitTimeSeconds is the long-poll duration.
	WaitTimeSeconds int32
	// VisibilityTimeout is the initial lease in seconds. Running jobs
	// renew it at half this interval.
	VisibilityTimeout int32
	Options
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
// A non-empty endpoint overrides the service endpoint, e.g. for LocalStack.
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// SQSQueue is a Queue backed by Amazon SQS.
type SQSQueue struct {
	client SQSAPI
	cfg    SQSConfig
	hooks  hooks

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSQSQueue creates an SQSQueue using client.
func NewSQSQueue(client SQSAPI, cfg SQSConfig) *SQSQueue {
	if cfg.WaitTimeSeconds <= 0 {
		cfg.WaitTimeSeconds = DefaultWaitTimeSeconds
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = DefaultVisibilityTimeout
	}
	return &SQSQueue{client: client, cfg: cfg, hooks: cfg.hooks()}
}

// Enqueue sends job as a JSON message.
func (q *SQSQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return Permanent(err)
	}
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.Key(), err)
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.cfg.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"JobKey":  {DataType: aws.String("String"), StringValue: aws.String(job.Key())},
			"JobKind": {DataType: aws.String("String"), StringValue: aws.String(string(job.Kind))},
		},
	}
	// FIFO queues drop sends with the same deduplication id for five
	// minutes; jobs of one video share a group.
	if isFIFO(q.cfg.QueueURL) {
		in.MessageGroupId = aws.String(strconv.FormatInt(job.VideoID, 10))
		in.MessageDeduplicationId = aws.String(job.Digest())
	}
	_, err = q.client.SendMessage(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to send job %s: %w", job.Key(), err)
	}
	logging.Debug("sent job %s to SQS", job)
	return nil
}

// Start begins long-polling in the background.
func (q *SQSQueue) Start(ctx context.Context, h Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.started {
		return ErrStarted
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.wg.Add(1)
	go q.receiveLoop(runCtx, h)
	logging.Info("SQS queue started with %d workers on %s", q.cfg.workers(), q.cfg.QueueURL)
	return nil
}

func (q *SQSQueue) receiveLoop(ctx context.Context, h Handler) {
	defer q.wg.Done()

	sem := make(chan struct{}, q.cfg.workers())
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.cfg.QueueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     q.cfg.WaitTimeSeconds,
			VisibilityTimeout:   q.cfg.VisibilityTimeout,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return
			}
			logging.Error("SQS receive failed: %v", err)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < maxReceiveBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if len(out.Messages) == 0 {
			<-sem
			continue
		}

		q.wg.Add(1)
		go func(m types.Message) {
			defer q.wg.Done()
			defer func() { <-sem }()
			q.handleMessage(ctx, h, m)
		}(out.Messages[0])
	}
}

func (q *SQSQueue) handleMessage(ctx context.Context, h Handler, m types.Message) {
	// Acknowledgements must go out even while shutting down.
	ackCtx := context.WithoutCancel(ctx)

	var job Job
	if m.Body == nil || json.Unmarshal([]byte(*m.Body), &job) != nil || job.Validate() != nil {
		logging.Error("discarding invalid job message %s", aws.ToString(m.MessageId))
		q.deleteMessage(ackCtx, m.ReceiptHandle)
		return
	}
	if n := receiveCount(m); n > job.Attempt {
		job.Attempt = n
	}

	stop := q.keepAlive(ctx, m.ReceiptHandle)
	res := q.hooks.attempt(ctx, h, job)
	stop()

	switch res.Outcome {
	case OutcomeSuccess, OutcomeDead:
		q.deleteMessage(ackCtx, m.ReceiptHandle)
	case OutcomeRetry:
		q.changeVisibility(ackCtx, m.ReceiptHandle, res.RetryIn)
	}
}

// keepAlive renews the message lease at half the visibility timeout until
// the returned func is called.
func (q *SQSQueue) keepAlive(ctx context.Context, receipt *string) func() {
	interval := time.Duration(q.cfg.VisibilityTimeout) * time.Second / 2
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.changeVisibility(ctx, receipt, time.Duration(q.cfg.VisibilityTimeout)*time.Second)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (q *SQSQueue) deleteMessage(ctx context.Context, receipt *string) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.QueueURL),
		ReceiptHandle: receipt,
	})
	if err != nil {
		logging.Error("failed to delete SQS message: %v", err)
	}
}

func (q *SQSQueue) changeVisibility(ctx context.Context, receipt *string, d time.Duration) {
	secs := int32(d / time.Second)
	if secs > maxVisibilityTimeout {
		secs = maxVisibilityTimeout
	}
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.cfg.QueueURL),
		ReceiptHandle:     receipt,
		VisibilityTimeout: secs,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("failed to change SQS message visibility: %v", err)
	}
}

// Close stops receiving and waits for running handlers.
func (q *SQSQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	return nil
}

func isFIFO(queueURL string) bool {
	return strings.HasSuffix(queueURL, ".fifo")
}

func receiveCount(m types.Message) int {
	v, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
