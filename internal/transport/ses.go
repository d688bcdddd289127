package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
)

// SESTransport sends emails via AWS SES using the SDK v2. One client is
// shared across all sender accounts; the From address comes from the
// account passed to Send.
type SESTransport struct {
	client *sesv2.Client
}

// NewSESTransport creates an SES transport. With empty credentials the
// default AWS credential chain is used (IAM role in deployment).
func NewSESTransport(ctx context.Context, accessKey, secretKey, region string) (*SESTransport, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &SESTransport{client: sesv2.NewFromConfig(cfg)}, nil
}

// Send delivers a single email through AWS SES.
func (t *SESTransport) Send(ctx context.Context, account *domain.EmailAccount, msg Message) error {
	if t.client == nil {
		return &Error{Permanent: true, Reason: "SES client not initialized"}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(account.Email),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.BodyHTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := t.client.SendEmail(ctx, input)
	if err != nil {
		log.Printf("[SES] send to %s failed: %v", logger.RedactEmail(msg.To), err)
		return classifySESError(err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	log.Printf("[SES] sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)
	return nil
}

// classifySESError maps SES API failures onto the transport error taxonomy.
// Address and content rejections are permanent; everything else (throttle,
// connectivity) is transient.
func classifySESError(err error) error {
	var badReq *types.BadRequestException
	var rejected *types.MessageRejected
	var notFound *types.NotFoundException
	switch {
	case errors.As(err, &rejected):
		return &Error{Permanent: true, Reason: "message rejected", Err: err}
	case errors.As(err, &badReq):
		return &Error{Permanent: true, Reason: "bad request", Err: err}
	case errors.As(err, &notFound):
		return &Error{Permanent: true, Reason: "identity not found", Err: err}
	case strings.Contains(err.Error(), "Throttling"):
		return &Error{Permanent: false, Reason: "throttled", Err: err}
	default:
		return &Error{Permanent: false, Reason: "ses error", Err: err}
	}
}
