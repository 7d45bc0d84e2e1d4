package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Subject is the subject line of every published report.
const Subject = "IAM Sleuth Bot"

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends reports to a single topic.
type Publisher struct {
	sns      SNSAPI
	topicARN string
}

// NewPublisher creates a publisher for topicARN.
func NewPublisher(api SNSAPI, topicARN string) *Publisher {
	return &Publisher{sns: api, topicARN: topicARN}
}

// TopicARN returns the destination topic.
func (p *Publisher) TopicARN() string { return p.topicARN }

// Publish sends text as one SNS message.
func (p *Publisher) Publish(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("refusing to publish empty message")
	}

	out, err := p.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(text),
		Subject:  aws.String(Subject),
	})
	if err != nil {
		return fmt.Errorf("sns publish %s: %w", p.topicARN, err)
	}

	slog.Info("report published to SNS",
		"topic_arn", p.topicARN,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}
