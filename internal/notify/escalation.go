package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// UrgentCaseEscalatedV1 is the queue payload for an escalated urgent case.
type UrgentCaseEscalatedV1 struct {
	CaseID     string    `json:"case_id"`
	PatientID  string    `json:"patient_id,omitempty"`
	Severity   string    `json:"severity"`
	Summary    string    `json:"summary"`
	Transcript string    `json:"transcript"`
	CreatedAt  time.Time `json:"created_at"`
}

const urgentCaseEventType = "urgent_case.escalated.v1"

// SQSEscalationPublisher hands escalated urgent cases to on-call staff
// tooling through an SQS queue.
type SQSEscalationPublisher struct {
	client   sqsAPI
	queueURL string
}

func NewSQSEscalationPublisher(client sqsAPI, queueURL string) *SQSEscalationPublisher {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSEscalationPublisher{client: client, queueURL: queueURL}
}

func (p *SQSEscalationPublisher) PublishUrgentCase(ctx context.Context, c scheduling.UrgentCase) error {
	evt := UrgentCaseEscalatedV1{
		CaseID:     c.ID,
		Severity:   c.Severity,
		Summary:    c.Summary,
		Transcript: c.Transcript,
		CreatedAt:  c.CreatedAt.UTC(),
	}
	if c.PatientID != nil {
		evt.PatientID = *c.PatientID
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal urgent case: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(urgentCaseEventType)},
			"severity":   {DataType: aws.String("String"), StringValue: aws.String(c.Severity)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: send urgent case %s: %w", c.ID, err)
	}
	return nil
}
