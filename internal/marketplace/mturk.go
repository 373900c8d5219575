package marketplace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/mturk"
	"github.com/aws/aws-sdk-go-v2/service/mturk/types"

	"github.com/dyluth/tally/pkg/crowd"
)

const (
	// SandboxEndpoint is the requester API used for testing.
	SandboxEndpoint = "https://mturk-requester-sandbox.us-east-1.amazonaws.com"

	// MTurkRegion is the only region the requester API is served from.
	MTurkRegion = "us-east-1"

	// localeQualificationID is the system qualification for worker locale.
	localeQualificationID = "00000000000000000071"

	listPageSize = 100
)

// mturkAPI is the subset of the MTurk client used by the adapter.
type mturkAPI interface {
	CreateHIT(ctx context.Context, params *mturk.CreateHITInput, optFns ...func(*mturk.Options)) (*mturk.CreateHITOutput, error)
	UpdateExpirationForHIT(ctx context.Context, params *mturk.UpdateExpirationForHITInput, optFns ...func(*mturk.Options)) (*mturk.UpdateExpirationForHITOutput, error)
	mturk.ListAssignmentsForHITAPIClient
}

// MTurkConfig holds configuration for the Mechanical Turk adapter.
type MTurkConfig struct {
	Sandbox  bool
	Endpoint string // Optional override, takes precedence over Sandbox
}

// MTurk implements Marketplace against Amazon Mechanical Turk.
type MTurk struct {
	client mturkAPI
}

// NewMTurk creates an adapter using the default AWS credential chain.
func NewMTurk(ctx context.Context, cfg MTurkConfig) (*MTurk, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(MTurkRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.Sandbox {
		endpoint = SandboxEndpoint
	}

	client := mturk.NewFromConfig(awsCfg, func(o *mturk.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &MTurk{client: client}, nil
}

// Create posts a HIT for spec whose question is the hosted page.
func (m *MTurk) Create(ctx context.Context, spec *crowd.TaskSpec, question ExternalQuestion) (string, error) {
	questionXML, err := question.XML()
	if err != nil {
		return "", err
	}

	input := &mturk.CreateHITInput{
		Title:                       aws.String(spec.Title),
		Description:                 aws.String(spec.Description),
		Keywords:                    aws.String(strings.Join(spec.Keywords, ", ")),
		Question:                    aws.String(questionXML),
		Reward:                      aws.String(spec.Reward),
		MaxAssignments:              aws.Int32(int32(spec.MaxAssignments)),
		AssignmentDurationInSeconds: aws.Int64(seconds(spec.Duration)),
		LifetimeInSeconds:           aws.Int64(seconds(spec.Lifetime)),
		AutoApprovalDelayInSeconds:  aws.Int64(seconds(spec.ApprovalDelay)),
		RequesterAnnotation:         aws.String(spec.Annotation),
	}
	if spec.USOnly {
		input.QualificationRequirements = []types.QualificationRequirement{usLocaleRequirement()}
	}

	out, err := m.client.CreateHIT(ctx, input)
	if err != nil {
		return "", fmt.Errorf("mturk create HIT failed: %w", err)
	}
	if out.HIT == nil || aws.ToString(out.HIT.HITId) == "" {
		return "", ErrNoExternalID
	}
	return aws.ToString(out.HIT.HITId), nil
}

// Assignments pages through every assignment recorded for a HIT.
func (m *MTurk) Assignments(ctx context.Context, externalID string) ([]crowd.Assignment, error) {
	paginator := mturk.NewListAssignmentsForHITPaginator(m.client, &mturk.ListAssignmentsForHITInput{
		HITId:      aws.String(externalID),
		MaxResults: aws.Int32(listPageSize),
	})

	var assignments []crowd.Assignment
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("mturk list assignments for %s failed: %w", externalID, err)
		}
		for _, a := range page.Assignments {
			converted, err := convertAssignment(a)
			if err != nil {
				return nil, fmt.Errorf("assignment %s: %w", aws.ToString(a.AssignmentId), err)
			}
			assignments = append(assignments, converted)
		}
	}
	return assignments, nil
}

// Expire moves the HIT's expiration into the past so no new worker can accept it.
func (m *MTurk) Expire(ctx context.Context, externalID string) error {
	_, err := m.client.UpdateExpirationForHIT(ctx, &mturk.UpdateExpirationForHITInput{
		HITId:    aws.String(externalID),
		ExpireAt: aws.Time(time.Unix(0, 0)),
	})
	if err != nil {
		return fmt.Errorf("mturk expire HIT %s failed: %w", externalID, err)
	}
	return nil
}

func convertAssignment(a types.Assignment) (crowd.Assignment, error) {
	block, err := ParseAnswers(aws.ToString(a.Answer))
	if err != nil {
		return crowd.Assignment{}, err
	}

	out := crowd.Assignment{
		ID:         aws.ToString(a.AssignmentId),
		WorkerID:   aws.ToString(a.WorkerId),
		AcceptTime: aws.ToTime(a.AcceptTime),
		SubmitTime: aws.ToTime(a.SubmitTime),
	}
	if block != nil {
		out.Answers = [][]crowd.QuestionAnswer{block}
	}
	return out, nil
}

func usLocaleRequirement() types.QualificationRequirement {
	return types.QualificationRequirement{
		QualificationTypeId: aws.String(localeQualificationID),
		Comparator:          types.ComparatorEqualTo,
		LocaleValues:        []types.Locale{{Country: aws.String("US")}},
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
