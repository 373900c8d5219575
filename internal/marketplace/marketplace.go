// Package marketplace defines the boundary to a human-labor marketplace and
// ships an Amazon Mechanical Turk adapter.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/dyluth/tally/pkg/crowd"
)

// ErrNoExternalID is returned when the marketplace accepted a create request
// but did not hand back an identifier for the new task.
var ErrNoExternalID = errors.New("marketplace returned no task identifier")

// Marketplace is the set of operations the engine needs from a labor market.
// Transient failures are returned as errors; implementations do not retry.
type Marketplace interface {
	// Create posts a task and returns its marketplace identifier.
	Create(ctx context.Context, spec *crowd.TaskSpec, question ExternalQuestion) (string, error)

	// Assignments returns every submission currently recorded for a task.
	Assignments(ctx context.Context, externalID string) ([]crowd.Assignment, error)

	// Expire stops a task from accepting further work.
	Expire(ctx context.Context, externalID string) error
}

// ExternalQuestion points workers at hosted task content.
type ExternalQuestion struct {
	URL         string
	FrameHeight int
}

const externalQuestionSchema = "http://mechanicalturk.amazonaws.com/AWSMechanicalTurkDataSchemas/2006-07-14/ExternalQuestion.xsd"

// XML renders the question in the marketplace's ExternalQuestion document format.
func (q ExternalQuestion) XML() (string, error) {
	if q.URL == "" {
		return "", fmt.Errorf("external question URL cannot be empty")
	}
	height := q.FrameHeight
	if height <= 0 {
		height = crowd.DefaultFrameHeight
	}

	return fmt.Sprintf(`<ExternalQuestion xmlns="%s"><ExternalURL>%s</ExternalURL><FrameHeight>%d</FrameHeight></ExternalQuestion>`,
		externalQuestionSchema, html.EscapeString(q.URL), height), nil
}
