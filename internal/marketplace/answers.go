package marketplace

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/dyluth/tally/pkg/crowd"
)

// questionFormAnswers mirrors the QuestionFormAnswers document attached to
// each submitted assignment.
type questionFormAnswers struct {
	XMLName xml.Name      `xml:"QuestionFormAnswers"`
	Answers []answerEntry `xml:"Answer"`
}

type answerEntry struct {
	QuestionIdentifier  string   `xml:"QuestionIdentifier"`
	FreeText            *string  `xml:"FreeText"`
	SelectionIdentifier []string `xml:"SelectionIdentifier"`
	OtherSelectionText  *string  `xml:"OtherSelectionText"`
	UploadedFileKey     *string  `xml:"UploadedFileKey"`
}

// fields returns the submitted values for one answer in document order.
func (a answerEntry) fields() []string {
	var out []string
	if a.FreeText != nil {
		out = append(out, *a.FreeText)
	}
	out = append(out, a.SelectionIdentifier...)
	if a.OtherSelectionText != nil {
		out = append(out, *a.OtherSelectionText)
	}
	if a.UploadedFileKey != nil {
		out = append(out, *a.UploadedFileKey)
	}
	return out
}

// ParseAnswers decodes a QuestionFormAnswers document into one answer block.
// An empty document yields an empty block.
func ParseAnswers(doc string) ([]crowd.QuestionAnswer, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, nil
	}

	var parsed questionFormAnswers
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse assignment answers: %w", err)
	}

	block := make([]crowd.QuestionAnswer, 0, len(parsed.Answers))
	for _, a := range parsed.Answers {
		if a.QuestionIdentifier == "" {
			return nil, fmt.Errorf("answer without question identifier")
		}
		block = append(block, crowd.QuestionAnswer{
			QuestionID: a.QuestionIdentifier,
			Fields:     a.fields(),
		})
	}
	return block, nil
}
