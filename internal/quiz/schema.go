package quiz

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// questionRecord is one question as the model returns it.
type questionRecord struct {
	QuestionText       string   `json:"questionText" jsonschema:"required"`
	Options            []string `json:"options" jsonschema:"required,minItems=4,maxItems=4"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" jsonschema:"required,minimum=0,maximum=3"`
	Explanation        string   `json:"explanation" jsonschema:"required"`
	AdditionalInfo     string   `json:"additionalInfo" jsonschema:"required"`
	VisualPrompt       string   `json:"visualPrompt" jsonschema:"required,description=English description of an illustrative diagram"`
	Section            string   `json:"section,omitempty"`
	SourceExam         string   `json:"sourceExam,omitempty" jsonschema:"description=Exam name for previous year questions"`
	SourceYear         string   `json:"sourceYear,omitempty" jsonschema:"description=Year the question appeared"`
}

// questionBatch is the response root. Structured output APIs want an object
// at the root, so the list is wrapped.
type questionBatch struct {
	Questions []questionRecord `json:"questions" jsonschema:"required,minItems=1"`
}

var (
	responseSchema    json.RawMessage
	responseValidator *gojsonschema.Schema
)

func init() {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&questionBatch{})
	schema.Version = ""
	schema.ID = ""

	var err error
	responseSchema, err = json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("quiz: marshal response schema: %v", err))
	}
	responseValidator, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(responseSchema))
	if err != nil {
		panic(fmt.Sprintf("quiz: compile response schema: %v", err))
	}
}

// ResponseSchema returns the JSON schema generated questions must match.
func ResponseSchema() json.RawMessage {
	return append(json.RawMessage(nil), responseSchema...)
}

// parseQuestions validates raw model output and decodes it. A bare JSON
// array of records is accepted as well as the wrapped form.
func parseQuestions(raw string) ([]questionRecord, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, fmt.Errorf("empty response")
	}
	if strings.HasPrefix(text, "[") {
		text = `{"questions":` + text + `}`
	}

	result, err := responseValidator.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("response does not match schema: %s", strings.Join(msgs, "; "))
	}

	var batch questionBatch
	if err := json.Unmarshal([]byte(text), &batch); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if len(batch.Questions) == 0 {
		return nil, fmt.Errorf("no questions in response")
	}
	return batch.Questions, nil
}
