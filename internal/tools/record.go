package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai/jsonschema"

	"profile-assistant/internal/domain"
)

const (
	RecordUserDetails     = "record_user_details"
	RecordUnknownQuestion = "record_unknown_question"

	defaultName  = "Name not provided"
	defaultNotes = "not provided"
)

// Notifier delivers an operator notification. Implementations must not fail.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Recorder persists a tool side effect.
type Recorder interface {
	SaveRecord(ctx context.Context, rec domain.Record) error
}

// RecordFactory builds storable records; repository.NewLeadRecord and
// repository.NewQuestionRecord satisfy it.
type RecordFactory struct {
	Lead     func(email, name, notes string) domain.Record
	Question func(question string) domain.Record
}

func recordedOK() map[string]string {
	return map[string]string{"recorded": "ok"}
}

// Recording builds the two recording tools. recorder may be nil, in which case
// only the notification is sent.
type Recording struct {
	notifier Notifier
	recorder Recorder
	records  RecordFactory
	logger   *slog.Logger
}

func NewRecording(n Notifier, rec Recorder, records RecordFactory, logger *slog.Logger) (*Recording, error) {
	if n == nil {
		return nil, fmt.Errorf("tools: notifier must not be nil")
	}
	if rec != nil && (records.Lead == nil || records.Question == nil) {
		return nil, fmt.Errorf("tools: record factory is required with a recorder")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recording{notifier: n, recorder: rec, records: records, logger: logger}, nil
}

// Tools returns the recording tools in the order they are advertised.
func (r *Recording) Tools() []Tool {
	return []Tool{
		{
			Descriptor: domain.ToolDescriptor{
				Name:        RecordUserDetails,
				Description: "Record user contact details",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"email": {Type: jsonschema.String, Description: "The email address of the user"},
						"name":  {Type: jsonschema.String, Description: "The user's name, if they provided it"},
						"notes": {Type: jsonschema.String, Description: "Any additional context worth recording"},
					},
					Required: []string{"email"},
				},
			},
			Handler: r.recordUserDetails,
		},
		{
			Descriptor: domain.ToolDescriptor{
				Name:        RecordUnknownQuestion,
				Description: "Record unknown questions",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"question": {Type: jsonschema.String, Description: "The question that could not be answered"},
					},
					Required: []string{"question"},
				},
			},
			Handler: r.recordUnknownQuestion,
		},
	}
}

type userDetailsArgs struct {
	Email string  `json:"email"`
	Name  *string `json:"name"`
	Notes *string `json:"notes"`
}

func (r *Recording) recordUserDetails(ctx context.Context, raw json.RawMessage) (any, error) {
	var args userDetailsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", RecordUserDetails, err)
	}
	name, notes := defaultName, defaultNotes
	if args.Name != nil {
		name = *args.Name
	}
	if args.Notes != nil {
		notes = *args.Notes
	}

	r.notifier.Notify(ctx, fmt.Sprintf("Recording %s with email %s and notes %s", name, args.Email, notes))
	if r.recorder != nil {
		r.save(ctx, r.records.Lead(args.Email, name, notes))
	}
	return recordedOK(), nil
}

type unknownQuestionArgs struct {
	Question string `json:"question"`
}

func (r *Recording) recordUnknownQuestion(ctx context.Context, raw json.RawMessage) (any, error) {
	var args unknownQuestionArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", RecordUnknownQuestion, err)
	}

	r.notifier.Notify(ctx, fmt.Sprintf("Recording unknown question: %s", args.Question))
	if r.recorder != nil {
		r.save(ctx, r.records.Question(args.Question))
	}
	return recordedOK(), nil
}

// save is best effort: the notification already went out, so a store failure
// is logged and the tool still reports success.
func (r *Recording) save(ctx context.Context, rec domain.Record) {
	if err := r.recorder.SaveRecord(ctx, rec); err != nil {
		r.logger.Warn("failed to persist tool record", "kind", rec.Kind, "err", err)
	}
}
