package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const (
	FieldSubjectID   = "subject_id"
	FieldSubjectKind = "subject_kind"
	FieldResponseID  = "response_id"
	FieldCandidateID = "candidate_id"
	FieldReason      = "reason"
	FieldScore       = "score"
	FieldRunID       = "run_id"

	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger is replaced with a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// SubjectFields describes the person a discovery pass runs for.
func SubjectFields(r questionnaire.Response) []zap.Field {
	return StringFields(
		StringField{Key: FieldResponseID, Value: r.ID},
		StringField{Key: FieldSubjectID, Value: r.Subject.ID()},
		StringField{Key: FieldSubjectKind, Value: r.Subject.Kind()},
	)
}

// AIFields returns standard fields that describe the AI provider and model.
func AIFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}
