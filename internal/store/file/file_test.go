package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const fixture = `[
  {
    "id": "r1",
    "user_id": "u1",
    "name": "Alice",
    "answers": {
      "gender": "Female",
      "religious_importance": "Very important",
      "affection_style": ["Words of affirmation", "Gift giving"]
    },
    "is_complete": false,
    "created_at": "2024-05-01T10:00:00Z",
    "updated_at": "2024-05-02T10:00:00Z"
  },
  {
    "id": "",
    "answers": {},
    "is_complete": true
  },
  {
    "id": "r3",
    "lead_id": "l3",
    "answers": {"favourite_color": "Blue"},
    "is_complete": false
  },
  {
    "id": "r4",
    "lead_id": "l4",
    "email": "bob@example.com",
    "answers": {"religious_importance": 1, "gender": null},
    "is_complete": false
  }
]`

func writeFixture(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "responses.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResponses(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	s, err := New(writeFixture(t, fixture), catalog.Default(), zap.New(core))
	require.NoError(t, err)

	responses, err := s.Responses(context.Background())
	require.NoError(t, err)
	require.Len(t, responses, 2)

	alice := responses[0]
	assert.Equal(t, "r1", alice.ID)
	assert.Equal(t, questionnaire.UserRef("u1"), alice.Subject)
	assert.Equal(t, "Alice", alice.Identity.Name)
	assert.Equal(t, time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC), alice.UpdatedAt.UTC())

	religion, ok := alice.Answer("religious_importance")
	require.True(t, ok)
	idx, ok := religion.Index()
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	affection, ok := alice.Answer("affection_style")
	require.True(t, ok)
	assert.Equal(t, []string{"Words of affirmation", "Gift giving"}, affection.Choices())

	bob := responses[1]
	assert.Equal(t, questionnaire.LeadRef("l4"), bob.Subject)
	_, ok = bob.Answer("gender")
	assert.False(t, ok, "null answers are unanswered")

	skipped := observed.FilterMessage("skipping response record").All()
	require.Len(t, skipped, 2)
	assert.EqualValues(t, 1, skipped[0].ContextMap()["index"])
	assert.EqualValues(t, 2, skipped[1].ContextMap()["index"])
}

func TestResponsesEmptyFile(t *testing.T) {
	s, err := New(writeFixture(t, ""), catalog.Default(), nil)
	require.NoError(t, err)

	responses, err := s.Responses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestResponsesErrors(t *testing.T) {
	_, err := New("", catalog.Default(), nil)
	require.Error(t, err)

	s, err := New(filepath.Join(t.TempDir(), "missing.json"), catalog.Default(), nil)
	require.NoError(t, err)
	_, err = s.Responses(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	s, err = New(writeFixture(t, `{"id": "not an array"}`), catalog.Default(), nil)
	require.NoError(t, err)
	_, err = s.Responses(context.Background())
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	completed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := []questionnaire.Response{
		{
			ID:       "r1",
			Subject:  questionnaire.UserRef("u1"),
			Identity: questionnaire.Identity{Name: "Alice", Email: "alice@example.com"},
			Answers: map[string]questionnaire.Answer{
				"gender":               questionnaire.NewChoice("Female"),
				"religious_importance": questionnaire.NewIndex(2),
				"affection_style":      questionnaire.NewChoices("Acts of service"),
			},
			IsComplete:  true,
			CreatedAt:   completed.Add(-time.Hour),
			UpdatedAt:   completed,
			CompletedAt: &completed,
		},
	}

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Write(path, in))

	s, err := New(path, catalog.Default(), nil)
	require.NoError(t, err)
	out, err := s.Responses(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, "r1", got.ID)
	assert.True(t, got.IsComplete)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))
	for id, want := range in[0].Answers {
		a, ok := got.Answer(id)
		require.True(t, ok, id)
		assert.True(t, want.Equal(a), "answer %s: expected %v, got %v", id, want, a)
	}
}
