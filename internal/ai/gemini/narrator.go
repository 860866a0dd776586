package gemini

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/ai"
	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/logger"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength     = 200
	maxUserInstructionRunes = 500

	defaultTone     = "Friendly"
	defaultLanguage = "English"
	defaultFocus    = "shared values and what the two could enjoy together"
)

// PromptOverrides adjust the template. Every field is optional.
type PromptOverrides struct {
	Tone             string `mapstructure:"tone"`
	Language         string `mapstructure:"language"`
	Focus            string `mapstructure:"focus"`
	UserInstructions string `mapstructure:"user-instructions"`
}

// Narrator implements ai.Narrator with Gemini.
type Narrator struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
	overrides PromptOverrides
}

func NewNarrator(generator contentGenerator, maxLogLength int, l *zap.Logger) *Narrator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Narrator{
		generator: generator,
		logger:    logger.WithFields(l, logger.AIFields(Provider, generator.Model())...),
		maxLogLen: maxLogLength,
	}
}

func (n *Narrator) SetPromptOverrides(o PromptOverrides) {
	n.overrides = o
}

type candidatePayload struct {
	FirstName  string `json:"first_name,omitempty"`
	Location   string `json:"location,omitempty"`
	Profession string `json:"profession,omitempty"`
	Education  string `json:"education,omitempty"`
}

type categoryPayload struct {
	Category string `json:"category"`
	Strong   bool   `json:"strong"`
	Concern  bool   `json:"concern"`
}

type matchPayload struct {
	Score            int               `json:"overall_score"`
	Tier             string            `json:"tier"`
	Candidate        candidatePayload  `json:"candidate"`
	Categories       []categoryPayload `json:"categories"`
	StrongCategories []string          `json:"strong_categories"`
	SharedTraits     []string          `json:"shared_traits"`
	Concerns         []string          `json:"concerns"`
	Summary          string            `json:"summary"`
}

// newMatchPayload keeps contact details out of the prompt.
func newMatchPayload(m discovery.MatchResult) matchPayload {
	p := matchPayload{
		Score: m.Score,
		Tier:  discovery.Tier(m.Score),
		Candidate: candidatePayload{
			Location:   m.Candidate.Location,
			Profession: m.Candidate.Profession,
			Education:  m.Candidate.Education,
		},
		StrongCategories: m.StrongCategories,
		SharedTraits:     m.SharedTraits,
		Concerns:         m.Concerns,
		Summary:          m.Summary,
	}
	if fields := strings.Fields(m.Candidate.Name); len(fields) > 0 {
		p.Candidate.FirstName = fields[0]
	}
	for _, cs := range m.CategoryScores {
		p.Categories = append(p.Categories, categoryPayload{
			Category: cs.Category,
			Strong:   cs.Strong(),
			Concern:  cs.Concern(),
		})
	}
	return p
}

func (n *Narrator) Narrate(ctx context.Context, match discovery.MatchResult) (*ai.Narrative, error) {
	payload, err := json.MarshalIndent(newMatchPayload(match), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal match payload: %w", err)
	}

	system := buildPrompt(n.overrides)
	message := string(payload)
	candidateID := match.Candidate.ResponseID

	n.logger.Debug("gemini generate content request",
		zap.String(logger.FieldCandidateID, candidateID),
		zap.Int("prompt_length", utf8.RuneCountInString(system)+utf8.RuneCountInString(message)),
		zap.String("message_preview", logger.Truncate(message, n.maxLogLen)),
	)

	raw, err := n.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("gemini generate content response",
		zap.String(logger.FieldCandidateID, candidateID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.Truncate(raw, n.maxLogLen)),
	)

	narrative, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	narrative.Raw = raw
	return narrative, nil
}

func buildPrompt(o PromptOverrides) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Tone: {{TONE}}\nLanguage: {{LANGUAGE}}\nFocus: {{FOCUS}}\nUser instructions:\n{{USER_INSTRUCTIONS}}\n\nRespond with JSON {\"narrative\": \"\", \"icebreaker\": \"\"}."
	}

	replacer := strings.NewReplacer(
		"{{TONE}}", orDefault(sanitizeSingleLine(o.Tone), defaultTone),
		"{{LANGUAGE}}", orDefault(sanitizeSingleLine(o.Language), defaultLanguage),
		"{{FOCUS}}", orDefault(sanitizeSingleLine(o.Focus), defaultFocus),
		"{{USER_INSTRUCTIONS}}", userInstructionsBlock(o.UserInstructions),
	)
	return replacer.Replace(template)
}

// sanitizeSingleLine collapses whitespace and turns square brackets into
// parentheses so values cannot open a new prompt section.
func sanitizeSingleLine(s string) string {
	s = strings.NewReplacer("[", "(", "]", ")").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func userInstructionsBlock(s string) string {
	budget := maxUserInstructionRunes
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = sanitizeSingleLine(line)
		if line == "" || budget <= 0 {
			continue
		}
		if runes := []rune(line); len(runes) > budget {
			line = string(runes[:budget])
		}
		budget -= utf8.RuneCountInString(line)
		lines = append(lines, "  - "+line)
	}
	if len(lines) == 0 {
		return "  - none"
	}
	return strings.Join(lines, "\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseResponse(raw string) (*ai.Narrative, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, errors.New("gemini response is empty")
	}

	var data struct {
		Narrative  string `json:"narrative"`
		Icebreaker string `json:"icebreaker"`
	}
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	narrative := strings.TrimSpace(data.Narrative)
	if narrative == "" {
		return nil, errors.New("gemini response has no narrative")
	}

	return &ai.Narrative{
		Text:       narrative,
		Icebreaker: strings.TrimSpace(data.Icebreaker),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
