package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"ledgerqa/internal/facts"
	"ledgerqa/internal/llm"
)

type fakeModels struct {
	text   string
	err    error
	model  string
	prompt string
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(f.text, genai.RoleModel),
		}},
	}, nil
}

func TestCompose(t *testing.T) {
	models := &fakeModels{text: "```\nРасходы за февраль: 2 500 ₽.\n```"}
	c := newComposer(models, "", time.Second)

	answer, err := c.Compose(context.Background(), llm.ComposeRequest{Question: "Расходы за февраль?", Bundle: &facts.Bundle{}})
	require.NoError(t, err)
	assert.Equal(t, "Расходы за февраль: 2 500 ₽.", answer)
	assert.Equal(t, DefaultModelName, models.model)
	assert.Contains(t, models.prompt, "Расходы за февраль?")
}

func TestCompose_Errors(t *testing.T) {
	c := newComposer(&fakeModels{err: errors.New("quota exceeded")}, "m", 0)
	_, err := c.Compose(context.Background(), llm.ComposeRequest{Bundle: &facts.Bundle{}})
	assert.ErrorContains(t, err, "quota exceeded")

	c = newComposer(&fakeModels{text: "   "}, "m", 0)
	_, err = c.Compose(context.Background(), llm.ComposeRequest{Bundle: &facts.Bundle{}})
	assert.ErrorIs(t, err, llm.ErrEmptyAnswer)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), "", "", time.Second)
	assert.Error(t, err)
}
