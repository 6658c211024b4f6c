package assist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignforge/forge/internal/genai"
	"github.com/campaignforge/forge/pkg/schema"
)

// scriptedService answers GenerateText from a queue and records prompts.
type scriptedService struct {
	replies []string
	errs    []error
	prompts []string
}

func (s *scriptedService) GenerateText(_ context.Context, parts []genai.Part) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	s.prompts = append(s.prompts, b.String())

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

func (s *scriptedService) PlanConcepts(context.Context, []genai.Part) ([]schema.Concept, error) {
	return nil, errors.New("not used")
}
func (s *scriptedService) SynthesizeImage(context.Context, []genai.Part) (*schema.Blob, error) {
	return nil, errors.New("not used")
}
func (s *scriptedService) StartVideoJob(context.Context, string, *schema.Blob) (genai.JobHandle, error) {
	return "", errors.New("not used")
}
func (s *scriptedService) PollVideoJob(context.Context, genai.JobHandle) (*genai.JobStatus, error) {
	return nil, errors.New("not used")
}
func (s *scriptedService) FetchVideo(context.Context, string) (*schema.Blob, error) {
	return nil, errors.New("not used")
}

func TestSession_StartsWithGreeting(t *testing.T) {
	s := NewSession(&scriptedService{replies: []string{"ok"}}, nil)
	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, RoleModel, history[0].Role)
	assert.Contains(t, history[0].Text, "brainstorm")
}

func TestSession_SendAppendsBothTurns(t *testing.T) {
	svc := &scriptedService{replies: []string{"Try: macro shot, morning light."}}
	s := NewSession(svc, nil)

	reply, err := s.Send(context.Background(), "prompt ideas for a watch ad?")
	require.NoError(t, err)
	assert.Equal(t, "Try: macro shot, morning light.", reply)

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, RoleUser, history[1].Role)
	assert.Equal(t, RoleModel, history[2].Role)
}

func TestSession_ReplaysFullHistory(t *testing.T) {
	svc := &scriptedService{replies: []string{"first reply", "second reply"}}
	s := NewSession(svc, nil)

	_, err := s.Send(context.Background(), "turn one")
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "turn two")
	require.NoError(t, err)

	require.Len(t, svc.prompts, 2)
	last := svc.prompts[1]
	assert.Contains(t, last, "user: turn one")
	assert.Contains(t, last, "model: first reply")
	assert.Contains(t, last, "user: turn two")
	assert.Contains(t, last, "respond to the last user message")
	assert.Contains(t, last, "creative director and prompt engineer")
}

func TestSession_RejectsBlankMessage(t *testing.T) {
	s := NewSession(&scriptedService{replies: []string{"x"}}, nil)
	_, err := s.Send(context.Background(), "   ")
	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
	assert.Len(t, s.History(), 1)
}

func TestSession_FailedTurnKeepsUserMessage(t *testing.T) {
	svc := &scriptedService{
		replies: []string{"recovered"},
		errs:    []error{schema.NewError(schema.ErrCodeTransport, "service returned 503")},
	}
	s := NewSession(svc, nil)

	_, err := s.Send(context.Background(), "lost turn?")
	require.Error(t, err)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "lost turn?", history[1].Text)
}
