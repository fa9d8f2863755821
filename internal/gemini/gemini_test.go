package gemini

import (
	"context"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/generative-ai-go/genai"
	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/scanhelper/scanhelper/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(role providers.Role, s string) providers.Message {
	return providers.Message{Role: role, Parts: []providers.Part{providers.TextPart(s)}}
}

func TestStream_MissingCredential(t *testing.T) {
	_, err := New("").Stream(context.Background(), providers.Request{
		Model:    "gemini-1.5-flash",
		Messages: []providers.Message{text(providers.RoleUser, "hi")},
	})
	assert.ErrorIs(t, err, providers.ErrMissingCredential)
}

func TestSplitConversation(t *testing.T) {
	img, err := images.Encode(imaging.New(2, 2, color.White))
	require.NoError(t, err)

	system, history, last, err := splitConversation([]providers.Message{
		text(providers.RoleSystem, "tutor"),
		text(providers.RoleUser, "q1"),
		text(providers.RoleAssistant, "a1"),
		{Role: providers.RoleUser, Parts: []providers.Part{providers.TextPart("q2"), providers.ImagePart(img)}},
	})
	require.NoError(t, err)

	require.NotNil(t, system)
	assert.Equal(t, []genai.Part{genai.Text("tutor")}, system.Parts)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	require.Len(t, last, 2)
	assert.Equal(t, genai.Text("q2"), last[0])
	blob, ok := last[1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", blob.MIMEType)
}

func TestSplitConversation_MustEndWithUser(t *testing.T) {
	_, _, _, err := splitConversation([]providers.Message{
		text(providers.RoleUser, "q"),
		text(providers.RoleAssistant, "a"),
	})
	assert.ErrorIs(t, err, providers.ErrRequestBuild)

	_, _, _, err = splitConversation([]providers.Message{text(providers.RoleSystem, "only")})
	assert.ErrorIs(t, err, providers.ErrRequestBuild)
}

func TestResponseText(t *testing.T) {
	assert.Nil(t, responseText(nil))
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Blob{}, genai.Text("b")}},
	}}}
	assert.Equal(t, []string{"a", "b"}, responseText(resp))
}
