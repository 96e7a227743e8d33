package sentiment

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexiconScore(t *testing.T) {
	t.Parallel()
	lex := NewLexicon([]string{"bellissimo"}, nil)
	tests := []struct {
		text string
		want Label
	}{
		{"Absolutely stunning shot!", Positive},
		{"😍😍😍", Positive},
		{"❤️ this", Positive},
		{"Bellissimo", Positive},
		{"worst post ever 👎", Negative},
		{"not good, not great", Negative},
		{"I don't hate it", Positive},
		{"posted at 5pm", Neutral},
		{"", Neutral},
		{"great but sad", Neutral},
	}
	for _, tc := range tests {
		got, err := lex.Score(context.Background(), tc.text)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Label, tc.text)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
}

func TestParseLabel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Positive, ParseLabel("POSITIVE"))
	assert.Equal(t, Negative, ParseLabel(" neg "))
	assert.Equal(t, Neutral, ParseLabel("LABEL_1"))
	assert.Equal(t, Positive, ParseLabel("label_2"))
	assert.Equal(t, Unknown, ParseLabel("mixed"))
}

const endpoint = "https://sentiment.example.test/v1/score"

func newMockedRemote(t *testing.T, token string) (*Remote, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	r, err := NewRemote(RemoteConfig{Endpoint: endpoint, Token: token, Client: &http.Client{Transport: mt}})
	require.NoError(t, err)
	return r, mt
}

func TestRemoteScore(t *testing.T) {
	t.Parallel()
	r, mt := newMockedRemote(t, "secret")
	mt.RegisterResponder(http.MethodPost, endpoint, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer secret" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, "no token"), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"label": "NEGATIVE", "score": 0.91})
	})

	got, err := r.Score(context.Background(), "meh")
	require.NoError(t, err)
	assert.Equal(t, Result{Label: Negative, Confidence: 0.91}, got)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestRemoteScoreErrors(t *testing.T) {
	t.Parallel()
	r, mt := newMockedRemote(t, "")
	mt.RegisterResponder(http.MethodPost, endpoint, httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	_, err := r.Score(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	bad, badMT := newMockedRemote(t, "")
	badMT.RegisterResponder(http.MethodPost, endpoint, httpmock.NewStringResponder(http.StatusOK, "not json"))
	_, err = bad.Score(context.Background(), "hello")
	require.Error(t, err)
}

func TestNewRemoteRequiresEndpoint(t *testing.T) {
	t.Parallel()
	_, err := NewRemote(RemoteConfig{})
	require.Error(t, err)
}
