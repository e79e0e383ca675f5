package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func sampleTurns() []Turn {
	return []Turn{
		{
			Role: RoleUser,
			Parts: []Part{
				{Kind: KindSystemPrompt, Content: "Be brief."},
				{Kind: KindUserPrompt, Content: "Hello"},
			},
			Timestamp: t0,
		},
		NewAssistantTurn("Qwen/Qwen3-235B-A22B", t0.Add(time.Second),
			Part{Kind: KindThinking, Content: "greeting"},
			Part{Kind: KindText, Content: "Hi"},
			Part{Kind: KindText, Content: " there"},
		),
	}
}

func TestDecodeBlankValues(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", `""`, "[]", " [ ] "} {
		turns, err := Decode([]byte(raw))
		require.NoError(t, err, "raw=%q", raw)
		assert.NotNil(t, turns)
		assert.Empty(t, turns)
	}

	turns, err := Decode(nil)
	require.NoError(t, err)
	assert.NotNil(t, turns)
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	turns, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRoundTrip(t *testing.T) {
	in := sampleTurns()
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	assert.True(t, IsPrefix(in, out))
	assert.True(t, IsPrefix(out, in))

	again, err := Encode(out)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestEncodeWireShape(t *testing.T) {
	data, err := Encode([]Turn{NewUserTurn("Hello", t0)})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"role":"user","parts":[{"part_kind":"user-prompt","content":"Hello"}],"timestamp":"2026-01-02T03:04:05Z"}]`,
		string(data))
}

func TestDecodeWithoutTimestamp(t *testing.T) {
	turns, err := Decode([]byte(`[{"role":"user","parts":[{"part_kind":"user-prompt","content":"x"}]}]`))
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Timestamp.IsZero())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{{`,
		"object not array":  `{"role":"user"}`,
		"number":            `42`,
		"unknown role":      `[{"role":"tool","parts":[{"part_kind":"text","content":"x"}]}]`,
		"missing parts":     `[{"role":"user"}]`,
		"empty parts":       `[{"role":"user","parts":[]}]`,
		"unknown part kind": `[{"role":"assistant","parts":[{"part_kind":"tool-call","content":"x"}]}]`,
		"numeric content":   `[{"role":"assistant","parts":[{"part_kind":"text","content":7}]}]`,
		"extra field":       `[{"role":"user","parts":[{"part_kind":"user-prompt","content":"x"}],"extra":1}]`,
		"bad timestamp":     `[{"role":"user","parts":[{"part_kind":"user-prompt","content":"x"}],"timestamp":"yesterday"}]`,
		"text in user turn": `[{"role":"user","parts":[{"part_kind":"text","content":"x"}]}]`,
		"prompt in reply":   `[{"role":"assistant","parts":[{"part_kind":"user-prompt","content":"x"}]}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrHistoryCorrupt)
			assert.ErrorIs(t, Validate([]byte(raw)), ErrHistoryCorrupt)
		})
	}
}

func TestReplyText(t *testing.T) {
	assert.Equal(t, "Hi there", ReplyText(sampleTurns()))
	assert.Equal(t, "", ReplyText(nil))
	assert.Equal(t, "", ReplyText([]Turn{NewUserTurn("only me", t0)}))
}

func TestIsPrefix(t *testing.T) {
	full := sampleTurns()
	assert.True(t, IsPrefix(nil, full))
	assert.True(t, IsPrefix(full[:1], full))
	assert.False(t, IsPrefix(full, full[:1]))

	altered := sampleTurns()
	altered[0].Parts[1].Content = "Goodbye"
	assert.False(t, IsPrefix(altered[:1], full))
}
