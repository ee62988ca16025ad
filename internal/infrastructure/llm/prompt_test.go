package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotFinder/internal/domain"
)

func TestParseAttributesToleratesProse(t *testing.T) {
	t.Parallel()

	attrs, err := parseAttributes("Here you go:\n[{\"name\":\"A\",\"wifi\":2.6,\"noise\":\"Medium\",\"plugs\":false,\"tip\":\"ok\"}]\nEnjoy!")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, flexInt(3), attrs[0].Wifi)
}

func TestParseAttributesSkipsBracketsInProse(t *testing.T) {
	t.Parallel()

	content := "Ratings [1-5] below, see [notes]:\n```json\n[{\"name\":\"Blue Bottle\",\"wifi\":4,\"noise\":\"Low\",\"plugs\":true,\"tip\":\"Great [really] espresso\"}]\n```"
	attrs, err := parseAttributes(content)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, "Blue Bottle", attrs[0].Name)
	assert.Equal(t, flexInt(4), attrs[0].Wifi)
	assert.Equal(t, "Great [really] espresso", attrs[0].Tip)
}

func TestParseAttributesRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := parseAttributes("no array here")
	assert.Error(t, err)

	_, err = parseAttributes(`[{"name": "A", "plugs": "maybe"}]`)
	assert.Error(t, err)
}

func TestMatchResultsPrefersExactNames(t *testing.T) {
	t.Parallel()

	batch := []domain.Candidate{
		{Name: "Library", Address: "1 Main St"},
		{Name: "Main Library", Address: "100 Larkin St"},
	}
	attrs := []placeAttributes{
		{Name: "Main Library", Wifi: 5, Noise: "Low", Tip: "Quiet floor"},
		{Name: "library", Wifi: 2, Noise: "High", Tip: "Busy"},
	}

	results, matched := matchResults(batch, attrs)

	assert.Equal(t, []bool{true, true}, matched)
	assert.Equal(t, 2, results[0].Wifi, "exact match beats the earlier containing name")
	assert.Equal(t, 5, results[1].Wifi)
}

func TestMatchResultsClampsAndDefaults(t *testing.T) {
	t.Parallel()

	batch := []domain.Candidate{{Name: "Cafe One"}, {Name: "Cafe Two"}}
	attrs := []placeAttributes{{Name: "CAFE ONE", Wifi: 9, Noise: "whisper quiet", Tip: ""}}

	results, matched := matchResults(batch, attrs)

	assert.Equal(t, []bool{true, false}, matched)
	assert.Equal(t, 5, results[0].Wifi)
	assert.Equal(t, "whisper quiet", results[0].Noise, "legacy free-form noise is kept")
	assert.Equal(t, domain.DefaultTip, results[0].Tip)
	assert.Equal(t, domain.DefaultEnrichment(), results[1])
}

func TestSanitizeTip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Sit by the window", sanitizeTip("  <p>Sit by the <em>window</em></p> "))
	assert.Equal(t, "Bring headphones", sanitizeTip("**Bring** `headphones`"))
	assert.Equal(t, "plain text", sanitizeTip("plain   text"))
}

func TestBuildPromptListsEveryPlace(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt([]domain.Candidate{
		{Name: "Blue Bottle", Address: "66 Mint Street"},
		{Name: "Dolores Park"},
	})

	assert.Contains(t, prompt, "1. Blue Bottle at 66 Mint Street")
	assert.Contains(t, prompt, "2. Dolores Park\n")
	assert.Contains(t, prompt, `"plugs"`)
}
