package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"SpotFinder/internal/domain"
)

func buildPrompt(batch []domain.Candidate) string {
	var b strings.Builder
	b.WriteString("You rate places as remote-work spots. For each place below, estimate:\n")
	b.WriteString("- wifi: integer 1-5 for connectivity quality\n")
	b.WriteString("- noise: one of \"Low\", \"Medium\", \"High\"\n")
	b.WriteString("- plugs: true if power outlets are usually available, else false\n")
	b.WriteString("- tip: one short sentence of practical advice for working there\n\n")
	b.WriteString("Places:\n")
	for i, c := range batch {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Description())
	}
	b.WriteString("\nRespond with only a JSON array, one object per place, in this shape:\n")
	b.WriteString(`[{"name": "<place name>", "wifi": 4, "noise": "Low", "plugs": true, "tip": "..."}]`)
	return b.String()
}

type placeAttributes struct {
	Name  string   `json:"name"`
	Wifi  flexInt  `json:"wifi"`
	Noise string   `json:"noise"`
	Plugs flexBool `json:"plugs"`
	Tip   string   `json:"tip"`
}

func (p placeAttributes) toResult() domain.EnrichmentResult {
	return domain.EnrichmentResult{
		Wifi:       int(p.Wifi),
		Noise:      p.Noise,
		HasOutlets: bool(p.Plugs),
		Tip:        sanitizeTip(p.Tip),
	}.Normalize()
}

// parseAttributes extracts the JSON array from the model output, tolerating code fences and prose.
// Each '[' is tried in turn so brackets in the surrounding prose do not hide the array.
func parseAttributes(content string) ([]placeAttributes, error) {
	err := errors.New("no JSON array in model output")
	for offset := 0; offset < len(content); {
		i := strings.IndexByte(content[offset:], '[')
		if i < 0 {
			break
		}
		start := offset + i

		var attrs []placeAttributes
		decErr := json.NewDecoder(strings.NewReader(content[start:])).Decode(&attrs)
		if decErr == nil {
			return attrs, nil
		}
		err = decErr
		offset = start + 1
	}
	return nil, err
}

// matchResults pairs every candidate with the model's answer for it.
// Exact case-insensitive name matches win; a containment match is the fallback because the
// model often echoes "name at address". Unmatched candidates get the default enrichment.
func matchResults(batch []domain.Candidate, attrs []placeAttributes) ([]domain.EnrichmentResult, []bool) {
	results := make([]domain.EnrichmentResult, len(batch))
	matched := make([]bool, len(batch))
	used := make([]bool, len(attrs))

	for i, c := range batch {
		name := strings.TrimSpace(c.Name)
		desc := strings.TrimSpace(c.Description())
		for j, a := range attrs {
			if used[j] {
				continue
			}
			got := strings.TrimSpace(a.Name)
			if strings.EqualFold(got, name) || strings.EqualFold(got, desc) {
				results[i] = a.toResult()
				matched[i] = true
				used[j] = true
				break
			}
		}
	}

	for i, c := range batch {
		if matched[i] {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(c.Name))
		for j, a := range attrs {
			if used[j] {
				continue
			}
			got := strings.ToLower(strings.TrimSpace(a.Name))
			if got == "" || name == "" {
				continue
			}
			if strings.Contains(got, name) || strings.Contains(name, got) {
				results[i] = a.toResult()
				matched[i] = true
				used[j] = true
				break
			}
		}
	}

	for i := range batch {
		if !matched[i] {
			results[i] = domain.DefaultEnrichment()
		}
	}
	return results, matched
}

// sanitizeTip strips HTML and markdown emphasis so tips render as plain text.
func sanitizeTip(tip string) string {
	tip = strings.TrimSpace(tip)
	if strings.ContainsAny(tip, "<>") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(tip)); err == nil {
			tip = doc.Text()
		}
	}
	tip = strings.NewReplacer("**", "", "__", "", "`", "").Replace(tip)
	return strings.Join(strings.Fields(tip), " ")
}

// flexInt accepts 4, 4.0 and "4".
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("wifi %s: %w", data, err)
	}
	*f = flexInt(v + 0.5)
	return nil
}

// flexBool accepts true, "true", "yes" and "1".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	raw := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch raw {
	case "true", "yes", "1", "y":
		*f = true
	case "false", "no", "0", "n", "null", "":
		*f = false
	default:
		return fmt.Errorf("plugs %s: not a boolean", data)
	}
	return nil
}
