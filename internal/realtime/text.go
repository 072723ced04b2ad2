package realtime

import (
	"bytes"
	"encoding/json"
	"strings"
)

var textContentTypes = map[string]bool{
	ContentInputText:  true,
	ContentOutputText: true,
	ContentText:       true,
}

var transcriptContentTypes = map[string]bool{
	ContentTranscript:  true,
	ContentInputAudio:  true,
	ContentAudio:       true,
	ContentOutputAudio: true,
}

// NormalizeDelta flattens a delta payload to a string. Strings are returned
// as is, lists are concatenated after normalizing each entry, and objects
// yield their text or transcript field. Anything else is empty.
func NormalizeDelta(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return ""
		}
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(NormalizeDelta(p))
		}
		return b.String()
	case '{':
		var obj struct {
			Text       json.RawMessage `json:"text"`
			Transcript json.RawMessage `json:"transcript"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		if s := NormalizeDelta(obj.Text); s != "" {
			return s
		}
		return NormalizeDelta(obj.Transcript)
	default:
		return ""
	}
}

// ExtractItemText returns the text of an item: the pre-formatted text
// field, then the pre-formatted transcript, then the first textual content
// entry, then the first transcript-bearing content entry.
func ExtractItemText(item *Item) string {
	if item == nil {
		return ""
	}
	if item.Text != "" {
		return item.Text
	}
	if item.Transcript != "" {
		return item.Transcript
	}
	for _, c := range item.Content {
		if textContentTypes[c.Type] && c.Text != "" {
			return c.Text
		}
	}
	for _, c := range item.Content {
		if transcriptContentTypes[c.Type] && c.Transcript != "" {
			return c.Transcript
		}
	}
	return ""
}

// ExtractResponseText applies the item rule to the response itself and then
// to each output item in order, returning the first non-empty result.
func ExtractResponseText(resp *Response) string {
	if resp == nil {
		return ""
	}
	if resp.Text != "" {
		return resp.Text
	}
	if resp.Transcript != "" {
		return resp.Transcript
	}
	for i := range resp.Output {
		if s := ExtractItemText(&resp.Output[i]); s != "" {
			return s
		}
	}
	return ""
}
