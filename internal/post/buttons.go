package post

import (
	"encoding/json"
	"strings"

	"schedbot/internal/transport"
)

// Buttons is the normalized button list of a post.
//
// Stored forms vary: a list of {"text","url"} objects or a list of
// positional [text, url] pairs. Entries missing either field are dropped.
type Buttons []transport.Button

func (b *Buttons) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not a list: no buttons.
		*b = nil
		return nil
	}
	out := make(Buttons, 0, len(raw))
	for _, item := range raw {
		if btn, ok := decodeButton(item); ok {
			out = append(out, btn)
		}
	}
	*b = out
	return nil
}

func decodeButton(item json.RawMessage) (transport.Button, bool) {
	var obj struct {
		Text string `json:"text"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		return complete(obj.Text, obj.URL)
	}
	var pair []any
	if err := json.Unmarshal(item, &pair); err == nil && len(pair) >= 2 {
		text, _ := pair[0].(string)
		url, _ := pair[1].(string)
		return complete(text, url)
	}
	return transport.Button{}, false
}

func complete(text, url string) (transport.Button, bool) {
	text, url = strings.TrimSpace(text), strings.TrimSpace(url)
	if text == "" || url == "" {
		return transport.Button{}, false
	}
	return transport.Button{Text: text, URL: url}, true
}

// NormalizeButtons converts loosely typed values (decoded YAML, driver JSON)
// into Buttons using the same rules as UnmarshalJSON.
func NormalizeButtons(v any) Buttons {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make(Buttons, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case map[string]any:
			text, _ := x["text"].(string)
			url, _ := x["url"].(string)
			if btn, ok := complete(text, url); ok {
				out = append(out, btn)
			}
		case []any:
			if len(x) < 2 {
				continue
			}
			text, _ := x[0].(string)
			url, _ := x[1].(string)
			if btn, ok := complete(text, url); ok {
				out = append(out, btn)
			}
		}
	}
	return out
}

// Keyboard returns the buttons as transport buttons, nil when empty.
func (b Buttons) Keyboard() []transport.Button {
	if len(b) == 0 {
		return nil
	}
	return append([]transport.Button(nil), b...)
}
