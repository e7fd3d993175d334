package acp

import "encoding/json"

// textStrategy probes one JSON shape an agent might use for reply text.
type textStrategy func(value interface{}) (string, bool)

// textStrategies is the ordered list of extraction attempts; the first match
// wins.
var textStrategies = []textStrategy{
	// result.content[0].text
	func(v interface{}) (string, bool) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		arr, ok := obj["content"].([]interface{})
		if !ok || len(arr) == 0 {
			return "", false
		}
		first, ok := arr[0].(map[string]interface{})
		if !ok {
			return "", false
		}
		text, ok := first["text"].(string)
		return text, ok
	},
	// result.message.content
	func(v interface{}) (string, bool) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		msg, ok := obj["message"].(map[string]interface{})
		if !ok {
			return "", false
		}
		text, ok := msg["content"].(string)
		return text, ok
	},
	// result.text
	func(v interface{}) (string, bool) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		text, ok := obj["text"].(string)
		return text, ok
	},
	// result itself is a string
	func(v interface{}) (string, bool) {
		text, ok := v.(string)
		return text, ok
	},
}

// ResultText probes a call result for reply text. Agents disagree on where
// they put it, so the known shapes are tried in order; the fallback is "no
// text found".
func ResultText(result json.RawMessage) (string, bool) {
	if len(result) == 0 {
		return "", false
	}

	var value interface{}
	if err := json.Unmarshal(result, &value); err != nil {
		return "", false
	}

	for _, strategy := range textStrategies {
		if text, ok := strategy(value); ok {
			return text, true
		}
	}
	return "", false
}
