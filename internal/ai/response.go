package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type responseEnvelope struct {
	Output     []json.RawMessage `json:"output"`
	OutputText string            `json:"output_text"`
	Choices    []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type outputItem struct {
	Content json.RawMessage `json:"content"`
	Text    string          `json:"text"`
}

type contentPart struct {
	Text string `json:"text"`
}

// ExtractText pulls the generated text out of a response body. Shapes are
// tried in order: the output item list, then the flat output_text field,
// then a chat-completions style choices list.
func ExtractText(body []byte) (string, error) {
	var envelope responseEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &GenerationError{Kind: KindDecode, Err: fmt.Errorf("decode response: %w", err)}
	}

	if text := fromOutput(envelope.Output); text != "" {
		return text, nil
	}
	if text := strings.TrimSpace(envelope.OutputText); text != "" {
		return text, nil
	}
	if len(envelope.Choices) > 0 {
		var content string
		if err := json.Unmarshal(envelope.Choices[0].Message.Content, &content); err == nil {
			if text := strings.TrimSpace(content); text != "" {
				return text, nil
			}
		}
	}
	return "", &GenerationError{Kind: KindEmpty, Err: errors.New("OpenAI returned empty response")}
}

func fromOutput(items []json.RawMessage) string {
	var parts []string
	for _, raw := range items {
		var plain string
		if err := json.Unmarshal(raw, &plain); err == nil {
			if plain != "" {
				parts = append(parts, plain)
			}
			continue
		}

		var item outputItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if len(item.Content) == 0 || string(item.Content) == "null" {
			if item.Text != "" {
				parts = append(parts, item.Text)
			}
			continue
		}

		var list []contentPart
		if err := json.Unmarshal(item.Content, &list); err == nil {
			for _, part := range list {
				if part.Text != "" {
					parts = append(parts, part.Text)
				}
			}
			continue
		}
		var content string
		if err := json.Unmarshal(item.Content, &content); err == nil && content != "" {
			parts = append(parts, content)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
