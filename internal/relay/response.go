package relay

import (
	"encoding/json"
	"log"
)

// Button is a quick-reply button attached to a chat segment.
type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Card is a specialized chat bubble for structured bot output, such as
// an email summary, a translation, a content analysis, or a draft preview.
type Card struct {
	// Type is one of "summary", "translation", "analysis", "draft".
	Type string `json:"type"`

	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`

	// Fields holds labeled values rendered as key/value rows
	// (e.g. To/Subject on a draft card, source language on a translation).
	Fields map[string]string `json:"fields,omitempty"`
}

// Segment is one normalized chunk of a bot reply: plain text, an image,
// or a card, optionally with buttons attached.
type Segment struct {
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
	Card     *Card    `json:"card,omitempty"`
}

// Reply is the normalized result of one exchange with the conversational
// backend: the segments to render, the structured actions to perform, and
// the updated conversation context.
type Reply struct {
	Messages []Segment      `json:"messages"`
	Actions  []Action       `json:"-"`
	Context  map[string]any `json:"context"`
}

// wireSegment is one raw element of the Rasa REST webhook response.
type wireSegment struct {
	RecipientID string          `json:"recipient_id,omitempty"`
	Text        string          `json:"text,omitempty"`
	Image       string          `json:"image,omitempty"`
	Buttons     []Button        `json:"buttons,omitempty"`
	Custom      json.RawMessage `json:"custom,omitempty"`
	JSONMessage json.RawMessage `json:"json_message,omitempty"`
}

// customPayload is the structured part of a custom or json_message
// segment: an action instruction, a context update, and/or a card.
type customPayload struct {
	Action  json.RawMessage `json:"action,omitempty"`
	Context map[string]any  `json:"context,omitempty"`
	Card    *Card           `json:"card,omitempty"`
}

// wrappedReply is the pre-normalized response shape produced by the
// gateway's /api/rasa_message endpoint.
type wrappedReply struct {
	Messages []Segment         `json:"messages"`
	Actions  []json.RawMessage `json:"actions"`
	Context  map[string]any    `json:"context"`
}

// normalize converts a raw backend response body into a Reply. The body is
// either a plain array of wire segments (the Rasa REST webhook) or a
// wrapped object with messages/actions/context (the gateway). baseContext
// is copied into the reply and then updated by any context payloads.
func normalize(body []byte, baseContext map[string]any) (*Reply, error) {
	reply := &Reply{Context: cloneContext(baseContext)}

	trimmed := firstNonSpace(body)
	if trimmed == '{' {
		var wrapped wrappedReply
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, err
		}
		reply.Messages = wrapped.Messages
		for k, v := range wrapped.Context {
			reply.Context[k] = v
		}
		for _, raw := range wrapped.Actions {
			action, err := DecodeAction(raw)
			if err != nil {
				log.Printf("relay: skipping undecodable action: %v", err)
				continue
			}
			reply.Actions = append(reply.Actions, action)
		}
		ensureNonEmpty(reply)
		return reply, nil
	}

	var segments []wireSegment
	if err := json.Unmarshal(body, &segments); err != nil {
		return nil, err
	}

	for _, seg := range segments {
		if seg.Text != "" {
			reply.Messages = append(reply.Messages, Segment{Text: seg.Text})
		}

		if len(seg.JSONMessage) > 0 {
			applyCustomPayload(reply, seg.JSONMessage)
			continue
		}

		if len(seg.Custom) > 0 {
			applyCustomPayload(reply, seg.Custom)
		}

		if seg.Image != "" {
			reply.Messages = append(reply.Messages, Segment{ImageURL: seg.Image})
		}

		if len(seg.Buttons) > 0 {
			// Buttons attach to the preceding message when one exists.
			if n := len(reply.Messages); n > 0 {
				reply.Messages[n-1].Buttons = seg.Buttons
			} else {
				reply.Messages = append(reply.Messages, Segment{Buttons: seg.Buttons})
			}
		}
	}

	ensureNonEmpty(reply)
	return reply, nil
}

// applyCustomPayload decodes a custom/json_message payload and merges its
// action, context, and card into the reply. The payload may be a JSON
// object or a JSON-encoded string containing an object; undecodable
// payloads are logged and skipped.
func applyCustomPayload(reply *Reply, raw json.RawMessage) {
	data := raw

	// Older action servers double-encode the payload as a string.
	if firstNonSpace(raw) == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			log.Printf("relay: failed to decode custom payload string: %v", err)
			return
		}
		data = json.RawMessage(inner)
	}

	// The payload may nest under a "custom" key when double-encoded.
	var outer struct {
		Custom *customPayload `json:"custom"`
	}
	var payload customPayload
	if err := json.Unmarshal(data, &outer); err == nil && outer.Custom != nil {
		payload = *outer.Custom
	} else if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("relay: failed to decode custom payload: %v", err)
		return
	}

	if len(payload.Action) > 0 {
		action, err := DecodeAction(payload.Action)
		if err != nil {
			log.Printf("relay: skipping undecodable action: %v", err)
		} else {
			reply.Actions = append(reply.Actions, action)
		}
	}

	for k, v := range payload.Context {
		reply.Context[k] = v
	}

	if payload.Card != nil {
		reply.Messages = append(reply.Messages, Segment{Card: payload.Card})
	}
}

// ensureNonEmpty adds the no-response message when the backend returned
// nothing renderable and no actions.
func ensureNonEmpty(reply *Reply) {
	if len(reply.Messages) == 0 && len(reply.Actions) == 0 {
		reply.Messages = append(reply.Messages, Segment{
			Text: "I didn't receive a proper response. Please try again.",
		})
	}
}

// cloneContext returns a shallow copy of ctx, never nil.
func cloneContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

// firstNonSpace returns the first non-whitespace byte of b, or 0.
func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}
