package workers

import "corehub/contexts/messaging-engine/ports"

// sendKind tags what SendRequest.Kind carries, mirroring the provider
// methods in ports.Provider.
const (
	sendKindText        = "text"
	sendKindTemplate    = "template"
	sendKindInteractive = "interactive"
)

// sendRequest is the decoded form of a message_send_requested envelope's
// payload, produced by the inbound worker (auto-replies) and the notifier
// worker (vertical templates), and consumed by the outbound worker.
type sendRequest struct {
	ToPhone            string
	Kind               string
	Text               string
	TemplateName       string
	Variables          map[string]string
	Buttons            []ports.Button
	ReplyToMessageID   string
	TriggeringEventID  string
}

func (r sendRequest) toPayload() map[string]any {
	out := map[string]any{
		"to_phone":            r.ToPhone,
		"kind":                r.Kind,
		"text":                r.Text,
		"template_name":       r.TemplateName,
		"reply_to_message_id": r.ReplyToMessageID,
		"triggering_event_id": r.TriggeringEventID,
	}
	if len(r.Variables) > 0 {
		vars := make(map[string]any, len(r.Variables))
		for k, v := range r.Variables {
			vars[k] = v
		}
		out["variables"] = vars
	}
	if len(r.Buttons) > 0 {
		buttons := make([]any, len(r.Buttons))
		for i, b := range r.Buttons {
			buttons[i] = map[string]any{"id": b.ID, "title": b.Title}
		}
		out["buttons"] = buttons
	}
	return out
}

func parseSendRequest(payload map[string]any) sendRequest {
	r := sendRequest{
		ToPhone:           stringField(payload, "to_phone"),
		Kind:              stringField(payload, "kind"),
		Text:              stringField(payload, "text"),
		TemplateName:      stringField(payload, "template_name"),
		ReplyToMessageID:  stringField(payload, "reply_to_message_id"),
		TriggeringEventID: stringField(payload, "triggering_event_id"),
	}

	if raw, ok := payload["variables"].(map[string]any); ok {
		r.Variables = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				r.Variables[k] = s
			}
		}
	}

	if raw, ok := payload["buttons"].([]any); ok {
		for _, b := range raw {
			bm, ok := b.(map[string]any)
			if !ok {
				continue
			}
			r.Buttons = append(r.Buttons, ports.Button{ID: stringField(bm, "id"), Title: stringField(bm, "title")})
		}
	}

	return r
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
