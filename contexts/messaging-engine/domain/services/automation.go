// Package services holds the messaging engine's behavioral logic: keyword
// detection and auto-reply selection, grounded on
// service/automation.py's AutomationEngine.
package services

import (
	"regexp"
	"strings"
)

// ActionIntent is a customer-requested action detected from text or a
// button payload.
type ActionIntent string

const (
	IntentCreateQuote  ActionIntent = "create_quote"
	IntentOrderStatus  ActionIntent = "order_status"
	IntentTalkToHuman  ActionIntent = "talk_to_human"
	IntentOptOut       ActionIntent = "opt_out"
)

// AutoReplyType is a canned response the inbound loop may queue.
type AutoReplyType string

const (
	AutoReplyWelcome          AutoReplyType = "welcome"
	AutoReplyReceived         AutoReplyType = "received"
	AutoReplyOptOutConfirmed  AutoReplyType = "opt_out_confirmed"
	AutoReplyHumanRequested   AutoReplyType = "human_requested"
	AutoReplyOutsideHours     AutoReplyType = "outside_hours"
)

// Default opt-out keywords (case-insensitive, whole-word).
var defaultOptOutKeywords = []string{
	"stop", "sair", "cancelar", "remover", "unsubscribe", "parar",
	"nao quero mais", "não quero mais", "cancel", "remove me", "no more messages",
}

// Default intent keywords, checked in a stable order so the first match
// wins deterministically (the source iterates a dict, which in CPython 3.7+
// preserves insertion order; this slice preserves the same priority).
var defaultIntentKeywords = []struct {
	intent   ActionIntent
	keywords []string
}{
	{IntentCreateQuote, []string{"quote", "quotation", "price", "how much", "cost"}},
	{IntentOrderStatus, []string{"status", "order", "delivery", "track", "where is", "my order"}},
	{IntentTalkToHuman, []string{"agent", "human", "person", "talk to someone", "help", "support"}},
}

// Button payload IDs that map directly to an intent, checked before text,
// at full confidence.
var defaultButtonIntents = map[string]ActionIntent{
	"btn_quote":     IntentCreateQuote,
	"btn_status":    IntentOrderStatus,
	"btn_human":     IntentTalkToHuman,
	"create_quote":  IntentCreateQuote,
	"order_status":  IntentOrderStatus,
	"talk_to_human": IntentTalkToHuman,
}

// Detection is the outcome of running AutomationEngine.Detect over one
// inbound message.
type Detection struct {
	IsOptOut      bool
	OptOutKeyword string
	Intent        ActionIntent
	IntentKeyword string
	Confidence    float64
}

// AutoReply is a canned message ready to be queued as an outbound envelope.
type AutoReply struct {
	ReplyType AutoReplyType
	Text      string
	Buttons   []Button
}

// Button is one quick-reply option attached to an interactive auto-reply.
type Button struct {
	ID    string
	Title string
}

// AutomationEngine detects opt-outs/intents and chooses auto-replies,
// grounded on service/automation.py's AutomationEngine.
type AutomationEngine struct {
	optOutKeywords []string
	intentKeywords []struct {
		intent   ActionIntent
		keywords []string
	}
	buttonIntents map[string]ActionIntent
	autoReplies   map[AutoReplyType]string
	wordBoundary  map[string]*regexp.Regexp
}

// NewAutomationEngine builds an engine with the default keyword sets (which
// mix English and Portuguese phrases) and the English auto-reply templates.
func NewAutomationEngine() *AutomationEngine {
	return &AutomationEngine{
		optOutKeywords: defaultOptOutKeywords,
		intentKeywords: defaultIntentKeywords,
		buttonIntents:  defaultButtonIntents,
		autoReplies: map[AutoReplyType]string{
			AutoReplyWelcome:         "Hi! Welcome to {business_name}. How can I help you today?",
			AutoReplyReceived:       "Message received! Someone from our team will get back to you shortly.",
			AutoReplyOptOutConfirmed: "You've been removed from our messages. Send us a message any time to opt back in.",
			AutoReplyHumanRequested: "Got it! A team member will reach out to you shortly.",
			AutoReplyOutsideHours:   "Thanks for your message! We're outside business hours right now and will reply as soon as we can.",
		},
		wordBoundary: map[string]*regexp.Regexp{},
	}
}

// Detect runs opt-out then intent detection over text and an optional
// button payload. A button payload match always wins, at full confidence,
// matching the source's priority order.
func (a *AutomationEngine) Detect(text, buttonPayload string) Detection {
	if buttonPayload != "" {
		if intent, ok := a.buttonIntents[buttonPayload]; ok {
			return Detection{Intent: intent, IntentKeyword: buttonPayload, Confidence: 1.0}
		}
	}

	if text == "" {
		return Detection{}
	}
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, kw := range a.optOutKeywords {
		if a.matches(lower, kw) {
			return Detection{IsOptOut: true, OptOutKeyword: kw, Confidence: 1.0}
		}
	}

	for _, group := range a.intentKeywords {
		for _, kw := range group.keywords {
			if a.matches(lower, kw) {
				return Detection{Intent: group.intent, IntentKeyword: kw, Confidence: 0.8}
			}
		}
	}

	return Detection{}
}

// matches reports a whole-word, case-insensitive match of keyword in text.
// Both inputs are expected already lower-cased; case-insensitivity is kept
// at the regex level too since keyword may itself carry mixed case when
// customized by a tenant.
func (a *AutomationEngine) matches(text, keyword string) bool {
	re, ok := a.wordBoundary[keyword]
	if !ok {
		re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
		a.wordBoundary[keyword] = re
	}
	return re.MatchString(text)
}

// GetAutoReply renders the template for replyType, substituting variables
// and attaching the default quick-reply buttons when withButtons is set and
// the reply type is one that carries them (welcome, received).
func (a *AutomationEngine) GetAutoReply(replyType AutoReplyType, variables map[string]string, withButtons bool) AutoReply {
	text := a.autoReplies[replyType]
	for k, v := range variables {
		text = strings.ReplaceAll(text, "{"+k+"}", v)
	}

	var buttons []Button
	if withButtons && (replyType == AutoReplyWelcome || replyType == AutoReplyReceived) {
		buttons = a.DefaultButtons()
	}

	return AutoReply{ReplyType: replyType, Text: text, Buttons: buttons}
}

// DefaultButtons returns the three standard quick-reply options.
func (a *AutomationEngine) DefaultButtons() []Button {
	return []Button{
		{ID: "btn_quote", Title: "Get a quote"},
		{ID: "btn_status", Title: "Order status"},
		{ID: "btn_human", Title: "Talk to an agent"},
	}
}

// SetAutoReply overrides the template for a reply type, e.g. for
// per-tenant customization.
func (a *AutomationEngine) SetAutoReply(replyType AutoReplyType, template string) {
	a.autoReplies[replyType] = template
}

// ShouldAutoReply implements the decision tree in spec §4.8(a)(4): opt-out
// gets a confirmation; a human request gets an acknowledgment; a new
// conversation gets a welcome; otherwise a received-ack if auto-reply is
// enabled for the tenant.
func (a *AutomationEngine) ShouldAutoReply(isNewConversation bool, detection Detection, autoReplyEnabled bool) (AutoReplyType, bool) {
	switch {
	case detection.IsOptOut:
		return AutoReplyOptOutConfirmed, true
	case detection.Intent == IntentTalkToHuman:
		return AutoReplyHumanRequested, true
	case isNewConversation:
		return AutoReplyWelcome, true
	case autoReplyEnabled:
		return AutoReplyReceived, true
	default:
		return "", false
	}
}
