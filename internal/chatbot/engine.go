// Package chatbot is the conversational intake assistant. A session
// walks a fixed state machine (greeting through submitted) and builds a
// structured resource request from free-text answers using the nlp
// package. No model calls; everything is rule driven.
package chatbot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/nlp"
)

const greetingMsg = "Hello! I'm here to help you request emergency resources. " +
	"I'll guide you through a few quick questions so we can get help to you as fast as possible.\n\n" +
	"**Can you describe your current situation?** " +
	"For example: what happened, what do you need most urgently?"

const resourceAsk = "I wasn't able to determine the type of resource you need. " +
	"Could you tell me what you need most? For example:\n" +
	"- Food\n- Water\n- Medical supplies\n- Shelter\n- Clothing\n- Evacuation\n- Volunteers\n- Financial aid"

const locationAsk = "Where are you located? Please provide as much detail as possible - " +
	"address, neighborhood, landmark, or GPS coordinates if you have them."

const peopleAsk = "How many people are with you who need help? " +
	"Are there any children, elderly, or people with disabilities in your group?"

const medicalAsk = "Does anyone in your group have medical needs or injuries that require attention? " +
	"If yes, please describe briefly."

const submittedMsg = "Your request has been submitted successfully! " +
	"A coordinator will review it shortly. " +
	"Your reference information has been saved.\n\n" +
	"If your situation changes, you can start a new conversation. Stay safe!"

var (
	yesRe     = regexp.MustCompile(`^(yes|yeah|yep|yup|correct|sure|ok|okay|y|confirm|right|that'?s? (right|correct))[\.\!\s]*$`)
	noRe      = regexp.MustCompile(`^(no|nah|nope|wrong|incorrect|n|not really|start over|reset)[\.\!\s]*$`)
	numberRe  = regexp.MustCompile(`\b(\d+)\b`)
	peopleRe  = regexp.MustCompile(`(\d+)\s*(people|persons?|family members?|of us)`)
	medicalRe = regexp.MustCompile(`\b(injur|wound|bleed|fracture|medic|sick|fever|pain|diabet|asthma|chronic|surgery|pregnant|disability)\b`)
)

// directResourceMap resolves single-word answers in ask_resource when
// the classifier finds nothing.
var directResourceMap = []struct{ key, rtype string }{
	{"food", "Food"}, {"water", "Water"}, {"medical", "Medical"},
	{"shelter", "Shelter"}, {"clothing", "Clothing"}, {"clothes", "Clothing"},
	{"evacuation", "Evacuation"}, {"volunteers", "Volunteers"},
	{"financial", "Financial Aid"}, {"money", "Financial Aid"},
}

// Response is the engine output for one user message.
type Response struct {
	SessionID     string         `json:"session_id"`
	Message       string         `json:"message"`
	State         State          `json:"state"`
	ExtractedData *Extracted     `json:"extracted_data"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Engine routes messages through the conversation state machine.
type Engine struct {
	store SessionStore
}

func NewEngine(store SessionStore) *Engine {
	return &Engine{store: store}
}

func (e *Engine) Store() SessionStore {
	return e.store
}

// ProcessMessage handles one user turn and returns the assistant reply.
func (e *Engine) ProcessMessage(sessionID, userMessage string) *Response {
	session := e.store.GetOrCreate(sessionID)
	session.UpdatedAt = time.Now().UTC()

	session.Messages = append(session.Messages, Message{
		Role: "user", Content: userMessage, Timestamp: time.Now().UTC(),
	})
	session.Extracted.rawMessages = append(session.Extracted.rawMessages, userMessage)

	text, metadata := e.handleState(session, userMessage)

	session.Messages = append(session.Messages, Message{
		Role: "assistant", Content: text, Timestamp: time.Now().UTC(), Metadata: metadata,
	})

	return &Response{
		SessionID:     session.ID,
		Message:       text,
		State:         session.State,
		ExtractedData: session.Extracted,
		Metadata:      metadata,
	}
}

func (e *Engine) handleState(session *Session, input string) (string, map[string]any) {
	switch session.State {
	case StateGreeting:
		session.State = StateAskSituation
		return greetingMsg, map[string]any{"next_state": string(StateAskSituation)}
	case StateAskSituation:
		return e.handleSituation(session, input)
	case StateAskResource:
		return e.handleResource(session, input)
	case StateAskQuantity:
		return e.handleQuantity(session, input)
	case StateAskLocation:
		return e.handleLocation(session, input)
	case StateAskPeople:
		return e.handlePeople(session, input)
	case StateAskMedical:
		return e.handleMedical(session, input)
	case StateConfirm:
		return e.handleConfirm(session, input)
	case StateSubmitted:
		return "Your request has already been submitted. " +
			"Start a new conversation if you need additional help.", map[string]any{"already_submitted": true}
	}
	return "I'm sorry, something went wrong. Please try again.", nil
}

func (e *Engine) handleSituation(session *Session, text string) (string, map[string]any) {
	session.Extracted.SituationDescription = text

	fullText := strings.Join(session.Extracted.rawMessages, " ")
	classification := nlp.ClassifyRequest(fullText, "medium")

	session.Extracted.UrgencySignals = signalMaps(classification.UrgencySignals)
	session.Extracted.RecommendedPriority = classification.RecommendedPriority
	session.Extracted.PriorityEscalated = classification.PriorityWasEscalated
	session.Extracted.Confidence = classification.Confidence
	session.Extracted.ResourceTypes = classification.ResourceTypes
	session.Extracted.ResourceTypeScores = classification.ResourceTypeScores

	if qty := nlp.EstimateQuantity(text); qty > 1 {
		session.Extracted.Quantity = qty
	}

	metadata := map[string]any{"classification": classification}

	session.State = StateAskResource
	if len(classification.ResourceTypes) > 0 && classification.ResourceTypes[0] != "Custom" {
		return fmt.Sprintf(
			"Based on what you've told me, it sounds like you need: **%s**.\n\n"+
				"Is that correct? If you need something different or additional, just let me know. "+
				"Otherwise, say **yes** to continue.",
			strings.Join(firstN(classification.ResourceTypes, 3), ", ")), metadata
	}
	return resourceAsk, metadata
}

func (e *Engine) handleResource(session *Session, text string) (string, map[string]any) {
	if detectYes(text) && len(session.Extracted.ResourceTypes) > 0 {
		session.State = StateAskQuantity
		return quantityAsk(session.Extracted.ResourceTypes[0]), nil
	}

	types, scores := nlp.ClassifyResourceType(text)
	if len(types) > 0 && types[0] != "Custom" {
		session.Extracted.ResourceTypes = types
		session.Extracted.ResourceTypeScores = scores
		session.State = StateAskQuantity
		return fmt.Sprintf("Got it - I've updated your request to **%s**.\n\n%s",
				strings.Join(firstN(types, 3), ", "), quantityAsk(types[0])),
			map[string]any{"updated_types": types}
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	for _, m := range directResourceMap {
		if strings.Contains(lower, m.key) {
			session.Extracted.ResourceTypes = []string{m.rtype}
			session.Extracted.ResourceTypeScores = map[string]float64{m.rtype: 0.8}
			session.State = StateAskQuantity
			return fmt.Sprintf("Got it - **%s**.\n\n%s", m.rtype, quantityAsk(m.rtype)),
				map[string]any{"updated_types": []string{m.rtype}}
		}
	}

	return "I'm not sure what resource type that is. Could you pick one from this list?\n\n" +
			"- Food\n- Water\n- Medical\n- Shelter\n- Clothing\n- Evacuation\n- Volunteers\n- Financial Aid",
		map[string]any{"retry": true}
}

func (e *Engine) handleQuantity(session *Session, text string) (string, map[string]any) {
	if qty, ok := extractNumber(text); ok {
		if qty > 9999 {
			qty = 9999
		}
		session.Extracted.Quantity = qty
	}
	if m := peopleRe.FindStringSubmatch(strings.ToLower(text)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			session.Extracted.PeopleCount = n
		}
	}
	session.State = StateAskLocation
	return locationAsk, map[string]any{"quantity_detected": session.Extracted.Quantity}
}

func (e *Engine) handleLocation(session *Session, text string) (string, map[string]any) {
	session.Extracted.Location = strings.TrimSpace(text)
	session.State = StateAskPeople
	return peopleAsk, nil
}

func (e *Engine) handlePeople(session *Session, text string) (string, map[string]any) {
	if qty, ok := extractNumber(text); ok {
		session.Extracted.PeopleCount = qty
	}

	if signals := nlp.ExtractUrgencySignals(text); len(signals) > 0 {
		session.Extracted.UrgencySignals = append(session.Extracted.UrgencySignals, signalMaps(signals)...)
		e.reescalate(session)
	}

	// Medical info volunteered here skips the dedicated question.
	if medicalRe.MatchString(strings.ToLower(text)) {
		session.Extracted.HasMedicalNeeds = true
		session.Extracted.MedicalDetails = text
		session.State = StateConfirm
		return buildConfirmation(session), map[string]any{"skipped_medical_ask": true}
	}

	session.State = StateAskMedical
	return medicalAsk, nil
}

func (e *Engine) handleMedical(session *Session, text string) (string, map[string]any) {
	if detectNo(text) {
		session.Extracted.HasMedicalNeeds = false
	} else {
		session.Extracted.HasMedicalNeeds = true
		session.Extracted.MedicalDetails = text

		if signals := nlp.ExtractUrgencySignals(text); len(signals) > 0 {
			session.Extracted.UrgencySignals = append(session.Extracted.UrgencySignals, signalMaps(signals)...)
			e.reescalate(session)
		}
	}
	session.State = StateConfirm
	return buildConfirmation(session), nil
}

func (e *Engine) handleConfirm(session *Session, text string) (string, map[string]any) {
	switch {
	case detectYes(text):
		session.State = StateSubmitted
		return submittedMsg, map[string]any{
			"submitted":      true,
			"extracted_data": session.Extracted,
		}
	case detectNo(text):
		session.State = StateAskSituation
		session.Extracted = newExtracted()
		return "No problem! Let's start over.\n\n" +
				"**Can you describe your current situation?** " +
				"What happened and what do you need?",
			map[string]any{"reset": true}
	}
	return "Please confirm by saying **yes** to submit your request, " +
		"or **no** to start over.", map[string]any{"awaiting_confirmation": true}
}

// reescalate recomputes the priority from every signal collected so far.
func (e *Engine) reescalate(session *Session) {
	signals := make([]nlp.UrgencySignal, 0, len(session.Extracted.UrgencySignals))
	for _, m := range session.Extracted.UrgencySignals {
		boost, _ := m["severity_boost"].(int)
		signals = append(signals, nlp.UrgencySignal{SeverityBoost: boost})
	}
	priority, escalated := nlp.EscalatePriority("medium", signals)
	session.Extracted.RecommendedPriority = priority
	session.Extracted.PriorityEscalated = escalated
}

func buildConfirmation(session *Session) string {
	d := session.Extracted
	resource := "Not determined"
	if len(d.ResourceTypes) > 0 {
		resource = strings.Join(d.ResourceTypes, ", ")
	}
	medical := "None reported"
	if d.HasMedicalNeeds {
		medical = d.MedicalDetails
	}
	priority := strings.ToUpper(d.RecommendedPriority)
	if d.PriorityEscalated {
		priority += " (auto-escalated due to urgency signals)"
	}
	situation := d.SituationDescription
	if len(situation) > 200 {
		situation = situation[:200]
	}
	if situation == "" {
		situation = "Not provided"
	}
	location := d.Location
	if location == "" {
		location = "Not provided"
	}

	return fmt.Sprintf("Here's a summary of your request:\n\n"+
		"**Situation:** %s\n"+
		"**Resource needed:** %s\n"+
		"**Quantity:** %d\n"+
		"**People:** %d\n"+
		"**Location:** %s\n"+
		"**Medical needs:** %s\n"+
		"**Priority:** %s\n\n"+
		"Does this look correct? Say **yes** to submit or **no** to start over.",
		situation, resource, d.Quantity, d.PeopleCount, location, medical, priority)
}

func quantityAsk(resource string) string {
	return fmt.Sprintf("How many **%s** units/items do you need? "+
		"And for how many people? (e.g., '5 water bottles for 3 people')", resource)
}

func detectYes(text string) bool {
	return yesRe.MatchString(strings.ToLower(strings.TrimSpace(text)))
}

func detectNo(text string) bool {
	return noRe.MatchString(strings.ToLower(strings.TrimSpace(text)))
}

func extractNumber(text string) (int, bool) {
	m := numberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func signalMaps(signals []nlp.UrgencySignal) []map[string]any {
	out := make([]map[string]any, len(signals))
	for i, s := range signals {
		out[i] = map[string]any{
			"keyword":        s.Keyword,
			"label":          s.Label,
			"severity_boost": s.SeverityBoost,
		}
	}
	return out
}
