package chatbot

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a conversation state. Sessions move strictly forward except
// for the confirm step, which can reset to ask_situation.
type State string

const (
	StateGreeting     State = "greeting"
	StateAskSituation State = "ask_situation"
	StateAskResource  State = "ask_resource"
	StateAskQuantity  State = "ask_quantity"
	StateAskLocation  State = "ask_location"
	StateAskPeople    State = "ask_people"
	StateAskMedical   State = "ask_medical"
	StateConfirm      State = "confirm"
	StateSubmitted    State = "submitted"
)

// Message is one turn in the conversation transcript.
type Message struct {
	Role      string         `json:"role"` // user | assistant
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Extracted is the request data built up across the conversation.
type Extracted struct {
	SituationDescription string             `json:"situation_description"`
	ResourceTypes        []string           `json:"resource_types"`
	ResourceTypeScores   map[string]float64 `json:"resource_type_scores"`
	Quantity             int                `json:"quantity"`
	Location             string             `json:"location"`
	PeopleCount          int                `json:"people_count"`
	HasMedicalNeeds      bool               `json:"has_medical_needs"`
	MedicalDetails       string             `json:"medical_details"`
	UrgencySignals       []map[string]any   `json:"urgency_signals"`
	RecommendedPriority  string             `json:"recommended_priority"`
	PriorityEscalated    bool               `json:"priority_escalated"`
	Confidence           float64            `json:"confidence"`

	rawMessages []string
}

func newExtracted() *Extracted {
	return &Extracted{
		Quantity:            1,
		PeopleCount:         1,
		RecommendedPriority: "medium",
		Confidence:          0.5,
	}
}

// Session is one victim conversation.
type Session struct {
	ID        string
	State     State
	Messages  []Message
	Extracted *Extracted
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStore holds active conversations. The in-memory implementation
// is process-local; sessions do not survive a restart.
type SessionStore interface {
	GetOrCreate(sessionID string) *Session
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string) bool
}

type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) GetOrCreate(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if s, ok := m.sessions[sessionID]; ok {
			return s
		}
	}
	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	s := &Session{
		ID:        id,
		State:     StateGreeting,
		Extracted: newExtracted(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[id] = s
	return s
}

func (m *MemorySessionStore) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *MemorySessionStore) Delete(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	delete(m.sessions, sessionID)
	return true
}
