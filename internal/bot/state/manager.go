package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
)

// User states constants
const (
	None                = "none"
	WaitingForAllergies = "waiting_for_allergies"
	WaitingForAPIKey    = "waiting_for_api_key"
)

// Temp data keys
const (
	// PromptMessageID is the chat message that asked for the API key; it is
	// deleted together with the user's reply.
	PromptMessageID = "prompt_message_id"
)

// StateManager stores per-user conversation state. Failures are logged by
// implementations and reads fall back to None, so callers never branch on
// storage errors.
type StateManager interface {
	SetUserState(ctx context.Context, key, state string)
	GetUserState(ctx context.Context, key string) string
	ClearUserState(ctx context.Context, key string)
	SetTempData(ctx context.Context, key, name, value string)
	GetTempData(ctx context.Context, key, name string) (string, bool)
	ClearTempData(ctx context.Context, key string)
}

// Key builds the state key for a user on a platform.
func Key(platform domain.Platform, platformUserID string) string {
	return fmt.Sprintf("%s:%s", platform, platformUserID)
}

// Manager manages user states and temporary data in memory
type Manager struct {
	userStates map[string]string
	tempData   map[string]map[string]string
	mu         sync.RWMutex
}

// NewManager creates a new state manager
func NewManager() *Manager {
	return &Manager{
		userStates: make(map[string]string),
		tempData:   make(map[string]map[string]string),
	}
}

// SetUserState sets the state for a user
func (m *Manager) SetUserState(_ context.Context, key, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state == None {
		delete(m.userStates, key)
		return
	}
	m.userStates[key] = state
}

// GetUserState gets the state for a user
func (m *Manager) GetUserState(_ context.Context, key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, exists := m.userStates[key]
	if !exists {
		return None
	}
	return state
}

// ClearUserState clears the state for a user
func (m *Manager) ClearUserState(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userStates, key)
}

// SetTempData sets temporary data for a user
func (m *Manager) SetTempData(_ context.Context, key, name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tempData[key] == nil {
		m.tempData[key] = make(map[string]string)
	}
	m.tempData[key][name] = value
}

// GetTempData gets temporary data for a user
func (m *Manager) GetTempData(_ context.Context, key, name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userData, exists := m.tempData[key]
	if !exists {
		return "", false
	}
	value, exists := userData[name]
	return value, exists
}

// ClearTempData clears all temporary data for a user
func (m *Manager) ClearTempData(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tempData, key)
}
