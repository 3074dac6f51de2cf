package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrKeyRevoked  = errors.New("api key has been revoked")
	ErrKeyExpired  = errors.New("api key has expired")
)

// APIKey represents an issued API key
type APIKey struct {
	Key       string     `json:"key"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"` // Friendly name for the key
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// APIKeyManager manages API keys in memory
type APIKeyManager struct {
	keys map[string]*APIKey // key -> APIKey
	mu   sync.RWMutex
}

// NewAPIKeyManager creates a new API key manager
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{
		keys: make(map[string]*APIKey),
	}
}

// Generate creates a new random API key for a user
func (m *APIKeyManager) Generate(userID, name string, expiresAt *time.Time) (*APIKey, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	key := "mf_" + base64.URLEncoding.EncodeToString(keyBytes)

	apiKey := &APIKey{
		Key:       key,
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	m.mu.Lock()
	m.keys[key] = apiKey
	m.mu.Unlock()

	return apiKey, nil
}

// Seed registers pre-configured static keys, e.g. from a config file.
// Seeded keys never expire.
func (m *APIKeyManager) Seed(userID string, keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if key == "" {
			continue
		}
		m.keys[key] = &APIKey{
			Key:       key,
			UserID:    userID,
			Name:      "configured",
			CreatedAt: time.Now(),
		}
	}
}

// Verify checks if an API key is valid
func (m *APIKeyManager) Verify(key string) (*APIKey, error) {
	m.mu.RLock()
	apiKey, exists := m.keys[key]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrKeyNotFound
	}
	if apiKey.Revoked {
		return nil, ErrKeyRevoked
	}
	if apiKey.ExpiresAt != nil && time.Now().After(*apiKey.ExpiresAt) {
		return nil, ErrKeyExpired
	}

	return apiKey, nil
}

// Revoke marks an API key as revoked
func (m *APIKeyManager) Revoke(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	apiKey, exists := m.keys[key]
	if !exists {
		return ErrKeyNotFound
	}

	apiKey.Revoked = true
	return nil
}

// Delete removes an API key entirely
func (m *APIKeyManager) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[key]; !exists {
		return ErrKeyNotFound
	}

	delete(m.keys, key)
	return nil
}

// List returns all API keys belonging to a user
func (m *APIKeyManager) List(userID string) []*APIKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []*APIKey
	for _, apiKey := range m.keys {
		if apiKey.UserID == userID {
			keys = append(keys, apiKey)
		}
	}

	return keys
}

// Count returns the number of non-revoked keys
func (m *APIKeyManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, apiKey := range m.keys {
		if !apiKey.Revoked {
			count++
		}
	}

	return count
}
