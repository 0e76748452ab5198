// Package session provides the stable per-profile session identifier used
// to attribute seat holds to one client across reconnects.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"seatsync/shared"
	"seatsync/store"
)

// Provider hands out the session identifier, generating and persisting one
// on first use. The identifier never changes while the store holds a value.
type Provider struct {
	store   store.Store
	logTags log.Fields

	mu     sync.Mutex
	cached string
}

func NewProvider(s store.Store) *Provider {
	return &Provider{
		store:   s,
		logTags: log.Fields{"module": "session", "component": "provider"},
	}
}

// SessionID returns the persisted identifier, minting one on first call.
func (p *Provider) SessionID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}
	if v, ok := p.store.Get(shared.StorageKeySessionID); ok && v != "" {
		p.cached = v
		return v, nil
	}

	id := newSessionID()
	if err := p.store.Set(shared.StorageKeySessionID, id); err != nil {
		return "", fmt.Errorf("failed to persist session id: %w", err)
	}
	p.cached = id
	log.WithFields(p.logTags).WithField("session_id", id).Info("Generated session id")
	return id, nil
}

func newSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), suffix)
}
