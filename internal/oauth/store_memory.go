package oauth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps all authorization-server state behind one mutex, which
// makes the compound operations trivially atomic. Used in tests and as the
// dev-mode backend.
type InMemoryStore struct {
	mu      sync.RWMutex
	clients map[string]Client
	codes   map[string]AuthorizationCode
	tokens  map[string]Token // keyed by access token hash
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		clients: make(map[string]Client),
		codes:   make(map[string]AuthorizationCode),
		tokens:  make(map[string]Token),
	}
}

func (s *InMemoryStore) CreateClient(_ context.Context, client Client, rawSecret string) (Client, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepared, rawSecret, err := PrepareClient(client, rawSecret)
	if err != nil {
		return Client{}, "", err
	}
	if _, ok := s.clients[prepared.ClientID]; ok {
		return Client{}, "", ErrClientExists
	}
	s.clients[prepared.ClientID] = prepared
	return prepared, rawSecret, nil
}

func (s *InMemoryStore) GetClient(_ context.Context, clientID string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return client, nil
}

func (s *InMemoryStore) ListClients(_ context.Context) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Client, 0, len(s.clients))
	for _, client := range s.clients {
		out = append(out, client)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) UpdateClient(_ context.Context, client Client) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.clients[client.ClientID]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	merged := MergeClientUpdate(current, client)
	s.clients[merged.ClientID] = merged
	return merged, nil
}

func (s *InMemoryStore) SaveCode(_ context.Context, code AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.CodeHash] = code
	return nil
}

func (s *InMemoryStore) ExchangeCode(_ context.Context, rawCode, clientID string, now time.Time, mint MintFunc) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := sha256Hex(rawCode)
	code, ok := s.codes[hash]
	if !ok || code.ClientID != clientID {
		return Token{}, ErrCodeNotFound
	}
	// Single-use: the code is gone from here on, whether or not minting
	// succeeds.
	delete(s.codes, hash)
	if code.Expired(now) {
		return Token{}, ErrCodeNotFound
	}
	token, err := mint(code)
	if err != nil {
		return Token{}, err
	}
	s.tokens[token.AccessTokenHash] = token
	return token, nil
}

func (s *InMemoryStore) SaveToken(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.AccessTokenHash] = token
	return nil
}

func (s *InMemoryStore) GetByAccessToken(_ context.Context, rawAccess string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[sha256Hex(rawAccess)]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return token, nil
}

func (s *InMemoryStore) GetByRefreshToken(_ context.Context, rawRefresh string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.findByRefreshHash(sha256Hex(rawRefresh))
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return token, nil
}

func (s *InMemoryStore) RotateToken(_ context.Context, oldRawRefresh string, next Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.findByRefreshHash(sha256Hex(oldRawRefresh))
	if !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, old.AccessTokenHash)
	s.tokens[next.AccessTokenHash] = next
	return nil
}

func (s *InMemoryStore) findByRefreshHash(refreshHash string) (Token, bool) {
	if refreshHash == "" {
		return Token{}, false
	}
	for _, token := range s.tokens {
		if token.RefreshTokenHash == refreshHash {
			return token, true
		}
	}
	return Token{}, false
}
