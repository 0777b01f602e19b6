package mockserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// apiError is a failure reported to clients as {"detail": ...}.
type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string { return e.detail }

var (
	errEmailTaken    = &apiError{status: http.StatusBadRequest, detail: "Email already registered"}
	errUsernameTaken = &apiError{status: http.StatusBadRequest, detail: "Username taken"}
	errBadLogin      = &apiError{status: http.StatusUnauthorized, detail: "Invalid email or password"}
)

type user struct {
	id           int
	username     string
	email        string
	passwordHash []byte
}

type token struct {
	userID    int
	expiresAt time.Time
}

// userStore keeps accounts and bearer tokens in memory.
type userStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	cost    int
	nextID  int
	byEmail map[string]*user
	byID    map[int]*user
	tokens  map[string]token
}

func newUserStore(ttl time.Duration, now func() time.Time, cost int) *userStore {
	if now == nil {
		now = time.Now
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &userStore{
		ttl:     ttl,
		now:     now,
		cost:    cost,
		byEmail: make(map[string]*user),
		byID:    make(map[int]*user),
		tokens:  make(map[string]token),
	}
}

func (s *userStore) register(username, email, password string) (int, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return 0, errEmailTaken
	}
	for _, u := range s.byID {
		if u.username == username {
			return 0, errUsernameTaken
		}
	}
	s.nextID++
	u := &user{id: s.nextID, username: username, email: email, passwordHash: hash}
	s.byEmail[email] = u
	s.byID[u.id] = u
	return u.id, nil
}

func (s *userStore) login(email, password string) (string, *user, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	u, ok := s.byEmail[email]
	s.mu.Unlock()
	if !ok {
		return "", nil, errBadLogin
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return "", nil, errBadLogin
	}
	tok := uuid.NewString()
	s.mu.Lock()
	s.tokens[tok] = token{userID: u.id, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return tok, u, nil
}

// lookup resolves a bearer token. Expired tokens are dropped.
func (s *userStore) lookup(tok string) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[tok]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.tokens, tok)
		return nil, false
	}
	u, ok := s.byID[entry.userID]
	return u, ok
}
