/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 4

	maxCodeAttempts = 64
)

var errCodeSpaceExhausted = errors.New("unable to find a free lobby code")

// GenerateCode returns a random lobby code drawn from crypto/rand.
func GenerateCode() (string, error) {
	out := make([]byte, CodeLength)
	size := big.NewInt(int64(len(codeAlphabet)))

	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}

	return string(out), nil
}

// NormalizeCode upper-cases code and checks that it could have been issued
// by GenerateCode.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if len(code) != CodeLength {
		return "", Errorf(ErrValidation, "Lobby codes are %d characters long.", CodeLength)
	}

	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", Errorf(ErrValidation, "Lobby codes contain only letters and digits.")
		}
	}

	return code, nil
}

// Registry maps lobby codes to live lobbies. It never waits on a published
// lobby's lock while holding its own.
type Registry struct {
	mu          sync.Mutex
	lobbies     map[string]*Lobby
	opts        Options
	idleTimeout time.Duration
	log         *logrus.Entry
	newCode     func() (string, error)
}

func NewRegistry(opts Options, idleTimeout time.Duration) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Registry{
		lobbies:     make(map[string]*Lobby),
		opts:        opts,
		idleTimeout: idleTimeout,
		log:         logger.WithField("component", "registry"),
		newCode:     GenerateCode,
	}
}

// Create opens a lobby under a fresh code with username as its host.
func (r *Registry) Create(username, connID string, s Sender) (*Lobby, Member, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, Member{}, err
	}

	l, err := r.allocate()
	if err != nil {
		return nil, Member{}, err
	}
	defer l.mu.Unlock()

	l.log.WithField("host", username).Info("lobby created")

	s.Send(LobbyCreatedMessage{
		Type:     TypeLobbyCreated,
		Code:     l.code,
		Username: username,
	})
	l.addUserLocked(username, connID, s, true)

	return l, Member{Username: username, ConnID: connID}, nil
}

// allocate publishes a fresh lobby under an unused code. The lobby comes
// back locked, so nobody can join before its host is attached.
func (r *Registry) allocate() (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range maxCodeAttempts {
		code, err := r.newCode()
		if err != nil {
			return nil, err
		}

		if _, exists := r.lobbies[code]; exists {
			continue
		}

		l := newLobby(code, r.opts, r.remove)
		l.mu.Lock()
		r.lobbies[code] = l

		return l, nil
	}

	return nil, errCodeSpaceExhausted
}

// Get looks a lobby up by code, ignoring case.
func (r *Registry) Get(code string) (*Lobby, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	l, ok := r.lobbies[normalized]
	r.mu.Unlock()

	if !ok {
		return nil, Errorf(ErrNotFound, "Lobby %s not found.", normalized)
	}

	return l, nil
}

// Remove forgets the lobby under code. Closing a lobby removes it already;
// this is for lobbies that should vanish without notice.
func (r *Registry) Remove(code string) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.lobbies, normalized)
}

func (r *Registry) remove(l *Lobby) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lobbies[l.code] == l {
		delete(r.lobbies, l.code)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.lobbies)
}

func (r *Registry) snapshot() []*Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		out = append(out, l)
	}

	return out
}

// Reap closes every lobby idle since before cutoff and reports how many
// were closed.
func (r *Registry) Reap(cutoff time.Time) int {
	reaped := 0

	for _, l := range r.snapshot() {
		if l.LastActive().Before(cutoff) {
			l.Close(reasonIdle)
			reaped++
		}
	}

	return reaped
}

// Run reaps idle lobbies until ctx is done, then closes whatever is left.
func (r *Registry) Run(ctx context.Context) error {
	defer r.CloseAll()

	if r.idleTimeout <= 0 {
		<-ctx.Done()

		return nil
	}

	ticker := time.NewTicker(r.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := r.Reap(now.Add(-r.idleTimeout)); n > 0 {
				r.log.WithField("count", n).Info("reaped idle lobbies")
			}
		}
	}
}

// CloseAll closes every open lobby.
func (r *Registry) CloseAll() {
	for _, l := range r.snapshot() {
		l.Close(reasonShutdown)
	}
}
