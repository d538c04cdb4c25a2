/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// recorder collects the messages a lobby sends to one connection.
type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) Send(msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = append(r.msgs, msg)
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = nil
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]any, len(r.msgs))
	copy(out, r.msgs)

	return out
}

func (r *recorder) types() []string {
	var out []string
	for _, msg := range r.all() {
		out = append(out, typeOf(msg))
	}
	return out
}

func typeOf(msg any) string {
	data, err := json.Marshal(msg)
	if err != nil {
		return ""
	}

	var envelope struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &envelope)

	return envelope.Type
}

func lastOf[T any](r *recorder) (T, bool) {
	msgs := r.all()
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(T); ok {
			return m, true
		}
	}

	var zero T
	return zero, false
}

func countOf[T any](r *recorder) int {
	n := 0
	for _, msg := range r.all() {
		if _, ok := msg.(T); ok {
			n++
		}
	}
	return n
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func testOptions() Options {
	return Options{
		ReconnectGrace: time.Hour,
		MaxImageSize:   1 << 20,
		TieBreak:       TieBreakEarliest,
		Seeding:        SeedingSubmission,
		Logger:         quietLogger(),
	}
}

func newTestRegistry(t *testing.T, opts Options, codes ...string) *Registry {
	t.Helper()

	r := NewRegistry(opts, 0)

	if len(codes) > 0 {
		var mu sync.Mutex
		r.newCode = func() (string, error) {
			mu.Lock()
			defer mu.Unlock()

			code := codes[0]
			if len(codes) > 1 {
				codes = codes[1:]
			}
			return code, nil
		}
	}

	t.Cleanup(r.CloseAll)

	return r
}

const testImage = "data:image/png;base64,iVBORw0KGgo="

type player struct {
	member Member
	rec    *recorder
}

func createLobby(t *testing.T, r *Registry, username string) (*Lobby, player) {
	t.Helper()

	rec := &recorder{}
	l, m, err := r.Create(username, "conn-"+username, rec)
	require.NoError(t, err)

	return l, player{member: m, rec: rec}
}

func joinLobby(t *testing.T, l *Lobby, username string) player {
	t.Helper()

	rec := &recorder{}
	m, err := l.Join(username, "conn-"+username, rec)
	require.NoError(t, err)

	return player{member: m, rec: rec}
}

func submit(t *testing.T, l *Lobby, p player, names ...string) []Candidate {
	t.Helper()

	var out []Candidate
	for _, name := range names {
		c, err := l.SubmitCandidate(p.member, name, testImage)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func usernames(users []UserView) []string {
	var out []string
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}

func candidateNames(cs []Candidate) string {
	var names []string
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return strings.Join(names, ",")
}
