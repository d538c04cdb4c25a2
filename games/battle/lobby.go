/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateLobby      State = "LOBBY"
	StateSubmission State = "SUBMISSION"
	StateVoting     State = "VOTING"
	StateResults    State = "RESULTS"
	StateChampion   State = "CHAMPION"
)

const (
	DefaultTopic = "Anything"
	DefaultLimit = 8
	MaxLimit     = 32

	maxTopicLength    = 100
	maxUsernameLength = 32
	archiveTimeout    = 5 * time.Second
)

const (
	reasonHostLeft         = "The host has left the lobby."
	reasonHostDisconnected = "The host has disconnected."
	reasonIdle             = "The lobby was closed due to inactivity."
	reasonShutdown         = "The server is shutting down."
)

type Settings struct {
	Topic string `json:"topic"`
	Limit int    `json:"limit"`
}

// NewSettings applies defaults to an empty topic and rejects limits outside
// 1..MaxLimit.
func NewSettings(topic string, limit int) (Settings, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = DefaultTopic
	}
	if utf8.RuneCountInString(topic) > maxTopicLength {
		return Settings{}, Errorf(ErrValidation, "Topic must be at most %d characters.", maxTopicLength)
	}

	if limit < 1 || limit > MaxLimit {
		return Settings{}, Errorf(ErrValidation, "Limit must be between 1 and %d.", MaxLimit)
	}

	return Settings{
		Topic: topic,
		Limit: limit,
	}, nil
}

// Sender delivers a message to one connection. Implementations must not
// block; a connection that cannot keep up is the sender's problem.
type Sender interface {
	Send(msg any)
}

// Member identifies a user acting through a specific connection.
type Member struct {
	Username string
	ConnID   string
}

type User struct {
	Username  string
	ConnID    string
	IsHost    bool
	Connected bool
	sender    Sender
}

type Options struct {
	ReconnectGrace time.Duration
	VoteTimeout    time.Duration
	MaxImageSize   int64
	TieBreak       TieBreak
	Seeding        Seeding
	Archiver       Archiver
	Logger         *logrus.Logger
	Rand           *rand.Rand
}

// Lobby is one game room. All of its state, including the scheduler and
// candidate store, is guarded by mu.
type Lobby struct {
	mu sync.Mutex

	code     string
	host     string
	users    map[string]*User
	order    []string
	settings Settings
	state    State
	store    *CandidateStore
	sched    *Scheduler
	history  []RoundResult
	champion *Candidate

	lastActive time.Time
	closed     bool

	graceTimer *time.Timer
	graceGen   int
	voteTimer  *time.Timer
	voteGen    int

	opts    Options
	rng     *rand.Rand
	log     *logrus.Entry
	onClose func(*Lobby)
}

func newLobby(code string, opts Options, onClose func(*Lobby)) *Lobby {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Lobby{
		code:  code,
		users: make(map[string]*User),
		settings: Settings{
			Topic: DefaultTopic,
			Limit: DefaultLimit,
		},
		state:      StateLobby,
		store:      NewCandidateStore(opts.MaxImageSize),
		lastActive: time.Now(),
		opts:       opts,
		rng:        rng,
		log:        logger.WithField("lobby", code),
		onClose:    onClose,
	}
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", Errorf(ErrValidation, "Username must not be empty.")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", Errorf(ErrValidation, "Username must be at most %d characters.", maxUsernameLength)
	}

	return username, nil
}

func (l *Lobby) Code() string {
	return l.code
}

func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

func (l *Lobby) Settings() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.settings
}

func (l *Lobby) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}

func (l *Lobby) LastActive() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastActive
}

func (l *Lobby) Users() []UserView {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.usersLocked()
}

// History returns the results of every closed battle, oldest first.
func (l *Lobby) History() []RoundResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]RoundResult, len(l.history))
	copy(out, l.history)

	return out
}

func (l *Lobby) Champion() (Candidate, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.champion == nil {
		return Candidate{}, false
	}
	return *l.champion, true
}

// Join adds a new user, or restores a disconnected one with the same name.
// A name held by a connected user is refused.
func (l *Lobby) Join(username, connID string, s Sender) (Member, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return Member{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Member{}, l.notFound()
	}

	if u, ok := l.users[username]; ok {
		if u.Connected {
			return Member{}, Errorf(ErrValidation, "The name %q is already taken in this lobby.", username)
		}

		l.attachLocked(u, connID, s)
		l.log.WithField("user", username).Info("user rejoined")

		return Member{Username: username, ConnID: connID}, nil
	}

	l.addUserLocked(username, connID, s, false)
	l.log.WithField("user", username).Info("user joined")

	return Member{Username: username, ConnID: connID}, nil
}

// Rejoin restores an identity by name, taking it over from any connection
// that still holds it. Unknown names join as new users.
func (l *Lobby) Rejoin(username, connID string, s Sender) (Member, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return Member{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Member{}, l.notFound()
	}

	if u, ok := l.users[username]; ok {
		l.attachLocked(u, connID, s)
		l.log.WithField("user", username).Info("user rejoined")
	} else {
		l.addUserLocked(username, connID, s, false)
		l.log.WithField("user", username).Info("user joined via rejoin")
	}

	return Member{Username: username, ConnID: connID}, nil
}

func (l *Lobby) addUserLocked(username, connID string, s Sender, host bool) *User {
	u := &User{
		Username: username,
		IsHost:   host,
	}
	l.users[username] = u
	l.order = append(l.order, username)

	if host {
		l.host = username
	}

	l.attachLocked(u, connID, s)

	return u
}

func (l *Lobby) attachLocked(u *User, connID string, s Sender) {
	u.ConnID = connID
	u.sender = s
	u.Connected = true

	if u.IsHost {
		l.cancelGraceLocked()
	}

	l.touchLocked()

	l.sendLocked(u, JoinedLobbyMessage{
		Type:     TypeJoinedLobby,
		Code:     l.code,
		Username: u.Username,
		IsHost:   u.IsHost,
	})
	l.broadcastRosterLocked()
	l.replayLocked(u)
}

// replayLocked brings a freshly attached user up to date with a game
// already in progress.
func (l *Lobby) replayLocked(u *User) {
	if l.state == StateLobby {
		return
	}

	settings := l.settings

	switch l.state {
	case StateSubmission:
		l.sendLocked(u, GameStateMessage{Type: TypeGameStateChange, State: l.state, Settings: &settings})
		l.sendLocked(u, l.submissionUpdateLocked(u.Username))
	case StateVoting:
		view := viewBattle(l.sched.Current())
		l.sendLocked(u, NewRoundMessage{Type: TypeNewRound, Battle: *view})
		l.sendLocked(u, GameStateMessage{Type: TypeGameStateChange, State: l.state, Settings: &settings, Battle: view})
	case StateResults:
		l.sendLocked(u, GameStateMessage{Type: TypeGameStateChange, State: l.state, Settings: &settings})
		if n := len(l.history); n > 0 {
			l.sendLocked(u, RoundResultsMessage{Type: TypeRoundResults, RoundResult: l.history[n-1]})
		}
	case StateChampion:
		l.sendLocked(u, GameStateMessage{Type: TypeGameStateChange, State: l.state, Settings: &settings})
		if l.champion != nil {
			l.sendLocked(u, GameOverMessage{Type: TypeGameOver, Winner: *l.champion})
		}
	}
}

// Disconnect marks the user behind m as gone. Disconnects from a connection
// that no longer owns the identity are ignored.
func (l *Lobby) Disconnect(m Member) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	u, ok := l.users[m.Username]
	if !ok || u.ConnID != m.ConnID || !u.Connected {
		return
	}

	u.Connected = false
	u.sender = nil

	l.log.WithField("user", u.Username).Info("user disconnected")

	l.touchLocked()
	l.broadcastRosterLocked()

	if l.state == StateVoting {
		l.checkAllVotedLocked()
	}

	if u.IsHost {
		l.armGraceLocked()
	}
}

// Leave removes the user for good. The lobby closes when the host leaves.
func (l *Lobby) Leave(m Member) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.memberLocked(m)
	if err != nil {
		return err
	}

	if u.IsHost {
		l.closeLocked(reasonHostLeft)

		return nil
	}

	delete(l.users, u.Username)
	for i, name := range l.order {
		if name == u.Username {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}

	l.log.WithField("user", u.Username).Info("user left")

	l.touchLocked()
	l.broadcastLocked(PlayerLeftMessage{Type: TypePlayerLeft, Username: u.Username})
	l.broadcastRosterLocked()

	switch l.state {
	case StateSubmission:
		if l.store.RemoveOwner(u.Username) > 0 {
			l.broadcastSubmissionsLocked()
		}
	case StateVoting:
		if b := l.sched.Current(); b != nil {
			b.retract(u.Username)
		}
		l.checkAllVotedLocked()
	}

	return nil
}

func (l *Lobby) StartGame(m Member, topic string, limit int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.hostLocked(m, "start the game"); err != nil {
		return err
	}

	if l.state != StateLobby {
		return Errorf(ErrInvalidState, "The game has already started.")
	}

	settings, err := NewSettings(topic, limit)
	if err != nil {
		return err
	}

	l.settings = settings
	l.state = StateSubmission
	l.touchLocked()

	l.log.WithFields(logrus.Fields{
		"topic": settings.Topic,
		"limit": settings.Limit,
	}).Info("game started")

	l.broadcastLocked(GameStateMessage{Type: TypeGameStateChange, State: l.state, Settings: &settings})
	l.broadcastRosterLocked()
	l.broadcastSubmissionsLocked()

	return nil
}

func (l *Lobby) SubmitCandidate(m Member, name, image string) (Candidate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.memberLocked(m)
	if err != nil {
		return Candidate{}, err
	}

	if l.state != StateSubmission {
		return Candidate{}, Errorf(ErrInvalidState, "Submissions are not open.")
	}

	c, err := l.store.Submit(u.Username, name, image, l.settings.Limit)
	if err != nil {
		return Candidate{}, err
	}

	l.log.WithFields(logrus.Fields{
		"user":      u.Username,
		"candidate": c.ID,
	}).Debug("candidate submitted")

	l.touchLocked()
	l.broadcastSubmissionsLocked()

	return c, nil
}

func (l *Lobby) DeleteCandidate(m Member, id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.memberLocked(m)
	if err != nil {
		return err
	}

	if l.state != StateSubmission {
		return Errorf(ErrInvalidState, "Submissions are closed.")
	}

	if err := l.store.Delete(u.Username, id); err != nil {
		return err
	}

	l.touchLocked()
	l.broadcastSubmissionsLocked()

	return nil
}

// FinalizeSubmissions freezes the pool and opens the first battle. A pool
// of one is crowned without a vote.
func (l *Lobby) FinalizeSubmissions(m Member) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.hostLocked(m, "finalize submissions"); err != nil {
		return err
	}

	if l.state != StateSubmission {
		return Errorf(ErrInvalidState, "Submissions are not open.")
	}

	if l.store.Len() == 0 {
		return Errorf(ErrValidation, "At least one candidate is required.")
	}

	pool := l.store.Freeze()
	l.sched = NewScheduler(pool, l.opts.Seeding, l.opts.TieBreak, l.rng)
	l.touchLocked()

	l.log.WithField("candidates", len(pool)).Info("submissions finalized")

	l.advanceLocked()

	return nil
}

func (l *Lobby) CastVote(m Member, choice string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := l.memberLocked(m)
	if err != nil {
		return err
	}

	if l.state != StateVoting {
		return Errorf(ErrInvalidState, "Voting is not open.")
	}

	c, err := ParseChoice(choice)
	if err != nil {
		return err
	}

	if err := l.sched.Current().Vote(u.Username, c); err != nil {
		return err
	}

	l.touchLocked()
	l.checkAllVotedLocked()

	return nil
}

func (l *Lobby) NextRound(m Member) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.hostLocked(m, "start the next battle"); err != nil {
		return err
	}

	if l.state != StateResults {
		return Errorf(ErrInvalidState, "The current battle has not finished.")
	}

	l.touchLocked()
	l.advanceLocked()

	return nil
}

// Close ends the lobby, telling every connected user why.
func (l *Lobby) Close(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked(reason)
}

func (l *Lobby) advanceLocked() {
	b, ok := l.sched.Next()
	if !ok {
		l.crownLocked()

		return
	}

	l.state = StateVoting

	view := viewBattle(b)

	l.log.WithFields(logrus.Fields{
		"round": b.Round,
		"match": b.Match,
	}).Debug("battle opened")

	l.broadcastLocked(NewRoundMessage{Type: TypeNewRound, Battle: *view})
	l.broadcastLocked(GameStateMessage{Type: TypeGameStateChange, State: l.state, Battle: view})

	l.armVoteTimerLocked()
}

func (l *Lobby) checkAllVotedLocked() {
	b := l.sched.Current()
	if b == nil {
		return
	}

	eligible := 0
	for _, u := range l.users {
		if !u.Connected {
			continue
		}
		eligible++

		if !b.HasVoted(u.Username) {
			return
		}
	}

	if eligible == 0 {
		return
	}

	l.closeBattleLocked()
}

func (l *Lobby) closeBattleLocked() {
	l.cancelVoteTimerLocked()

	result, ok := l.sched.Resolve()
	if !ok {
		return
	}

	l.history = append(l.history, result)
	l.state = StateResults

	l.log.WithFields(logrus.Fields{
		"round":      result.Round,
		"match":      result.Match,
		"votes_a":    result.VotesA,
		"votes_b":    result.VotesB,
		"winner":     result.Winner.ID,
		"tie_broken": result.TieBroken,
	}).Debug("battle closed")

	l.broadcastLocked(RoundResultsMessage{Type: TypeRoundResults, RoundResult: result})
	l.broadcastLocked(GameStateMessage{Type: TypeGameStateChange, State: l.state})

	if _, done := l.sched.Champion(); done {
		l.crownLocked()
	}
}

func (l *Lobby) crownLocked() {
	champion, ok := l.sched.Champion()
	if !ok {
		return
	}

	l.state = StateChampion
	l.champion = &champion

	l.log.WithFields(logrus.Fields{
		"champion": champion.Name,
		"battles":  len(l.history),
	}).Info("champion crowned")

	l.broadcastLocked(GameOverMessage{Type: TypeGameOver, Winner: champion})
	l.broadcastLocked(GameStateMessage{Type: TypeGameStateChange, State: l.state})

	l.archiveLocked(champion)
}

func (l *Lobby) archiveLocked(champion Candidate) {
	archiver := l.opts.Archiver
	if archiver == nil {
		return
	}

	players := make([]string, len(l.order))
	copy(players, l.order)

	rec := newRecord(l.code, l.settings, players, champion, l.history, time.Now())
	log := l.log

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if err := archiver.Archive(ctx, rec); err != nil {
			log.WithError(err).Warn("failed to archive results")
		}
	}()
}

func (l *Lobby) armVoteTimerLocked() {
	l.cancelVoteTimerLocked()

	if l.opts.VoteTimeout <= 0 {
		return
	}

	gen := l.voteGen
	l.voteTimer = time.AfterFunc(l.opts.VoteTimeout, func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.closed || gen != l.voteGen || l.state != StateVoting {
			return
		}

		l.log.Debug("vote timer expired")
		l.closeBattleLocked()
	})
}

func (l *Lobby) cancelVoteTimerLocked() {
	l.voteGen++

	if l.voteTimer != nil {
		l.voteTimer.Stop()
		l.voteTimer = nil
	}
}

func (l *Lobby) armGraceLocked() {
	l.cancelGraceLocked()

	if l.opts.ReconnectGrace <= 0 {
		l.closeLocked(reasonHostDisconnected)

		return
	}

	gen := l.graceGen
	l.graceTimer = time.AfterFunc(l.opts.ReconnectGrace, func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.closed || gen != l.graceGen {
			return
		}

		if host, ok := l.users[l.host]; ok && host.Connected {
			return
		}

		l.closeLocked(reasonHostDisconnected)
	})
}

func (l *Lobby) cancelGraceLocked() {
	l.graceGen++

	if l.graceTimer != nil {
		l.graceTimer.Stop()
		l.graceTimer = nil
	}
}

func (l *Lobby) closeLocked(reason string) {
	if l.closed {
		return
	}
	l.closed = true

	l.cancelVoteTimerLocked()
	l.cancelGraceLocked()

	l.broadcastLocked(LobbyClosedMessage{Type: TypeLobbyClosed, Reason: reason})

	for _, u := range l.users {
		u.Connected = false
		u.sender = nil
	}

	l.log.WithField("reason", reason).Info("lobby closed")

	if l.onClose != nil {
		l.onClose(l)
	}
}

func (l *Lobby) memberLocked(m Member) (*User, error) {
	if l.closed {
		return nil, l.notFound()
	}

	u, ok := l.users[m.Username]
	if !ok || u.ConnID != m.ConnID {
		return nil, Errorf(ErrUnauthorized, "You are not a member of lobby %s.", l.code)
	}

	return u, nil
}

func (l *Lobby) hostLocked(m Member, action string) (*User, error) {
	u, err := l.memberLocked(m)
	if err != nil {
		return nil, err
	}

	if !u.IsHost {
		return nil, Errorf(ErrUnauthorized, "Only the host can %s.", action)
	}

	return u, nil
}

func (l *Lobby) notFound() error {
	return Errorf(ErrNotFound, "Lobby %s not found.", l.code)
}

func (l *Lobby) touchLocked() {
	l.lastActive = time.Now()
}

func (l *Lobby) usersLocked() []UserView {
	out := make([]UserView, 0, len(l.order))

	for _, name := range l.order {
		u := l.users[name]
		out = append(out, UserView{
			Username:  u.Username,
			IsHost:    u.IsHost,
			Connected: u.Connected,
		})
	}

	return out
}

func (l *Lobby) sendLocked(u *User, msg any) {
	if u.Connected && u.sender != nil {
		u.sender.Send(msg)
	}
}

func (l *Lobby) broadcastLocked(msg any) {
	for _, name := range l.order {
		l.sendLocked(l.users[name], msg)
	}
}

func (l *Lobby) broadcastRosterLocked() {
	l.broadcastLocked(UpdateLobbyMessage{
		Type:     TypeUpdateLobby,
		Code:     l.code,
		State:    l.state,
		Host:     l.host,
		Users:    l.usersLocked(),
		Settings: l.settings,
	})
}

func (l *Lobby) submissionUpdateLocked(username string) SubmissionUpdateMessage {
	return SubmissionUpdateMessage{
		Type:         TypeSubmissionUpdate,
		Total:        l.store.Len(),
		MyCandidates: l.store.Owned(username),
		Limit:        l.settings.Limit,
	}
}

// broadcastSubmissionsLocked sends each user the shared total along with
// only their own candidates.
func (l *Lobby) broadcastSubmissionsLocked() {
	for _, name := range l.order {
		u := l.users[name]
		l.sendLocked(u, l.submissionUpdateLocked(u.Username))
	}
}
