/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
)

func ParseChoice(s string) (Choice, error) {
	switch Choice(strings.ToUpper(strings.TrimSpace(s))) {
	case ChoiceA:
		return ChoiceA, nil
	case ChoiceB:
		return ChoiceB, nil
	}

	return "", Errorf(ErrValidation, "Invalid vote choice %q.", s)
}

// TieBreak decides the winner of a battle whose votes are even.
type TieBreak string

const (
	TieBreakEarliest TieBreak = "earliest"
	TieBreakRandom   TieBreak = "random"
)

// Seeding decides the order in which the frozen pool enters the first round.
type Seeding string

const (
	SeedingSubmission Seeding = "submission"
	SeedingShuffle    Seeding = "shuffle"
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch t := TieBreak(strings.ToLower(s)); t {
	case TieBreakEarliest, TieBreakRandom:
		return t, nil
	}

	return "", fmt.Errorf("unknown tie-break policy %q (must be %q or %q)", s, TieBreakEarliest, TieBreakRandom)
}

func ParseSeeding(s string) (Seeding, error) {
	switch p := Seeding(strings.ToLower(s)); p {
	case SeedingSubmission, SeedingShuffle:
		return p, nil
	}

	return "", fmt.Errorf("unknown seeding policy %q (must be %q or %q)", s, SeedingSubmission, SeedingShuffle)
}

// Battle is a single head-to-head match. Voters maps usernames to the side
// they picked.
type Battle struct {
	Round  int
	Match  int
	A      Candidate
	B      Candidate
	VotesA int
	VotesB int
	voters map[string]Choice
}

func newBattle(round, match int, a, b Candidate) *Battle {
	return &Battle{
		Round:  round,
		Match:  match,
		A:      a,
		B:      b,
		voters: make(map[string]Choice),
	}
}

func (b *Battle) Vote(username string, choice Choice) error {
	if _, ok := b.voters[username]; ok {
		return Errorf(ErrAlreadyVoted, "You have already voted in this battle.")
	}

	b.voters[username] = choice

	switch choice {
	case ChoiceA:
		b.VotesA++
	case ChoiceB:
		b.VotesB++
	}

	return nil
}

// retract withdraws the ballot of a user who has left the lobby.
func (b *Battle) retract(username string) {
	choice, ok := b.voters[username]
	if !ok {
		return
	}

	delete(b.voters, username)

	switch choice {
	case ChoiceA:
		b.VotesA--
	case ChoiceB:
		b.VotesB--
	}
}

func (b *Battle) HasVoted(username string) bool {
	_, ok := b.voters[username]
	return ok
}

func (b *Battle) Voters() int {
	return len(b.voters)
}

type RoundResult struct {
	Round     int       `json:"round"`
	Match     int       `json:"match"`
	A         Candidate `json:"candidate_a"`
	B         Candidate `json:"candidate_b"`
	VotesA    int       `json:"votes_a"`
	VotesB    int       `json:"votes_b"`
	Winner    Candidate `json:"winner"`
	TieBroken bool      `json:"tie_broken"`
}

// Scheduler reduces a pool of candidates to a single champion through
// rounds of sequential battles. A round with an odd number of contenders
// gives the last one a bye, seating it first in the following round.
type Scheduler struct {
	round    int
	match    int
	queue    []Candidate
	next     []Candidate
	active   *Battle
	tieBreak TieBreak
	rng      *rand.Rand
}

func NewScheduler(pool []Candidate, seeding Seeding, tieBreak TieBreak, rng *rand.Rand) *Scheduler {
	s := &Scheduler{
		tieBreak: tieBreak,
		rng:      rng,
	}

	order := make([]Candidate, len(pool))
	copy(order, pool)

	if seeding == SeedingShuffle && rng != nil {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	s.beginRound(order)

	return s
}

func (s *Scheduler) beginRound(contenders []Candidate) {
	s.round++
	s.match = 0
	s.next = nil

	if len(contenders) > 1 && len(contenders)%2 == 1 {
		bye := contenders[len(contenders)-1]
		contenders = contenders[:len(contenders)-1]
		s.next = append(s.next, bye)
	}

	s.queue = contenders
}

// Next returns the battle to vote on, starting a new round when the current
// one is exhausted. It reports false once a champion has been determined.
func (s *Scheduler) Next() (*Battle, bool) {
	if s.active != nil {
		return s.active, true
	}

	for len(s.queue) < 2 {
		if len(s.queue) == 1 {
			s.next = append(s.next, s.queue[0])
			s.queue = nil
		}

		if len(s.next) <= 1 {
			return nil, false
		}

		s.beginRound(s.next)
	}

	a, b := s.queue[0], s.queue[1]
	s.queue = s.queue[2:]
	s.match++

	s.active = newBattle(s.round, s.match, a, b)

	return s.active, true
}

// Current returns the battle awaiting votes, if any.
func (s *Scheduler) Current() *Battle {
	return s.active
}

// Resolve closes the active battle and advances its winner.
func (s *Scheduler) Resolve() (RoundResult, bool) {
	b := s.active
	if b == nil {
		return RoundResult{}, false
	}
	s.active = nil

	result := RoundResult{
		Round:  b.Round,
		Match:  b.Match,
		A:      b.A,
		B:      b.B,
		VotesA: b.VotesA,
		VotesB: b.VotesB,
	}

	switch {
	case b.VotesA > b.VotesB:
		result.Winner = b.A
	case b.VotesB > b.VotesA:
		result.Winner = b.B
	default:
		result.Winner = s.breakTie(b.A, b.B)
		result.TieBroken = true
	}

	s.next = append(s.next, result.Winner)

	return result, true
}

func (s *Scheduler) breakTie(a, b Candidate) Candidate {
	if s.tieBreak == TieBreakRandom && s.rng != nil {
		if s.rng.IntN(2) == 0 {
			return a
		}
		return b
	}

	if b.ID < a.ID {
		return b
	}
	return a
}

// Remaining counts the candidates still in contention.
func (s *Scheduler) Remaining() int {
	n := len(s.queue) + len(s.next)
	if s.active != nil {
		n += 2
	}
	return n
}

// Round returns the number of the round in progress.
func (s *Scheduler) Round() int {
	return s.round
}

// Champion returns the last candidate standing once no battles remain.
func (s *Scheduler) Champion() (Candidate, bool) {
	if s.active != nil || s.Remaining() != 1 {
		return Candidate{}, false
	}

	if len(s.queue) == 1 {
		return s.queue[0], true
	}
	return s.next[0], true
}
