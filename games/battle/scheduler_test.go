/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(names ...string) []Candidate {
	out := make([]Candidate, len(names))
	for i, name := range names {
		out[i] = Candidate{ID: i, Owner: "alice", Name: name}
	}
	return out
}

func voteFor(t *testing.T, b *Battle, choice Choice, voters ...string) {
	t.Helper()

	for _, v := range voters {
		require.NoError(t, b.Vote(v, choice))
	}
}

func TestSchedulerFourCandidateBracket(t *testing.T) {
	s := NewScheduler(pool("A", "B", "C", "D"), SeedingSubmission, TieBreakEarliest, nil)

	b, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "A", b.A.Name)
	assert.Equal(t, "B", b.B.Name)
	assert.Equal(t, 1, b.Round)
	assert.Equal(t, 1, b.Match)
	voteFor(t, b, ChoiceA, "alice", "bob")

	res, ok := s.Resolve()
	require.True(t, ok)
	assert.Equal(t, "A", res.Winner.Name)
	assert.Equal(t, 2, res.VotesA)
	assert.Zero(t, res.VotesB)
	assert.False(t, res.TieBroken)

	b, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, "C", b.A.Name)
	assert.Equal(t, "D", b.B.Name)
	assert.Equal(t, 2, b.Match)
	voteFor(t, b, ChoiceB, "alice", "bob")

	res, _ = s.Resolve()
	assert.Equal(t, "D", res.Winner.Name)

	_, done := s.Champion()
	assert.False(t, done)

	b, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, 2, b.Round)
	assert.Equal(t, 1, b.Match)
	assert.Equal(t, "A", b.A.Name)
	assert.Equal(t, "D", b.B.Name)
	voteFor(t, b, ChoiceA, "alice")

	_, _ = s.Resolve()

	champion, done := s.Champion()
	require.True(t, done)
	assert.Equal(t, "A", champion.Name)

	_, ok = s.Next()
	assert.False(t, ok)
}

func TestSchedulerByeSeatsFirstInNextRound(t *testing.T) {
	s := NewScheduler(pool("A", "B", "C"), SeedingSubmission, TieBreakEarliest, nil)

	b, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "A", b.A.Name)
	assert.Equal(t, "B", b.B.Name)
	voteFor(t, b, ChoiceB, "alice")
	_, _ = s.Resolve()

	b, ok = s.Next()
	require.True(t, ok)
	assert.Equal(t, 2, b.Round)
	assert.Equal(t, "C", b.A.Name, "the bye candidate opens the next round")
	assert.Equal(t, "B", b.B.Name)
}

func TestSchedulerSingleCandidateIsChampion(t *testing.T) {
	s := NewScheduler(pool("A"), SeedingSubmission, TieBreakEarliest, nil)

	champion, done := s.Champion()
	require.True(t, done)
	assert.Equal(t, "A", champion.Name)

	_, ok := s.Next()
	assert.False(t, ok)
}

func TestSchedulerNextReturnsActiveBattle(t *testing.T) {
	s := NewScheduler(pool("A", "B", "C", "D"), SeedingSubmission, TieBreakEarliest, nil)

	first, _ := s.Next()
	again, _ := s.Next()

	assert.Same(t, first, again)
	assert.Same(t, first, s.Current())
}

func TestSchedulerReducesAnyPoolToOneChampion(t *testing.T) {
	for n := 1; n <= 17; n++ {
		t.Run(fmt.Sprintf("%d candidates", n), func(t *testing.T) {
			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("c%d", i)
			}

			s := NewScheduler(pool(names...), SeedingSubmission, TieBreakEarliest, nil)

			battles := 0
			seen := map[int]bool{}

			for {
				b, ok := s.Next()
				if !ok {
					break
				}

				assert.NotEqual(t, b.A.ID, b.B.ID)
				assert.False(t, seen[b.A.ID], "loser %d battled again", b.A.ID)
				assert.False(t, seen[b.B.ID], "loser %d battled again", b.B.ID)

				voteFor(t, b, ChoiceB, "alice")
				res, _ := s.Resolve()
				seen[res.A.ID] = true
				battles++
			}

			champion, done := s.Champion()
			require.True(t, done)
			assert.Equal(t, 1, s.Remaining())
			assert.Equal(t, n-1, battles, "every battle eliminates exactly one candidate")
			assert.False(t, seen[champion.ID])
		})
	}
}

func TestSchedulerRoundSizesHalve(t *testing.T) {
	s := NewScheduler(pool("A", "B", "C", "D", "E", "F", "G"), SeedingSubmission, TieBreakEarliest, nil)

	perRound := map[int]int{}
	for {
		b, ok := s.Next()
		if !ok {
			break
		}
		perRound[b.Round]++
		voteFor(t, b, ChoiceA, "alice")
		_, _ = s.Resolve()
	}

	// 7 -> 4 -> 2 -> 1
	assert.Equal(t, map[int]int{1: 3, 2: 2, 3: 1}, perRound)
}

func TestTieBreakEarliestPrefersLowerID(t *testing.T) {
	candidates := []Candidate{
		{ID: 5, Name: "late"},
		{ID: 2, Name: "early"},
	}
	s := NewScheduler(candidates, SeedingSubmission, TieBreakEarliest, nil)

	b, _ := s.Next()
	voteFor(t, b, ChoiceA, "alice")
	voteFor(t, b, ChoiceB, "bob")

	res, _ := s.Resolve()
	assert.True(t, res.TieBroken)
	assert.Equal(t, "early", res.Winner.Name)
}

func TestTieBreakWithNoVotes(t *testing.T) {
	s := NewScheduler(pool("A", "B"), SeedingSubmission, TieBreakEarliest, nil)

	_, _ = s.Next()
	res, _ := s.Resolve()

	assert.True(t, res.TieBroken)
	assert.Equal(t, "A", res.Winner.Name)
}

func TestTieBreakRandomPicksBothSides(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	winners := map[string]int{}

	for range 64 {
		s := NewScheduler(pool("A", "B"), SeedingSubmission, TieBreakRandom, rng)
		_, _ = s.Next()
		res, _ := s.Resolve()
		require.True(t, res.TieBroken)
		winners[res.Winner.Name]++
	}

	assert.Positive(t, winners["A"])
	assert.Positive(t, winners["B"])
}

func TestShuffleSeedingKeepsPool(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	s := NewScheduler(pool("A", "B", "C", "D", "E", "F"), SeedingShuffle, TieBreakEarliest, rng)

	var names []string
	for range 3 {
		b, ok := s.Next()
		require.True(t, ok)
		names = append(names, b.A.Name, b.B.Name)
		voteFor(t, b, ChoiceA, "alice")
		_, _ = s.Resolve()
	}

	sort.Strings(names)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, names)
}

func TestBattleRejectsSecondVote(t *testing.T) {
	b := newBattle(1, 1, Candidate{ID: 0}, Candidate{ID: 1})

	require.NoError(t, b.Vote("alice", ChoiceA))
	assert.ErrorIs(t, b.Vote("alice", ChoiceB), ErrAlreadyVoted)

	assert.Equal(t, 1, b.VotesA)
	assert.Zero(t, b.VotesB)
	assert.Equal(t, 1, b.Voters())
	assert.True(t, b.HasVoted("alice"))
	assert.False(t, b.HasVoted("bob"))
}

func TestBattleRetract(t *testing.T) {
	b := newBattle(1, 1, Candidate{ID: 0}, Candidate{ID: 1})

	require.NoError(t, b.Vote("alice", ChoiceA))
	require.NoError(t, b.Vote("bob", ChoiceB))

	b.retract("bob")
	b.retract("carol")

	assert.Equal(t, 1, b.VotesA)
	assert.Zero(t, b.VotesB)
	assert.Equal(t, 1, b.Voters())
	assert.False(t, b.HasVoted("bob"))

	require.NoError(t, b.Vote("bob", ChoiceA))
	assert.Equal(t, 2, b.VotesA)
}

func TestParseChoice(t *testing.T) {
	for in, want := range map[string]Choice{"A": ChoiceA, "b": ChoiceB, " a ": ChoiceA} {
		got, err := ParseChoice(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseChoice("C")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParsePolicies(t *testing.T) {
	tb, err := ParseTieBreak("Random")
	require.NoError(t, err)
	assert.Equal(t, TieBreakRandom, tb)

	_, err = ParseTieBreak("coinflip")
	assert.Error(t, err)

	sd, err := ParseSeeding("shuffle")
	require.NoError(t, err)
	assert.Equal(t, SeedingShuffle, sd)

	_, err = ParseSeeding("seeded")
	assert.Error(t, err)
}
