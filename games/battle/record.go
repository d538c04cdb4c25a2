/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"context"
	"time"
)

// Archiver receives a summary of every game that reaches a champion.
type Archiver interface {
	Archive(ctx context.Context, rec Record) error
}

// Entry is a candidate without its image payload.
type Entry struct {
	ID    int    `json:"id"`
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

type ArchivedBattle struct {
	Round     int   `json:"round"`
	Match     int   `json:"match"`
	A         Entry `json:"candidate_a"`
	B         Entry `json:"candidate_b"`
	VotesA    int   `json:"votes_a"`
	VotesB    int   `json:"votes_b"`
	WinnerID  int   `json:"winner_id"`
	TieBroken bool  `json:"tie_broken"`
}

type Record struct {
	Code       string           `json:"code"`
	Topic      string           `json:"topic"`
	Players    []string         `json:"players"`
	Champion   Entry            `json:"champion"`
	Battles    []ArchivedBattle `json:"battles"`
	FinishedAt int64            `json:"finished_at"`
}

func entryOf(c Candidate) Entry {
	return Entry{
		ID:    c.ID,
		Owner: c.Owner,
		Name:  c.Name,
	}
}

func newRecord(code string, settings Settings, players []string, champion Candidate, history []RoundResult, at time.Time) Record {
	rec := Record{
		Code:       code,
		Topic:      settings.Topic,
		Players:    players,
		Champion:   entryOf(champion),
		Battles:    make([]ArchivedBattle, 0, len(history)),
		FinishedAt: at.Unix(),
	}

	for _, r := range history {
		rec.Battles = append(rec.Battles, ArchivedBattle{
			Round:     r.Round,
			Match:     r.Match,
			A:         entryOf(r.A),
			B:         entryOf(r.B),
			VotesA:    r.VotesA,
			VotesB:    r.VotesB,
			WinnerID:  r.Winner.ID,
			TieBroken: r.TieBroken,
		})
	}

	return rec
}
