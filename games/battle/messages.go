/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import "errors"

// Server-to-client messages. Each carries its event name in Type so the
// gateway can write it as a single JSON frame.

const (
	TypeLobbyCreated     = "lobby_created"
	TypeJoinedLobby      = "joined_lobby"
	TypeUpdateLobby      = "update_lobby"
	TypeGameStateChange  = "game_state_change"
	TypeSubmissionUpdate = "submission_update"
	TypeNewRound         = "new_round"
	TypeRoundResults     = "round_results"
	TypeGameOver         = "game_over"
	TypeLobbyClosed      = "lobby_closed"
	TypePlayerLeft       = "player_left"
	TypeError            = "error"
)

type UserView struct {
	Username  string `json:"username"`
	IsHost    bool   `json:"is_host"`
	Connected bool   `json:"connected"`
}

type BattleView struct {
	Round      int       `json:"round"`
	Match      int       `json:"match"`
	CandidateA Candidate `json:"candidate_a"`
	CandidateB Candidate `json:"candidate_b"`
}

func viewBattle(b *Battle) *BattleView {
	if b == nil {
		return nil
	}

	return &BattleView{
		Round:      b.Round,
		Match:      b.Match,
		CandidateA: b.A,
		CandidateB: b.B,
	}
}

type LobbyCreatedMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Username string `json:"username"`
}

type JoinedLobbyMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Username string `json:"username"`
	IsHost   bool   `json:"is_host"`
}

type UpdateLobbyMessage struct {
	Type     string     `json:"type"`
	Code     string     `json:"code"`
	State    State      `json:"state"`
	Host     string     `json:"host"`
	Users    []UserView `json:"users"`
	Settings Settings   `json:"settings"`
}

type GameStateMessage struct {
	Type     string      `json:"type"`
	State    State       `json:"state"`
	Settings *Settings   `json:"settings,omitempty"`
	Battle   *BattleView `json:"battle,omitempty"`
}

type SubmissionUpdateMessage struct {
	Type         string      `json:"type"`
	Total        int         `json:"total"`
	MyCandidates []Candidate `json:"my_candidates"`
	Limit        int         `json:"limit"`
}

type NewRoundMessage struct {
	Type   string     `json:"type"`
	Battle BattleView `json:"battle"`
}

type RoundResultsMessage struct {
	Type string `json:"type"`
	RoundResult
}

type GameOverMessage struct {
	Type   string    `json:"type"`
	Winner Candidate `json:"winner"`
}

type LobbyClosedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type PlayerLeftMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage renders err for the player whose action caused it.
// Errors outside the lobby taxonomy are not shown verbatim.
func NewErrorMessage(err error) ErrorMessage {
	msg := "Something went wrong."

	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
	}

	return ErrorMessage{
		Type:    TypeError,
		Message: msg,
	}
}
