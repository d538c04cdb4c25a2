/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Seednode/showdown/games/battle"
)

// flexInt accepts a JSON number or a string holding one.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}

	*n = flexInt(v)

	return nil
}

type validator interface {
	validate() error
}

type envelope struct {
	Type string `json:"type"`
}

type createLobbyRequest struct {
	Username string `json:"username"`
}

func (r createLobbyRequest) validate() error {
	return requireField("username", r.Username)
}

// joinLobbyRequest serves both join_lobby and rejoin_lobby.
type joinLobbyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

func (r joinLobbyRequest) validate() error {
	if err := requireField("username", r.Username); err != nil {
		return err
	}
	return requireField("code", r.Code)
}

type lobbyRequest struct {
	Code string `json:"code"`
}

func (r lobbyRequest) validate() error {
	return requireField("code", r.Code)
}

type startGameRequest struct {
	Code     string `json:"code"`
	Settings struct {
		Topic string   `json:"topic"`
		Limit *flexInt `json:"limit"`
	} `json:"settings"`
}

func (r startGameRequest) validate() error {
	return requireField("code", r.Code)
}

func (r startGameRequest) limit() int {
	if r.Settings.Limit == nil {
		return battle.DefaultLimit
	}
	return int(*r.Settings.Limit)
}

type submitCandidateRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

func (r submitCandidateRequest) validate() error {
	return requireField("code", r.Code)
}

type deleteCandidateRequest struct {
	Code        string   `json:"code"`
	CandidateID *flexInt `json:"candidate_id"`
}

func (r deleteCandidateRequest) validate() error {
	if err := requireField("code", r.Code); err != nil {
		return err
	}
	if r.CandidateID == nil {
		return battle.Errorf(battle.ErrValidation, "Missing candidate_id.")
	}
	return nil
}

type castVoteRequest struct {
	Code   string `json:"code"`
	Choice string `json:"choice"`
}

func (r castVoteRequest) validate() error {
	if err := requireField("code", r.Code); err != nil {
		return err
	}
	return requireField("choice", r.Choice)
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return battle.Errorf(battle.ErrValidation, "Missing %s.", name)
	}
	return nil
}

func decode[T validator](data []byte) (T, error) {
	var req T

	if err := json.Unmarshal(data, &req); err != nil {
		return req, battle.Errorf(battle.ErrValidation, "Malformed event payload.")
	}

	return req, req.validate()
}

type handlerFunc func(c *Client, data []byte) error

var handlers = map[string]handlerFunc{
	"create_lobby":         handleCreateLobby,
	"join_lobby":           handleJoinLobby,
	"rejoin_lobby":         handleRejoinLobby,
	"leave_lobby":          handleLeaveLobby,
	"start_game":           handleStartGame,
	"submit_candidate":     handleSubmitCandidate,
	"delete_candidate":     handleDeleteCandidate,
	"finalize_submissions": handleFinalizeSubmissions,
	"cast_vote":            handleCastVote,
	"next_round":           handleNextRound,
}

func (c *Client) dispatch(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return battle.Errorf(battle.ErrValidation, "Malformed event.")
	}

	handle, ok := handlers[env.Type]
	if !ok {
		return battle.Errorf(battle.ErrValidation, "Unknown event %q.", env.Type)
	}

	return handle(c, data)
}

func handleCreateLobby(c *Client, data []byte) error {
	req, err := decode[createLobbyRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.registry.Create(req.Username, c.id, c)
	if err != nil {
		return err
	}

	c.attach(l, m)

	return nil
}

func handleJoinLobby(c *Client, data []byte) error {
	req, err := decode[joinLobbyRequest](data)
	if err != nil {
		return err
	}

	l, err := c.registry.Get(req.Code)
	if err != nil {
		return err
	}

	m, err := l.Join(req.Username, c.id, c)
	if err != nil {
		return err
	}

	c.attach(l, m)

	return nil
}

func handleRejoinLobby(c *Client, data []byte) error {
	req, err := decode[joinLobbyRequest](data)
	if err != nil {
		return err
	}

	l, err := c.registry.Get(req.Code)
	if err != nil {
		return err
	}

	m, err := l.Rejoin(req.Username, c.id, c)
	if err != nil {
		return err
	}

	c.attach(l, m)

	return nil
}

func handleLeaveLobby(c *Client, data []byte) error {
	req, err := decode[lobbyRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.session(req.Code)
	if err != nil {
		return err
	}

	if err := l.Leave(m); err != nil {
		return err
	}

	c.lobby = nil
	c.member = battle.Member{}

	return nil
}

func handleStartGame(c *Client, data []byte) error {
	req, err := decode[startGameRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.session(req.Code)
	if err != nil {
		return err
	}

	return l.StartGame(m, req.Settings.Topic, req.limit())
}

func handleSubmitCandidate(c *Client, data []byte) error {
	req, err := decode[submitCandidateRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.session(req.Code)
	if err != nil {
		return err
	}

	_, err = l.SubmitCandidate(m, req.Name, req.Image)

	return err
}

func handleDeleteCandidate(c *Client, data []byte) error {
	req, err := decode[deleteCandidateRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.session(req.Code)
	if err != nil {
		return err
	}

	return l.DeleteCandidate(m, int(*req.CandidateID))
}

func handleFinalizeSubmissions(c *Client, data []byte) error {
	req, err := decode[lobbyRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.session(req.Code)
	if err != nil {
		return err
	}

	return l.FinalizeSubmissions(m)
}

func handleCastVote(c *Client, data []byte) error {
	req, err := decode[castVoteRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.session(req.Code)
	if err != nil {
		return err
	}

	return l.CastVote(m, req.Choice)
}

func handleNextRound(c *Client, data []byte) error {
	req, err := decode[lobbyRequest](data)
	if err != nil {
		return err
	}

	l, m, err := c.session(req.Code)
	if err != nil {
		return err
	}

	return l.NextRound(m)
}
