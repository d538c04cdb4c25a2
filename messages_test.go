/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/Seednode/showdown/games/battle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexInt(t *testing.T) {
	for in, want := range map[string]int{
		`4`:      4,
		`"4"`:    4,
		`" 7 "`:  7,
		`-1`:     -1,
		`"32"`:   32,
		`  12  `: 12,
	} {
		var n flexInt
		require.NoError(t, json.Unmarshal([]byte(in), &n), in)
		assert.Equal(t, flexInt(want), n, in)
	}

	for _, in := range []string{`"four"`, `2.5`, `true`, `""`} {
		var n flexInt
		assert.Error(t, json.Unmarshal([]byte(in), &n), in)
	}
}

func TestDecodeStartGame(t *testing.T) {
	req, err := decode[startGameRequest]([]byte(`{"type":"start_game","code":"ABCD","settings":{"topic":"Food","limit":"3"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Food", req.Settings.Topic)
	assert.Equal(t, 3, req.limit())

	req, err = decode[startGameRequest]([]byte(`{"type":"start_game","code":"ABCD"}`))
	require.NoError(t, err)
	assert.Equal(t, battle.DefaultLimit, req.limit())

	_, err = decode[startGameRequest]([]byte(`{"type":"start_game","code":"ABCD","settings":{"limit":"lots"}}`))
	assert.ErrorIs(t, err, battle.ErrValidation)
}

func TestDecodeRequiresFields(t *testing.T) {
	_, err := decode[createLobbyRequest]([]byte(`{"type":"create_lobby","username":"  "}`))
	assert.ErrorIs(t, err, battle.ErrValidation)

	_, err = decode[joinLobbyRequest]([]byte(`{"type":"join_lobby","username":"Bob"}`))
	assert.ErrorIs(t, err, battle.ErrValidation)

	_, err = decode[deleteCandidateRequest]([]byte(`{"type":"delete_candidate","code":"ABCD"}`))
	assert.ErrorIs(t, err, battle.ErrValidation)

	req, err := decode[deleteCandidateRequest]([]byte(`{"type":"delete_candidate","code":"ABCD","candidate_id":"0"}`))
	require.NoError(t, err)
	assert.Equal(t, flexInt(0), *req.CandidateID)

	_, err = decode[castVoteRequest]([]byte(`{"type":"cast_vote","code":"ABCD"}`))
	assert.ErrorIs(t, err, battle.ErrValidation)

	_, err = decode[lobbyRequest]([]byte(`{"type":"next_round","code":`))
	assert.ErrorIs(t, err, battle.ErrValidation)
}

func testClient(t *testing.T, registry *battle.Registry) *Client {
	t.Helper()

	return newClient(nil, registry, testConfig(t).logger.WithField("test", t.Name()))
}

func queued(c *Client) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestDispatch(t *testing.T) {
	cfg := testConfig(t)
	registry := battle.NewRegistry(cfg.lobbyOptions(), 0)
	t.Cleanup(registry.CloseAll)

	alice := testClient(t, registry)
	bob := testClient(t, registry)

	err := alice.dispatch([]byte(`not json`))
	assert.ErrorIs(t, err, battle.ErrValidation)

	err = alice.dispatch([]byte(`{"type":"dance"}`))
	assert.ErrorIs(t, err, battle.ErrValidation)

	err = alice.dispatch([]byte(`{"type":"cast_vote","code":"ABCD","choice":"A"}`))
	assert.ErrorIs(t, err, battle.ErrInvalidState)

	require.NoError(t, alice.dispatch([]byte(`{"type":"create_lobby","username":"Alice"}`)))
	require.NotNil(t, alice.lobby)
	code := alice.lobby.Code()

	msgs := queued(alice)
	require.NotEmpty(t, msgs)
	created, ok := msgs[0].(battle.LobbyCreatedMessage)
	require.True(t, ok)
	assert.Equal(t, code, created.Code)

	other := "AAAA"
	if code == other {
		other = "BBBB"
	}
	err = alice.dispatch([]byte(`{"type":"start_game","code":"` + other + `"}`))
	assert.ErrorIs(t, err, battle.ErrUnauthorized)

	require.NoError(t, bob.dispatch([]byte(`{"type":"join_lobby","username":"Bob","code":"`+code+`"}`)))

	err = bob.dispatch([]byte(`{"type":"start_game","code":"` + code + `","settings":{"limit":2}}`))
	assert.ErrorIs(t, err, battle.ErrUnauthorized)

	require.NoError(t, alice.dispatch([]byte(`{"type":"start_game","code":"`+code+`","settings":{"topic":"Birds","limit":"2"}}`)))
	assert.Equal(t, battle.StateSubmission, alice.lobby.State())

	require.NoError(t, bob.dispatch([]byte(`{"type":"leave_lobby","code":"`+code+`"}`)))
	assert.Nil(t, bob.lobby)
	assert.Len(t, alice.lobby.Users(), 1)
}

func TestAttachReleasesPreviousLobby(t *testing.T) {
	cfg := testConfig(t)
	registry := battle.NewRegistry(cfg.lobbyOptions(), 0)
	t.Cleanup(registry.CloseAll)

	host := testClient(t, registry)
	require.NoError(t, host.dispatch([]byte(`{"type":"create_lobby","username":"Host"}`)))
	first := host.lobby

	guest := testClient(t, registry)
	require.NoError(t, guest.dispatch([]byte(`{"type":"join_lobby","username":"Guest","code":"`+first.Code()+`"}`)))

	other := testClient(t, registry)
	require.NoError(t, other.dispatch([]byte(`{"type":"create_lobby","username":"Other"}`)))

	require.NoError(t, guest.dispatch([]byte(`{"type":"join_lobby","username":"Guest","code":"`+other.lobby.Code()+`"}`)))
	assert.Same(t, other.lobby, guest.lobby)

	users := first.Users()
	require.Len(t, users, 2)
	assert.False(t, users[1].Connected, "guest no longer listens to the first lobby")
}

func TestSendWhileAttaching(t *testing.T) {
	cfg := testConfig(t)
	registry := battle.NewRegistry(cfg.lobbyOptions(), 0)
	t.Cleanup(registry.CloseAll)

	c := testClient(t, registry)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		for range 2 * sendBuffer {
			c.Send(battle.ErrorMessage{Type: battle.TypeError, Message: "flood"})
		}
	}()

	require.NoError(t, c.dispatch([]byte(`{"type":"create_lobby","username":"Alice"}`)))
	wg.Wait()

	select {
	case <-c.done:
	default:
		t.Fatal("a client with a full buffer should be shut down")
	}
}
