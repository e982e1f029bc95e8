package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleSpymaster Role = "spymaster"
	RoleOperative Role = "operative"
)

type Location string

const (
	LocationLobby Location = "lobby"
	LocationTable Location = "table"
)

// Player is one participant in a session, keyed by the opaque client id
// issued to their browser.
type Player struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Role     Role     `json:"role"`
	Team     Team     `json:"team"`
	Location Location `json:"location"`
}

type LogMessage struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId,omitempty"`
	Message  string `json:"message"`
}

const logCapacity = 100

// GameView is the serialized form of a session sent to clients, masked or
// not depending on the recipient.
type GameView struct {
	ID         string     `json:"id"`
	WordListID string     `json:"wordListId"`
	Players    []Player   `json:"players"`
	State      BoardState `json:"state"`
}

// Game is the authoritative state machine for one match. A single mutex
// serializes every mutating operation, so two near-simultaneous tile
// selections can never both observe a live board.
type Game struct {
	id         string
	wordListID string

	supply    *WordSupply
	images    ImageSource
	suggester Suggester
	hub       *Hub
	turnTimer time.Duration

	mu        sync.Mutex
	players   map[string]*Player
	usedWords []string
	state     BoardState
	logs      []LogMessage
}

func newGame(id, wordListID string, supply *WordSupply, images ImageSource, suggester Suggester, turnTimer time.Duration) *Game {
	if wordListID == "" {
		wordListID = standardListID
	}

	return &Game{
		id:         id,
		wordListID: wordListID,
		supply:     supply,
		images:     images,
		suggester:  suggester,
		turnTimer:  turnTimer,
		players:    make(map[string]*Player),
	}
}

func (g *Game) ID() string {
	return g.id
}

// ResetRound regenerates the board without logging or broadcasting, used
// when a session is first created.
func (g *Game) ResetRound() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.newRoundLocked()
}

// JoinLobby upserts a player into the lobby. The arrival is only logged the
// first time this client joins, so debounced client updates stay quiet.
func (g *Game) JoinLobby(p Player) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p.Location = LocationLobby
	_, known := g.players[p.ID]
	g.players[p.ID] = &p

	if !known {
		g.appendLogLocked(p.ID, fmt.Sprintf("%s entered the lobby", p.Name))
	}

	g.broadcastStateLocked()
}

// JoinTable seats a player at the table with their chosen role and team.
func (g *Game) JoinTable(p Player) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p.Location = LocationTable
	g.players[p.ID] = &p

	g.appendLogLocked(p.ID, fmt.Sprintf("%s has joined as %s for team %s", p.Name, p.Role, p.Team))
	g.broadcastStateLocked()
}

// RemovePlayer drops a departed client from the roster. Invoked by the hub
// once the disconnect grace period has elapsed without a reconnect.
func (g *Game) RemovePlayer(clientID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[clientID]
	if !ok {
		return
	}

	delete(g.players, clientID)
	g.appendLogLocked("", fmt.Sprintf("%s left the game", p.Name))
	g.broadcastStateLocked()
}

// SelectTile reveals one cell and recomputes the outcome. Revealing a tile
// that does not belong to the acting team passes the turn, unless the
// reveal just ended the game.
func (g *Game) SelectTile(clientID string, index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if index < 0 || index >= len(g.state.Revealed) {
		return fmt.Errorf("%w: tile index %d out of range", ErrInvalidOperation, index)
	}

	if g.state.GameOver {
		return fmt.Errorf("%w: the round is already over", ErrInvalidOperation)
	}

	if g.state.Revealed[index] {
		return fmt.Errorf("%w: tile %d is already revealed", ErrInvalidOperation, index)
	}

	g.state.GameStarted = true
	g.state.Revealed[index] = true

	tile := g.state.Key[index]
	g.appendLogLocked(clientID, fmt.Sprintf("%s revealed %q (%s)", g.playerNameLocked(clientID), g.state.Words[index], tile))

	g.computeDerivedLocked()

	switch {
	case g.state.GameOver:
		g.appendLogLocked("", fmt.Sprintf("Game over, team %s wins!", g.state.Winner))
	case Team(tile) != g.state.Turn:
		g.nextTeamLocked()
	}

	g.broadcastStateLocked()

	return nil
}

// Pass hands the turn to the other team.
func (g *Game) Pass(clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.GameOver {
		return fmt.Errorf("%w: the round is already over", ErrInvalidOperation)
	}

	g.appendLogLocked(clientID, fmt.Sprintf("%s passed the turn", g.playerNameLocked(clientID)))
	g.nextTeamLocked()
	g.broadcastStateLocked()

	return nil
}

// RotateKey turns the secret assignment a quarter-turn clockwise, which is
// only legal before the first reveal.
func (g *Game) RotateKey(clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := rotateBoard(&g.state); err != nil {
		return err
	}

	g.appendLogLocked(clientID, fmt.Sprintf("%s rotated the key", g.playerNameLocked(clientID)))
	g.broadcastStateLocked()

	return nil
}

// StartNewRound regenerates the board. A completed round first returns every
// player to the lobby and retires the revealed words.
func (g *Game) StartNewRound(clientID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.GameOver {
		for _, p := range g.players {
			p.Location = LocationLobby
		}

		revealed := make([]string, 0, len(g.state.Words))
		for i, word := range g.state.Words {
			if g.state.Revealed[i] {
				revealed = append(revealed, word)
			}
		}
		g.usedWords = (&WordList{List: g.usedWords}).Union(revealed).List
	}

	if err := g.newRoundLocked(); err != nil {
		return err
	}

	g.appendLogLocked(clientID, fmt.Sprintf("%s started a new round", g.playerNameLocked(clientID)))
	g.broadcastStateLocked()

	return nil
}

// GetSuggestion partitions the unrevealed words by tile type from the
// caller's perspective and forwards them to the clue collaborator. Only the
// partitioning happens under the session lock; the upstream call does not
// block other operations.
func (g *Game) GetSuggestion(ctx context.Context, clientID string) (*ClueSuggestion, error) {
	g.mu.Lock()

	p, ok := g.players[clientID]
	if !ok || p.Role != RoleSpymaster {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: only spymasters may request clue suggestions", ErrForbidden)
	}

	var req SuggestionRequest

	for i, tile := range g.state.Key {
		if g.state.Revealed[i] {
			continue
		}

		word := g.state.Words[i]

		switch {
		case Team(tile) == p.Team:
			req.Words = append(req.Words, word)
		case tile == TileAssassin:
			req.AssassinWord = word
		case tile == TileBystander:
			req.BystanderWords = append(req.BystanderWords, word)
		default:
			req.OpponentWords = append(req.OpponentWords, word)
		}
	}

	g.appendLogLocked(clientID, fmt.Sprintf("%s requested a clue suggestion", p.Name))
	g.mu.Unlock()

	if g.suggester == nil {
		return nil, fmt.Errorf("%w: no suggestion backend is configured", ErrUpstream)
	}

	return g.suggester.Suggest(ctx, req)
}

// AddLogMessage appends a chat line to the activity log and pushes it to all
// subscribers as a single event.
func (g *Game) AddLogMessage(clientID, text string) LogMessage {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.appendLogLocked(clientID, text)
}

// Logs returns a copy of the bounded activity log, oldest first.
func (g *Game) Logs() []LogMessage {
	g.mu.Lock()
	defer g.mu.Unlock()

	logs := make([]LogMessage, len(g.logs))
	copy(logs, g.logs)

	return logs
}

// View serializes the session for one caller, masking the board unless the
// caller is a spymaster or the game is over.
func (g *Game) View(clientID string) GameView {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.computeDerivedLocked()

	privileged := g.state.GameOver
	if p, ok := g.players[clientID]; ok && p.Role == RoleSpymaster {
		privileged = true
	}

	return g.viewLocked(!privileged)
}

func (g *Game) newRoundLocked() error {
	words, err := g.newWordsLocked()
	if err != nil {
		return err
	}

	key, first := newKey()

	images := make([]string, boardSize)
	if g.images != nil {
		images, err = g.images.TileImages(key)
		if err != nil {
			return err
		}
	}

	totalRed, totalBlue := 8, 9
	if first == TeamRed {
		totalRed, totalBlue = 9, 8
	}

	g.state = BoardState{
		Turn:             first,
		Key:              key,
		Words:            words,
		Revealed:         make([]bool, boardSize),
		RevealTileImages: images,
		TotalRed:         totalRed,
		TotalBlue:        totalBlue,
	}

	g.touchTimerLocked()
	g.computeDerivedLocked()

	return nil
}

// newWordsLocked draws 25 words that have not been seen since the last
// corpus reset. Once fewer than 25 unused words remain, the history is
// cleared and the full corpus becomes eligible again.
func (g *Game) newWordsLocked() ([]string, error) {
	base, err := g.supply.Get(g.wordListID)
	if err != nil {
		return nil, err
	}

	pool := base.Without(g.usedWords)
	if pool.Size() < boardSize {
		g.usedWords = nil
		pool = base
	}

	words, err := pool.Sample(boardSize)
	if err != nil {
		return nil, err
	}

	g.usedWords = (&WordList{List: g.usedWords}).Union(words).List

	return words, nil
}

// computeDerivedLocked recounts the remaining tiles and settles the win
// condition. An assassin reveal ends the game for the team whose turn it
// was, since the turn only passes after the outcome is computed.
func (g *Game) computeDerivedLocked() {
	if len(g.state.Key) != boardSize {
		return
	}

	remainingRed, remainingBlue := 0, 0
	assassinated := false

	for i, tile := range g.state.Key {
		if !g.state.Revealed[i] {
			switch tile {
			case TileRed:
				remainingRed++
			case TileBlue:
				remainingBlue++
			}
		} else if tile == TileAssassin {
			assassinated = true
		}
	}

	g.state.RemainingRed = remainingRed
	g.state.RemainingBlue = remainingBlue

	// the outcome is latched once settled
	if g.state.GameOver {
		return
	}

	g.state.GameOver = remainingRed == 0 || remainingBlue == 0 || assassinated

	switch {
	case !g.state.GameOver:
		g.state.Winner = ""
	case assassinated:
		g.state.Winner = g.state.Turn.Opponent()
	case remainingRed == 0:
		g.state.Winner = TeamRed
	default:
		g.state.Winner = TeamBlue
	}
}

func (g *Game) nextTeamLocked() {
	g.state.Turn = g.state.Turn.Opponent()
	g.touchTimerLocked()
}

func (g *Game) touchTimerLocked() {
	if g.turnTimer <= 0 {
		g.state.TimerEnd = nil
		return
	}

	deadline := time.Now().Add(g.turnTimer)
	g.state.TimerEnd = &deadline
}

func (g *Game) appendLogLocked(clientID, text string) LogMessage {
	entry := LogMessage{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Message:  text,
	}

	g.logs = append(g.logs, entry)
	if len(g.logs) > logCapacity {
		g.logs = g.logs[len(g.logs)-logCapacity:]
	}

	log.Debug().Str("gameID", g.id).Str("clientID", clientID).Str("message", text).Msg("Activity log entry")

	if g.hub != nil {
		g.hub.Broadcast(eventLogMessage, entry, nil, nil)
	}

	return entry
}

func (g *Game) playerNameLocked(clientID string) string {
	if p, ok := g.players[clientID]; ok && p.Name != "" {
		return p.Name
	}

	return "A player"
}

func (g *Game) spymasterIDsLocked() []string {
	var ids []string

	for id, p := range g.players {
		if p.Role == RoleSpymaster {
			ids = append(ids, id)
		}
	}

	return ids
}

// broadcastStateLocked pushes the new state to every subscriber: one
// unmasked serialization for spymasters, one masked for everyone else. Once
// the game is over the board is revealed to all in a single broadcast.
func (g *Game) broadcastStateLocked() {
	if g.hub == nil {
		return
	}

	g.computeDerivedLocked()

	full := g.viewLocked(false)

	if g.state.GameOver {
		g.hub.Broadcast(eventStateChanged, full, nil, nil)
		return
	}

	spymasters := g.spymasterIDsLocked()
	if len(spymasters) > 0 {
		g.hub.Broadcast(eventStateChanged, full, spymasters, nil)
	}

	g.hub.Broadcast(eventStateChanged, g.viewLocked(true), nil, spymasters)
}

// viewLocked snapshots the session into an independent serializable value,
// withholding the key and all unrevealed artwork when masked.
func (g *Game) viewLocked(masked bool) GameView {
	state := g.state

	state.Key = append([]TileType(nil), g.state.Key...)
	state.Words = append([]string(nil), g.state.Words...)
	state.Revealed = append([]bool(nil), g.state.Revealed...)
	state.RevealTileImages = append([]string(nil), g.state.RevealTileImages...)

	if masked {
		state = maskState(state)
	}

	players := make([]Player, 0, len(g.players))
	for _, p := range g.players {
		players = append(players, *p)
	}

	sort.Slice(players, func(i, j int) bool {
		return players[i].Name < players[j].Name
	})

	return GameView{
		ID:         g.id,
		WordListID: g.wordListID,
		Players:    players,
		State:      state,
	}
}
