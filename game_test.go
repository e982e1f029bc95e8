package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type stubImages struct{}

func (stubImages) TileImages(key []TileType) ([]string, error) {
	images := make([]string, len(key))
	for i, tile := range key {
		images[i] = fmt.Sprintf("/static/images/%s/%d.jpg", tile, i)
	}

	return images, nil
}

type fakeSuggester struct {
	req  SuggestionRequest
	resp ClueSuggestion
}

func (f *fakeSuggester) Suggest(_ context.Context, req SuggestionRequest) (*ClueSuggestion, error) {
	f.req = req
	return &f.resp, nil
}

func newTestGame(t *testing.T) *Game {
	t.Helper()

	g := newGame("apple-banana-cherry", standardListID, testSupply(60), stubImages{}, nil, 0)
	g.hub = newHub(g.id, time.Hour, time.Hour)

	if err := g.ResetRound(); err != nil {
		t.Fatalf("failed to deal the first round: %v", err)
	}

	return g
}

func tileIndex(g *Game, tile TileType, revealed bool) int {
	for i, t := range g.state.Key {
		if t == tile && g.state.Revealed[i] == revealed {
			return i
		}
	}

	return -1
}

func countRevealed(g *Game, tile TileType) int {
	count := 0
	for i, t := range g.state.Key {
		if t == tile && g.state.Revealed[i] {
			count++
		}
	}

	return count
}

func TestFreshRoundState(t *testing.T) {
	g := newTestGame(t)

	if g.state.GameStarted || g.state.GameOver {
		t.Fatal("fresh round must be neither started nor over")
	}

	if g.state.Winner != "" {
		t.Fatal("fresh round must not have a winner")
	}

	if len(g.state.Words) != boardSize || len(g.state.Revealed) != boardSize ||
		len(g.state.Key) != boardSize || len(g.state.RevealTileImages) != boardSize {
		t.Fatal("board slices must all have length 25")
	}

	if g.state.TotalRed+g.state.TotalBlue != 17 {
		t.Fatalf("expected 17 team tiles, got %d", g.state.TotalRed+g.state.TotalBlue)
	}

	first := g.state.Turn
	expected := 9
	if (first == TeamRed && g.state.TotalRed != expected) ||
		(first == TeamBlue && g.state.TotalBlue != expected) {
		t.Fatal("the starting team must draw 9 tiles")
	}
}

func TestSelectTileTurnRules(t *testing.T) {
	g := newTestGame(t)
	turn := g.state.Turn

	own := tileIndex(g, TileType(turn), false)
	if err := g.SelectTile("c1", own); err != nil {
		t.Fatalf("selecting an own-team tile failed: %v", err)
	}

	if g.state.Turn != turn {
		t.Fatal("turn must not pass after revealing an own-team tile")
	}

	if !g.state.GameStarted {
		t.Fatal("the first reveal must mark the game as started")
	}

	opposing := tileIndex(g, TileType(turn.Opponent()), false)
	if err := g.SelectTile("c1", opposing); err != nil {
		t.Fatalf("selecting an opposing tile failed: %v", err)
	}

	if g.state.Turn != turn.Opponent() {
		t.Fatal("turn must pass after revealing an opposing tile")
	}
}

func TestSelectTileBystanderPassesTurn(t *testing.T) {
	g := newTestGame(t)
	turn := g.state.Turn

	if err := g.SelectTile("c1", tileIndex(g, TileBystander, false)); err != nil {
		t.Fatalf("selecting a bystander failed: %v", err)
	}

	if g.state.Turn != turn.Opponent() {
		t.Fatal("turn must pass after revealing a bystander")
	}

	if g.state.GameOver {
		t.Fatal("a bystander reveal must not end the game")
	}
}

func TestSelectTileGuards(t *testing.T) {
	g := newTestGame(t)

	if err := g.SelectTile("c1", -1); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for a negative index, got %v", err)
	}

	if err := g.SelectTile("c1", boardSize); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for an out-of-range index, got %v", err)
	}

	if err := g.SelectTile("c1", tileIndex(g, TileAssassin, false)); err != nil {
		t.Fatalf("revealing the assassin failed: %v", err)
	}

	if err := g.SelectTile("c1", 0); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation after game over, got %v", err)
	}
}

func TestRemainingCountsInvariant(t *testing.T) {
	g := newTestGame(t)

	reveal := []int{
		tileIndex(g, TileRed, false),
		tileIndex(g, TileBlue, false),
		tileIndex(g, TileBystander, false),
	}

	for _, index := range reveal {
		if g.state.GameOver {
			break
		}

		if err := g.SelectTile("c1", index); err != nil {
			t.Fatalf("reveal failed: %v", err)
		}

		if g.state.RemainingRed+countRevealed(g, TileRed) != g.state.TotalRed {
			t.Fatal("red remaining + revealed must equal the red total")
		}

		if g.state.RemainingBlue+countRevealed(g, TileBlue) != g.state.TotalBlue {
			t.Fatal("blue remaining + revealed must equal the blue total")
		}
	}
}

func TestAssassinEndsGameForRevealer(t *testing.T) {
	g := newTestGame(t)
	turn := g.state.Turn

	if err := g.SelectTile("c1", tileIndex(g, TileAssassin, false)); err != nil {
		t.Fatalf("revealing the assassin failed: %v", err)
	}

	if !g.state.GameOver {
		t.Fatal("revealing the assassin must end the game")
	}

	if g.state.Winner != turn.Opponent() {
		t.Fatalf("the revealing team must lose: winner is %s, revealer was %s", g.state.Winner, turn)
	}
}

func TestWinByExhaustion(t *testing.T) {
	g := newTestGame(t)
	turn := g.state.Turn

	for {
		index := tileIndex(g, TileType(turn), false)
		if index == -1 {
			break
		}

		if err := g.SelectTile("c1", index); err != nil {
			t.Fatalf("reveal failed: %v", err)
		}
	}

	if !g.state.GameOver {
		t.Fatal("revealing every team tile must end the game")
	}

	if g.state.Winner != turn {
		t.Fatalf("expected %s to win, got %s", turn, g.state.Winner)
	}
}

func TestWinnerNeverSetWhileRunning(t *testing.T) {
	g := newTestGame(t)

	for _, tile := range []TileType{TileRed, TileBlue, TileBystander} {
		if err := g.SelectTile("c1", tileIndex(g, tile, false)); err != nil {
			t.Fatalf("reveal failed: %v", err)
		}

		if !g.state.GameOver && g.state.Winner != "" {
			t.Fatal("winner must stay empty while the game is running")
		}
	}
}

func TestPassTogglesTurn(t *testing.T) {
	g := newTestGame(t)
	turn := g.state.Turn

	if err := g.Pass("c1"); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	if g.state.Turn != turn.Opponent() {
		t.Fatal("pass must hand the turn to the other team")
	}
}

func TestWinnerIsStableAfterGameOver(t *testing.T) {
	g := newTestGame(t)
	turn := g.state.Turn

	if err := g.SelectTile("c1", tileIndex(g, TileAssassin, false)); err != nil {
		t.Fatalf("revealing the assassin failed: %v", err)
	}

	winner := g.state.Winner
	if winner != turn.Opponent() {
		t.Fatalf("expected %s to win, got %s", turn.Opponent(), winner)
	}

	if err := g.Pass("c1"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation passing after game over, got %v", err)
	}

	// force the turn anyway; the recorded outcome must not follow it
	g.mu.Lock()
	g.state.Turn = g.state.Turn.Opponent()
	g.mu.Unlock()

	if view := g.View("c1"); view.State.Winner != winner {
		t.Fatalf("the winner drifted from %s to %s after the game ended", winner, view.State.Winner)
	}

	if g.state.Winner != winner {
		t.Fatalf("expected the winner to stay %s, got %s", winner, g.state.Winner)
	}
}

func TestSelectTileRejectsRevealedTile(t *testing.T) {
	g := newTestGame(t)
	turn := g.state.Turn

	index := tileIndex(g, TileType(turn), false)
	if err := g.SelectTile("c1", index); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}

	logged := len(g.Logs())

	if err := g.SelectTile("c1", index); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation re-revealing a tile, got %v", err)
	}

	if g.state.Turn != turn {
		t.Fatal("a rejected reveal must not move the turn")
	}

	if len(g.Logs()) != logged {
		t.Fatal("a rejected reveal must not be logged")
	}
}

func TestRotateKeyAfterStart(t *testing.T) {
	g := newTestGame(t)

	if err := g.RotateKey("c1"); err != nil {
		t.Fatalf("pre-start rotation failed: %v", err)
	}

	if err := g.SelectTile("c1", tileIndex(g, TileBystander, false)); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}

	if err := g.RotateKey("c1"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation after the first reveal, got %v", err)
	}
}

func TestJoinLobbyLogsOnlyFirstJoin(t *testing.T) {
	g := newTestGame(t)

	g.JoinLobby(Player{ID: "c1", Name: "Ana"})
	g.JoinLobby(Player{ID: "c1", Name: "Ana"})

	entries := 0
	for _, entry := range g.Logs() {
		if strings.Contains(entry.Message, "entered the lobby") {
			entries++
		}
	}

	if entries != 1 {
		t.Fatalf("expected one lobby log entry, got %d", entries)
	}
}

func TestStartNewRoundAfterGameOver(t *testing.T) {
	g := newTestGame(t)

	g.JoinTable(Player{ID: "c1", Name: "Ana", Role: RoleSpymaster, Team: TeamRed})
	g.JoinTable(Player{ID: "c2", Name: "Ben", Role: RoleOperative, Team: TeamBlue})

	assassin := tileIndex(g, TileAssassin, false)
	revealedWord := g.state.Words[assassin]

	if err := g.SelectTile("c2", assassin); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}

	if err := g.StartNewRound("c1"); err != nil {
		t.Fatalf("StartNewRound failed: %v", err)
	}

	for _, p := range g.players {
		if p.Location != LocationLobby {
			t.Fatalf("player %s must be back in the lobby, is at %s", p.Name, p.Location)
		}
	}

	if len(g.players) != 2 {
		t.Fatal("the roster must survive a new round")
	}

	used := false
	for _, word := range g.usedWords {
		if word == revealedWord {
			used = true
			break
		}
	}
	if !used {
		t.Fatalf("revealed word %q must be retired into the used pool", revealedWord)
	}

	if g.state.GameStarted || g.state.GameOver {
		t.Fatal("the new round must be fresh")
	}

	for _, revealed := range g.state.Revealed {
		if revealed {
			t.Fatal("no tile may start revealed")
		}
	}
}

func TestMaskedView(t *testing.T) {
	g := newTestGame(t)

	g.JoinTable(Player{ID: "spy", Name: "Ana", Role: RoleSpymaster, Team: TeamRed})
	g.JoinTable(Player{ID: "op", Name: "Ben", Role: RoleOperative, Team: TeamBlue})

	revealed := tileIndex(g, TileBystander, false)
	if err := g.SelectTile("op", revealed); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}

	masked := g.View("op")

	if masked.State.Key != nil {
		t.Fatal("an operative's view must not contain the key")
	}

	for i, image := range masked.State.RevealTileImages {
		if masked.State.Revealed[i] && image == "" {
			t.Errorf("revealed tile %d lost its artwork", i)
		}

		if !masked.State.Revealed[i] && image != "" {
			t.Errorf("unrevealed tile %d leaked artwork %q", i, image)
		}
	}

	full := g.View("spy")

	if len(full.State.Key) != boardSize {
		t.Fatal("a spymaster's view must contain the key")
	}

	for i, image := range full.State.RevealTileImages {
		if image == "" {
			t.Errorf("spymaster view missing artwork at %d", i)
		}
	}

	if err := g.SelectTile("op", tileIndex(g, TileAssassin, false)); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}

	if endView := g.View("op"); len(endView.State.Key) != boardSize {
		t.Fatal("everyone sees the key once the game is over")
	}
}

func TestSuggestionRequiresSpymaster(t *testing.T) {
	g := newTestGame(t)
	g.suggester = &fakeSuggester{}

	g.JoinTable(Player{ID: "op", Name: "Ben", Role: RoleOperative, Team: TeamBlue})

	if _, err := g.GetSuggestion(context.Background(), "op"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for an operative, got %v", err)
	}

	if _, err := g.GetSuggestion(context.Background(), "stranger"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for an unknown caller, got %v", err)
	}
}

func TestSuggestionPartition(t *testing.T) {
	g := newTestGame(t)
	suggester := &fakeSuggester{resp: ClueSuggestion{Message: "ocean 3"}}
	g.suggester = suggester

	g.JoinTable(Player{ID: "spy", Name: "Ana", Role: RoleSpymaster, Team: TeamRed})

	suggestion, err := g.GetSuggestion(context.Background(), "spy")
	if err != nil {
		t.Fatalf("GetSuggestion failed: %v", err)
	}

	if suggestion.Message != "ocean 3" {
		t.Fatalf("the collaborator's response must pass through unmodified, got %q", suggestion.Message)
	}

	if len(suggester.req.Words) != g.state.TotalRed {
		t.Errorf("expected %d own-team words, got %d", g.state.TotalRed, len(suggester.req.Words))
	}

	if len(suggester.req.OpponentWords) != g.state.TotalBlue {
		t.Errorf("expected %d opposing words, got %d", g.state.TotalBlue, len(suggester.req.OpponentWords))
	}

	if len(suggester.req.BystanderWords) != bystanderCount {
		t.Errorf("expected %d bystander words, got %d", bystanderCount, len(suggester.req.BystanderWords))
	}

	if suggester.req.AssassinWord == "" {
		t.Error("expected an assassin word")
	}
}

func TestSuggestionWithNoOwnWordsLeft(t *testing.T) {
	g := newTestGame(t)
	suggester := &fakeSuggester{}
	g.suggester = suggester

	g.JoinTable(Player{ID: "spy", Name: "Ana", Role: RoleSpymaster, Team: TeamRed})

	for i, tile := range g.state.Key {
		if tile == TileRed {
			g.state.Revealed[i] = true
		}
	}

	if _, err := g.GetSuggestion(context.Background(), "spy"); err != nil {
		t.Fatalf("GetSuggestion with no own-team words failed: %v", err)
	}

	if len(suggester.req.Words) != 0 {
		t.Fatalf("expected no own-team words, got %d", len(suggester.req.Words))
	}
}

func TestLogRingCap(t *testing.T) {
	g := newTestGame(t)

	for i := 0; i < 120; i++ {
		g.AddLogMessage("c1", fmt.Sprintf("message %d", i))
	}

	logs := g.Logs()
	if len(logs) != logCapacity {
		t.Fatalf("expected the log to cap at %d entries, got %d", logCapacity, len(logs))
	}

	if last := logs[len(logs)-1]; last.Message != "message 119" {
		t.Fatalf("expected the newest entry to survive, got %q", last.Message)
	}

	if last := logs[len(logs)-1]; last.ClientID != "c1" {
		t.Fatalf("expected the author to be recorded, got %q", last.ClientID)
	}
}

func TestRemovePlayerLogsDeparture(t *testing.T) {
	g := newTestGame(t)

	g.JoinTable(Player{ID: "c1", Name: "Ana", Role: RoleOperative, Team: TeamRed})
	g.RemovePlayer("c1")

	if _, ok := g.players["c1"]; ok {
		t.Fatal("the player must be removed from the roster")
	}

	found := false
	for _, entry := range g.Logs() {
		if strings.Contains(entry.Message, "Ana left the game") {
			found = true
		}
	}

	if !found {
		t.Fatal("expected a departure log entry")
	}
}
