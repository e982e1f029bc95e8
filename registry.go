package main

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Registry is the process-wide directory of live sessions. It is constructed
// once and passed explicitly to everything that needs it.
type Registry struct {
	cfg       *Config
	supply    *WordSupply
	images    ImageSource
	suggester Suggester

	mu    sync.RWMutex
	games map[string]*Game
}

func newRegistry(cfg *Config, supply *WordSupply, images ImageSource, suggester Suggester) *Registry {
	return &Registry{
		cfg:       cfg,
		supply:    supply,
		images:    images,
		suggester: suggester,
		games:     make(map[string]*Game),
	}
}

// Create builds a session with a collision-checked human-readable id, deals
// its first round, and stores it.
func (r *Registry) Create(wordListID string) (*Game, error) {
	if wordListID == "" {
		wordListID = standardListID
	}

	if _, err := r.supply.Get(wordListID); err != nil {
		return nil, err
	}

	id := r.newGameID()

	game := newGame(id, wordListID, r.supply, r.images, r.suggester, r.cfg.turnTimer)

	hub := newHub(id, r.cfg.disconnectGrace, r.cfg.sessionGrace)
	hub.setHooks(game.RemovePlayer, func() {
		log.Info().Str("gameID", id).Msg("Session abandoned, deleting")
		r.Delete(id)
	})
	game.hub = hub

	if err := game.ResetRound(); err != nil {
		hub.Close()
		return nil, err
	}

	r.mu.Lock()
	r.games[id] = game
	r.mu.Unlock()

	log.Info().Str("gameID", id).Str("wordListID", wordListID).Msg("Created game session")

	return game, nil
}

// newGameID samples 3 words from the standard list, retrying a handful of
// times against existing ids before falling back to an opaque random id.
func (r *Registry) newGameID() string {
	standard := r.supply.Find(standardListID)

	for range 10 {
		if standard == nil {
			break
		}

		id, err := standard.RandomID(3)
		if err != nil {
			break
		}

		if r.Find(id) == nil {
			return id
		}
	}

	return uuid.NewString()
}

// Find returns nil when no session has the given id.
func (r *Registry) Find(id string) *Game {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.games[id]
}

func (r *Registry) Get(id string) (*Game, error) {
	game := r.Find(id)
	if game == nil {
		return nil, fmt.Errorf("%w: no game with id %q", ErrNotFound, id)
	}

	return game, nil
}

// Delete removes a session and releases its fan-out resources, closing every
// channel and cancelling any pending timers.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	game, ok := r.games[id]
	delete(r.games, id)
	r.mu.Unlock()

	if !ok {
		return
	}

	game.hub.Close()
	log.Info().Str("gameID", id).Msg("Deleted game session")
}
