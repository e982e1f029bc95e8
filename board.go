package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"time"
)

type Team string

const (
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

func (t Team) Opponent() Team {
	if t == TeamRed {
		return TeamBlue
	}

	return TeamRed
}

type TileType string

const (
	TileRed       TileType = "red"
	TileBlue      TileType = "blue"
	TileBystander TileType = "bystander"
	TileAssassin  TileType = "assassin"
)

const (
	boardSize      = 25
	gridWidth      = 5
	bystanderCount = 7
)

// BoardState is the full board for one round. Key, Words, Revealed, and
// RevealTileImages are parallel slices of length 25.
type BoardState struct {
	Turn             Team       `json:"turn,omitempty"`
	Key              []TileType `json:"key,omitempty"`
	RevealTileImages []string   `json:"revealTileImages,omitempty"`
	Words            []string   `json:"words,omitempty"`
	Revealed         []bool     `json:"revealed,omitempty"`
	TotalRed         int        `json:"totalRed"`
	TotalBlue        int        `json:"totalBlue"`
	RemainingRed     int        `json:"remainingRed"`
	RemainingBlue    int        `json:"remainingBlue"`
	GameStarted      bool       `json:"gameStarted"`
	GameOver         bool       `json:"gameOver"`
	Winner           Team       `json:"winner,omitempty"`
	TimerEnd         *time.Time `json:"timerEnd,omitempty"`
}

// newKey builds a shuffled 25-tile assignment and returns it along with the
// randomly chosen starting team, which receives 9 tiles to the other's 8.
func newKey() ([]TileType, Team) {
	first := TeamRed
	if rand.IntN(2) == 0 {
		first = TeamBlue
	}

	key := make([]TileType, 0, boardSize)

	for _, team := range []Team{TeamRed, TeamBlue} {
		count := 8
		if team == first {
			count = 9
		}

		for range count {
			key = append(key, TileType(team))
		}
	}

	for range bystanderCount {
		key = append(key, TileBystander)
	}

	key = append(key, TileAssassin)

	rand.Shuffle(len(key), func(i, j int) {
		key[i], key[j] = key[j], key[i]
	})

	return key, first
}

// rotateQuarter returns the cells of a 5x5 grid rotated 90 degrees clockwise.
func rotateQuarter[T any](cells []T) []T {
	rotated := make([]T, len(cells))

	for i := range rotated {
		rotated[i] = cells[(gridWidth-1-i%gridWidth)*gridWidth+i/gridWidth]
	}

	return rotated
}

// rotateBoard rotates the key, and the artwork assigned to it, in place.
// Rotation is only legal before the first tile has been revealed.
func rotateBoard(state *BoardState) error {
	if state.GameStarted {
		return fmt.Errorf("%w: cannot rotate the key after the game has started", ErrInvalidOperation)
	}

	if len(state.Key) != boardSize {
		return fmt.Errorf("%w: no key exists to rotate", ErrInvalidOperation)
	}

	state.Key = rotateQuarter(state.Key)
	if len(state.RevealTileImages) == boardSize {
		state.RevealTileImages = rotateQuarter(state.RevealTileImages)
	}

	return nil
}

// maskState strips everything a non-spymaster must not see: the key, and
// the artwork of tiles that have not been revealed yet. The caller owns the
// input's slices; only the image slice is replaced.
func maskState(state BoardState) BoardState {
	state.Key = nil

	images := append([]string(nil), state.RevealTileImages...)
	for i := range images {
		if !state.Revealed[i] {
			images[i] = ""
		}
	}
	state.RevealTileImages = images

	return state
}

// ImageSource supplies per-tile reveal artwork for a generated key.
type ImageSource interface {
	TileImages(key []TileType) ([]string, error)
}

// dirImages serves artwork from per-tile-type subdirectories of a local
// directory, drawing without replacement within each type's pool.
type dirImages struct {
	root    string
	urlRoot string
}

func newDirImages(root, urlRoot string) *dirImages {
	return &dirImages{
		root:    root,
		urlRoot: urlRoot,
	}
}

func (d *dirImages) TileImages(key []TileType) ([]string, error) {
	pools := make(map[TileType][]string)

	for _, tile := range []TileType{TileRed, TileBlue, TileBystander, TileAssassin} {
		entries, err := os.ReadDir(filepath.Join(d.root, string(tile)))
		if err != nil {
			// a missing subdirectory just means no artwork for that type
			continue
		}

		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			names = append(names, entry.Name())
		}

		rand.Shuffle(len(names), func(i, j int) {
			names[i], names[j] = names[j], names[i]
		})

		pools[tile] = names
	}

	images := make([]string, len(key))

	for i, tile := range key {
		pool := pools[tile]
		if len(pool) == 0 {
			continue
		}

		images[i] = path.Join(d.urlRoot, string(tile), pool[0])
		pools[tile] = pool[1:]
	}

	return images, nil
}
