/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

//go:embed words_standard.txt
var standardWords string

const standardListID = "standard"

// WordList is an immutable named corpus of candidate words.
type WordList struct {
	ID   string
	Name string
	List []string
}

func (w *WordList) Size() int {
	return len(w.List)
}

// Sample returns n distinct words drawn uniformly at random without
// replacement.
func (w *WordList) Sample(n int) ([]string, error) {
	if n > len(w.List) {
		return nil, fmt.Errorf("%w: requested %d words from %q, which holds %d", ErrInsufficientWords, n, w.ID, len(w.List))
	}

	picks := make([]string, len(w.List))
	copy(picks, w.List)
	rand.Shuffle(len(picks), func(i, j int) {
		picks[i], picks[j] = picks[j], picks[i]
	})

	return picks[:n], nil
}

// RandomID joins n sampled words into a human-readable identifier.
func (w *WordList) RandomID(n int) (string, error) {
	words, err := w.Sample(n)
	if err != nil {
		return "", err
	}

	return strings.Join(words, "-"), nil
}

// Union produces a new list containing every word in either input, deduplicated.
func (w *WordList) Union(words []string) *WordList {
	seen := make(map[string]struct{}, len(w.List)+len(words))
	merged := make([]string, 0, len(w.List)+len(words))

	for _, list := range [][]string{w.List, words} {
		for _, word := range list {
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			merged = append(merged, word)
		}
	}

	return &WordList{ID: w.ID, Name: w.Name, List: merged}
}

// Without produces a new list excluding the given words.
func (w *WordList) Without(words []string) *WordList {
	excluded := make(map[string]struct{}, len(words))
	for _, word := range words {
		excluded[word] = struct{}{}
	}

	remaining := make([]string, 0, len(w.List))
	for _, word := range w.List {
		if _, ok := excluded[word]; ok {
			continue
		}
		remaining = append(remaining, word)
	}

	return &WordList{ID: w.ID, Name: w.Name, List: remaining}
}

// WordSupply holds the configured word corpora, keyed by list id.
type WordSupply struct {
	lists map[string]*WordList
}

func defaultSupply() *WordSupply {
	var words []string

	for _, line := range strings.Split(standardWords, "\n") {
		if word := strings.TrimSpace(line); word != "" {
			words = append(words, word)
		}
	}

	return &WordSupply{
		lists: map[string]*WordList{
			standardListID: {
				ID:   standardListID,
				Name: "Standard",
				List: words,
			},
		},
	}
}

type wordListFile struct {
	Name string   `mapstructure:"name"`
	List []string `mapstructure:"list"`
}

// loadWordSupply starts from the embedded standard corpus and overlays any
// lists found in the configured words file.
func loadWordSupply(cfg *Config) (*WordSupply, error) {
	supply := defaultSupply()

	if cfg.words == "" {
		return supply, nil
	}

	v := viper.New()
	v.SetConfigFile(cfg.words)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read word lists from %q: %w", cfg.words, err)
	}

	var parsed map[string]wordListFile
	if err := v.UnmarshalKey("words", &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse word lists from %q: %w", cfg.words, err)
	}

	for id, list := range parsed {
		name := list.Name
		if name == "" {
			name = id
		}

		supply.lists[id] = &WordList{
			ID:   id,
			Name: name,
			List: list.List,
		}
	}

	return supply, nil
}

func (s *WordSupply) Find(id string) *WordList {
	return s.lists[id]
}

func (s *WordSupply) Get(id string) (*WordList, error) {
	list := s.Find(id)
	if list == nil {
		return nil, fmt.Errorf("%w: no word list with id %q", ErrNotFound, id)
	}

	return list, nil
}

func (s *WordSupply) All() []*WordList {
	lists := make([]*WordList, 0, len(s.lists))
	for _, list := range s.lists {
		lists = append(lists, list)
	}

	sort.Slice(lists, func(i, j int) bool {
		return lists[i].ID < lists[j].ID
	})

	return lists
}
