package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"groups/roster"
	"groups/solver"
)

type historyEntry struct {
	Groups            [][]string `yaml:"groups"`
	IncompatiblePairs []string   `yaml:"incompatible_pairs"`
}

type scenario struct {
	Roster     []string `yaml:"roster"`
	RosterFile string   `yaml:"roster_file"`
	Shape      struct {
		Groups int `yaml:"groups"`
		Size   int `yaml:"size"`
	} `yaml:"shape"`
	Locked  map[int][]string `yaml:"locked"`
	History []historyEntry   `yaml:"history"`

	// Each list is marked pairwise incompatible, on top of the pairs saved
	// with the latest history entry.
	Incompatible [][]string `yaml:"incompatible"`
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if sc.RosterFile != "" {
		if !filepath.IsAbs(sc.RosterFile) {
			sc.RosterFile = filepath.Join(filepath.Dir(path), sc.RosterFile)
		}
		f, err := os.Open(sc.RosterFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read roster: %w", err)
		}
		defer f.Close()
		names, err := roster.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read roster: %w", err)
		}
		sc.Roster = append(sc.Roster, names...)
	}
	if len(sc.Roster) == 0 {
		return nil, errors.New("scenario has no students")
	}
	for i, h := range sc.History {
		for _, p := range h.IncompatiblePairs {
			if _, ok := solver.ParsePair(p); !ok {
				return nil, fmt.Errorf("history entry %d: invalid pair %q", i, p)
			}
		}
	}
	if (sc.Shape.Groups == 0) == (sc.Shape.Size == 0) {
		return nil, errors.New("scenario shape needs exactly one of groups and size")
	}
	return &sc, nil
}

// request splits the roster into locked and free students and derives the
// conflict sets.
func (sc *scenario) request() solver.Request {
	req := solver.Request{
		Locked: sc.Locked,
	}
	if sc.Shape.Size != 0 {
		req.Shape = solver.FixedSize{Size: sc.Shape.Size}
	} else {
		req.Shape = solver.EvenGroups{Groups: sc.Shape.Groups}
	}

	locked := map[string]bool{}
	for _, members := range sc.Locked {
		for _, m := range members {
			locked[m] = true
		}
	}
	for _, name := range sc.Roster {
		if !locked[name] {
			req.Free = append(req.Free, name)
		}
	}

	entries := make([]solver.Entry, len(sc.History))
	for i, h := range sc.History {
		entries[i] = solver.Entry{Groups: h.Groups}
		for _, raw := range h.IncompatiblePairs {
			p, _ := solver.ParsePair(raw)
			entries[i].IncompatiblePairs = append(entries[i].IncompatiblePairs, p)
		}
	}
	req.Historical = solver.HistoricalPairs(entries)
	req.Incompatible = solver.CurrentIncompatible(entries)
	for _, clique := range sc.Incompatible {
		req.Incompatible.AddGroup(clique)
	}
	return req
}
