package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	"groups/roster"
	"groups/solver"
	"groups/store"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (a *app) serverError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	a.log.Error(msg, append(fields, zap.Error(err))...)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (a *app) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	credential := r.FormValue("credential")
	if credential == "" {
		http.Error(w, "missing credential", http.StatusBadRequest)
		return
	}

	payload, err := idtoken.Validate(r.Context(), credential, a.cfg.ClientID)
	if err != nil {
		a.log.Warn("failed to validate token", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		http.Error(w, "token has no email", http.StatusUnauthorized)
		return
	}

	writeJSON(w, map[string]any{
		"email":   email,
		"name":    payload.Claims["name"],
		"picture": payload.Claims["picture"],
		"token":   a.signEmail(email),
	})
}

func (a *app) handleAdminCheck(w http.ResponseWriter, r *http.Request) {
	email, ok := a.authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]bool{"admin": a.isAdmin(email)})
}

func (a *app) handleListClasses(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	classes, err := a.rosters.Classes(r.Context())
	if err != nil {
		a.serverError(w, "failed to list classes", err)
		return
	}
	writeJSON(w, classes)
}

// loadRoster writes the error response itself when it returns false.
func (a *app) loadRoster(w http.ResponseWriter, r *http.Request, classID string) ([]string, bool) {
	names, err := a.rosters.Load(r.Context(), classID)
	switch {
	case errors.Is(err, roster.ErrNotFound):
		http.Error(w, "class not found", http.StatusNotFound)
		return nil, false
	case errors.Is(err, roster.ErrInvalidClass):
		http.Error(w, "invalid class ID", http.StatusBadRequest)
		return nil, false
	case err != nil:
		a.serverError(w, "failed to load roster", err, zap.String("class", classID))
		return nil, false
	}
	return names, true
}

func (a *app) handleListStudents(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	names, ok := a.loadRoster(w, r, classID)
	if !ok {
		return
	}
	writeJSON(w, names)
}

func (a *app) handleListHistory(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	entries, err := a.store.Entries(r.Context(), classID)
	if err != nil {
		a.serverError(w, "failed to load history", err, zap.String("class", classID))
		return
	}
	writeJSON(w, entries)
}

// historyEntry writes the error response itself when it returns false.
func (a *app) historyEntry(w http.ResponseWriter, r *http.Request, classID string) (solver.Entry, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid history index", http.StatusBadRequest)
		return solver.Entry{}, false
	}
	entry, err := a.store.Entry(r.Context(), classID, index)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "history entry not found", http.StatusNotFound)
		return solver.Entry{}, false
	}
	if err != nil {
		a.serverError(w, "failed to load history entry", err, zap.String("class", classID))
		return solver.Entry{}, false
	}
	return entry, true
}

func (a *app) handleGetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	entry, ok := a.historyEntry(w, r, classID)
	if !ok {
		return
	}
	writeJSON(w, entry)
}

// handleRestoreHistoryEntry makes an older entry's incompatible pairs the
// class's current set again.
func (a *app) handleRestoreHistoryEntry(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	entry, ok := a.historyEntry(w, r, classID)
	if !ok {
		return
	}
	if err := a.store.ReplaceIncompatible(r.Context(), classID, entry.IncompatiblePairs); err != nil {
		a.serverError(w, "failed to restore incompatible pairs", err, zap.String("class", classID))
		return
	}
	a.log.Info("incompatible pairs restored",
		zap.String("class", classID),
		zap.String("index", r.PathValue("index")),
		zap.Int("pairs", len(entry.IncompatiblePairs)))
	writeJSON(w, entry)
}

func parsePairs(raw []string) ([]solver.Pair, error) {
	pairs := make([]solver.Pair, 0, len(raw))
	for _, s := range raw {
		p, ok := solver.ParsePair(s)
		if !ok {
			return nil, fmt.Errorf("invalid pair %q", s)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func duplicateStudent(groups [][]string) (string, bool) {
	seen := map[string]bool{}
	for _, g := range groups {
		for _, m := range g {
			if seen[m] {
				return m, true
			}
			seen[m] = true
		}
	}
	return "", false
}

func (a *app) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	var body struct {
		Groups            [][]string `json:"groups"`
		IncompatiblePairs *[]string  `json:"incompatiblePairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Groups) == 0 {
		http.Error(w, "groups are required", http.StatusBadRequest)
		return
	}
	if name, dup := duplicateStudent(body.Groups); dup {
		http.Error(w, fmt.Sprintf("%s appears in more than one place", name), http.StatusBadRequest)
		return
	}

	entry := solver.Entry{
		Timestamp: time.Now().UTC(),
		Groups:    body.Groups,
	}
	if body.IncompatiblePairs != nil {
		pairs, err := parsePairs(*body.IncompatiblePairs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		entry.IncompatiblePairs = solver.NewPairSet(pairs...).Sorted()
	}

	previous, err := a.store.Entries(r.Context(), classID)
	if err != nil {
		a.serverError(w, "failed to load history", err, zap.String("class", classID))
		return
	}
	incompatible, err := a.store.Incompatible(r.Context(), classID)
	if err != nil {
		a.serverError(w, "failed to load incompatible pairs", err, zap.String("class", classID))
		return
	}
	if entry.IncompatiblePairs != nil {
		incompatible = entry.Incompatible()
	}
	score := solver.Score(entry.Groups, solver.HistoricalPairs(previous), incompatible)

	index, err := a.store.Append(r.Context(), classID, entry)
	if err != nil {
		a.serverError(w, "failed to save history", err, zap.String("class", classID))
		return
	}
	a.metrics.Appended()
	a.log.Info("history saved", zap.String("class", classID), zap.Int("index", index), zap.Int("score", score))
	writeJSON(w, map[string]any{"index": index, "timestamp": entry.Timestamp, "score": score})
}

func (a *app) handleListIncompatible(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	set, err := a.store.Incompatible(r.Context(), classID)
	if err != nil {
		a.serverError(w, "failed to load incompatible pairs", err, zap.String("class", classID))
		return
	}
	writeJSON(w, set.Sorted())
}

func (a *app) handleMarkIncompatible(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	var body struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var names []string
	for _, n := range body.Names {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
		if strings.Contains(n, solver.PairSep) {
			http.Error(w, fmt.Sprintf("name %q contains %q", n, solver.PairSep), http.StatusBadRequest)
			return
		}
	}
	set := solver.PairSet{}
	set.AddGroup(names)
	if len(set) == 0 {
		http.Error(w, "at least two different names are required", http.StatusBadRequest)
		return
	}
	pairs := set.Sorted()
	if err := a.store.MarkIncompatible(r.Context(), classID, pairs); err != nil {
		a.serverError(w, "failed to mark incompatible", err, zap.String("class", classID))
		return
	}
	writeJSON(w, pairs)
}

func (a *app) handleUnmarkIncompatible(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	pair, ok := solver.ParsePair(r.PathValue("pair"))
	if !ok {
		http.Error(w, "invalid pair", http.StatusBadRequest)
		return
	}
	err := a.store.UnmarkIncompatible(r.Context(), classID, pair)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "pair not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.serverError(w, "failed to unmark incompatible", err, zap.String("class", classID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// maxAttempts bounds the per-request attempt override.
const maxAttempts = 10000

type shapeRequest struct {
	Groups int `json:"groups"`
	Size   int `json:"size"`
}

func (s *shapeRequest) shape() solver.Shape {
	if s.Size != 0 {
		return solver.FixedSize{Size: s.Size}
	}
	return solver.EvenGroups{Groups: s.Groups}
}

func (a *app) handleCreateGroups(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	var body struct {
		Shape    shapeRequest `json:"shape"`
		Attempts int          `json:"attempts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Shape.Groups != 0 && body.Shape.Size != 0 {
		http.Error(w, "give either groups or size, not both", http.StatusBadRequest)
		return
	}
	names, ok := a.loadRoster(w, r, classID)
	if !ok {
		return
	}
	a.solve(w, r, "create", classID, solver.Request{
		Free:  names,
		Shape: body.Shape.shape(),
	}, body.Attempts)
}

func (a *app) handleShuffle(w http.ResponseWriter, r *http.Request) {
	classID, ok := a.requireClass(w, r)
	if !ok {
		return
	}
	var body struct {
		Groups   [][]string    `json:"groups"`
		Locked   []string      `json:"locked"`
		Shape    *shapeRequest `json:"shape"`
		Attempts int           `json:"attempts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Groups) == 0 {
		http.Error(w, "groups are required", http.StatusBadRequest)
		return
	}

	isLocked := map[string]bool{}
	for _, name := range body.Locked {
		isLocked[name] = true
	}
	req := solver.Request{
		Locked: map[int][]string{},
		Shape:  solver.EvenGroups{Groups: len(body.Groups)},
	}
	if body.Shape != nil {
		if body.Shape.Groups != 0 && body.Shape.Size != 0 {
			http.Error(w, "give either groups or size, not both", http.StatusBadRequest)
			return
		}
		req.Shape = body.Shape.shape()
	}
	seated := 0
	for slot, g := range body.Groups {
		for _, name := range g {
			if isLocked[name] {
				req.Locked[slot] = append(req.Locked[slot], name)
				seated++
			} else {
				req.Free = append(req.Free, name)
			}
		}
	}
	if seated != len(isLocked) {
		http.Error(w, "locked students must be in the current groups", http.StatusBadRequest)
		return
	}
	a.solve(w, r, "shuffle", classID, req, body.Attempts)
}

// solve fills in the class's conflict sets, runs the partitioner and writes
// the result.
func (a *app) solve(w http.ResponseWriter, r *http.Request, action, classID string, req solver.Request, attempts int) {
	entries, err := a.store.Entries(r.Context(), classID)
	if err != nil {
		a.serverError(w, "failed to load history", err, zap.String("class", classID))
		return
	}
	incompatible, err := a.store.Incompatible(r.Context(), classID)
	if err != nil {
		a.serverError(w, "failed to load incompatible pairs", err, zap.String("class", classID))
		return
	}
	req.Historical = solver.HistoricalPairs(entries)
	req.Incompatible = incompatible

	params := solver.DefaultParams
	params.MaxAttempts = a.cfg.Attempts
	if attempts > 0 {
		params.MaxAttempts = min(attempts, maxAttempts)
	}

	start := time.Now()
	sol, err := solver.Partition(req, params, a.newRand())
	if errors.Is(err, solver.ErrInvalidInput) {
		a.metrics.SolveFailed(action)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		a.serverError(w, "failed to partition", err, zap.String("class", classID))
		return
	}
	elapsed := time.Since(start)
	a.metrics.Solved(action, sol.Score, sol.Attempts, elapsed)
	a.log.Info("groups solved",
		zap.String("class", classID),
		zap.String("action", action),
		zap.Int("score", sol.Score),
		zap.Int("attempts", sol.Attempts),
		zap.Duration("elapsed", elapsed))

	writeJSON(w, map[string]any{"groups": sol.Groups, "score": sol.Score, "attempts": sol.Attempts})
}
