// Package roster reads class lists: one student per line.
package roster

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"groups/solver"
)

var (
	ErrNotFound     = errors.New("class not found")
	ErrInvalidClass = errors.New("invalid class id")
)

var classIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func ValidClassID(id string) bool {
	return classIDPattern.MatchString(id)
}

// Parse returns the trimmed, non-empty lines of r in order. A name may not
// contain solver.PairSep.
func Parse(r io.Reader) ([]string, error) {
	names := []string{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		if strings.Contains(name, solver.PairSep) {
			return nil, fmt.Errorf("line %d: name %q contains %q", line, name, solver.PairSep)
		}
		names = append(names, name)
	}
	return names, sc.Err()
}

type Source interface {
	Classes(ctx context.Context) ([]string, error)
	Load(ctx context.Context, classID string) ([]string, error)
}

// Dir serves rosters stored as <dir>/<classID>.txt.
type Dir string

func (d Dir) Classes(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(string(d), "*.txt"))
	if err != nil {
		return nil, err
	}
	classes := []string{}
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ".txt")
		if ValidClassID(id) {
			classes = append(classes, id)
		}
	}
	slices.Sort(classes)
	return classes, nil
}

func (d Dir) Load(ctx context.Context, classID string) ([]string, error) {
	if !ValidClassID(classID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClass, classID)
	}
	f, err := os.Open(filepath.Join(string(d), classID+".txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, classID)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
