package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"groups/solver"
)

type runResult struct {
	score    int
	attempts int
	key      string
	elapsed  time.Duration
}

func printStats(label string, results []runResult, runs int) {
	scores := map[int]int{}
	solutionSets := map[string]int{}
	var totalTime time.Duration
	var totalAttempts int

	for _, r := range results {
		totalTime += r.elapsed
		totalAttempts += r.attempts
		scores[r.score]++
		solutionSets[r.key]++
	}

	fmt.Printf("--- %s ---\n", label)
	fmt.Printf("  avg time: %v\n", totalTime/time.Duration(runs))
	fmt.Printf("  avg attempts used: %.1f\n", float64(totalAttempts)/float64(runs))

	var scoreList []struct {
		score int
		count int
	}
	for s, c := range scores {
		scoreList = append(scoreList, struct {
			score int
			count int
		}{s, c})
	}
	sort.Slice(scoreList, func(i, j int) bool { return scoreList[i].score < scoreList[j].score })

	fmt.Printf("  score distribution:\n")
	for _, sc := range scoreList {
		fmt.Printf("    score %d: %d/%d runs (%.0f%%)\n", sc.score, sc.count, runs, float64(sc.count)/float64(runs)*100)
	}
	fmt.Printf("  unique groupings returned: %d\n", len(solutionSets))
	fmt.Println()
}

func main() {
	path := flag.String("scenario", "testdata/scenario.yaml", "YAML scenario file")
	runs := flag.Int("runs", 20, "number of solver runs per attempt budget")
	budgets := flag.String("attempts", "10,50,100,500", "comma-separated attempt budgets")
	flag.Parse()

	sc, err := loadScenario(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	req := sc.request()

	fmt.Printf("Students: %d (locked %d), historical pairs: %d, incompatible pairs: %d\n",
		len(sc.Roster), len(sc.Roster)-len(req.Free), len(req.Historical), len(req.Incompatible))
	fmt.Printf("Runs per budget: %d\n\n", *runs)

	for _, budget := range parseIntList(*budgets) {
		params := solver.Params{MaxAttempts: budget}
		var results []runResult
		for run := range *runs {
			rng := rand.New(rand.NewSource(int64(run * 31337)))
			start := time.Now()
			sol, err := solver.Partition(req, params, rng)
			elapsed := time.Since(start)
			if err != nil {
				fmt.Fprintf(os.Stderr, "partition: %v\n", err)
				os.Exit(1)
			}
			results = append(results, runResult{sol.Score, sol.Attempts, solver.Key(sol.Groups), elapsed})
		}
		printStats(fmt.Sprintf("attempts=%d", budget), results, *runs)
	}
}

func parseIntList(s string) []int {
	parts := strings.Split(s, ",")
	var result []int
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err == nil && v > 0 {
			result = append(result, v)
		}
	}
	return result
}
