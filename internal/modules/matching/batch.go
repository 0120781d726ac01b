// README: Batch assignment: parallel cost matrix, then greedy global-minimum selection.
package matching

import (
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"buggy/internal/modules/ride"
	"buggy/internal/types"
)

type pair struct {
	ride   int
	driver int
	cost   float64
}

// Plan pairs rides with candidates, cheapest first, using each ride and each
// driver at most once. Ties go to the older ride, then the lower driver id.
// It returns ErrNoAdmissibleDriver when rides are given but no finite pair exists.
func Plan(rides []*ride.Ride, cands []Candidate, p CostParams, dist Distancer, now time.Time) ([]Assignment, error) {
	if len(rides) == 0 {
		return nil, nil
	}
	matrix := costMatrix(rides, cands, p, dist, now)

	pairs := make([]pair, 0, len(rides)*len(cands))
	for i, row := range matrix {
		for j, c := range row {
			if !math.IsInf(c, 1) && !math.IsNaN(c) {
				pairs = append(pairs, pair{ride: i, driver: j, cost: c})
			}
		}
	}
	if len(pairs) == 0 {
		return nil, ErrNoAdmissibleDriver
	}
	sort.Slice(pairs, func(a, b int) bool {
		pa, pb := pairs[a], pairs[b]
		if pa.cost != pb.cost {
			return pa.cost < pb.cost
		}
		ra, rb := rides[pa.ride], rides[pb.ride]
		if !ra.CreatedAt.Equal(rb.CreatedAt) {
			return ra.CreatedAt.Before(rb.CreatedAt)
		}
		if ra.ID != rb.ID {
			return ra.ID < rb.ID
		}
		return cands[pa.driver].Driver.Driver.ID < cands[pb.driver].Driver.Driver.ID
	})

	// Walking the sorted pairs and skipping used rows and columns is the same
	// as repeatedly taking the global minimum of the shrinking matrix.
	usedRide := make([]bool, len(rides))
	usedDriver := make(map[types.ID]bool, len(cands))
	out := make([]Assignment, 0, min(len(rides), len(cands)))
	for _, pr := range pairs {
		id := cands[pr.driver].Driver.Driver.ID
		if usedRide[pr.ride] || usedDriver[id] {
			continue
		}
		usedRide[pr.ride] = true
		usedDriver[id] = true
		out = append(out, Assignment{Ride: rides[pr.ride], Driver: cands[pr.driver].Driver, Cost: pr.cost})
		if len(out) == cap(out) {
			break
		}
	}
	return out, nil
}

// costMatrix fills matrix[ride][candidate], one goroutine per ride row.
func costMatrix(rides []*ride.Ride, cands []Candidate, p CostParams, dist Distancer, now time.Time) [][]float64 {
	matrix := make([][]float64, len(rides))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range rides {
		i := i
		g.Go(func() error {
			row := make([]float64, len(cands))
			for j, c := range cands {
				row[j] = Cost(rides[i], c, p, dist, now)
			}
			matrix[i] = row
			return nil
		})
	}
	_ = g.Wait()
	return matrix
}
