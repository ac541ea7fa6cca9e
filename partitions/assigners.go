// Package partitions holds the policies that decide which rank every cell
// of a distributed mesh should end up on.
package partitions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/redistribute"
)

// Logger reports partitioner decisions at debug level
var Logger = slog.Default()

// globalCells numbers the cells of the group rank by rank and returns the
// global index of this rank's first cell and the group total
func globalCells(ctx context.Context, g comm.Group, numCells int) (offset, total int, err error) {
	all, err := comm.AllgatherInt64s(ctx, g, []int64{int64(numCells)})
	if err != nil {
		return 0, 0, err
	}
	for r, v := range all {
		if len(v) != 1 {
			return 0, 0, fmt.Errorf("%w: cell count from rank %d", comm.ErrMalformed, r)
		}
		if r < g.Rank() {
			offset += int(v[0])
		}
		total += int(v[0])
	}
	return
}

// BlockAssigner deals the globally numbered cells out in contiguous runs of
// equal size, so rank r ends with the r'th block
type BlockAssigner struct{}

func (BlockAssigner) Assign(ctx context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error) {
	offset, total, err := globalCells(ctx, g, m.NumCells())
	if err != nil {
		return nil, err
	}
	var (
		pm   = NewPartitionMap(g.Size(), total)
		dest = make([]int, m.NumCells())
	)
	for c := range dest {
		dest[c] = pm.Bucket(offset + c)
	}
	return dest, nil
}

// RoundRobinAssigner sends global cell k to rank k mod size
type RoundRobinAssigner struct{}

func (RoundRobinAssigner) Assign(ctx context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error) {
	offset, _, err := globalCells(ctx, g, m.NumCells())
	if err != nil {
		return nil, err
	}
	dest := make([]int, m.NumCells())
	for c := range dest {
		dest[c] = (offset + c) % g.Size()
	}
	return dest, nil
}

// Config tunes the policies that take parameters
type Config struct {
	MortonBits int
	Imbalance  float32
	Objective  string
}

var planners = map[string]func(cfg Config) redistribute.Planner{
	"identity": func(Config) redistribute.Planner { return redistribute.IdentityPlanner{} },
	"block": func(Config) redistribute.Planner {
		return &redistribute.AssignmentPlanner{Assigner: BlockAssigner{}}
	},
	"round-robin": func(Config) redistribute.Planner {
		return &redistribute.AssignmentPlanner{Assigner: RoundRobinAssigner{}}
	},
	"morton": func(cfg Config) redistribute.Planner {
		return &redistribute.AssignmentPlanner{Assigner: MortonAssigner{Bits: cfg.MortonBits}}
	},
	"metis": func(cfg Config) redistribute.Planner {
		return &redistribute.AssignmentPlanner{
			Assigner: GraphAssigner{Imbalance: cfg.Imbalance, Objective: cfg.Objective}}
	},
}

// Names lists the policies NewPlanner knows
func Names() []string {
	names := make([]string, 0, len(planners))
	for name := range planners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPlanner returns the planner for a policy name
func NewPlanner(name string, cfg Config) (redistribute.Planner, error) {
	mk, ok := planners[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown partition policy %q, have %s", name, strings.Join(Names(), ", "))
	}
	return mk(cfg), nil
}
