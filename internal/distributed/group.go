package distributed

import (
	"context"
	"fmt"
	"sync"
	"time"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// Group is an in-process set of ranks whose collectives rendezvous the way
// an MPI communicator's do: a collective returns only after every rank has
// entered it. Each rank drives its own Member from its own goroutine.
type Group struct {
	mu      sync.Mutex
	config  *GroupConfig
	members []*Member
	current *round
	broken  error
	stats   *GroupStats
}

// GroupConfig represents process group configuration
type GroupConfig struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

// GroupStats tracks group-wide collective statistics
type GroupStats struct {
	Collectives    int64         `json:"collectives"`
	BytesExchanged int64         `json:"bytes_exchanged"`
	Failures       int64         `json:"failures"`
	LastCollective time.Time     `json:"last_collective"`
	AvgWait        time.Duration `json:"avg_wait"`
}

type collectiveKind string

const (
	kindAllReduce collectiveKind = "allreduce"
	kindAllGather collectiveKind = "allgather"
	kindBroadcast collectiveKind = "broadcast"
)

// round is one collective in flight. contribs is indexed by rank.
type round struct {
	kind     collectiveKind
	root     int
	op       types.ReduceOp
	contribs []interface{}
	arrived  int
	started  time.Time
	done     chan struct{}
	closed   bool
	err      error
}

// applyConfigDefaults applies default values for zero-valued configuration fields
func applyConfigDefaults(config *GroupConfig) {
	if config.Name == "" {
		config.Name = "local"
	}
	if config.Size == 0 {
		config.Size = 1
	}
}

// NewGroup creates a group of config.Size ranks
func NewGroup(config *GroupConfig) (*Group, error) {
	if config == nil {
		config = &GroupConfig{}
	}
	applyConfigDefaults(config)

	if config.Size < 0 {
		return nil, amrerrors.NewError(amrerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("group size must be positive, got %d", config.Size)).WithComponent("distributed")
	}

	g := &Group{
		config: config,
		stats:  &GroupStats{},
	}
	g.members = make([]*Member, config.Size)
	for r := range g.members {
		g.members[r] = &Member{group: g, rank: r}
	}
	return g, nil
}

// Size returns the number of ranks
func (g *Group) Size() int {
	return g.config.Size
}

// Member returns the controller for rank
func (g *Group) Member(rank int) *Member {
	if rank < 0 || rank >= len(g.members) {
		return nil
	}
	return g.members[rank]
}

// GetStats returns a snapshot of group statistics
func (g *Group) GetStats() GroupStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.stats
}

// Err returns the error that broke the group, if any. A broken group fails
// every later collective.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.broken
}

// enter deposits value for rank into the current round and waits until the
// round completes. It returns every rank's contribution.
func (g *Group) enter(ctx context.Context, rank int, kind collectiveKind, root int, op types.ReduceOp, value interface{}) ([]interface{}, error) {
	g.mu.Lock()
	if g.broken != nil {
		g.mu.Unlock()
		return nil, g.collectiveError(kind, "group is broken", g.broken)
	}

	r := g.current
	if r == nil {
		r = &round{
			kind:     kind,
			root:     root,
			op:       op,
			contribs: make([]interface{}, g.config.Size),
			started:  time.Now(),
			done:     make(chan struct{}),
		}
		g.current = r
	}

	if r.kind != kind || r.root != root || r.op != op {
		err := amrerrors.NewError(amrerrors.ErrCodeCollectiveOrder,
			fmt.Sprintf("rank %d entered %s(root=%d, op=%s) while round is %s(root=%d, op=%s)",
				rank, kind, root, op, r.kind, r.root, r.op)).WithComponent("distributed").WithRank(rank)
		g.failLocked(r, err)
		g.mu.Unlock()
		return nil, err
	}

	r.contribs[rank] = value
	r.arrived++
	if r.arrived == g.config.Size {
		g.current = nil
		r.closed = true
		close(r.done)
		g.recordLocked(r)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		g.mu.Lock()
		if !r.closed {
			g.failLocked(r, ctx.Err())
		}
		g.mu.Unlock()
		<-r.done
	}

	if r.err != nil {
		return nil, g.collectiveError(kind, fmt.Sprintf("rank %d", rank), r.err)
	}
	return r.contribs, nil
}

// failLocked aborts r and breaks the group. Callers hold g.mu.
func (g *Group) failLocked(r *round, err error) {
	r.err = err
	if g.current == r {
		g.current = nil
	}
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	if g.broken == nil {
		g.broken = err
	}
	g.stats.Failures++
}

func (g *Group) recordLocked(r *round) {
	wait := time.Since(r.started)
	g.stats.Collectives++
	g.stats.LastCollective = time.Now()
	if g.stats.AvgWait == 0 {
		g.stats.AvgWait = wait
	} else {
		alpha := 0.1
		g.stats.AvgWait = time.Duration(alpha*float64(wait) + (1-alpha)*float64(g.stats.AvgWait))
	}
	for _, c := range r.contribs {
		switch v := c.(type) {
		case []byte:
			g.stats.BytesExchanged += int64(len(v))
		case []float64:
			g.stats.BytesExchanged += int64(8 * len(v))
		}
	}
}

func (g *Group) collectiveError(kind collectiveKind, msg string, cause error) error {
	if amrerrors.CodeOf(cause) == amrerrors.ErrCodeCollectiveOrder {
		return cause
	}
	return amrerrors.NewError(amrerrors.ErrCodeCollective, fmt.Sprintf("%s failed: %s", kind, msg)).
		WithComponent("distributed").WithOperation(string(kind)).WithCause(cause)
}

// Member is one rank's view of a Group. It implements types.Controller and
// must only be used from that rank's goroutine.
type Member struct {
	group *Group
	rank  int
}

var _ types.Controller = (*Member)(nil)

// Rank returns this member's rank
func (m *Member) Rank() int { return m.rank }

// Size returns the group size
func (m *Member) Size() int { return m.group.config.Size }

// AllReduce combines values element-wise across all ranks
func (m *Member) AllReduce(ctx context.Context, values []float64, op types.ReduceOp) ([]float64, error) {
	contribs, err := m.group.enter(ctx, m.rank, kindAllReduce, 0, op, append([]float64(nil), values...))
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(contribs))
	for r, c := range contribs {
		vectors[r] = c.([]float64)
	}
	return reduceVectors(vectors, op)
}

// AllGather returns every rank's buffer indexed by rank
func (m *Member) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	contribs, err := m.group.enter(ctx, m.rank, kindAllGather, 0, 0, append([]byte(nil), data...))
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(contribs))
	for r, c := range contribs {
		out[r] = append([]byte(nil), c.([]byte)...)
	}
	return out, nil
}

// Broadcast returns root's buffer on every rank
func (m *Member) Broadcast(ctx context.Context, data []byte, root int) ([]byte, error) {
	if root < 0 || root >= m.Size() {
		return nil, amrerrors.NewError(amrerrors.ErrCodeCollective,
			fmt.Sprintf("broadcast root %d outside group of %d", root, m.Size())).
			WithComponent("distributed").WithRank(m.rank)
	}

	var payload []byte
	if m.rank == root {
		payload = append([]byte(nil), data...)
	}
	contribs, err := m.group.enter(ctx, m.rank, kindBroadcast, root, 0, payload)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), contribs[root].([]byte)...), nil
}
