package comms

import (
	"fmt"
	"sync"
)

// The communicator gives each mesh partition ("rank") MPI-style collective
// and non-blocking point-to-point primitives, implemented on channels so a
// whole multi-rank run lives in one process with one goroutine per rank.
// Ranks are SPMD: every rank must call collectives in the same order.

type message struct {
	source int
	tag    int
	data   []float64
}

// Request tracks one in-flight non-blocking send or receive.
type Request struct {
	source   int
	tag      int
	isRecv   bool
	done     chan struct{} // closed on send completion
	Data     []float64     // filled on receive completion
	ready    bool
	consumed bool
}

// Group is the shared state of a set of communicating ranks.
type Group struct {
	size    int
	inboxes []chan message

	mu         sync.Mutex
	cond       *sync.Cond
	arrived    int
	generation int64
	slots      [][]float64
	published  [][]float64
}

// NewGroup creates size communicators sharing one group. Each returned
// Communicator must be used by exactly one goroutine.
func NewGroup(size int) (comms []*Communicator) {
	if size < 1 {
		panic(fmt.Errorf("NewGroup: size must be >= 1, have %d", size))
	}
	g := &Group{
		size:    size,
		inboxes: make([]chan message, size),
		slots:   make([][]float64, size),
	}
	g.cond = sync.NewCond(&g.mu)
	comms = make([]*Communicator, size)
	for r := 0; r < size; r++ {
		g.inboxes[r] = make(chan message, 4*size)
		comms[r] = &Communicator{rank: r, group: g}
	}
	return
}

// Communicator is one rank's endpoint into its group.
type Communicator struct {
	rank    int
	group   *Group
	pending []message // arrived but not yet matched to a receive
}

func (c *Communicator) Rank() int { return c.rank }
func (c *Communicator) Size() int { return c.group.size }

// Isend posts a non-blocking send of data to rank dst. The caller must keep
// data valid until Wait on the returned request; the payload is handed to
// the destination inbox without copying.
func (c *Communicator) Isend(dst, tag int, data []float64) (req *Request) {
	req = &Request{done: make(chan struct{})}
	msg := message{source: c.rank, tag: tag, data: data}
	select {
	case c.group.inboxes[dst] <- msg: // fast path, inbox has room
		close(req.done)
	default:
		go func() {
			c.group.inboxes[dst] <- msg
			close(req.done)
		}()
	}
	return
}

// Irecv posts a non-blocking receive for a message from rank src with tag.
// Completion happens inside WaitAny/WaitAll.
func (c *Communicator) Irecv(src, tag int) (req *Request) {
	return &Request{source: src, tag: tag, isRecv: true}
}

func (c *Communicator) match(reqs []*Request, msg message) bool {
	for _, r := range reqs {
		if r.isRecv && !r.ready && r.source == msg.source && r.tag == msg.tag {
			r.Data = msg.data
			r.ready = true
			return true
		}
	}
	return false
}

// WaitAny blocks until one of the receive requests completes and returns
// its index. Completion follows message arrival order, whichever neighbor
// responds first, not the order requests were posted.
func (c *Communicator) WaitAny(reqs []*Request) (index int) {
	findReady := func() int {
		for i, r := range reqs {
			if r.isRecv && r.ready && !r.consumed {
				r.consumed = true
				return i
			}
		}
		return -1
	}
	for {
		// Drain anything already buffered from earlier rounds
		for i := 0; i < len(c.pending); i++ {
			if c.match(reqs, c.pending[i]) {
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
				break
			}
		}
		if i := findReady(); i >= 0 {
			return i
		}
		msg := <-c.group.inboxes[c.rank]
		if !c.match(reqs, msg) {
			c.pending = append(c.pending, msg)
		}
	}
}

// Wait blocks until the request completes (send handoff or receive match).
func (c *Communicator) Wait(req *Request) {
	if req.isRecv {
		c.WaitAny([]*Request{req})
		return
	}
	<-req.done
}

// WaitAll completes every request in the slice.
func (c *Communicator) WaitAll(reqs []*Request) {
	for _, r := range reqs {
		if !r.isRecv {
			<-r.done
		}
	}
	recvs := make([]*Request, 0, len(reqs))
	for _, r := range reqs {
		if r.isRecv {
			recvs = append(recvs, r)
		}
	}
	for range recvs {
		c.WaitAny(recvs)
	}
}

// exchange is the single underlying collective: every rank deposits its
// contribution, the last arrival publishes a snapshot of all slots, and
// everyone reads the snapshot. Reductions combine the snapshot in rank
// order so all ranks see bitwise-identical results.
func (c *Communicator) exchange(contribution []float64) (all [][]float64) {
	g := c.group
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slots[c.rank] = contribution
	g.arrived++
	if g.arrived == g.size {
		snapshot := make([][]float64, g.size)
		for r := 0; r < g.size; r++ {
			snapshot[r] = append([]float64(nil), g.slots[r]...)
			g.slots[r] = nil
		}
		g.published = snapshot
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
		return snapshot
	}
	gen := g.generation
	for g.generation == gen {
		g.cond.Wait()
	}
	return g.published
}

// ReduceOp selects the combiner for AllReduce.
type ReduceOp uint8

const (
	OpSum ReduceOp = iota
	OpMin
	OpMax
)

// AllReduce combines vals element-wise across all ranks.
func (c *Communicator) AllReduce(vals []float64, op ReduceOp) (out []float64) {
	all := c.exchange(vals)
	out = append([]float64(nil), all[0]...)
	for r := 1; r < len(all); r++ {
		for i, v := range all[r] {
			switch op {
			case OpSum:
				out[i] += v
			case OpMin:
				if v < out[i] {
					out[i] = v
				}
			case OpMax:
				if v > out[i] {
					out[i] = v
				}
			}
		}
	}
	return
}

// AllReduceScalar is AllReduce for a single value.
func (c *Communicator) AllReduceScalar(val float64, op ReduceOp) float64 {
	return c.AllReduce([]float64{val}, op)[0]
}

// AllGather returns every rank's contribution, indexed by rank.
func (c *Communicator) AllGather(vals []float64) [][]float64 {
	return c.exchange(vals)
}

// Broadcast distributes root's data to all ranks.
func (c *Communicator) Broadcast(root int, data []float64) []float64 {
	all := c.exchange(data)
	return all[root]
}

// AllTrue reduces a per-rank boolean with logical AND by summing and
// comparing to the rank count.
func (c *Communicator) AllTrue(local bool) bool {
	v := 0.
	if local {
		v = 1
	}
	return int(c.AllReduceScalar(v, OpSum)) == c.Size()
}

// AnyTrue reduces a per-rank boolean with logical OR.
func (c *Communicator) AnyTrue(local bool) bool {
	v := 0.
	if local {
		v = 1
	}
	return c.AllReduceScalar(v, OpSum) > 0
}

// Barrier blocks until all ranks arrive.
func (c *Communicator) Barrier() {
	c.exchange(nil)
}
