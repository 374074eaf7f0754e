package memory

import (
	"context"
	"sync"
	"time"

	"github.com/HummdG/tazaticket-final/internal/core"
	"golang.org/x/sync/semaphore"
)

// Message is one utterance. Seq is zero until a seq has been assigned; once set
// it never changes.
type Message struct {
	Role      core.Role
	Content   string
	Timestamp time.Time
	Seq       int64
}

// Pair is one user message and the assistant reply to it. Turn is zero until assigned.
type Pair struct {
	Turn      int64
	User      Message
	Assistant *Message
	SessionID string

	// set once both messages are known to be in the durable store
	persisted bool
}

func (p *Pair) IsComplete() bool {
	return p.Assistant != nil
}

func (p *Pair) messages() []*Message {
	if p.Assistant == nil {
		return []*Message{&p.User}
	}
	return []*Message{&p.User, p.Assistant}
}

type block struct {
	next  int64
	limit int64
}

func (b *block) available() bool {
	return b.next < b.limit
}

func (b *block) take() int64 {
	v := b.next
	b.next++
	return v
}

// ThreadState is the in-memory working set of one conversation.
//
// Lock order is io before mu. mu guards every field below and is never held
// across store calls; io is a one-slot semaphore that serializes the store
// calls of one thread and can be waited on under a deadline.
type ThreadState struct {
	ID string

	io *semaphore.Weighted
	mu sync.Mutex

	sessionID    string
	lastActivity time.Time

	// locally reserved, unused counter ranges
	seqs  block
	turns block

	// one past the highest seq and turn known to exist
	seqFloor  int64
	turnFloor int64

	context []*Pair
	batch   []*Pair
	open    *Pair
}

func newThreadState(id string) *ThreadState {
	return &ThreadState{ID: id, io: semaphore.NewWeighted(1), seqFloor: 1, turnFloor: 1}
}

func (ts *ThreadState) acquireIO(ctx context.Context) error {
	return ts.io.Acquire(ctx, 1)
}

func (ts *ThreadState) tryAcquireIO() bool {
	return ts.io.TryAcquire(1)
}

func (ts *ThreadState) releaseIO() {
	ts.io.Release(1)
}

// chronological lists every pair held in memory from oldest to newest.
func (ts *ThreadState) chronological() []*Pair {
	pairs := make([]*Pair, 0, len(ts.batch)+len(ts.context)+1)
	pairs = append(pairs, ts.batch...)
	pairs = append(pairs, ts.context...)
	if ts.open != nil {
		pairs = append(pairs, ts.open)
	}
	return pairs
}

// unassigned counts messages without a seq and pairs without a turn. Both
// always form a chronological suffix.
func (ts *ThreadState) unassigned() (seqs, turns int64) {
	for _, p := range ts.chronological() {
		if p.Turn == 0 {
			turns++
		}
		for _, m := range p.messages() {
			if m.Seq == 0 {
				seqs++
			}
		}
	}
	return seqs, turns
}

func (ts *ThreadState) stampSeq(m *Message) {
	if ts.seqs.available() {
		m.Seq = ts.seqs.take()
	}
}

// stampTurn gives an open pair the current turn without advancing it.
func (ts *ThreadState) stampTurn(p *Pair) {
	if ts.turns.available() {
		p.Turn = ts.turns.next
	}
}

// install replaces exhausted local ranges and hands the new values to
// messages and pairs still waiting for one, oldest first.
func (ts *ThreadState) install(seqs, turns block) {
	if seqs.available() && !ts.seqs.available() {
		ts.seqs = seqs
		ts.seqFloor = max(ts.seqFloor, seqs.limit)
	}
	if turns.available() && !ts.turns.available() {
		ts.turns = turns
		ts.turnFloor = max(ts.turnFloor, turns.limit)
	}

	for _, p := range ts.chronological() {
		if p.Turn == 0 && ts.turns.available() {
			if p == ts.open {
				ts.stampTurn(p)
			} else {
				p.Turn = ts.turns.take()
			}
		}
		for _, m := range p.messages() {
			if m.Seq == 0 {
				ts.stampSeq(m)
			}
		}
	}
}

// pending returns the unpersisted pairs a flush of the given scope writes.
func (ts *ThreadState) pending(scope flushScope) []*Pair {
	var pairs []*Pair
	for _, p := range ts.batch {
		if !p.persisted {
			pairs = append(pairs, p)
		}
	}
	if scope == scopeAll {
		for _, p := range ts.context {
			if !p.persisted {
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}

func (ts *ThreadState) pruneBatch() {
	kept := ts.batch[:0]
	for _, p := range ts.batch {
		if !p.persisted {
			kept = append(kept, p)
		}
	}
	clear(ts.batch[len(kept):])
	ts.batch = kept
}

// retire clears the working set. Pairs the store has not taken yet move to
// batch so a later flush can still write them; an open pair is dropped.
func (ts *ThreadState) retire() {
	ts.pruneBatch()
	for _, p := range ts.context {
		if !p.persisted {
			ts.batch = append(ts.batch, p)
		}
	}
	ts.context = nil
	ts.open = nil
}
