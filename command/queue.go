package command

import "sync"

// DefaultCapacity is the hard cap of the queue. Oldest entries are
// dropped when a push exceeds it.
const DefaultCapacity = 20000

type coalesceKey struct {
	target uint64
	name   string
}

// Queue is a thread-safe command mailbox with last-write-wins
// coalescing for parameter updates and a hard capacity cap.
//
// Coalesced entries are superseded in place: the stale slot turns into
// a tombstone that drain skips, so unrelated keys keep their order.
type Queue struct {
	mu       sync.Mutex
	entries  []Command
	index    map[coalesceKey]int // absolute position of live ParamUpdate per key
	head     uint64              // absolute position of entries[0]
	live     int
	seq      uint64
	capacity int
}

// NewQueue creates a queue with the provided capacity. Zero or negative
// capacity falls back to DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		index:    make(map[coalesceKey]int),
		capacity: capacity,
	}
}

// Push appends the command.
func (q *Queue) Push(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.append(cmd)
}

// PushCoalesced appends the command, first superseding any queued
// not-yet-dispatched ParamUpdate with the same (target, name) key.
// Non-update commands fall back to a plain push.
func (q *Queue) PushCoalesced(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cmd.Kind != ParamUpdate {
		q.append(cmd)
		return
	}
	key := coalesceKey{target: cmd.Target, name: cmd.Name}
	if pos, ok := q.index[key]; ok {
		q.entries[pos-int(q.head)].Kind = 0 // tombstone
		q.live--
	}
	q.append(cmd)
}

// DrainUpTo pops up to max commands in FIFO order. It never blocks.
func (q *Queue) DrainUpTo(max int) []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || q.live == 0 {
		return nil
	}
	out := make([]Command, 0, min(max, q.live))
	for len(out) < max && len(q.entries) > 0 {
		cmd := q.entries[0]
		q.pop()
		if cmd.Kind == 0 {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// Len returns the number of queued live commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.live
}

// append enqueues the command. Every ParamUpdate is indexed, whichever
// path queued it, so a later PushCoalesced supersedes it.
func (q *Queue) append(cmd Command) {
	q.seq++
	cmd.Seq = q.seq
	if cmd.Kind == ParamUpdate {
		q.index[coalesceKey{target: cmd.Target, name: cmd.Name}] = int(q.head) + len(q.entries)
	}
	q.entries = append(q.entries, cmd)
	q.live++
	for q.live > q.capacity {
		q.dropOldest()
	}
}

// dropOldest removes the oldest live command, consuming tombstones on
// the way.
func (q *Queue) dropOldest() {
	for len(q.entries) > 0 {
		dead := q.entries[0].Kind == 0
		q.pop()
		if !dead {
			return
		}
	}
}

// pop removes the head entry and keeps index bookkeeping consistent.
func (q *Queue) pop() {
	head := q.entries[0]
	if head.Kind == ParamUpdate {
		key := coalesceKey{target: head.Target, name: head.Name}
		if pos, ok := q.index[key]; ok && pos == int(q.head) {
			delete(q.index, key)
		}
	}
	if head.Kind != 0 {
		q.live--
	}
	q.entries = q.entries[1:]
	q.head++
}
