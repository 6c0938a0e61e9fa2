// Package snowflake generates 64-bit, time-sortable identifiers using the
// classic Twitter layout: 41 bits of millisecond timestamp since a custom
// epoch, 10 bits of machine id, 12 bits of per-millisecond sequence.
//
// No library in the retrieved pack exposes a verifiable client API for a
// snowflake generator (github.com/tinode/snowflake is only referenced by
// filename in the pack's manifests, with no usable call-site retrieved), so
// this generator is hand-written directly against the bit layout the spec
// names, following the same conventions the teacher uses for other small,
// self-contained utility types (plain struct + constructor + one method).
package snowflake

import (
	"fmt"
	"sync"
	"time"

	"github.com/ourchat/ourchat-server/internal/ids"
)

const (
	epochMillis   int64 = 1735689600000 // 2025-01-01T00:00:00Z
	machineBits         = 10
	sequenceBits        = 12
	maxMachineID        = (1 << machineBits) - 1
	maxSequence         = (1 << sequenceBits) - 1
	timeShift           = machineBits + sequenceBits
	machineShift        = sequenceBits
)

// Generator produces monotonically increasing snowflake ids for one machine.
type Generator struct {
	mu        sync.Mutex
	machineID int64
	lastMilli int64
	sequence  int64
}

// NewGenerator builds a Generator for the given machine id, which must fit
// in 10 bits (0-1023).
func NewGenerator(machineID int) (*Generator, error) {
	if machineID < 0 || machineID > maxMachineID {
		return nil, fmt.Errorf("snowflake: machine id %d out of range [0,%d]", machineID, maxMachineID)
	}
	return &Generator{machineID: int64(machineID)}, nil
}

// Next returns the next id as a raw int64, suitable for conversion into any
// of the ids.*Id newtypes.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == g.lastMilli {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastMilli {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMilli = now

	elapsed := now - epochMillis
	return (elapsed << timeShift) | (g.machineID << machineShift) | g.sequence
}

func (g *Generator) NextUserId() ids.UserId       { return ids.UserId(g.Next()) }
func (g *Generator) NextSessionId() ids.SessionId { return ids.SessionId(g.Next()) }
func (g *Generator) NextMessageId() ids.MessageId { return ids.MessageId(g.Next()) }
func (g *Generator) NextRoomId() ids.RoomId       { return ids.RoomId(g.Next()) }
