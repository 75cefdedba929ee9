package store

import (
	"encoding/hex"
	"sync/atomic"
	"time"
)

var idSeq uint64

// newSortableID generates a lexicographically sortable 24-char ID suffix.
// Layout (hex): 16 chars timestamp ns + 8 chars sequence, so ids created on
// the same host order by creation time and never collide within a process.
func newSortableID() string {
	ns := uint64(time.Now().UnixNano())
	seq := atomic.AddUint64(&idSeq, 1)
	var raw [12]byte
	raw[0] = byte(ns >> 56)
	raw[1] = byte(ns >> 48)
	raw[2] = byte(ns >> 40)
	raw[3] = byte(ns >> 32)
	raw[4] = byte(ns >> 24)
	raw[5] = byte(ns >> 16)
	raw[6] = byte(ns >> 8)
	raw[7] = byte(ns)
	raw[8] = byte(seq >> 24)
	raw[9] = byte(seq >> 16)
	raw[10] = byte(seq >> 8)
	raw[11] = byte(seq)
	dst := make([]byte, 24)
	hex.Encode(dst, raw[:])
	return string(dst)
}

// NewJobID generates a new job ID with the "job_" prefix.
func NewJobID() string {
	return "job_" + newSortableID()
}
