// Object pools for the parse hot path
//
// Loads read millions of lines. Line buffers and per-line field slices are
// recycled here instead of being reallocated for every file and every line.
//
//	buf := pool.GetLineBuffer()
//	defer pool.PutLineBuffer(buf)
//	line := append((*buf)[:0], chunk...)
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import "sync"

const (
	// LineBufferSize is the initial capacity of a line buffer.
	LineBufferSize = 64 * 1024

	// MaxLineBytes is the longest physical line kept in full. Readers drop
	// the bytes beyond it.
	MaxLineBytes = 1024 * 1024

	fieldSliceCap = 16
)

var lineBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, LineBufferSize)
		return &b
	},
}

// GetLineBuffer returns a line buffer of LineBufferSize bytes.
func GetLineBuffer() *[]byte {
	return lineBufferPool.Get().(*[]byte)
}

// PutLineBuffer returns a buffer obtained from GetLineBuffer. Buffers that
// were replaced by a larger allocation are dropped.
func PutLineBuffer(b *[]byte) {
	if b == nil || cap(*b) != LineBufferSize {
		return
	}
	*b = (*b)[:LineBufferSize]
	lineBufferPool.Put(b)
}

var fieldSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, fieldSliceCap)
		return &s
	},
}

// GetFieldSlice returns an empty string slice for splitting a line into words.
func GetFieldSlice() *[]string {
	return fieldSlicePool.Get().(*[]string)
}

// PutFieldSlice clears s and returns it to the pool. Oversized slices are
// dropped so one pathological line does not pin memory.
func PutFieldSlice(s *[]string) {
	if s == nil || cap(*s) > 4*fieldSliceCap {
		return
	}
	clear(*s)
	*s = (*s)[:0]
	fieldSlicePool.Put(s)
}
