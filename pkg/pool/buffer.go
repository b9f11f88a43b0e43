package pool

import "sync"

// DefaultCopyBufferSize is the size of the buffers used to stream file
// contents during copy, verify and log archiving.
const DefaultCopyBufferSize int64 = 1024 * 1024

// FixedBufferPool hands out byte slices of one fixed size.
//
// sync.Pool drops idle items during garbage collection, which suits short-lived
// copy buffers. A single synchronization worker usually holds one buffer at a
// time, the verify step a second one.
type FixedBufferPool struct {
	size int64
	pool sync.Pool
}

// NewFixedBuffer creates a pool of buffers with the given size. Sizes below
// one byte fall back to DefaultCopyBufferSize.
func NewFixedBuffer(size int64) *FixedBufferPool {
	if size < 1 {
		size = DefaultCopyBufferSize
	}
	return &FixedBufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, int(size))
				return &b
			},
		},
	}
}

// Size returns the length of the buffers handed out by this pool.
func (fp *FixedBufferPool) Size() int64 {
	return fp.size
}

// Get returns a buffer of Size() bytes.
func (fp *FixedBufferPool) Get() *[]byte {
	return fp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of a foreign size are dropped.
func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || int64(cap(*b)) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}
