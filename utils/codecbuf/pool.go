// Package codecbuf is a concurrent-safe bytes.Buffer pool sized for the
// event package's canonical-serialization hot path: the
// [0,pubkey,created_at,kind,tags,content] array that gets hashed to
// produce an event id. Most events are small (a handful of tags, a
// short content string), so New pre-allocates to that typical size
// rather than letting every pooled buffer start from zero and grow by
// repeated doubling on first use.
package codecbuf

import (
	"bytes"
	"sync"
)

// typicalCanonicalSize is the pre-allocation capacity for a freshly
// created buffer: enough for pubkey/sig hex, a handful of tags, and a
// short content field without a single grow. Buffers serializing
// larger events still grow normally; this only sizes the common case.
const typicalCanonicalSize = 512

// maxPooledSize caps what Put will return to the pool. An event with
// unusually large content or tags can balloon its buffer far past
// typicalCanonicalSize; retaining that capacity across every future
// Get would let one outlier event inflate steady-state memory for the
// whole pool, so oversized buffers are simply discarded instead.
const maxPooledSize = 64 << 10

// Pool is a concurrent-safe pool of bytes.Buffer objects pre-sized for
// canonical event serialization.
type Pool struct {
	pool sync.Pool
}

// NewPool creates a new buffer pool.
func NewPool() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, typicalCanonicalSize))
			},
		},
	}
}

// Get returns a buffer from the pool, or a freshly pre-sized one if
// the pool is empty.
func (p *Pool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets buf and returns it to the pool, unless its capacity has
// grown past maxPooledSize, in which case it's dropped so the next Get
// falls back to New's typical-size allocation instead.
func (p *Pool) Put(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledSize {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

// Default is the package-level pool used by most call sites.
var Default = NewPool()

// Get returns a buffer from Default.
func Get() *bytes.Buffer { return Default.Get() }

// Put returns buf to Default.
func Put(buf *bytes.Buffer) { Default.Put(buf) }
