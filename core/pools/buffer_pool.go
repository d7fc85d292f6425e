package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize fits a request line plus a typical header block
const DefaultBufferSize = 4 * 1024

// BufferPool recycles the bufio readers and writers wrapped around connections
type BufferPool struct {
	size    int
	readers sync.Pool
	writers sync.Pool

	// Statistics
	readerGets atomic.Uint64
	readerNews atomic.Uint64
	writerGets atomic.Uint64
	writerNews atomic.Uint64
}

// NewBufferPool creates a pool of buffers of the given size
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}

	bp := &BufferPool{size: size}
	bp.readers.New = func() any {
		bp.readerNews.Add(1)
		return bufio.NewReaderSize(nil, size)
	}
	bp.writers.New = func() any {
		bp.writerNews.Add(1)
		return bufio.NewWriterSize(nil, size)
	}
	return bp
}

// GetReader returns a reader positioned on r
func (bp *BufferPool) GetReader(r io.Reader) *bufio.Reader {
	bp.readerGets.Add(1)
	br := bp.readers.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// PutReader drops the reference to the underlying source and recycles br
func (bp *BufferPool) PutReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	bp.readers.Put(br)
}

// GetWriter returns a writer flushing into w
func (bp *BufferPool) GetWriter(w io.Writer) *bufio.Writer {
	bp.writerGets.Add(1)
	bw := bp.writers.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

// PutWriter recycles bw. Unflushed data is discarded.
func (bp *BufferPool) PutWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Reset(nil)
	bp.writers.Put(bw)
}

// Stats returns buffer pool statistics
func (bp *BufferPool) Stats() BufferStats {
	return BufferStats{
		Size:       bp.size,
		ReaderGets: bp.readerGets.Load(),
		ReaderNews: bp.readerNews.Load(),
		WriterGets: bp.writerGets.Load(),
		WriterNews: bp.writerNews.Load(),
	}
}

// BufferStats contains buffer pool statistics
type BufferStats struct {
	Size       int
	ReaderGets uint64
	ReaderNews uint64
	WriterGets uint64
	WriterNews uint64
}

// HitRate is the share of gets served without allocating
func (s BufferStats) HitRate() float64 {
	gets := s.ReaderGets + s.WriterGets
	if gets == 0 {
		return 0
	}
	news := s.ReaderNews + s.WriterNews
	if news > gets {
		return 0
	}
	return float64(gets-news) / float64(gets)
}
