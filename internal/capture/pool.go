//go:build linux

package capture

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/glcapture/internal/logging"
	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

const (
	// MaxFrames is the kernel limit on buffers per queue (VIDEO_MAX_FRAME).
	MaxFrames = 32
	// MaxPlanes is the kernel limit on planes per buffer (VIDEO_MAX_PLANES).
	MaxPlanes = v4l2.MaxPlanes
)

// Ownership tells who may touch a buffer.
type Ownership int

const (
	// Released buffers have no mapping and no kernel allocation.
	Released Ownership = iota
	// Mapped buffers are allocated and mapped but not yet queued.
	Mapped
	// OwnedByKernel buffers are queued for capture.
	OwnedByKernel
	// OwnedByApp buffers were dequeued and hold a captured frame.
	OwnedByApp
)

func (o Ownership) String() string {
	switch o {
	case Released:
		return "released"
	case Mapped:
		return "mapped"
	case OwnedByKernel:
		return "kernel"
	case OwnedByApp:
		return "app"
	default:
		return "unknown"
	}
}

// Plane is one mapped plane. Data is nil when unmapped and DMAFd is -1 when
// the plane was not exported.
type Plane struct {
	Length uint32
	Data   []byte
	DMAFd  int
}

// Buffer is one slot of the pool.
type Buffer struct {
	Index int
	Meta  v4l2.BufferInfo
	State Ownership

	planes    [MaxPlanes]Plane
	numPlanes int
}

// Planes returns the planes in use by this buffer.
func (b *Buffer) Planes() []Plane {
	return b.planes[:b.numPlanes]
}

// ErrBufferOutstanding is returned by Dequeue while the application still
// owns a buffer.
var ErrBufferOutstanding = errors.New("a dequeued buffer has not been returned")

// Pool owns the mapped capture buffers of one device.
type Pool struct {
	dev       Device
	logger    logging.Logger
	numPlanes int

	buffers     [MaxFrames]Buffer
	requested   int
	count       int
	exportDMA   bool
	allocated   bool // kernel holds a REQBUFS allocation
	released    bool
	outstanding int
}

// NewPool creates an empty pool for dev. numPlanes comes from the negotiated
// format and is fixed for the life of the pool.
func NewPool(dev Device, numPlanes int) *Pool {
	return &Pool{
		dev:         dev,
		logger:      logging.GetLogger("capture"),
		numPlanes:   numPlanes,
		outstanding: -1,
	}
}

// AllocateAndMap requests buffers from the driver, maps every plane and
// optionally exports each plane as a DMA-BUF. It returns the granted count,
// which may be lower than requested. On error the pool keeps whatever was
// mapped so ReleaseAll can undo it.
func (p *Pool) AllocateAndMap(requested int, exportDMA bool) (int, error) {
	if p.count > 0 || p.allocated || p.released {
		return 0, newError(KindSetup, "allocate buffers", errors.New("pool already allocated"))
	}
	if requested < 1 || requested > MaxFrames {
		return 0, newError(KindSetup, "allocate buffers",
			fmt.Errorf("buffer count %d outside 1..%d", requested, MaxFrames))
	}
	if p.numPlanes < 1 || p.numPlanes > MaxPlanes {
		return 0, newError(KindSetup, "allocate buffers",
			fmt.Errorf("plane count %d outside 1..%d", p.numPlanes, MaxPlanes))
	}

	granted, err := p.dev.RequestBuffers(uint32(requested))
	if err != nil {
		return 0, newError(KindSetup, "request buffers", err)
	}
	p.requested = requested
	p.allocated = granted > 0
	if granted == 0 || granted > MaxFrames {
		return 0, newError(KindSetup, "request buffers",
			fmt.Errorf("driver granted %d buffers", granted))
	}
	p.count = int(granted)
	p.exportDMA = exportDMA

	for i := 0; i < p.count; i++ {
		b := &p.buffers[i]
		b.Index = i
		b.numPlanes = p.numPlanes
		for j := range b.planes {
			b.planes[j].DMAFd = -1
		}
	}

	for i := 0; i < p.count; i++ {
		if err := p.mapBuffer(&p.buffers[i]); err != nil {
			return 0, err
		}
	}

	if p.count < requested {
		p.logger.Warn("Driver granted fewer buffers than requested",
			"requested", requested, "granted", p.count)
	}
	p.logger.Debug("Buffer pool mapped",
		"buffers", p.count, "planes", p.numPlanes, "dma_export", exportDMA)

	return p.count, nil
}

func (p *Pool) mapBuffer(b *Buffer) error {
	info, err := p.dev.QueryBuffer(uint32(b.Index), p.numPlanes)
	if err != nil {
		e := newError(KindSetup, "query buffer", err)
		e.Index = b.Index
		return e
	}
	if len(info.Planes) < p.numPlanes {
		e := newError(KindSetup, "query buffer",
			fmt.Errorf("driver reported %d planes, want %d", len(info.Planes), p.numPlanes))
		e.Index = b.Index
		return e
	}
	b.Meta = info

	for j := 0; j < p.numPlanes; j++ {
		data, err := p.dev.MapPlane(info.Planes[j])
		if err != nil {
			return &Error{Kind: KindMap, Op: "mmap", Index: b.Index, Plane: j, Err: err}
		}
		b.planes[j].Data = data
		b.planes[j].Length = info.Planes[j].Length

		if !p.exportDMA {
			continue
		}
		fd, err := p.dev.ExportPlane(uint32(b.Index), uint32(j))
		if err != nil {
			return &Error{Kind: KindMap, Op: "export", Index: b.Index, Plane: j, Err: err}
		}
		b.planes[j].DMAFd = fd
	}
	b.State = Mapped
	return nil
}

// ReleaseAll closes exported fds, unmaps every plane and frees the driver
// allocation. It is safe after a partial AllocateAndMap and on repeated
// calls. Every step runs even if an earlier one failed.
func (p *Pool) ReleaseAll() error {
	if p.released {
		return nil
	}
	p.released = true

	var errs []error
	for i := 0; i < p.count; i++ {
		b := &p.buffers[i]
		for j := range b.planes {
			pl := &b.planes[j]
			if pl.DMAFd >= 0 {
				if err := p.dev.CloseExport(pl.DMAFd); err != nil {
					errs = append(errs, fmt.Errorf("close export buffer %d plane %d: %w", i, j, err))
				}
				pl.DMAFd = -1
			}
			if pl.Data != nil {
				if err := p.dev.UnmapPlane(pl.Data); err != nil {
					errs = append(errs, fmt.Errorf("munmap buffer %d plane %d: %w", i, j, err))
				}
				pl.Data = nil
			}
		}
		b.State = Released
	}
	p.outstanding = -1

	if p.allocated {
		if _, err := p.dev.RequestBuffers(0); err != nil {
			errs = append(errs, fmt.Errorf("free buffers: %w", err))
		}
		p.allocated = false
	}

	err := errors.Join(errs...)
	if err != nil {
		p.logger.Warn("Buffer pool release incomplete", "error", err)
	} else {
		p.logger.Debug("Buffer pool released", "buffers", p.count)
	}
	return err
}

// EnqueueAll hands every granted buffer to the driver in index order.
func (p *Pool) EnqueueAll() error {
	for i := 0; i < p.count; i++ {
		if err := p.dev.Queue(uint32(i), p.numPlanes); err != nil {
			e := newError(KindQueue, "queue buffer", err)
			e.Index = i
			return e
		}
		p.buffers[i].State = OwnedByKernel
	}
	return nil
}

// Dequeue blocks until the driver fills a buffer. Only one buffer may be
// owned by the application at a time.
func (p *Pool) Dequeue() (*Buffer, error) {
	if p.outstanding >= 0 {
		e := newError(KindStreamIO, "dequeue", ErrBufferOutstanding)
		e.Index = p.outstanding
		return nil, e
	}

	info, err := p.dev.Dequeue(p.numPlanes)
	if err != nil {
		return nil, newError(KindStreamIO, "dequeue", err)
	}

	// The two checks below are fatal to the session. The dequeued buffer stays
	// marked OwnedByKernel; teardown's STREAMOFF and REQBUFS(0) reclaim it.
	idx := int(info.Index)
	if idx >= p.count {
		e := newError(KindStreamIO, "dequeue", fmt.Errorf("driver returned index outside pool of %d", p.count))
		e.Index = idx
		return nil, e
	}
	b := &p.buffers[idx]
	if b.State != OwnedByKernel {
		e := newError(KindStreamIO, "dequeue", fmt.Errorf("buffer is %s, not queued", b.State))
		e.Index = idx
		return nil, e
	}

	b.Meta = info
	b.State = OwnedByApp
	p.outstanding = idx
	return b, nil
}

// Requeue returns the application-owned buffer to the driver.
func (p *Pool) Requeue(b *Buffer) error {
	if b == nil || b.State != OwnedByApp || p.outstanding != b.Index {
		return newError(KindStreamIO, "requeue", errors.New("buffer is not owned by the application"))
	}
	if err := p.dev.Queue(uint32(b.Index), p.numPlanes); err != nil {
		e := newError(KindStreamIO, "requeue", err)
		e.Index = b.Index
		return e
	}
	b.State = OwnedByKernel
	p.outstanding = -1
	return nil
}

// PrimingFrame returns the first buffer, used to set up the renderer before
// streaming starts.
func (p *Pool) PrimingFrame() (*Buffer, error) {
	if p.count == 0 {
		return nil, newError(KindSetup, "priming frame", errors.New("pool is empty"))
	}
	return &p.buffers[0], nil
}

// Count returns the number of granted buffers.
func (p *Pool) Count() int { return p.count }

// Requested returns the buffer count asked of the driver.
func (p *Pool) Requested() int { return p.requested }

// Planes returns the plane count per buffer.
func (p *Pool) Planes() int { return p.numPlanes }

// Buffer returns slot i, or nil if i is outside the granted range.
func (p *Pool) Buffer(i int) *Buffer {
	if i < 0 || i >= p.count {
		return nil
	}
	return &p.buffers[i]
}

// LogValue implements slog.LogValuer.
func (p *Pool) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("requested", p.requested),
		slog.Int("granted", p.count),
		slog.Int("planes", p.numPlanes),
		slog.Bool("dma_export", p.exportDMA),
	)
}
