//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/glcapture/internal/events"
	"github.com/smazurov/glcapture/internal/render"
	"github.com/smazurov/glcapture/pkg/linuxav/v4l2"
)

// fakeDevice emulates a multi-planar capture queue. Queued buffers are
// returned by Dequeue in FIFO order.
type fakeDevice struct {
	grant      uint32 // buffers granted for a non-zero request
	format     *v4l2.Format
	formatErr  error
	reqbufsErr error
	mapFailAt  [2]int // buffer and plane whose mmap fails, or -1
	exportErr  error
	queueErrAt int // buffer whose first QBUF fails, or -1
	requeueErr error
	streamErr  error
	closeErr   error
	// dequeueErrs are returned, in order, before any buffer is dequeued.
	dequeueErrs []error

	reqbufs    []uint32
	queueLog   []uint32
	pending    []uint32
	mapped     int
	exported   int
	closedFds  []int
	nextFd     int
	sequence   uint32
	streamOns  int
	streamOffs int
	closes     int
}

func newFakeDevice(grant uint32) *fakeDevice {
	return &fakeDevice{
		grant:      grant,
		mapFailAt:  [2]int{-1, -1},
		queueErrAt: -1,
		nextFd:     100,
	}
}

const (
	fakeWidth      = 4
	fakeHeight     = 2
	fakeLumaLen    = fakeWidth * fakeHeight
	fakeChromaLen  = fakeWidth * fakeHeight / 2
	fakePlaneCount = 2
)

func fakeFormat() v4l2.Format {
	return v4l2.Format{
		Width:       fakeWidth,
		Height:      fakeHeight,
		PixelFormat: v4l2.PixFmtNV12M,
		NumPlanes:   fakePlaneCount,
		Planes: []v4l2.PlaneFormat{
			{SizeImage: fakeLumaLen, BytesPerLine: fakeWidth},
			{SizeImage: fakeChromaLen, BytesPerLine: fakeWidth},
		},
	}
}

func (d *fakeDevice) SetFormat(f v4l2.Format) (v4l2.Format, error) {
	if d.formatErr != nil {
		return v4l2.Format{}, d.formatErr
	}
	if d.format != nil {
		return *d.format, nil
	}
	return fakeFormat(), nil
}

func (d *fakeDevice) RequestBuffers(count uint32) (uint32, error) {
	d.reqbufs = append(d.reqbufs, count)
	if count == 0 {
		return 0, nil
	}
	if d.reqbufsErr != nil {
		return 0, d.reqbufsErr
	}
	return min(count, d.grant), nil
}

func (d *fakeDevice) QueryBuffer(index uint32, numPlanes int) (v4l2.BufferInfo, error) {
	info := v4l2.BufferInfo{Index: index}
	lengths := []uint32{fakeLumaLen, fakeChromaLen}
	for j := 0; j < numPlanes; j++ {
		info.Planes = append(info.Planes, v4l2.PlaneInfo{
			Length:    lengths[j%2],
			MemOffset: index<<16 | uint32(j)<<8,
		})
	}
	return info, nil
}

func (d *fakeDevice) MapPlane(p v4l2.PlaneInfo) ([]byte, error) {
	buf, plane := int(p.MemOffset>>16), int(p.MemOffset>>8&0xff)
	if d.mapFailAt == [2]int{buf, plane} {
		return nil, syscall.ENOMEM
	}
	d.mapped++
	return make([]byte, p.Length), nil
}

func (d *fakeDevice) UnmapPlane(data []byte) error {
	d.mapped--
	return nil
}

func (d *fakeDevice) ExportPlane(index, plane uint32) (int, error) {
	if d.exportErr != nil {
		return -1, d.exportErr
	}
	d.exported++
	d.nextFd++
	return d.nextFd, nil
}

func (d *fakeDevice) CloseExport(fd int) error {
	d.exported--
	d.closedFds = append(d.closedFds, fd)
	return nil
}

func (d *fakeDevice) Queue(index uint32, numPlanes int) error {
	first := true
	for _, q := range d.queueLog {
		if q == index {
			first = false
			break
		}
	}
	if first && int(index) == d.queueErrAt {
		return syscall.EINVAL
	}
	if !first && d.requeueErr != nil {
		return d.requeueErr
	}
	d.queueLog = append(d.queueLog, index)
	d.pending = append(d.pending, index)
	return nil
}

func (d *fakeDevice) Dequeue(numPlanes int) (v4l2.BufferInfo, error) {
	if len(d.dequeueErrs) > 0 {
		err := d.dequeueErrs[0]
		d.dequeueErrs = d.dequeueErrs[1:]
		return v4l2.BufferInfo{}, fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}
	if len(d.pending) == 0 {
		return v4l2.BufferInfo{}, fmt.Errorf("VIDIOC_DQBUF: %w", syscall.EIO)
	}
	idx := d.pending[0]
	d.pending = d.pending[1:]
	info, _ := d.QueryBuffer(idx, numPlanes)
	info.Sequence = d.sequence
	info.Timestamp = time.Duration(d.sequence) * 33 * time.Millisecond
	d.sequence++
	return info, nil
}

func (d *fakeDevice) StreamOn() error {
	if d.streamErr != nil {
		return d.streamErr
	}
	d.streamOns++
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.streamOffs++
	d.pending = nil
	return nil
}

func (d *fakeDevice) Close() error {
	d.closes++
	return d.closeErr
}

func (d *fakeDevice) lastReqbufs() uint32 {
	if len(d.reqbufs) == 0 {
		return 1 << 31
	}
	return d.reqbufs[len(d.reqbufs)-1]
}

type controlCall struct {
	id    uint32
	value int32
}

type fakeControl struct {
	mu     sync.Mutex
	calls  []controlCall
	closes int
	// late counts requests issued after Close.
	late int
}

func (c *fakeControl) SetControl(id uint32, value int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		c.late++
	}
	c.calls = append(c.calls, controlCall{id, value})
	return nil
}

func (c *fakeControl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeControl) snapshot() (calls []controlCall, late int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls), c.late
}

type fakeOpener struct {
	dev     *fakeDevice
	ctrl    *fakeControl
	openErr error
}

func (o *fakeOpener) OpenCapture(string) (Device, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	return o.dev, nil
}

func (o *fakeOpener) OpenControl(string) (ControlDevice, error) {
	return o.ctrl, nil
}

// fakeRenderer returns scripted results; draws past the script continue.
type fakeRenderer struct {
	setupErr error
	drawErr  error
	results  []render.Result
	keys     map[int]string // draw number -> keys delivered during that draw
	onDraw   func(n int)

	setupFrame render.Frame
	drawn      []render.Frame
	keyFn      render.KeyFunc
}

func (r *fakeRenderer) Setup(f render.Frame) error {
	r.setupFrame = f
	return r.setupErr
}

func (r *fakeRenderer) Draw(f render.Frame) render.Result {
	n := len(r.drawn)
	r.drawn = append(r.drawn, f)
	if r.onDraw != nil {
		r.onDraw(n)
	}
	if k, ok := r.keys[n]; ok && r.keyFn != nil {
		r.keyFn(k)
	}
	if n < len(r.results) {
		return r.results[n]
	}
	return render.Continue
}

func (r *fakeRenderer) SetKeyHandler(fn render.KeyFunc) { r.keyFn = fn }

func (r *fakeRenderer) Err() error { return r.drawErr }

func (r *fakeRenderer) drawnIndexes() []int {
	out := make([]int, len(r.drawn))
	for i, f := range r.drawn {
		out[i] = f.Index
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) states() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if sc, ok := ev.(events.SessionStateChangedEvent); ok {
			out = append(out, sc.State)
		}
	}
	return out
}

func (p *recordingPublisher) count(typ uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type() == typ {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu       sync.Mutex
	ready    int
	stopping int
	statuses []string
}

func (n *fakeNotifier) Ready() {
	n.mu.Lock()
	n.ready++
	n.mu.Unlock()
}

func (n *fakeNotifier) Stopping() {
	n.mu.Lock()
	n.stopping++
	n.mu.Unlock()
}

func (n *fakeNotifier) Status(format string, args ...any) {
	n.mu.Lock()
	n.statuses = append(n.statuses, fmt.Sprintf(format, args...))
	n.mu.Unlock()
}

func (n *fakeNotifier) StartWatchdog(context.Context, func() uint64) {}

var errBoom = errors.New("boom")
