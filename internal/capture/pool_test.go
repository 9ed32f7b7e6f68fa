//go:build linux

package capture

import (
	"errors"
	"syscall"
	"testing"
)

func TestAllocateAndMapGrant(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		grant     uint32
		exportDMA bool
		want      int
	}{
		{name: "full grant", requested: 4, grant: 8, want: 4},
		{name: "partial grant", requested: 4, grant: 2, want: 2},
		{name: "single buffer", requested: 1, grant: 1, want: 1},
		{name: "max frames", requested: MaxFrames, grant: MaxFrames, want: MaxFrames},
		{name: "with dma export", requested: 3, grant: 3, exportDMA: true, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(tt.grant)
			pool := NewPool(dev, fakePlaneCount)

			got, err := pool.AllocateAndMap(tt.requested, tt.exportDMA)
			if err != nil {
				t.Fatalf("AllocateAndMap() error = %v", err)
			}
			if got != tt.want || pool.Count() != tt.want {
				t.Errorf("granted = %d, Count() = %d, want %d", got, pool.Count(), tt.want)
			}
			if dev.mapped != tt.want*fakePlaneCount {
				t.Errorf("mapped planes = %d, want %d", dev.mapped, tt.want*fakePlaneCount)
			}

			for i := 0; i < pool.Count(); i++ {
				b := pool.Buffer(i)
				if b.Index != i || b.State != Mapped {
					t.Errorf("buffer %d: index %d state %s", i, b.Index, b.State)
				}
				for j, pl := range b.Planes() {
					if pl.Data == nil || uint32(len(pl.Data)) != pl.Length {
						t.Errorf("buffer %d plane %d: len(Data) = %d, Length = %d", i, j, len(pl.Data), pl.Length)
					}
					if tt.exportDMA != (pl.DMAFd >= 0) {
						t.Errorf("buffer %d plane %d: DMAFd = %d, exportDMA = %v", i, j, pl.DMAFd, tt.exportDMA)
					}
				}
			}
			if pool.Buffer(tt.want) != nil {
				t.Errorf("Buffer(%d) beyond the grant should be nil", tt.want)
			}
		})
	}
}

func TestAllocateAndMapRejects(t *testing.T) {
	tests := []struct {
		name        string
		requested   int
		grant       uint32
		numPlanes   int
		wantReqbufs int
	}{
		{name: "zero requested", requested: 0, grant: 4, numPlanes: 2, wantReqbufs: 0},
		{name: "negative requested", requested: -1, grant: 4, numPlanes: 2, wantReqbufs: 0},
		{name: "above max frames", requested: MaxFrames + 1, grant: 4, numPlanes: 2, wantReqbufs: 0},
		{name: "too many planes", requested: 4, grant: 4, numPlanes: MaxPlanes + 1, wantReqbufs: 0},
		{name: "driver grants nothing", requested: 4, grant: 0, numPlanes: 2, wantReqbufs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(tt.grant)
			pool := NewPool(dev, tt.numPlanes)

			_, err := pool.AllocateAndMap(tt.requested, false)
			if !errors.Is(err, ErrSetup) {
				t.Fatalf("AllocateAndMap() error = %v, want ErrSetup", err)
			}
			if len(dev.reqbufs) != tt.wantReqbufs {
				t.Errorf("REQBUFS calls = %v, want %d", dev.reqbufs, tt.wantReqbufs)
			}

			// Nothing was allocated, so release must not free anything.
			if err := pool.ReleaseAll(); err != nil {
				t.Errorf("ReleaseAll() error = %v", err)
			}
			if len(dev.reqbufs) != tt.wantReqbufs {
				t.Errorf("ReleaseAll issued REQBUFS: %v", dev.reqbufs)
			}
		})
	}
}

func TestAllocateAndMapRequestFailure(t *testing.T) {
	dev := newFakeDevice(4)
	dev.reqbufsErr = syscall.EBUSY
	pool := NewPool(dev, fakePlaneCount)

	_, err := pool.AllocateAndMap(4, false)
	if !errors.Is(err, ErrSetup) || !errors.Is(err, syscall.EBUSY) {
		t.Fatalf("error = %v, want ErrSetup wrapping EBUSY", err)
	}
	if errno, ok := Errno(err); !ok || errno != syscall.EBUSY {
		t.Errorf("Errno() = %v, %v, want EBUSY", errno, ok)
	}
}

func TestMapFailureIsUndone(t *testing.T) {
	for _, exportDMA := range []bool{false, true} {
		dev := newFakeDevice(4)
		dev.mapFailAt = [2]int{2, 1}
		pool := NewPool(dev, fakePlaneCount)

		_, err := pool.AllocateAndMap(4, exportDMA)
		if !errors.Is(err, ErrMap) {
			t.Fatalf("exportDMA=%v: error = %v, want ErrMap", exportDMA, err)
		}
		var ce *Error
		if !errors.As(err, &ce) || ce.Index != 2 || ce.Plane != 1 {
			t.Fatalf("exportDMA=%v: error = %#v, want buffer 2 plane 1", exportDMA, err)
		}
		if !errors.Is(err, syscall.ENOMEM) {
			t.Errorf("exportDMA=%v: errno lost from %v", exportDMA, err)
		}

		// Buffers 0 and 1 plus plane 0 of buffer 2 were mapped.
		if dev.mapped != 5 {
			t.Errorf("exportDMA=%v: mapped = %d before release, want 5", exportDMA, dev.mapped)
		}

		if err := pool.ReleaseAll(); err != nil {
			t.Fatalf("ReleaseAll() error = %v", err)
		}
		if dev.mapped != 0 {
			t.Errorf("exportDMA=%v: %d planes still mapped", exportDMA, dev.mapped)
		}
		if dev.exported != 0 {
			t.Errorf("exportDMA=%v: %d DMA fds still open", exportDMA, dev.exported)
		}
		if dev.lastReqbufs() != 0 {
			t.Errorf("exportDMA=%v: last REQBUFS = %d, want 0", exportDMA, dev.lastReqbufs())
		}
		for i := 0; i < pool.Count(); i++ {
			if s := pool.Buffer(i).State; s != Released {
				t.Errorf("exportDMA=%v: buffer %d state %s, want released", exportDMA, i, s)
			}
		}
	}
}

func TestExportFailure(t *testing.T) {
	dev := newFakeDevice(2)
	dev.exportErr = syscall.ENOTTY
	pool := NewPool(dev, fakePlaneCount)

	_, err := pool.AllocateAndMap(2, true)
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindMap || ce.Index != 0 || ce.Plane != 0 {
		t.Fatalf("error = %v, want map error on buffer 0 plane 0", err)
	}
	if err := pool.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	if dev.mapped != 0 {
		t.Errorf("%d planes still mapped", dev.mapped)
	}
}

func TestReleaseAllIsIdempotent(t *testing.T) {
	dev := newFakeDevice(3)
	pool := NewPool(dev, fakePlaneCount)
	if _, err := pool.AllocateAndMap(3, true); err != nil {
		t.Fatal(err)
	}

	if err := pool.ReleaseAll(); err != nil {
		t.Fatalf("first ReleaseAll() error = %v", err)
	}
	closed := len(dev.closedFds)
	reqbufs := len(dev.reqbufs)
	if closed != 3*fakePlaneCount {
		t.Errorf("closed fds = %d, want %d", closed, 3*fakePlaneCount)
	}

	if err := pool.ReleaseAll(); err != nil {
		t.Fatalf("second ReleaseAll() error = %v", err)
	}
	if len(dev.closedFds) != closed || len(dev.reqbufs) != reqbufs || dev.mapped != 0 {
		t.Errorf("second release touched the device: fds %d->%d reqbufs %d->%d",
			closed, len(dev.closedFds), reqbufs, len(dev.reqbufs))
	}

	seen := map[int]bool{}
	for _, fd := range dev.closedFds {
		if seen[fd] {
			t.Errorf("fd %d closed twice", fd)
		}
		seen[fd] = true
	}

	if _, err := pool.AllocateAndMap(3, false); !errors.Is(err, ErrSetup) {
		t.Errorf("AllocateAndMap() after release error = %v, want ErrSetup", err)
	}
}

func TestEnqueueAll(t *testing.T) {
	dev := newFakeDevice(4)
	pool := NewPool(dev, fakePlaneCount)
	if _, err := pool.AllocateAndMap(4, false); err != nil {
		t.Fatal(err)
	}

	if err := pool.EnqueueAll(); err != nil {
		t.Fatalf("EnqueueAll() error = %v", err)
	}
	want := []uint32{0, 1, 2, 3}
	if len(dev.queueLog) != len(want) {
		t.Fatalf("queued %v, want %v", dev.queueLog, want)
	}
	for i := range want {
		if dev.queueLog[i] != want[i] {
			t.Errorf("queued %v, want %v", dev.queueLog, want)
			break
		}
		if pool.Buffer(i).State != OwnedByKernel {
			t.Errorf("buffer %d state %s, want kernel", i, pool.Buffer(i).State)
		}
	}
}

func TestEnqueueAllFailureNamesIndex(t *testing.T) {
	dev := newFakeDevice(4)
	dev.queueErrAt = 1
	pool := NewPool(dev, fakePlaneCount)
	if _, err := pool.AllocateAndMap(4, false); err != nil {
		t.Fatal(err)
	}

	err := pool.EnqueueAll()
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindQueue || ce.Index != 1 {
		t.Fatalf("EnqueueAll() error = %v, want queue error for buffer 1", err)
	}
	if !errors.Is(err, ErrQueue) || !errors.Is(err, syscall.EINVAL) {
		t.Errorf("error %v should match ErrQueue and EINVAL", err)
	}
	if len(dev.queueLog) != 1 {
		t.Errorf("queued %v, want only buffer 0", dev.queueLog)
	}
}

func TestDequeueSingleConsumer(t *testing.T) {
	dev := newFakeDevice(4)
	pool := NewPool(dev, fakePlaneCount)
	if _, err := pool.AllocateAndMap(4, false); err != nil {
		t.Fatal(err)
	}
	if err := pool.EnqueueAll(); err != nil {
		t.Fatal(err)
	}

	b, err := pool.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if b.Index != 0 || b.State != OwnedByApp {
		t.Fatalf("dequeued buffer %d in state %s", b.Index, b.State)
	}

	if _, err := pool.Dequeue(); !errors.Is(err, ErrBufferOutstanding) || !errors.Is(err, ErrStreamIO) {
		t.Fatalf("second Dequeue() error = %v, want ErrBufferOutstanding", err)
	}
	if len(dev.pending) != 3 {
		t.Errorf("refused dequeue reached the device: %d pending", len(dev.pending))
	}

	if err := pool.Requeue(b); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if b.State != OwnedByKernel {
		t.Errorf("requeued buffer state %s, want kernel", b.State)
	}
	if err := pool.Requeue(b); !errors.Is(err, ErrStreamIO) {
		t.Errorf("double Requeue() error = %v, want ErrStreamIO", err)
	}

	next, err := pool.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() after requeue error = %v", err)
	}
	if next.Index != 1 || next.Meta.Sequence != 1 {
		t.Errorf("dequeued buffer %d sequence %d, want buffer 1 sequence 1", next.Index, next.Meta.Sequence)
	}
}

func TestDequeueErrors(t *testing.T) {
	dev := newFakeDevice(2)
	pool := NewPool(dev, fakePlaneCount)
	if _, err := pool.AllocateAndMap(2, false); err != nil {
		t.Fatal(err)
	}
	if err := pool.EnqueueAll(); err != nil {
		t.Fatal(err)
	}

	dev.dequeueErrs = []error{syscall.ENODEV}
	_, err := pool.Dequeue()
	if !errors.Is(err, ErrStreamIO) || !errors.Is(err, syscall.ENODEV) {
		t.Errorf("Dequeue() error = %v, want ErrStreamIO wrapping ENODEV", err)
	}

	// A driver returning a buffer that was never queued is a stream error.
	dev.pending = []uint32{7}
	if _, err := pool.Dequeue(); !errors.Is(err, ErrStreamIO) {
		t.Errorf("out of range Dequeue() error = %v, want ErrStreamIO", err)
	}

	// The session ends on these errors; releasing the pool still reclaims
	// every buffer, including the one the driver handed back.
	if err := pool.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() after a stream error: %v", err)
	}
	if dev.mapped != 0 || dev.lastReqbufs() != 0 {
		t.Errorf("mapped = %d, last REQBUFS = %d after release", dev.mapped, dev.lastReqbufs())
	}
}

func TestPrimingFrame(t *testing.T) {
	pool := NewPool(newFakeDevice(2), fakePlaneCount)
	if _, err := pool.PrimingFrame(); !errors.Is(err, ErrSetup) {
		t.Errorf("PrimingFrame() on empty pool error = %v, want ErrSetup", err)
	}

	if _, err := pool.AllocateAndMap(2, false); err != nil {
		t.Fatal(err)
	}
	b, err := pool.PrimingFrame()
	if err != nil || b.Index != 0 {
		t.Errorf("PrimingFrame() = %v, %v, want buffer 0", b, err)
	}
}
