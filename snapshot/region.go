package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const regionMagic uint32 = 0x574b5331 // "WKS1"

// readAttempts bounds how long a reader spins on a writer that is mid-publish.
const readAttempts = 10000

var (
	// ErrBadRegion is returned when a mapped file does not hold a snapshot region.
	ErrBadRegion = errors.New("snapshot: not a snapshot region")
	// ErrBusy is returned when a consistent copy could not be taken.
	ErrBusy = errors.New("snapshot: region kept changing during read")
	// ErrClosed is returned by operations on an unmapped region.
	ErrClosed = errors.New("snapshot: region closed")
)

// layout is the exact memory image of the region. seq is odd while a publish is in
// progress; readers retry until they see the same even value before and after copying.
type layout struct {
	magic uint32
	seq   uint32
	snap  Snapshot
}

// RegionSize is the number of bytes a region occupies.
const RegionSize = int(unsafe.Sizeof(layout{}))

// DefaultDir returns the directory used for regions: /dev/shm when present.
func DefaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Region is a memory-mapped snapshot shared between processes.
type Region struct {
	mu       sync.Mutex
	path     string
	data     []byte
	lay      *layout
	writable bool
}

func regionPath(dir, name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || strings.ContainsRune(name, '/') {
		return "", fmt.Errorf("snapshot: invalid region name %q", name)
	}
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, name), nil
}

// Create makes (or replaces) a zeroed region named name inside dir.
func Create(dir, name string) (*Region, error) {
	path, err := regionPath(dir, name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("create region %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(RegionSize)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("size region %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("map region %s: %w", path, err)
	}
	r := &Region{path: path, data: data, writable: true}
	r.lay = (*layout)(unsafe.Pointer(&data[0]))
	atomic.StoreUint32(&r.lay.magic, regionMagic)
	return r, nil
}

// Open maps an existing region. Viewers open read-only.
func Open(dir, name string, writable bool) (*Region, error) {
	path, err := regionPath(dir, name)
	if err != nil {
		return nil, err
	}
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if writable {
		flag, prot = os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open region %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat region %s: %w", path, err)
	}
	if fi.Size() < int64(RegionSize) {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadRegion, path, fi.Size())
	}
	data, err := unix.Mmap(int(f.Fd()), 0, RegionSize, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map region %s: %w", path, err)
	}
	lay := (*layout)(unsafe.Pointer(&data[0]))
	if atomic.LoadUint32(&lay.magic) != regionMagic {
		unix.Munmap(data)
		return nil, fmt.Errorf("%w: %s", ErrBadRegion, path)
	}
	return &Region{path: path, data: data, lay: lay, writable: writable}, nil
}

// Path returns the backing file.
func (r *Region) Path() string { return r.path }

// Publish overwrites the region with s. Calls must be serialized by the caller;
// the coordinator does this with its lock.
func (r *Region) Publish(s *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lay == nil || !r.writable {
		return
	}
	atomic.AddUint32(&r.lay.seq, 1)
	s.CopyInto(&r.lay.snap)
	atomic.AddUint32(&r.lay.seq, 1)
}

// Read returns a consistent copy of the published snapshot.
func (r *Region) Read() (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lay := r.lay
	if lay == nil {
		return Snapshot{}, ErrClosed
	}
	var out Snapshot
	for i := 0; i < readAttempts; i++ {
		before := atomic.LoadUint32(&lay.seq)
		if before&1 == 1 {
			runtime.Gosched()
			continue
		}
		out = lay.snap
		if atomic.LoadUint32(&lay.seq) == before {
			return out, nil
		}
	}
	return Snapshot{}, ErrBusy
}

// Close unmaps the region. The backing file stays until Unlink.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	r.lay = nil
	return err
}

// Unlink removes the backing file.
func (r *Region) Unlink() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
