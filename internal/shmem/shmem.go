// Package shmem manages named shared-memory segments used for
// machine-local interprocess signalling.
//
// Every segment is a file under /dev/shm mapped with MAP_SHARED. The
// first 16 bytes hold a header (magic, segment type, payload size) so
// that an attaching process can reject a segment of the wrong kind
// before touching its payload. The process that allocates a segment
// owns the underlying memory and unlinks it on Close; every other
// holder has a non-owning view whose lifetime is bounded by the
// allocator.
package shmem

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"pkt.systems/hwmcore/internal/rterror"
	"pkt.systems/hwmcore/internal/svcfields"
	"pkt.systems/pslog"
)

const (
	// headerSize is the number of bytes reserved in front of the payload.
	headerSize = 16
	// segmentMagic identifies segments created by this package.
	segmentMagic = 0x53574d48

	shmDir      = "/dev/shm/"
	maxNameLen  = 250
	segmentMode = 0o600
)

// Segment is one mapped shared-memory region. The payload view excludes
// the header.
type Segment struct {
	name  string
	mem   []byte
	owned bool

	mu     sync.Mutex
	closed bool
}

// Name returns the segment name as used in the shared namespace.
func (s *Segment) Name() string { return s.name }

// Payload returns the mapped payload view. The slice aliases shared
// memory; it must not be retained past Close.
func (s *Segment) Payload() []byte { return s.mem[headerSize:] }

// Close unmaps the segment and, when this process allocated it, removes
// it from the shared namespace. Close is idempotent.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := unix.Munmap(s.mem)
	s.mem = nil
	if s.owned {
		if unlinkErr := unix.Unlink(shmDir + s.name); unlinkErr != nil && err == nil {
			err = unlinkErr
		}
	}
	return err
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Logger pslog.Logger
}

// Manager allocates shared-memory segments and owns them until Close.
type Manager struct {
	logger pslog.Logger

	mu       sync.Mutex
	segments []*Segment
	closed   bool
}

// NewManager constructs a Manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Manager{logger: svcfields.WithSubsystem(logger, "hwmcore.shmem")}
}

// Allocate creates a new named segment with the given type and payload
// size, maps it, and stamps its header. It fails with an AlreadyExists
// error when the name is taken in the shared namespace.
func (m *Manager) Allocate(name string, segType uint32, payloadSize int) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if payloadSize <= 0 {
		return nil, rterror.InvalidArgument("shmem: payload size must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, rterror.FailedPrecondition("shmem: manager is closed")
	}

	total := headerSize + payloadSize
	fd, err := unix.Open(shmDir+name, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, segmentMode)
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, rterror.AlreadyExists("shmem: segment name already in use: " + name)
		}
		return nil, rterror.Internal("shmem: create segment " + name + ": " + err.Error())
	}
	if err := unix.Ftruncate(fd, int64(total)); err != nil {
		unix.Close(fd)
		unix.Unlink(shmDir + name)
		return nil, rterror.Internal("shmem: size segment " + name + ": " + err.Error())
	}
	mem, err := unix.Mmap(fd, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		unix.Unlink(shmDir + name)
		return nil, rterror.Internal("shmem: map segment " + name + ": " + err.Error())
	}

	binary.LittleEndian.PutUint32(mem[0:4], segmentMagic)
	binary.LittleEndian.PutUint32(mem[4:8], segType)
	binary.LittleEndian.PutUint64(mem[8:16], uint64(payloadSize))

	seg := &Segment{name: name, mem: mem, owned: true}
	m.segments = append(m.segments, seg)
	m.logger.Debug("hwmcore.shmem.allocated", "name", name, "type", segType, "payload_bytes", payloadSize)
	return seg, nil
}

// Close releases every segment this manager allocated. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	for _, seg := range m.segments {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.segments = nil
	return firstErr
}

// Open attaches to an existing segment and validates its header against
// the expected type and payload size. The returned view does not own
// the memory; its lifetime is bounded by the allocating process.
func Open(name string, segType uint32, payloadSize int) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if payloadSize <= 0 {
		return nil, rterror.InvalidArgument("shmem: payload size must be positive")
	}

	fd, err := unix.Open(shmDir+name, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, rterror.NotFound("shmem: no such segment: " + name)
		}
		return nil, rterror.Internal("shmem: open segment " + name + ": " + err.Error())
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, rterror.Internal("shmem: stat segment " + name + ": " + err.Error())
	}
	total := headerSize + payloadSize
	if st.Size != int64(total) {
		unix.Close(fd)
		return nil, rterror.InvalidArgument("shmem: segment has unexpected size: " + name)
	}
	mem, err := unix.Mmap(fd, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		return nil, rterror.Internal("shmem: map segment " + name + ": " + err.Error())
	}

	if binary.LittleEndian.Uint32(mem[0:4]) != segmentMagic {
		unix.Munmap(mem)
		return nil, rterror.InvalidArgument("shmem: segment has unexpected magic: " + name)
	}
	if binary.LittleEndian.Uint32(mem[4:8]) != segType {
		unix.Munmap(mem)
		return nil, rterror.InvalidArgument("shmem: segment has unexpected type: " + name)
	}
	if binary.LittleEndian.Uint64(mem[8:16]) != uint64(payloadSize) {
		unix.Munmap(mem)
		return nil, rterror.InvalidArgument("shmem: segment has unexpected payload size: " + name)
	}

	return &Segment{name: name, mem: mem, owned: false}, nil
}

func validateName(name string) error {
	if name == "" {
		return rterror.InvalidArgument("shmem: segment name must not be empty")
	}
	if len(name) > maxNameLen {
		return rterror.InvalidArgument("shmem: segment name too long: " + name)
	}
	if strings.ContainsRune(name, '/') {
		return rterror.InvalidArgument("shmem: segment name must not contain '/': " + name)
	}
	return nil
}
