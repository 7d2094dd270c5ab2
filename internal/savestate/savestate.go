// Package savestate serializes a point-in-time image of the kernel's thread,
// scheduler and timing state to disk. Images are msgpack-encoded and carry a
// schema version plus a content digest for safe invalidation.
package savestate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"horizon/internal/kernel"
)

// Current schema version - increment when Snapshot format changes
const snapshotSchemaVersion uint16 = 1

// ErrSchemaMismatch is returned when a snapshot on disk was written by an
// incompatible version of the format.
var ErrSchemaMismatch = errors.New("savestate: snapshot schema mismatch")

// ErrDigestMismatch is returned when a snapshot's stored digest does not
// match its content.
var ErrDigestMismatch = errors.New("savestate: snapshot digest mismatch")

// Digest is a SHA-256 content hash.
type Digest [sha256.Size]byte

// String returns the hex form of the digest.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ThreadImage is the serializable state of one thread.
type ThreadImage struct {
	ID              uint64
	Name            string
	Status          uint8
	NominalPriority uint32
	CurrentPriority uint32
	ProcessorID     int32
	IdealCore       uint32
	AffinityMask    uint64
	EntryPoint      uint64
	StackTop        uint64
	TLSAddress      uint64
	TPIDREL0        uint64

	// Wait episode addresses. Zero when not waiting on the given kind.
	MutexWaitAddress   uint64
	CondvarWaitAddress uint64
	ArbWaitAddress     uint64
	WaitHandle         uint32

	// LockOwnerID is the id of the thread holding the lock this thread is
	// blocked on, or 0 when unblocked.
	LockOwnerID uint64
	// MutexWaiterIDs are the ids of threads blocked on locks this thread
	// holds, in registration order.
	MutexWaiterIDs []uint64

	// Saved CPU context.
	Regs   [31]uint64
	SP     uint64
	PC     uint64
	PState uint32
	FPCR   uint32
}

// CoreImage is the serializable state of one core scheduler.
type CoreImage struct {
	CoreID uint32
	// CurrentThreadID is the running thread's id, or 0 when the core idles.
	CurrentThreadID uint64
	// ReadyThreadIDs lists queued threads in registration order.
	ReadyThreadIDs []uint64
}

// Snapshot stores a full kernel image for later inspection.
type Snapshot struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	NowNs    uint64
	CPUTicks uint64

	Threads []ThreadImage
	Cores   []CoreImage

	// Digest covers every field above it, computed over the msgpack encoding
	// of the snapshot with Digest zeroed.
	Digest Digest
}

// Capture builds a snapshot of the kernel's current state. The caller must
// hold the kernel critical section.
func Capture(k *kernel.KernelCore) (*Snapshot, error) {
	snap := &Snapshot{
		Schema:   snapshotSchemaVersion,
		NowNs:    k.Timing().NowNs(),
		CPUTicks: k.Timing().CPUTicks(),
	}

	for _, t := range k.Threads() {
		snap.Threads = append(snap.Threads, threadToImage(t))
	}

	for core := int32(0); core < int32(k.NumCores()); core++ {
		s := k.Scheduler(core)
		img := CoreImage{CoreID: uint32(core)}
		if cur := s.CurrentThread(); cur != nil {
			img.CurrentThreadID = cur.ID()
		}
		for _, t := range s.Threads() {
			if t != s.CurrentThread() && s.Queued(t) {
				img.ReadyThreadIDs = append(img.ReadyThreadIDs, t.ID())
			}
		}
		snap.Cores = append(snap.Cores, img)
	}

	d, err := snap.contentDigest()
	if err != nil {
		return nil, err
	}
	snap.Digest = d
	return snap, nil
}

func threadToImage(t *kernel.Thread) ThreadImage {
	img := ThreadImage{
		ID:                 t.ID(),
		Name:               t.Name(),
		Status:             uint8(t.Status()),
		NominalPriority:    t.NominalPriority(),
		CurrentPriority:    t.Priority(),
		ProcessorID:        t.ProcessorID(),
		IdealCore:          t.IdealCore(),
		AffinityMask:       t.AffinityMask(),
		EntryPoint:         uint64(t.EntryPoint()),
		StackTop:           uint64(t.StackTop()),
		TLSAddress:         uint64(t.TLSAddress()),
		TPIDREL0:           t.TPIDREL0(),
		MutexWaitAddress:   uint64(t.MutexWaitAddress()),
		CondvarWaitAddress: uint64(t.CondvarWaitAddress()),
		ArbWaitAddress:     uint64(t.ArbWaitAddress()),
		WaitHandle:         uint32(t.WaitHandle()),
	}
	if owner := t.LockOwner(); owner != nil {
		img.LockOwnerID = owner.ID()
	}
	for _, w := range t.MutexWaiters() {
		img.MutexWaiterIDs = append(img.MutexWaiterIDs, w.ID())
	}
	ctx := t.Context()
	img.Regs = ctx.Regs
	img.SP = uint64(ctx.SP)
	img.PC = uint64(ctx.PC)
	img.PState = ctx.PState
	img.FPCR = ctx.FPCR
	return img
}

// contentDigest hashes the snapshot encoding with the Digest field zeroed.
func (s *Snapshot) contentDigest() (Digest, error) {
	saved := s.Digest
	s.Digest = Digest{}
	defer func() { s.Digest = saved }()

	raw, err := msgpack.Marshal(s)
	if err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(raw), nil
}

// Verify recomputes the content digest and checks it against the stored one.
func (s *Snapshot) Verify() error {
	d, err := s.contentDigest()
	if err != nil {
		return err
	}
	if d != s.Digest {
		return ErrDigestMismatch
	}
	return nil
}

// Thread returns the image of the thread with the given id, or nil.
func (s *Snapshot) Thread(id uint64) *ThreadImage {
	for i := range s.Threads {
		if s.Threads[i].ID == id {
			return &s.Threads[i]
		}
	}
	return nil
}

// Save serializes the snapshot and writes it atomically to path.
func Save(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("failed to remove temp file: %v", err)
		}
	}()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(snap); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Load reads a snapshot from path and validates its schema and digest.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			panic(closeErr)
		}
	}()

	var snap Snapshot
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(&snap); err != nil {
		return nil, err
	}
	if snap.Schema != snapshotSchemaVersion {
		return nil, ErrSchemaMismatch
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return &snap, nil
}
