// ABOUTME: Arena: process-wide coordinator of chunks, zones, and the hysteresis pool
// ABOUTME: A single sync.Mutex serializes every operation, matching pkg/wal/wal.go's model

package arena

import (
	"sync"

	"github.com/nainya/mpsarena/internal/logger"
	"github.com/nainya/mpsarena/internal/metrics"
)

// Class selects the allocation policy an arena uses (spec.md §4.I).
type Class int

const (
	// ClassVM allocates under zone discipline: Plan A/B/C/D fallback.
	ClassVM Class = iota
	// ClassVMNZ always searches the universal set; no zone discipline.
	ClassVMNZ
)

const maxGenerations = 8

// defaultExtendBy is the chunk growth increment Plan C uses (spec.md's
// worked examples assume 64 MiB).
const defaultExtendBy = 64 << 20

// defaultSpareCommitLimit bounds the hysteresis pool when the caller
// does not set one explicitly.
const defaultSpareCommitLimit = 16 << 20

// Config configures a new arena. The zero value is usable: every zero
// field takes a default — ZoneShift 20, CommitLimit "no limit",
// SpareCommitLimit 16 MiB, ExtendBy 64 MiB.
type Config struct {
	ZoneShift        uint // bits separating zone field from offset field
	CommitLimit      uint64
	SpareCommitLimit uint64
	ExtendBy         uint64

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

func (cfg Config) withDefaults() Config {
	if cfg.ZoneShift == 0 {
		cfg.ZoneShift = 20
	}
	if cfg.CommitLimit == 0 {
		cfg.CommitLimit = ^uint64(0)
	}
	if cfg.SpareCommitLimit == 0 {
		cfg.SpareCommitLimit = defaultSpareCommitLimit
	}
	if cfg.ExtendBy == 0 {
		cfg.ExtendBy = defaultExtendBy
	}
	return cfg
}

// Arena is the process-wide coordinator of a virtual-memory reservation
// and the page-granularity allocator atop it. Multiple arenas per
// process are permitted; all state hangs off the handle, there are no
// hidden package-level statics.
type Arena struct {
	mu sync.Mutex

	class     Class
	alignment uintptr
	zoneShift uint

	commitLimit      uint64
	committed        uint64
	spareCommitLimit uint64
	spareCommitted   uint64
	extendBy         uint64

	chunks     []*Chunk
	chunkCache int // last chunk touched by search or iteration; -1 if none

	blacklist RefSet
	freeSet   RefSet
	genRefSet [maxGenerations]RefSet

	chains         []*GenChain
	emergencyTrace bool

	latentHead, latentTail ringLink

	log *logger.Logger
	met *metrics.Metrics
}

// Create builds a new arena. userSize is a hint for the initial chunk's
// reservation; it is not a hard cap — Plan C (chunk growth) can add
// more chunks later.
func Create(class Class, userSize uint64, cfg Config) (*Arena, error) {
	cfg = cfg.withDefaults()

	a := &Arena{
		class:            class,
		alignment:        vmAlignment(),
		zoneShift:        cfg.ZoneShift,
		commitLimit:      cfg.CommitLimit,
		spareCommitLimit: cfg.SpareCommitLimit,
		extendBy:         cfg.ExtendBy,
		chunkCache:       -1,
		blacklist:        defaultBlacklist(),
		freeSet:          UniversalRefSet(),
		latentHead:       noLink,
		latentTail:       noLink,
		log:              cfg.Logger,
		met:              cfg.Metrics,
	}
	if class == ClassVMNZ {
		a.blacklist = EmptyRefSet()
	}

	if userSize == 0 {
		userSize = a.extendBy
	}
	if _, err := a.growLocked(userSize); err != nil {
		return nil, err
	}

	a.logEvent("arena created").
		withField("class", int(class)).
		withField("user_size", userSize).
		emit()
	return a, nil
}

// Destroy purges the hysteresis pool and releases every chunk.
func (a *Arena) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.purgeAllLocked()
	for _, c := range a.chunks {
		if err := chunkDestroy(c); err != nil {
			a.logEvent("chunk release failed").withField("error", err.Error()).emit()
		}
	}
	a.chunks = nil
	a.chunkCache = -1
}

// Reserved returns the total bytes reserved (mapped or not) across every
// chunk.
func (a *Arena) Reserved() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total uint64
	for _, c := range a.chunks {
		total += uint64(c.limit - c.base)
	}
	return total
}

// Committed returns arena.committed.
func (a *Arena) Committed() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}

// SpareCommitted returns arena.spareCommitted.
func (a *Arena) SpareCommitted() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spareCommitted
}

// SetCommitLimit sets a new commit limit. It does not retroactively
// purge; a limit below current commitment simply blocks further growth
// until frees bring committed back down.
func (a *Arena) SetCommitLimit(bytes uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commitLimit = bytes
}

// SetSpareCommitLimit sets a new spare-commit limit and purges
// immediately if the new limit is already exceeded.
func (a *Arena) SetSpareCommitLimit(bytes uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spareCommitLimit = bytes
	if a.spareCommitted > a.spareCommitLimit {
		a.purgeLocked(a.spareCommitted - a.spareCommitLimit)
	}
}

// IsReserved reports whether addr falls within some chunk's reservation
// (regardless of commit state).
func (a *Arena) IsReserved(addr uintptr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.chunks {
		if addr >= c.base && addr < c.limit {
			return true
		}
	}
	return false
}

// Stats is a point-in-time snapshot, convenient for logging, metrics
// scraping, and the /stats endpoint in internal/server.
type Stats struct {
	Reserved          uint64
	Committed         uint64
	SpareCommitted    uint64
	CommitLimit       uint64
	Chunks            int
	PerChunkCommitted []uint64
}

func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	var reserved uint64
	perChunk := make([]uint64, len(a.chunks))
	for i, c := range a.chunks {
		reserved += uint64(c.limit - c.base)
		perChunk[i] = c.committedBytes()
	}
	return Stats{
		Reserved:          reserved,
		Committed:         a.committed,
		SpareCommitted:    a.spareCommitted,
		CommitLimit:       a.commitLimit,
		Chunks:            len(a.chunks),
		PerChunkCommitted: perChunk,
	}
}

// growLocked creates a new chunk of at least `size` bytes and adds it to
// the chunk ring. Callers must hold a.mu.
func (a *Arena) growLocked(size uint64) (*Chunk, error) {
	idx := uint32(len(a.chunks))
	c, err := chunkCreate(a, idx, size)
	if err != nil {
		return nil, err
	}
	a.chunks = append(a.chunks, c)
	a.committed += c.ullage * uint64(c.pageSize)
	newZones := RefSetOfRange(c.base+c.ullage*c.pageSize, c.limit, a.zoneShift)
	for _, g := range a.genRefSet {
		newZones = newZones.Diff(g)
	}
	a.freeSet = a.freeSet.Union(newZones)

	if a.met != nil {
		a.met.ChunksTotal.Inc()
		a.met.ArenaReservedBytes.Add(float64(c.limit - c.base))
	}
	a.logEvent("chunk grown").
		withField("bytes", uint64(c.limit-c.base)).
		withField("pages", c.pages).
		withField("ullage_pages", c.ullage).
		emit()
	return c, nil
}

func (a *Arena) logEvent(msg string) *logEventBuilder {
	return &logEventBuilder{a: a, msg: msg}
}

// logEventBuilder is a tiny adapter so arena code can build up
// structured fields without importing zerolog directly, the same way
// internal/logger.Logger wraps zerolog events for its own callers.
type logEventBuilder struct {
	a      *Arena
	msg    string
	fields map[string]interface{}
}

func (b *logEventBuilder) withField(k string, v interface{}) *logEventBuilder {
	if b.fields == nil {
		b.fields = make(map[string]interface{})
	}
	b.fields[k] = v
	return b
}

func (b *logEventBuilder) emit() {
	if b.a.log == nil {
		return
	}
	l := b.a.log.WithFields(b.fields)
	l.Debug(b.msg).Send()
}
