package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out monotonic ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns a Generator drawing entropy from r. A nil clock
// means time.Now.
func NewGenerator(r io.Reader, clock func() time.Time) *Generator {
	if clock == nil {
		clock = time.Now
	}
	return &Generator{
		entropy: ulid.Monotonic(r, 0),
		now:     clock,
	}
}

// New returns the next ULID string.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.entropy)
	if err != nil {
		// Only possible if the clock goes backwards past the monotonic window
		// or entropy is exhausted.
		panic(err)
	}
	return id.String()
}

var defaultGen *Generator

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	defaultGen = NewGenerator(rand.New(rand.NewSource(seed)), nil)
}

// New returns a ULID string (time-sortable identifier).
func New() string {
	return defaultGen.New()
}

// WithPrefix returns prefix-ULID, e.g. "PAPER-01HV...".
func WithPrefix(prefix string) string {
	return prefix + "-" + New()
}
