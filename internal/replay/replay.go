// Package replay records per-tick battle snapshots as a msgpack stream: one
// Header followed by one Frame per tick.
package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
)

// Version is the stream format version written in every Header.
const Version = 1

// Entity kinds.
const (
	KindUnit       = "unit"
	KindProjectile = "projectile"
)

// Header opens a replay stream.
type Header struct {
	Version  int      `msgpack:"v"`
	BattleID string   `msgpack:"battle"`
	Scenario string   `msgpack:"scenario"`
	Sides    []string `msgpack:"sides"`
}

// EntityFrame is one entity's visible state.
type EntityFrame struct {
	ID     uint64  `msgpack:"id"`
	Kind   string  `msgpack:"k"`
	Side   string  `msgpack:"s,omitempty"`
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	Health uint32  `msgpack:"hp,omitempty"`
	Facing float64 `msgpack:"f,omitempty"`
	// Target is the entity a projectile is flying at.
	Target uint64 `msgpack:"t,omitempty"`
}

// Frame is the state of every positioned entity at the end of a tick.
type Frame struct {
	Tick     uint64        `msgpack:"tick"`
	Entities []EntityFrame `msgpack:"e"`
}

// Capture snapshots every positioned entity in a, in ascending entity order.
func Capture(tick uint64, a *arena.Arena) Frame {
	ents := a.World.Query().With(a.Positions).Execute()
	f := Frame{Tick: tick, Entities: make([]EntityFrame, 0, len(ents))}
	for _, e := range ents {
		pos, _ := a.Positions.Get(e)
		ef := EntityFrame{ID: uint64(e), Kind: KindUnit, X: pos.X, Y: pos.Y}
		if b, ok := a.Bullets.Get(e); ok {
			ef.Kind = KindProjectile
			ef.Target = uint64(b.Target)
		}
		if s, ok := a.Sides.Get(e); ok {
			ef.Side = string(*s)
		}
		if h, ok := a.Healths.Get(e); ok {
			ef.Health = h.Points
		}
		if fc, ok := a.Facings.Get(e); ok {
			ef.Facing = fc.Radians
		}
		f.Entities = append(f.Entities, ef)
	}
	return f
}

// Encode returns f as a single msgpack message.
func Encode(f Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

// Decode parses a single msgpack message produced by Encode.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}

// Writer appends frames to a stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	closer io.Closer
	frames int
}

// NewWriter writes h to w and returns a Writer for the frames that follow.
// If w is an io.Closer, Close closes it.
//
// Postcondition: h.Version is set to Version.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	buf := bufio.NewWriter(w)
	rw := &Writer{buf: buf, enc: msgpack.NewEncoder(buf)}
	if c, ok := w.(io.Closer); ok {
		rw.closer = c
	}
	h.Version = Version
	if err := rw.enc.Encode(h); err != nil {
		return nil, fmt.Errorf("writing replay header: %w", err)
	}
	return rw, nil
}

// Create opens path for writing and returns a Writer over it.
func Create(path string, h Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating replay %q: %w", path, err)
	}
	w, err := NewWriter(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteFrame appends f.
func (w *Writer) WriteFrame(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("writing frame %d: %w", f.Tick, err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close flushes buffered frames and closes the underlying writer if it is
// closable.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.buf.Flush()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	return err
}

// Reader reads a stream produced by Writer.
type Reader struct {
	dec    *msgpack.Decoder
	header Header
}

// NewReader reads and checks the stream header.
//
// Postcondition: Returns an error if the header is missing or its version is
// unsupported.
func NewReader(r io.Reader) (*Reader, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("reading replay header: %w", err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("unsupported replay version %d", h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the stream header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next frame, or io.EOF at the end of the stream.
func (r *Reader) Next() (Frame, error) {
	var f Frame
	if err := r.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("reading frame: %w", err)
	}
	return f, nil
}

// ReadAll returns every remaining frame.
func (r *Reader) ReadAll() ([]Frame, error) {
	var out []Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
