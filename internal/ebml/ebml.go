// Package ebml implements the generic EBML element-tree walker shared by
// the SRS metadata extractor and the MKV track-data extractor/rebuilder.
package ebml

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/javi11/srrkit/internal/rerr"
	"github.com/javi11/srrkit/internal/varint"
)

// Well-known element IDs (raw bytes, marker bit included — the canonical
// identity per spec.md §4.1).
var (
	IDSegment   = mustID(0x18538067)
	IDCluster   = mustID(0x1F43B675)
	IDBlockGrp  = mustID(0xA0)
	IDSeekHead  = mustID(0x114D9B74)
	IDInfo      = mustID(0x1549A966)
	IDTracks    = mustID(0x1654AE6B)
	IDReSample  = mustID(0x1F697576)
	IDBlock     = mustID(0xA1)
	IDSimpleBlk = mustID(0xA3)
)

func mustID(v uint32) []byte {
	switch {
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		return []byte{byte(v >> 8), byte(v)}
	case v <= 0xFFFFFF:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// containerIDs is the predetermined set causing descent, per §4.3.
var containerIDs = map[string]bool{
	idKey(IDSegment):  true,
	idKey(IDCluster):  true,
	idKey(IDBlockGrp): true,
	idKey(IDSeekHead): true,
	idKey(IDInfo):     true,
	idKey(IDTracks):   true,
	idKey(IDReSample): true,
}

func idKey(id []byte) string { return hex.EncodeToString(id) }

// IsContainer reports whether id is one of the container IDs that cause
// descent.
func IsContainer(id []byte) bool { return containerIDs[idKey(id)] }

// Element is one (id, size, data_position) triple yielded by the walker.
type Element struct {
	ID           []byte
	Size         uint64
	Unknown      bool // size is the "unknown size" sentinel
	SizeWidth    int
	DataPosition int64
	HeaderLen    int64 // bytes consumed by id+size, i.e. DataPosition - element start
}

// maxDepth bounds recursion on malformed/adversarial inputs, per §9.
const maxDepth = 12

// Source is the random-access byte reader the walker operates over.
type Source interface {
	io.ReaderAt
}

// ReadElement decodes one element header (id + size) at absolute offset
// pos within src, bounded by the end of the current extent (limit).
func ReadElement(src io.ReaderAt, pos int64, limit int64) (Element, error) {
	if pos >= limit {
		return Element{}, io.EOF
	}
	lookahead := make([]byte, 12)
	n, _ := src.ReadAt(lookahead, pos)
	lookahead = lookahead[:n]
	if len(lookahead) == 0 {
		return Element{}, io.EOF
	}
	id, err := varint.ReadElementIDFromSlice(lookahead)
	if err != nil {
		return Element{}, rerr.New(rerr.ErrEBMLMalformed, pos, "element id")
	}
	rest := lookahead[len(id):]
	if len(rest) == 0 {
		more := make([]byte, 8)
		n2, _ := src.ReadAt(more, pos+int64(len(id)))
		rest = more[:n2]
	}
	size, w, err := varint.ReadSizeFromSlice(rest)
	if err != nil {
		return Element{}, rerr.New(rerr.ErrEBMLMalformed, pos+int64(len(id)), "element size")
	}
	headerLen := int64(len(id) + w)
	dataPos := pos + headerLen
	unknown := varint.UnknownSize(size, w)
	if !unknown && dataPos+int64(size) > limit {
		return Element{}, rerr.New(rerr.ErrEBMLMalformed, pos, "element exceeds parent extent")
	}
	return Element{
		ID:           id,
		Size:         size,
		Unknown:      unknown,
		SizeWidth:    w,
		DataPosition: dataPos,
		HeaderLen:    headerLen,
	}, nil
}

// End returns the absolute offset one past this element's payload, given
// parentLimit to resolve unknown-size elements (they span to the end of
// their enclosing element).
func (e Element) End(parentLimit int64) int64 {
	if e.Unknown {
		return parentLimit
	}
	return e.DataPosition + int64(e.Size)
}

// Visitor is called for every element the walker encounters, at every
// depth, before descent. For container elements, the returned descend flag
// decides whether the walker recurses into it (leaf elements ignore the
// flag). This lets callers implement cluster-skip-style optimizations
// without a custom traversal.
type Visitor func(e Element, depth int) (descend bool, err error)

// Walk walks the element tree rooted at [start, limit) in src, calling
// visit for every element encountered (containers and leaves alike) before
// descending into containers. Truncated elements end the current level
// without error propagation beyond returning early.
func Walk(src io.ReaderAt, start, limit int64, visit Visitor) error {
	return walk(src, start, limit, 0, visit)
}

func walk(src io.ReaderAt, pos, limit int64, depth int, visit Visitor) error {
	if depth > maxDepth {
		return nil
	}
	for pos < limit {
		el, err := ReadElement(src, pos, limit)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Malformed/truncated element terminates this level, not fatal overall.
			return nil
		}
		descend, err := visit(el, depth)
		if err != nil {
			return err
		}
		end := el.End(limit)
		if IsContainer(el.ID) && descend {
			if err := walk(src, el.DataPosition, end, depth+1, visit); err != nil {
				return err
			}
		}
		pos = end
	}
	return nil
}

// Equal reports whether two element IDs are identical byte sequences.
func Equal(a, b []byte) bool { return bytes.Equal(a, b) }
