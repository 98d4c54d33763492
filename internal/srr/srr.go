// Package srr decodes and re-serializes SRR containers: a linear sequence
// of typed blocks (SRR-specific and embedded RAR 3.x block types) plus, for
// SrrStoredFile blocks, an in-stream payload.
package srr

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/javi11/srrkit/internal/rarfmt"
	"github.com/javi11/srrkit/internal/rerr"
)

// Source is the random-access byte source a Reader operates over. afero
// files and *os.File both satisfy it.
type Source interface {
	io.ReaderAt
	io.ReadSeeker
}

// SrrBlock is the generic record described in spec.md §3: the common
// 7-byte header plus the raw header bytes, always retained so
// serialization never needs to regenerate bytes from parsed fields.
type SrrBlock struct {
	HeadCRC       uint16
	HeadType      byte
	HeadFlags     uint16
	HeadSize      uint16
	BlockPosition int64
	RawHeader     []byte

	HasAddSize bool
	AddSize    uint32

	// Set only for SrrStoredFile: location of the in-stream payload.
	PayloadOffset int64
	PayloadSize   uint32
}

// CanonicalBytes reproduces the block's on-disk header bytes exactly:
// little-endian common header fields followed by the original raw header.
// This never regenerates bytes from parsed subtype fields.
func (b *SrrBlock) CanonicalBytes() []byte {
	out := make([]byte, 7+len(b.RawHeader))
	binary.LittleEndian.PutUint16(out[0:2], b.HeadCRC)
	out[2] = b.HeadType
	binary.LittleEndian.PutUint16(out[3:5], b.HeadFlags)
	binary.LittleEndian.PutUint16(out[5:7], b.HeadSize)
	copy(out[7:], b.RawHeader)
	return out
}

// AppName decodes SrrHeader's optional app_name field (present iff flag
// 0x0001 is set). Only valid for HeadType == rarfmt.SrrHeader.
func (b *SrrBlock) AppName() (string, bool, error) {
	if b.HeadFlags&0x0001 == 0 {
		return "", false, nil
	}
	if len(b.RawHeader) < 2 {
		return "", false, rerr.New(rerr.ErrTruncatedBlock, b.BlockPosition, "srr header app_name length")
	}
	n := binary.LittleEndian.Uint16(b.RawHeader[0:2])
	if len(b.RawHeader) < 2+int(n) {
		return "", false, rerr.New(rerr.ErrTruncatedBlock, b.BlockPosition, "srr header app_name bytes")
	}
	return string(b.RawHeader[2 : 2+int(n)]), true, nil
}

// FileName decodes the name field shared by SrrStoredFile (after its
// 4-byte add_size prefix) and SrrRarFile (no prefix).
func (b *SrrBlock) FileName() (string, error) {
	var raw []byte
	switch b.HeadType {
	case rarfmt.SrrStoredFile:
		if len(b.RawHeader) < 4 {
			return "", rerr.New(rerr.ErrTruncatedBlock, b.BlockPosition, "srr stored file add_size")
		}
		raw = b.RawHeader[4:]
	case rarfmt.SrrRarFile:
		raw = b.RawHeader
	default:
		return "", fmt.Errorf("srr: FileName not applicable to block type 0x%02X", b.HeadType)
	}
	if len(raw) < 2 {
		return "", rerr.New(rerr.ErrTruncatedBlock, b.BlockPosition, "file_name length")
	}
	n := binary.LittleEndian.Uint16(raw[0:2])
	if len(raw) < 2+int(n) {
		return "", rerr.New(rerr.ErrTruncatedBlock, b.BlockPosition, "file_name bytes")
	}
	return string(raw[2 : 2+int(n)]), nil
}

// Reader decodes a lazy, ordered stream of SrrBlock records from Source.
type Reader struct {
	src    Source
	pos    int64
	length int64
}

var magic = [3]byte{0x69, 0x69, 0x69}

// NewReader validates the SRR magic and minimum length, then positions the
// reader at the start of the block stream.
func NewReader(src Source) (*Reader, error) {
	length, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, rerr.New(rerr.ErrShortRead, 0, "seek end")
	}
	if length < 20 {
		return nil, rerr.New(rerr.ErrShortRead, 0, "srr shorter than 20 bytes")
	}
	var head [3]byte
	if _, err := src.ReadAt(head[:], 0); err != nil {
		return nil, rerr.New(rerr.ErrShortRead, 0, "magic")
	}
	if head != magic {
		return nil, rerr.New(rerr.ErrInvalidMagic, 0, fmt.Sprintf("got % X", head))
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, rerr.New(rerr.ErrShortRead, 0, "seek start")
	}
	return &Reader{src: src, pos: 0, length: length}, nil
}

// Next returns the next block, or io.EOF at end of stream. A short read or
// malformed head_size is fatal for the remainder of the stream, per §4.2.
func (r *Reader) Next() (*SrrBlock, error) {
	if r.pos >= r.length {
		return nil, io.EOF
	}
	start := r.pos
	var hdr [7]byte
	n, err := io.ReadFull(r.src, hdr[:])
	r.pos += int64(n)
	if err == io.EOF && n == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, rerr.New(rerr.ErrShortRead, start, "common header")
	}

	headCRC := binary.LittleEndian.Uint16(hdr[0:2])
	headType := hdr[2]
	headFlags := binary.LittleEndian.Uint16(hdr[3:5])
	headSize := binary.LittleEndian.Uint16(hdr[5:7])
	if headSize < 7 {
		return nil, rerr.New(rerr.ErrTruncatedBlock, start, fmt.Sprintf("head_size=%d", headSize))
	}

	rawLen := int(headSize) - 7
	raw := make([]byte, rawLen)
	if rawLen > 0 {
		n2, err := io.ReadFull(r.src, raw)
		r.pos += int64(n2)
		if err != nil {
			return nil, rerr.New(rerr.ErrShortRead, start, "raw header")
		}
	}

	b := &SrrBlock{
		HeadCRC:       headCRC,
		HeadType:      headType,
		HeadFlags:     headFlags,
		HeadSize:      headSize,
		BlockPosition: start,
		RawHeader:     raw,
	}

	// SrrStoredFile always leads with its own add_size (the stored payload's
	// length), independent of the generic RAR-block add_size rule.
	if rarfmt.HasAddSize(headType, headFlags) || headType == rarfmt.SrrStoredFile {
		if len(raw) < 4 {
			return nil, rerr.New(rerr.ErrTruncatedBlock, start, "add_size")
		}
		b.AddSize = binary.LittleEndian.Uint32(raw[0:4])
		b.HasAddSize = true
	}

	// Payload-skip policy: only SrrStoredFile carries an in-stream payload.
	if headType == rarfmt.SrrStoredFile {
		b.PayloadOffset = r.pos
		b.PayloadSize = b.AddSize
		newPos, err := r.src.Seek(int64(b.PayloadSize), io.SeekCurrent)
		if err != nil {
			return nil, rerr.New(rerr.ErrShortRead, r.pos, "stored file payload")
		}
		if newPos > r.length {
			return nil, rerr.New(rerr.ErrShortRead, r.pos, "stored file payload exceeds stream length")
		}
		r.pos = newPos
	}

	return b, nil
}

// ParseAll drains the Reader into a slice, stopping at the first error.
func ParseAll(src Source) ([]*SrrBlock, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	var out []*SrrBlock
	for {
		b, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
}

// PayloadReader returns an io.Reader over a SrrStoredFile block's in-stream
// payload, independent of the main Reader's cursor.
func PayloadReader(src Source, b *SrrBlock) io.Reader {
	return io.NewSectionReader(src, b.PayloadOffset, int64(b.PayloadSize))
}

// Serialize reproduces the original SRR bytes exactly from a parsed block
// slice: the round-trip guarantee of §8. src supplies stored-file payload
// bytes; it may be nil if blocks contains no SrrStoredFile entries.
func Serialize(w io.Writer, blocks []*SrrBlock, src Source) error {
	for _, b := range blocks {
		if _, err := w.Write(b.CanonicalBytes()); err != nil {
			return err
		}
		if b.HeadType == rarfmt.SrrStoredFile {
			if src == nil {
				return fmt.Errorf("srr: Serialize requires src to reproduce stored file payload %q", b.BlockPosition)
			}
			if _, err := io.Copy(w, PayloadReader(src, b)); err != nil {
				return err
			}
		}
	}
	return nil
}

// StoredFileRef names and locates one SrrStoredFile's payload.
type StoredFileRef struct {
	Name   string
	Offset int64
	Size   uint32
}

// Open returns an io.Reader over this stored file's bytes within src.
func (s StoredFileRef) Open(src Source) io.Reader {
	return io.NewSectionReader(src, s.Offset, int64(s.Size))
}

// StoredFiles walks every SrrStoredFile block in src and returns a
// reference to each one's name and payload location, in stream order. This
// is the natural counterpart to the root package's StoredFileSink boundary.
func StoredFiles(src Source) ([]StoredFileRef, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	var out []StoredFileRef
	for {
		b, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if b.HeadType != rarfmt.SrrStoredFile {
			continue
		}
		name, err := b.FileName()
		if err != nil {
			return nil, err
		}
		out = append(out, StoredFileRef{Name: name, Offset: b.PayloadOffset, Size: b.PayloadSize})
	}
}
