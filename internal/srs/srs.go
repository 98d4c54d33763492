// Package srs parses SRS (Sample ReScene) metadata: one FileData record and
// zero or more TrackData records describing how to re-fetch a sample's
// frame bytes from a larger source file.
package srs

import (
	"encoding/binary"
	"io"

	"github.com/javi11/srrkit/internal/ebml"
	"github.com/javi11/srrkit/internal/rerr"
)

var (
	idFileData  = []byte{0x6A, 0x75}
	idTrackData = []byte{0x6B, 0x75}
)

// FileData is the sample identity record, per spec.md §3.
type FileData struct {
	Flags        uint16
	AppName      string
	SampleName   string
	OriginalSize uint64
	CRC32        uint32
}

// TrackData is one per-track source window, per spec.md §3.
type TrackData struct {
	Flags       uint16
	TrackNumber uint64
	DataLength  uint64
	MatchOffset uint64
	Signature   []byte
}

const (
	trackFlagTrack32  = 1 << 3
	trackFlagLength64 = 1 << 2
)

// Parse walks src (length srcLen) and returns the single FileData record
// (ReSample child, or legacy top-level-of-Segment form) and every TrackData
// record found.
func Parse(src io.ReaderAt, srcLen int64) (*FileData, []TrackData, error) {
	var fd *FileData
	var tracks []TrackData

	visit := func(el ebml.Element, depth int) (bool, error) {
		switch {
		case ebml.Equal(el.ID, idFileData):
			if el.Unknown {
				return false, nil
			}
			buf := make([]byte, el.Size)
			n, _ := src.ReadAt(buf, el.DataPosition)
			parsed, err := parseFileData(buf[:n])
			if err != nil {
				return false, err
			}
			fd = &parsed
			return false, nil
		case ebml.Equal(el.ID, idTrackData):
			if el.Unknown {
				return false, nil
			}
			buf := make([]byte, el.Size)
			n, _ := src.ReadAt(buf, el.DataPosition)
			td, err := parseTrackData(buf[:n])
			if err != nil {
				return false, err
			}
			tracks = append(tracks, td)
			return false, nil
		default:
			return true, nil
		}
	}

	if err := ebml.Walk(src, 0, srcLen, visit); err != nil {
		return nil, nil, err
	}

	if fd == nil && len(tracks) == 0 {
		legacyFD, legacyTracks, ok := legacyScan(src, srcLen)
		if ok {
			return legacyFD, legacyTracks, nil
		}
	}

	return fd, tracks, nil
}

func parseFileData(b []byte) (FileData, error) {
	var fd FileData
	pos := 0
	if len(b) < 2 {
		return fd, rerr.New(rerr.ErrEBMLMalformed, 0, "file data flags")
	}
	fd.Flags = binary.LittleEndian.Uint16(b[pos : pos+2])
	pos += 2

	name, n, err := readLenPrefixedUTF8(b[pos:])
	if err != nil {
		return fd, err
	}
	fd.AppName = name
	pos += n

	name, n, err = readLenPrefixedUTF8(b[pos:])
	if err != nil {
		return fd, err
	}
	fd.SampleName = name
	pos += n

	if len(b) < pos+12 {
		return fd, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "file data size/crc")
	}
	fd.OriginalSize = binary.LittleEndian.Uint64(b[pos : pos+8])
	pos += 8
	fd.CRC32 = binary.LittleEndian.Uint32(b[pos : pos+4])
	return fd, nil
}

func readLenPrefixedUTF8(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, rerr.New(rerr.ErrEBMLMalformed, 0, "utf8 length prefix")
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b) < 2+n {
		return "", 0, rerr.New(rerr.ErrEBMLMalformed, 0, "utf8 bytes")
	}
	return string(b[2 : 2+n]), 2 + n, nil
}

func parseTrackData(b []byte) (TrackData, error) {
	var td TrackData
	if len(b) < 2 {
		return td, rerr.New(rerr.ErrEBMLMalformed, 0, "track data flags")
	}
	td.Flags = binary.LittleEndian.Uint16(b[0:2])
	pos := 2

	if td.Flags&trackFlagTrack32 != 0 {
		if len(b) < pos+4 {
			return td, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "track number u32")
		}
		td.TrackNumber = uint64(binary.LittleEndian.Uint32(b[pos : pos+4]))
		pos += 4
	} else {
		if len(b) < pos+2 {
			return td, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "track number u16")
		}
		td.TrackNumber = uint64(binary.LittleEndian.Uint16(b[pos : pos+2]))
		pos += 2
	}

	if td.Flags&trackFlagLength64 != 0 {
		if len(b) < pos+8 {
			return td, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "data length u64")
		}
		td.DataLength = binary.LittleEndian.Uint64(b[pos : pos+8])
		pos += 8
	} else {
		if len(b) < pos+4 {
			return td, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "data length u32")
		}
		td.DataLength = uint64(binary.LittleEndian.Uint32(b[pos : pos+4]))
		pos += 4
	}

	if len(b) < pos+8 {
		return td, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "match offset")
	}
	td.MatchOffset = binary.LittleEndian.Uint64(b[pos : pos+8])
	pos += 8

	if len(b) < pos+2 {
		return td, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "signature length")
	}
	sigLen := int(binary.LittleEndian.Uint16(b[pos : pos+2]))
	pos += 2

	end := pos + sigLen
	if end > len(b) {
		end = len(b) // clamp to payload end on malformed inputs, per §4.5
	}
	td.Signature = append([]byte(nil), b[pos:end]...)

	return td, nil
}

// legacyMaxScan bounds the fallback byte-scan to the first ~1 MiB, per §9.
const legacyMaxScan = 1 << 20

// legacyScan is the fallback used only when the structured walk finds
// neither FileData nor TrackData: a byte-wise search for the legacy 0xC0
// container with 0xC1/0xC2 children.
func legacyScan(src io.ReaderAt, srcLen int64) (*FileData, []TrackData, bool) {
	limit := srcLen
	if limit > legacyMaxScan {
		limit = legacyMaxScan
	}
	buf := make([]byte, limit)
	n, _ := src.ReadAt(buf, 0)
	buf = buf[:n]

	var fd *FileData
	var tracks []TrackData
	for i := 0; i < len(buf); i++ {
		if buf[i] != 0xC0 {
			continue
		}
		// 0xC0 { 0xC1, 0xC2 } — treat following bytes as a nested EBML
		// region and re-run the structured parsers against its children.
		sub := io.NewSectionReader(bytesReaderAt{buf}, int64(i+1), int64(len(buf)-i-1))
		el, err := ebml.ReadElement(sub, 0, int64(len(buf)-i-1))
		if err != nil {
			continue
		}
		switch {
		case ebml.Equal(el.ID, []byte{0xC1}):
			if parsed, err := parseFileData(sliceAt(buf, i+1+int(el.HeaderLen), int(el.Size))); err == nil {
				fd = &parsed
			}
		case ebml.Equal(el.ID, []byte{0xC2}):
			if td, err := parseTrackData(sliceAt(buf, i+1+int(el.HeaderLen), int(el.Size))); err == nil {
				tracks = append(tracks, td)
			}
		}
	}
	if fd == nil && len(tracks) == 0 {
		return nil, nil, false
	}
	return fd, tracks, true
}

func sliceAt(buf []byte, off, n int) []byte {
	if off < 0 || off > len(buf) {
		return nil
	}
	end := off + n
	if end > len(buf) {
		end = len(buf)
	}
	return buf[off:end]
}

// bytesReaderAt adapts a plain byte slice to io.ReaderAt for the legacy
// scan's reuse of the structured element-header reader.
type bytesReaderAt struct{ b []byte }

func (r bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
