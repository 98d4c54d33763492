// Package mkv decodes Matroska Block/SimpleBlock headers, extracts
// per-track frame-data streams from a source MKV, and rebuilds a sample
// MKV by splicing extracted frames into an SRS skeleton.
package mkv

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/javi11/srrkit/internal/ebml"
	"github.com/javi11/srrkit/internal/rerr"
	"github.com/javi11/srrkit/internal/varint"
)

// BlockHeader is the decoded Block/SimpleBlock header of §4.4.
type BlockHeader struct {
	TrackNumber uint64
	Timecode    int16
	Flags       byte
	Lacing      int
	FrameCount  int
	FrameSizes  []int
	HeaderLen   int // bytes of data consumed before frame payloads begin
}

// DecodeBlockHeader parses the laced header from the full payload bytes of
// a Block or SimpleBlock element.
func DecodeBlockHeader(data []byte) (BlockHeader, error) {
	var h BlockHeader
	tn, tnWidth, err := varint.ReadSizeFromSlice(data)
	if err != nil {
		return h, rerr.New(rerr.ErrEBMLMalformed, 0, "block track number")
	}
	h.TrackNumber = tn
	pos := tnWidth
	if len(data) < pos+3 {
		return h, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "block timecode/flags")
	}
	h.Timecode = int16(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	h.Flags = data[pos]
	pos++
	h.Lacing = int((h.Flags >> 1) & 0x03)

	if h.Lacing == 0 {
		h.FrameCount = 1
		h.FrameSizes = []int{len(data) - pos}
		h.HeaderLen = pos
		return h, nil
	}

	if len(data) < pos+1 {
		return h, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "frame count byte")
	}
	frameCount := int(data[pos]) + 1
	pos++
	sizes := make([]int, frameCount)

	switch h.Lacing {
	case 1: // Xiph
		total := 0
		for i := 0; i < frameCount-1; i++ {
			size := 0
			for {
				if pos >= len(data) {
					return h, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "xiph lace size")
				}
				b := data[pos]
				pos++
				size += int(b)
				if b != 255 {
					break
				}
			}
			sizes[i] = size
			total += size
		}
		sizes[frameCount-1] = (len(data) - pos) - total

	case 2: // fixed
		remaining := len(data) - pos
		each := remaining / frameCount
		for i := range sizes {
			sizes[i] = each
		}

	case 3: // EBML
		total := 0
		prev := int64(0)
		if frameCount > 1 {
			v, w, err := varint.ReadSizeFromSlice(data[pos:])
			if err != nil {
				return h, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "ebml lace first size")
			}
			pos += w
			sizes[0] = int(v)
			total = sizes[0]
			prev = int64(sizes[0])
		}
		for i := 1; i < frameCount-1; i++ {
			v, w, err := varint.ReadSizeFromSlice(data[pos:])
			if err != nil {
				return h, rerr.New(rerr.ErrEBMLMalformed, int64(pos), "ebml lace delta size")
			}
			pos += w
			delta := varint.DecodeSigned(v, w)
			cur := prev + delta
			sizes[i] = int(cur)
			total += int(cur)
			prev = cur
		}
		sizes[frameCount-1] = (len(data) - pos) - total

	default:
		return h, rerr.New(rerr.ErrUnsupportedLace, int64(pos), "lacing mode 0 after frame_count path")
	}

	h.FrameCount = frameCount
	h.FrameSizes = sizes
	h.HeaderLen = pos
	return h, nil
}

// FrameOffsets returns the absolute source offset of each frame, given the
// absolute offset of the Block/SimpleBlock element's data (its payload
// start, i.e. ebml.Element.DataPosition).
func (h BlockHeader) FrameOffsets(elementDataPos int64) []int64 {
	offsets := make([]int64, h.FrameCount)
	cur := elementDataPos + int64(h.HeaderLen)
	for i, sz := range h.FrameSizes {
		offsets[i] = cur
		cur += int64(sz)
	}
	return offsets
}

// TrackRequest is one track's extraction window, per SrsTrackData.
type TrackRequest struct {
	MatchOffset uint64
	DataLength  uint64
}

var errStopWalk = errors.New("mkv: extraction quota satisfied")

// ExtractTracks streams a source MKV and produces one byte slice per
// requested track, containing the concatenated frame-data bytes starting
// at (or after) match_offset, up to data_length bytes, per §4.6.
func ExtractTracks(src io.ReaderAt, srcLen int64, tracks map[uint64]TrackRequest) (map[uint64][]byte, error) {
	if len(tracks) == 0 {
		return map[uint64][]byte{}, nil
	}

	minMatch := ^uint64(0)
	for _, t := range tracks {
		if t.MatchOffset < minMatch {
			minMatch = t.MatchOffset
		}
	}

	out := make(map[uint64][]byte, len(tracks))
	counters := make(map[uint64]uint64, len(tracks))

	allDone := func() bool {
		for tn, req := range tracks {
			if counters[tn] < req.DataLength {
				return false
			}
		}
		return true
	}

	visit := func(el ebml.Element, depth int) (bool, error) {
		if allDone() {
			return false, errStopWalk
		}
		if ebml.Equal(el.ID, ebml.IDCluster) {
			if el.End(srcLen) < int64(minMatch) {
				return false, nil // cluster-granularity skip
			}
			return true, nil
		}
		if ebml.Equal(el.ID, ebml.IDBlock) || ebml.Equal(el.ID, ebml.IDSimpleBlk) {
			if err := handleBlock(src, el, tracks, counters, out); err != nil {
				return false, err
			}
			return false, nil
		}
		// Descend into every other container (BlockGroup, Segment, ...).
		return true, nil
	}

	err := ebml.Walk(src, 0, srcLen, visit)
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	return out, nil
}

func handleBlock(src io.ReaderAt, el ebml.Element, tracks map[uint64]TrackRequest, counters map[uint64]uint64, out map[uint64][]byte) error {
	size := el.Size
	if el.Unknown {
		return nil
	}
	lookahead := make([]byte, size)
	n, err := src.ReadAt(lookahead, el.DataPosition)
	if err != nil && int64(n) < int64(size) {
		return rerr.New(rerr.ErrShortRead, el.DataPosition, "block payload")
	}
	hdr, err := DecodeBlockHeader(lookahead)
	if err != nil {
		return err
	}
	req, ok := tracks[hdr.TrackNumber]
	if !ok {
		return nil
	}
	offsets := hdr.FrameOffsets(el.DataPosition)
	for i, frameSize := range hdr.FrameSizes {
		if counters[hdr.TrackNumber] >= req.DataLength {
			break
		}
		frameStart := offsets[i]
		if uint64(frameStart) < req.MatchOffset {
			continue
		}
		remaining := req.DataLength - counters[hdr.TrackNumber]
		toRead := uint64(frameSize)
		if toRead > remaining {
			toRead = remaining
		}
		buf := make([]byte, toRead)
		if _, err := src.ReadAt(buf, frameStart); err != nil {
			return rerr.New(rerr.ErrShortRead, frameStart, "frame data")
		}
		out[hdr.TrackNumber] = append(out[hdr.TrackNumber], buf...)
		counters[hdr.TrackNumber] += toRead
	}
	return nil
}

// perTrackCursor tracks how much of an extracted stream has been consumed
// during rebuild.
type perTrackCursor struct {
	data []byte
	pos  int
}

func (c *perTrackCursor) take(n int) []byte {
	out := make([]byte, n)
	avail := len(c.data) - c.pos
	if avail < 0 {
		avail = 0
	}
	copyN := n
	if avail < copyN {
		copyN = avail
	}
	if copyN > 0 {
		copy(out, c.data[c.pos:c.pos+copyN])
		c.pos += copyN
	}
	// Remainder stays zero, per §4.7's exhausted-stream zero-pad rule.
	return out
}

// RebuildSample streams an SRS skeleton and splices per-track extracted
// frame bytes in place of placeholder frame data, per §4.7. It returns the
// number of bytes written.
func RebuildSample(srs io.ReaderAt, srsLen int64, perTrack map[uint64][]byte, w io.Writer) (int64, error) {
	cursors := make(map[uint64]*perTrackCursor, len(perTrack))
	for tn, b := range perTrack {
		cursors[tn] = &perTrackCursor{data: b}
	}

	var written int64
	writeAt := func(buf []byte) error {
		n, err := w.Write(buf)
		written += int64(n)
		return err
	}

	var walkErr error
	visit := func(el ebml.Element, depth int) (bool, error) {
		if ebml.Equal(el.ID, ebml.IDReSample) {
			return false, nil // skip entirely; not descended, and we never emit its header either
		}
		isBlock := ebml.Equal(el.ID, ebml.IDBlock) || ebml.Equal(el.ID, ebml.IDSimpleBlk)
		headerBytes := make([]byte, el.HeaderLen)
		if _, err := srs.ReadAt(headerBytes, el.DataPosition-el.HeaderLen); err != nil {
			return false, rerr.New(rerr.ErrShortRead, el.DataPosition-el.HeaderLen, "element header")
		}
		if err := writeAt(headerBytes); err != nil {
			return false, err
		}

		if ebml.IsContainer(el.ID) && !isBlock {
			return true, nil
		}

		if isBlock && !el.Unknown {
			placeholder := make([]byte, el.Size)
			n, _ := srs.ReadAt(placeholder, el.DataPosition)
			placeholder = placeholder[:n]
			hdr, err := DecodeBlockHeader(placeholder)
			if err != nil {
				return false, err
			}
			laced := placeholder[:hdr.HeaderLen]
			if err := writeAt(laced); err != nil {
				return false, err
			}
			cur := cursors[hdr.TrackNumber]
			for _, fsz := range hdr.FrameSizes {
				var frame []byte
				if cur != nil {
					frame = cur.take(fsz)
				} else {
					frame = make([]byte, fsz)
				}
				if err := writeAt(frame); err != nil {
					return false, err
				}
			}
			return false, nil
		}

		// Leaf: stream-copy size bytes from SRS to output verbatim.
		if !el.Unknown {
			buf := make([]byte, el.Size)
			n, _ := srs.ReadAt(buf, el.DataPosition)
			if err := writeAt(buf[:n]); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	err := ebml.Walk(srs, 0, srsLen, visit)
	if err != nil {
		walkErr = err
	}
	return written, walkErr
}
