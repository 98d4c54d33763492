package srrkit

import (
	"hash/crc32"
	"io"

	"github.com/javi11/srrkit/internal/mkv"
)

// TrackRequest is one track's extraction window (match_offset, data_length)
// derived from a TrackData record.
type TrackRequest = mkv.TrackRequest

// ExtractMKVTracks streams a source MKV (length srcLen) and returns, per
// requested track number, the concatenated frame-data bytes starting at
// (or after) its match_offset, up to its data_length, per §4.6 / §6.3's
// extract_mkv_tracks.
func ExtractMKVTracks(source io.ReaderAt, srcLen int64, tracks map[uint64]TrackRequest) (map[uint64][]byte, error) {
	return mkv.ExtractTracks(source, srcLen, tracks)
}

// RebuildSample streams an SRS skeleton (length srsLen), splices the
// extracted per-track byte streams into the Block/SimpleBlock placeholders,
// and writes the result to output, per §4.7 / §6.3's rebuild_sample. It
// returns the total bytes written and the IEEE CRC-32 of that output.
func RebuildSample(srsSrc io.ReaderAt, srsLen int64, perTrack map[uint64][]byte, output io.Writer) (int64, uint32, error) {
	h := crc32.NewIEEE()
	mw := io.MultiWriter(output, h)
	written, err := mkv.RebuildSample(srsSrc, srsLen, perTrack, mw)
	if err != nil {
		return written, 0, err
	}
	return written, h.Sum32(), nil
}
