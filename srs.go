package srrkit

import (
	"io"

	"github.com/javi11/srrkit/internal/srs"
)

// FileData is the sample identity record parsed from SRS, per spec.md §3.
type FileData = srs.FileData

// TrackData is one per-track source window parsed from SRS, per spec.md §3.
type TrackData = srs.TrackData

// ParseSRS walks an SRS document (length srsLen) and returns its single
// FileData record and every TrackData record, per §4.5 / §6.3's parse_srs.
func ParseSRS(src io.ReaderAt, srsLen int64) (*FileData, []TrackData, error) {
	return srs.Parse(src, srsLen)
}
