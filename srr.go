package srrkit

import (
	"io"
	"strings"

	"github.com/javi11/srrkit/internal/srr"
)

// Source is the random-access byte source SRR parsing and reconstruction
// operate over. *os.File and afero.File both satisfy it.
type Source = srr.Source

// SrrBlock is the generic SRR block record, per spec.md §3.
type SrrBlock = srr.SrrBlock

// ParseSRR decodes src into its ordered sequence of SrrBlock records,
// per spec.md §4.2 / §6.3's parse_srr.
func ParseSRR(src Source) ([]*SrrBlock, error) {
	return srr.ParseAll(src)
}

// SerializeSRR reproduces the original SRR bytes exactly from a parsed
// block slice, the round-trip guarantee of §8.
func SerializeSRR(w io.Writer, blocks []*SrrBlock, src Source) error {
	return srr.Serialize(w, blocks, src)
}

// StoredFileSink persists one extracted stored file under a caller-chosen
// output root, per §6.2.
type StoredFileSink interface {
	Save(name string, r io.Reader) error
}

// ExtractStoredFiles walks every SrrStoredFile in src and hands each one's
// normalized name and payload reader to sink. Names are normalized to
// forward slashes with leading separators stripped, per §6.2.
func ExtractStoredFiles(src Source, sink StoredFileSink) error {
	refs, err := srr.StoredFiles(src)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		name := normalizeStoredName(ref.Name)
		if err := sink.Save(name, ref.Open(src)); err != nil {
			return err
		}
	}
	return nil
}

func normalizeStoredName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimLeft(name, "/")
}
