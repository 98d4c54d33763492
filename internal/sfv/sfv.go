// Package sfv parses SFV checksum listings and validates files against
// IEEE CRC-32, per spec.md §4.9 and §6.1.
package sfv

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/javi11/srrkit/internal/rerr"
)

// Entry is one parsed SFV line.
type Entry struct {
	Name         string // relative name, slashes normalized to forward slash
	ExpectedCRC  uint32
}

// ParseSFV reads an SFV text file: lines "name CRC32HEX", ";"-prefixed
// comments, blank lines ignored, hex case-insensitive, names may use either
// slash direction (preserved relative, normalized to forward slashes).
func ParseSFV(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx < 0 {
			return nil, rerr.New(rerr.ErrEBMLMalformed, int64(lineNo), "sfv line missing crc field")
		}
		name := strings.TrimSpace(line[:idx])
		crcText := strings.TrimSpace(line[idx+1:])
		crc, err := strconv.ParseUint(crcText, 16, 32)
		if err != nil {
			return nil, rerr.New(rerr.ErrEBMLMalformed, int64(lineNo), fmt.Sprintf("bad crc hex %q", crcText))
		}
		name = strings.ReplaceAll(name, "\\", "/")
		out = append(out, Entry{Name: name, ExpectedCRC: uint32(crc)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeCRC32 streams r through IEEE CRC-32 in bounded chunks.
func ComputeCRC32(r io.Reader) (uint32, error) {
	h := crc32.NewIEEE()
	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// VerifyCRC computes the CRC-32 of r and reports whether it matches
// expected. It does not itself classify mismatches as fatal; the caller
// (reconstruct.VerifyVolumeSet) decides that per §7's policy.
func VerifyCRC(r io.Reader, expected uint32) (bool, uint32, error) {
	got, err := ComputeCRC32(r)
	if err != nil {
		return false, 0, err
	}
	return got == expected, got, nil
}

// Lookup finds the entry matching name (case-insensitive), after
// normalizing both to forward slashes.
func Lookup(entries []Entry, name string) (Entry, bool) {
	norm := strings.ReplaceAll(name, "\\", "/")
	for _, e := range entries {
		if strings.EqualFold(e.Name, norm) {
			return e, true
		}
	}
	return Entry{}, false
}
