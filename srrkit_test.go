package srrkit

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/spf13/afero"

	"github.com/javi11/srrkit/internal/rarfmt"
	"github.com/javi11/srrkit/internal/sfv"
)

// memSource adapts an in-memory byte slice to the Source interface the
// public parsing and reconstruction entry points operate over.
type memSource struct {
	b   []byte
	pos int64
}

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.b)) {
		return 0, io.EOF
	}
	n := copy(p, m.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memSource) Read(p []byte) (int, error) {
	n, err := m.ReadAt(p, m.pos)
	m.pos += int64(n)
	return n, err
}

func (m *memSource) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = int64(len(m.b))
	}
	m.pos = base + offset
	return m.pos, nil
}

func encodeBlock(headCRC uint16, headType byte, headFlags uint16, raw []byte) []byte {
	out := make([]byte, 7+len(raw))
	binary.LittleEndian.PutUint16(out[0:2], headCRC)
	out[2] = headType
	binary.LittleEndian.PutUint16(out[3:5], headFlags)
	binary.LittleEndian.PutUint16(out[5:7], uint16(7+len(raw)))
	copy(out[7:], raw)
	return out
}

func nameField(name string) []byte {
	b := make([]byte, 2+len(name))
	binary.LittleEndian.PutUint16(b[0:2], uint16(len(name)))
	copy(b[2:], name)
	return b
}

func packedFileRaw(sourceName string, packedSize uint32) []byte {
	raw := make([]byte, 25)
	binary.LittleEndian.PutUint32(raw[0:4], packedSize)
	binary.LittleEndian.PutUint32(raw[4:8], packedSize)
	binary.LittleEndian.PutUint16(raw[19:21], uint16(len(sourceName)))
	return append(raw, []byte(sourceName)...)
}

// fakeVolumeSource adapts an in-memory byte slice to VolumeSource.
type fakeVolumeSource struct{ *bytes.Reader }

func (fakeVolumeSource) Close() error { return nil }

type mapResolver map[string][]byte

func (m mapResolver) Resolve(name string) (VolumeSource, error) {
	b, ok := m[name]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return fakeVolumeSource{bytes.NewReader(b)}, nil
}

// TestEndToEndParseReconstructVerify builds a minimal SRR in memory,
// parses it, reconstructs the single embedded volume against a resolved
// source, and verifies the result's CRC-32 against an SFV entry — the
// full chain described in spec.md §6.3.
func TestEndToEndParseReconstructVerify(t *testing.T) {
	payload := bytes.Repeat([]byte{0x55}, 48)

	var buf bytes.Buffer
	buf.Write(encodeBlock(0x6969, rarfmt.SrrHeader, 0x0001, nameField("srrkit-test")))
	buf.Write(encodeBlock(0, rarfmt.SrrRarFile, 0, nameField("release.rar")))
	buf.Write(encodeBlock(0, rarfmt.RarMarker, 0, nil))
	buf.Write(encodeBlock(0, rarfmt.RarPackedFile, 0, packedFileRaw("release.bin", uint32(len(payload)))))
	buf.Write(encodeBlock(0, rarfmt.RarArchiveEnd, 0, nil))

	src := &memSource{b: buf.Bytes()}
	blocks, err := ParseSRR(src)
	if err != nil {
		t.Fatalf("ParseSRR: %v", err)
	}
	if len(blocks) != 5 {
		t.Fatalf("got %d blocks, want 5", len(blocks))
	}

	var reserialized bytes.Buffer
	if err := SerializeSRR(&reserialized, blocks, src); err != nil {
		t.Fatalf("SerializeSRR: %v", err)
	}
	if !bytes.Equal(reserialized.Bytes(), buf.Bytes()) {
		t.Fatalf("round trip mismatch")
	}

	resolver := mapResolver{"release.bin": payload}
	fs := afero.NewMemMapFs()
	paths, err := ReconstructVolumes(blocks, resolver, fs, "/out")
	if err != nil {
		t.Fatalf("ReconstructVolumes: %v", err)
	}
	path, ok := paths["release.rar"]
	if !ok {
		t.Fatalf("missing reconstructed volume: %v", paths)
	}

	got, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Contains(got, payload) {
		t.Fatalf("reconstructed volume missing packed payload")
	}

	crc, err := sfv.ComputeCRC32(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("ComputeCRC32: %v", err)
	}
	pass, err := VerifyCRC(fs, path, crc)
	if err != nil {
		t.Fatalf("VerifyCRC: %v", err)
	}
	if !pass {
		t.Fatalf("expected CRC verification to pass")
	}
}

type fakeSink struct {
	saved map[string][]byte
}

func (s *fakeSink) Save(name string, r io.Reader) error {
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.saved[name] = b
	return nil
}

func TestExtractStoredFilesNormalizesName(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeBlock(0x6969, rarfmt.SrrHeader, 0, nil))

	payload := []byte("nfo payload text")
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, uint32(len(payload)))
	raw = append(raw, nameField(`Sub\Dir\release.nfo`)...)
	buf.Write(encodeBlock(0, rarfmt.SrrStoredFile, 0, raw))
	buf.Write(payload) // 55 bytes total, past the 20-byte minimum length

	src := &memSource{b: buf.Bytes()}
	sink := &fakeSink{}
	if err := ExtractStoredFiles(src, sink); err != nil {
		t.Fatalf("ExtractStoredFiles: %v", err)
	}
	got, ok := sink.saved["Sub/Dir/release.nfo"]
	if !ok {
		t.Fatalf("expected normalized name in %v", sink.saved)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}
