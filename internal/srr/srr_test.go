package srr

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/javi11/srrkit/internal/rarfmt"
)

// memSource adapts an in-memory byte slice to the Source interface
// (io.ReaderAt + io.ReadSeeker) the Reader operates over.
type memSource struct {
	b   []byte
	pos int64
}

func newMemSource(b []byte) *memSource { return &memSource{b: b} }

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

func buildMinimalSRR() []byte {
	var buf bytes.Buffer
	// SrrHeader with app_name="TestApp"; head_crc = 0x6969 so the first
	// three stream bytes are the 69 69 69 magic.
	buf.Write(encodeBlock(0x6969, rarfmt.SrrHeader, 0x0001, nameField("TestApp")))
	buf.Write(encodeBlock(0, rarfmt.SrrRarFile, 0, nameField("test.rar")))
	buf.Write(encodeBlock(0, rarfmt.RarMarker, 0, nil))
	buf.Write(encodeBlock(0, rarfmt.RarVolumeHeader, 0, make([]byte, 6)))
	buf.Write(encodeBlock(0, rarfmt.RarArchiveEnd, 0, nil))
	return buf.Bytes()
}

func TestRoundTripMinimalSRR(t *testing.T) {
	data := buildMinimalSRR()
	src := newMemSource(data)

	blocks, err := ParseAll(src)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(blocks) != 5 {
		t.Fatalf("got %d blocks, want 5", len(blocks))
	}

	var out bytes.Buffer
	if err := Serialize(&out, blocks, src); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("round trip mismatch:\ngot  % X\nwant % X", out.Bytes(), data)
	}
}

func TestAppNameAndFileName(t *testing.T) {
	blocks, err := ParseAll(newMemSource(buildMinimalSRR()))
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	app, ok, err := blocks[0].AppName()
	if err != nil || !ok || app != "TestApp" {
		t.Fatalf("AppName = %q, %v, %v", app, ok, err)
	}
	name, err := blocks[1].FileName()
	if err != nil || name != "test.rar" {
		t.Fatalf("FileName = %q, %v", name, err)
	}
}

func TestInvalidMagic(t *testing.T) {
	data := buildMinimalSRR()
	data[0] = 0x00
	if _, err := NewReader(newMemSource(data)); err == nil {
		t.Fatalf("expected invalid magic error")
	}
}

func TestTooShort(t *testing.T) {
	if _, err := NewReader(newMemSource(make([]byte, 10))); err == nil {
		t.Fatalf("expected short-read error for < 20 bytes")
	}
}

func TestTruncatedBlockHeadSize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(encodeBlock(0x6969, rarfmt.SrrHeader, 0, nil))
	// Corrupt head_size to something below 7.
	b := buf.Bytes()
	binary.LittleEndian.PutUint16(b[5:7], 3)
	// Pad to satisfy the 20-byte minimum length check.
	b = append(b, make([]byte, 20)...)

	_, err := ParseAll(newMemSource(b))
	if err == nil {
		t.Fatalf("expected truncated-block error")
	}
}

func TestStoredFilePayload(t *testing.T) {
	// SrrStoredFile scenario 2: file_name="release.nfo", payload 16 bytes.
	var buf bytes.Buffer
	buf.Write(encodeBlock(0x6969, rarfmt.SrrHeader, 0, nil))

	payload := []byte("NFO content here")[:16]
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, uint32(len(payload)))
	raw = append(raw, nameField("release.nfo")...)
	buf.Write(encodeBlock(0, rarfmt.SrrStoredFile, 0, raw))
	buf.Write(payload) // 47 bytes total, past the 20-byte minimum

	src := newMemSource(buf.Bytes())
	refs, err := StoredFiles(src)
	if err != nil {
		t.Fatalf("StoredFiles: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("got %d stored files, want 1", len(refs))
	}
	if refs[0].Name != "release.nfo" {
		t.Fatalf("name = %q", refs[0].Name)
	}
	got, _ := io.ReadAll(refs[0].Open(src))
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}
