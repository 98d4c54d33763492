package mkv

import (
	"bytes"
	"testing"
)

func buildLacedHeader(trackByte byte, lacingFlag byte, frameCountByte byte, sizeBytes []byte) []byte {
	h := []byte{trackByte, 0x00, 0x00, lacingFlag}
	if lacingFlag&0x06 != 0 { // any lacing mode needs the frame-count byte
		h = append(h, frameCountByte)
	}
	h = append(h, sizeBytes...)
	return h
}

func TestDecodeBlockHeaderNoLacing(t *testing.T) {
	data := append([]byte{0x81, 0x00, 0x00, 0x00}, []byte("payload")...)
	h, err := DecodeBlockHeader(data)
	if err != nil {
		t.Fatalf("DecodeBlockHeader: %v", err)
	}
	if h.Lacing != 0 || h.FrameCount != 1 || h.FrameSizes[0] != len("payload") {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestDecodeBlockHeaderXiphLacing(t *testing.T) {
	// spec.md §8: Xiph lacing bytes FF FF 03 -> frame size 513.
	header := buildLacedHeader(0x81, 0x02, 1, []byte{0xFF, 0xFF, 0x03})
	frame0 := make([]byte, 513)
	frame1 := make([]byte, 10)
	data := append(append(header, frame0...), frame1...)

	h, err := DecodeBlockHeader(data)
	if err != nil {
		t.Fatalf("DecodeBlockHeader: %v", err)
	}
	if h.FrameCount != 2 {
		t.Fatalf("frame count = %d, want 2", h.FrameCount)
	}
	if h.FrameSizes[0] != 513 {
		t.Fatalf("frame0 size = %d, want 513", h.FrameSizes[0])
	}
	if h.FrameSizes[1] != 10 {
		t.Fatalf("frame1 size = %d, want 10", h.FrameSizes[1])
	}
}

func TestDecodeBlockHeaderEBMLLacingFirstFrame(t *testing.T) {
	// spec.md §8: EBML lacing with first byte 0x85 -> first frame size 5.
	header := buildLacedHeader(0x81, 0x06, 1, []byte{0x85})
	frame0 := make([]byte, 5)
	frame1 := make([]byte, 5)
	data := append(append(header, frame0...), frame1...)

	h, err := DecodeBlockHeader(data)
	if err != nil {
		t.Fatalf("DecodeBlockHeader: %v", err)
	}
	if h.FrameSizes[0] != 5 {
		t.Fatalf("frame0 size = %d, want 5", h.FrameSizes[0])
	}
}

func TestDecodeBlockHeaderFixedLacing(t *testing.T) {
	header := buildLacedHeader(0x81, 0x04, 2, nil) // frameCount = 3
	data := append(header, make([]byte, 300)...)    // 100 bytes per frame

	h, err := DecodeBlockHeader(data)
	if err != nil {
		t.Fatalf("DecodeBlockHeader: %v", err)
	}
	if h.FrameCount != 3 {
		t.Fatalf("frame count = %d, want 3", h.FrameCount)
	}
	for i, sz := range h.FrameSizes {
		if sz != 100 {
			t.Fatalf("frame %d size = %d, want 100", i, sz)
		}
	}
}

func TestExtractTracksQuota(t *testing.T) {
	// Models spec.md §8 scenario 6: two SimpleBlocks for track 1, each
	// carrying a distinguishable payload; request track=1, a match_offset
	// past the first bytes of the cluster, and a data_length spanning both
	// blocks' payloads exactly.
	payload1 := bytes.Repeat([]byte{0xAA}, 200)
	payload2 := bytes.Repeat([]byte{0xBB}, 300)

	blockHeader := []byte{0x81, 0x00, 0x00, 0x00} // track 1, no lacing
	block1 := append(append([]byte{}, blockHeader...), payload1...)
	block2 := append(append([]byte{}, blockHeader...), payload2...)

	// Block sizes (204, 304) exceed a one-byte VarInt, so use the 2-byte form.
	simple1 := append([]byte{0xA3, 0x40 | byte(len(block1)>>8), byte(len(block1))}, block1...)
	simple2 := append([]byte{0xA3, 0x40 | byte(len(block2)>>8), byte(len(block2))}, block2...)

	// A 300-byte Void element (0xEC) ensures both blocks' frame-data offsets
	// land past match_offset.
	padding := make([]byte, 300)
	void := append([]byte{0xEC, 0x40 | byte(len(padding)>>8), byte(len(padding))}, padding...)
	clusterPayload := append(append(append([]byte{}, void...), simple1...), simple2...)

	cluster := append([]byte{0x1F, 0x43, 0xB6, 0x75, 0xFF}, clusterPayload...) // unknown size
	segment := append([]byte{0x18, 0x53, 0x80, 0x67, 0xFF}, cluster...)

	tracks := map[uint64]TrackRequest{1: {MatchOffset: 256, DataLength: 500}}
	out, err := ExtractTracks(bytes.NewReader(segment), int64(len(segment)), tracks)
	if err != nil {
		t.Fatalf("ExtractTracks: %v", err)
	}
	want := append(append([]byte{}, payload1...), payload2...)
	if !bytes.Equal(out[1], want) {
		t.Fatalf("extracted %d bytes, want %d matching bytes", len(out[1]), len(want))
	}
}
