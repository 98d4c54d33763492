// Command rebuild-sample reconstructs a sample MKV from its SRS skeleton
// and the full-length source video it was cut from.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/javi11/srrkit"
)

func main() {
	if len(os.Args) < 4 {
		log.Fatalf("usage: %s <srs-file> <source-mkv> <output-file>", os.Args[0])
	}
	srsPath, sourcePath, outPath := os.Args[1], os.Args[2], os.Args[3]

	srsFile, err := os.Open(srsPath)
	if err != nil {
		log.Fatalf("open srs: %v", err)
	}
	defer srsFile.Close()
	srsInfo, err := srsFile.Stat()
	if err != nil {
		log.Fatalf("stat srs: %v", err)
	}

	fileData, tracks, err := srrkit.ParseSRS(srsFile, srsInfo.Size())
	if err != nil {
		log.Fatalf("parse srs: %v", err)
	}
	if fileData == nil {
		log.Fatalf("srs has no FileData record")
	}

	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		log.Fatalf("open source: %v", err)
	}
	defer sourceFile.Close()
	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		log.Fatalf("stat source: %v", err)
	}

	requests := make(map[uint64]srrkit.TrackRequest, len(tracks))
	for _, t := range tracks {
		requests[t.TrackNumber] = srrkit.TrackRequest{MatchOffset: t.MatchOffset, DataLength: t.DataLength}
	}

	perTrack, err := srrkit.ExtractMKVTracks(sourceFile, sourceInfo.Size(), requests)
	if err != nil {
		log.Fatalf("extract tracks: %v", err)
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer outFile.Close()

	written, crc, err := srrkit.RebuildSample(srsFile, srsInfo.Size(), perTrack, outFile)
	if err != nil {
		log.Fatalf("rebuild: %v", err)
	}

	fmt.Printf("wrote %d bytes, crc32=%08x\n", written, crc)
	if uint64(written) != fileData.OriginalSize {
		fmt.Printf("warning: size mismatch, expected %d\n", fileData.OriginalSize)
	}
	if crc != fileData.CRC32 {
		fmt.Printf("warning: crc mismatch, expected %08x\n", fileData.CRC32)
	}
}
