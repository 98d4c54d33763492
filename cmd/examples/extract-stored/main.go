// Command extract-stored pulls every embedded small file (NFO, SFV,
// proofs, SRS samples) out of an SRR container.
package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/javi11/srrkit"
)

type dirSink struct {
	root string
}

func (s dirSink) Save(name string, r io.Reader) error {
	path := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("usage: %s <srr-file> <output-dir>", os.Args[0])
	}
	srrPath, outDir := os.Args[1], os.Args[2]

	f, err := os.Open(srrPath)
	if err != nil {
		log.Fatalf("open srr: %v", err)
	}
	defer f.Close()

	if err := srrkit.ExtractStoredFiles(f, dirSink{root: outDir}); err != nil {
		log.Fatalf("extract: %v", err)
	}
}
