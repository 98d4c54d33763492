// Command reconstruct rebuilds a RAR volume set from an SRR file and a
// directory of uncompressed source files.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/javi11/srrkit"
)

type dirResolver struct {
	dir string
}

func (d dirResolver) Resolve(name string) (srrkit.VolumeSource, error) {
	f, err := os.Open(filepath.Join(d.dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	if len(os.Args) < 4 {
		log.Fatalf("usage: %s <srr-file> <source-dir> <output-dir>", os.Args[0])
	}
	srrPath, sourceDir, outDir := os.Args[1], os.Args[2], os.Args[3]

	srrFile, err := os.Open(srrPath)
	if err != nil {
		log.Fatalf("open srr: %v", err)
	}
	defer srrFile.Close()

	blocks, err := srrkit.ParseSRR(srrFile)
	if err != nil {
		log.Fatalf("parse srr: %v", err)
	}

	fs := afero.NewOsFs()
	paths, err := srrkit.ReconstructVolumes(blocks, dirResolver{dir: sourceDir}, fs, outDir)
	if err != nil {
		log.Fatalf("reconstruct: %v", err)
	}

	for name, path := range paths {
		fmt.Printf("%s -> %s\n", name, path)
	}
}
