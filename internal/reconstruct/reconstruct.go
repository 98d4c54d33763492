// Package reconstruct implements the volume-grouping and byte-streaming
// engine that rebuilds RAR volumes from SRR blocks plus uncompressed
// source files, per spec.md §4.8.
package reconstruct

import (
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/javi11/srrkit/internal/rarfmt"
	"github.com/javi11/srrkit/internal/rerr"
	"github.com/javi11/srrkit/internal/sfv"
	"github.com/javi11/srrkit/internal/srr"
)

// Source is an opened, seekable source file handle, positioned at offset 0
// when returned by a SourceResolver.
type Source interface {
	io.ReadSeeker
	io.Closer
}

// SourceResolver resolves a logical file name (as it appears on
// RarPackedFile blocks) to an opened Source. It never invents or rewrites
// names; matching is by exact string, per §6.2.
type SourceResolver interface {
	Resolve(name string) (Source, error)
}

// VolumeGroup is every block belonging to one output RAR volume, opened by
// an SrrRarFile and named by its file_name.
type VolumeGroup struct {
	Name   string
	Blocks []*srr.SrrBlock
}

// GroupVolumes partitions a parsed SRR block stream into volume groups, per
// §4.8 step 1. Blocks preceding the first SrrRarFile, and SRR-only records
// (SrrHeader, SrrStoredFile, SrrOsoHash, SrrPadding) wherever they appear,
// belong to no group and are skipped here.
func GroupVolumes(blocks []*srr.SrrBlock) ([]*VolumeGroup, error) {
	var groups []*VolumeGroup
	var cur *VolumeGroup
	for _, b := range blocks {
		if b.HeadType == rarfmt.SrrRarFile {
			name, err := b.FileName()
			if err != nil {
				return nil, err
			}
			cur = &VolumeGroup{Name: name}
			groups = append(groups, cur)
			continue
		}
		if cur == nil {
			continue
		}
		switch b.HeadType {
		case rarfmt.SrrHeader, rarfmt.SrrStoredFile, rarfmt.SrrOsoHash, rarfmt.SrrPadding:
			continue
		}
		cur.Blocks = append(cur.Blocks, b)
	}
	return groups, nil
}

type volumeKey struct {
	conforming bool
	isPrimary  bool
	num        int
	name       string
}

func keyOf(name string) volumeKey {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".rar" {
		return volumeKey{conforming: true, isPrimary: true, num: -1, name: name}
	}
	if len(ext) == 4 && ext[1] == 'r' {
		if n, err := strconv.Atoi(ext[2:]); err == nil {
			return volumeKey{conforming: true, num: n, name: name}
		}
	}
	return volumeKey{name: name}
}

// orderGroups sorts in place: primary .rar first, then .r00, .r01, ...
// ascending; non-conforming names sort after, lexicographically.
func orderGroups(groups []*VolumeGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		ki, kj := keyOf(groups[i].Name), keyOf(groups[j].Name)
		if ki.conforming != kj.conforming {
			return ki.conforming
		}
		if !ki.conforming {
			return ki.name < kj.name
		}
		if ki.isPrimary != kj.isPrimary {
			return ki.isPrimary
		}
		return ki.num < kj.num
	})
}

// engine tracks the single open source handle and per-source cursors
// required by the reconstruction resource model (§5): at most one source
// handle open at a time, cursor advances monotonically per source name.
type engine struct {
	resolver SourceResolver
	cursors  map[string]int64
	openName string
	open     Source
	buf      []byte
}

func newEngine(resolver SourceResolver) *engine {
	return &engine{
		resolver: resolver,
		cursors:  make(map[string]int64),
		buf:      make([]byte, 1<<20),
	}
}

func (e *engine) closeAll() error {
	if e.open != nil {
		err := e.open.Close()
		e.open = nil
		e.openName = ""
		return err
	}
	return nil
}

func (e *engine) streamFrom(name string, n int64, w io.Writer) error {
	if e.open == nil || e.openName != name {
		if err := e.closeAll(); err != nil {
			return err
		}
		src, err := e.resolver.Resolve(name)
		if err != nil {
			return rerr.New(rerr.ErrMissingSource, 0, name)
		}
		if cursor := e.cursors[name]; cursor > 0 {
			if _, err := src.Seek(cursor, io.SeekStart); err != nil {
				return rerr.New(rerr.ErrSourceExhausted, cursor, name)
			}
		}
		e.open = src
		e.openName = name
	}

	written, err := io.CopyBuffer(w, io.LimitReader(e.open, n), e.buf)
	e.cursors[name] += written
	if err != nil {
		return rerr.New(rerr.ErrSourceExhausted, e.cursors[name], name)
	}
	if written < n {
		return rerr.New(rerr.ErrSourceExhausted, e.cursors[name], name)
	}
	return nil
}

// ReconstructVolumes rebuilds every RAR volume named by blocks' SrrRarFile
// groups, writing each to outputRoot under fs. Returns the written path per
// volume name.
func ReconstructVolumes(blocks []*srr.SrrBlock, resolver SourceResolver, fs afero.Fs, outputRoot string) (map[string]string, error) {
	groups, err := GroupVolumes(blocks)
	if err != nil {
		return nil, err
	}
	orderGroups(groups)

	eng := newEngine(resolver)
	defer eng.closeAll()

	if err := fs.MkdirAll(outputRoot, 0o755); err != nil {
		return nil, err
	}

	result := make(map[string]string, len(groups))
	for _, g := range groups {
		path := filepath.Join(outputRoot, filepath.FromSlash(g.Name))
		if dir := filepath.Dir(path); dir != "." {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		f, err := fs.Create(path)
		if err != nil {
			return nil, err
		}
		if err := writeVolume(eng, g, f); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		result[g.Name] = path
	}
	return result, nil
}

func writeVolume(eng *engine, g *VolumeGroup, w io.Writer) error {
	for _, b := range g.Blocks {
		switch b.HeadType {
		case rarfmt.RarMarker:
			if _, err := w.Write(rarfmt.MarkerBytes[:]); err != nil {
				return err
			}
		case rarfmt.RarPackedFile:
			if _, err := w.Write(b.CanonicalBytes()); err != nil {
				return err
			}
			hdr, err := rarfmt.ParsePackedFileHeader(b.RawHeader, b.HeadFlags)
			if err != nil {
				return err
			}
			if err := eng.streamFrom(hdr.FileName, int64(hdr.PackedSize), w); err != nil {
				return err
			}
		default:
			// RarVolumeHeader, RarNewSub, RarOldStyle*, RarArchiveEnd, and
			// any unrecognized type: canonical bytes reproduce it exactly.
			if _, err := w.Write(b.CanonicalBytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Job is one independent reconstruction for ReconstructVolumesParallel.
type Job struct {
	Name       string
	Blocks     []*srr.SrrBlock
	Resolver   SourceResolver
	OutputRoot string
}

// JobResult is the outcome of one Job.
type JobResult struct {
	Name        string
	VolumePaths map[string]string
	Err         error
}

// ReconstructVolumesParallel fans Job out across up to workers goroutines.
// Each Job is an independent archive (distinct SRR); within a Job, volume
// writes remain strictly sequential via ReconstructVolumes. This mirrors
// the teacher's worker-pool pattern for independent per-archive work,
// never used to parallelize volumes of the *same* archive since source
// cursors there are order-dependent.
func ReconstructVolumesParallel(jobs []Job, fs afero.Fs, workers int) ([]JobResult, error) {
	if workers <= 0 || workers > len(jobs) {
		workers = len(jobs)
	}
	if workers == 0 {
		return nil, nil
	}

	results := make([]JobResult, len(jobs))
	type indexed struct {
		idx int
		job Job
	}
	work := make(chan indexed)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range work {
				paths, err := ReconstructVolumes(item.job.Blocks, item.job.Resolver, fs, item.job.OutputRoot)
				results[item.idx] = JobResult{Name: item.job.Name, VolumePaths: paths, Err: err}
			}
		}()
	}

	for i, j := range jobs {
		work <- indexed{idx: i, job: j}
	}
	close(work)
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			return results, r.Err
		}
	}
	return results, nil
}

// VerifyResult is the per-volume CRC outcome of VerifyVolumeSet.
type VerifyResult struct {
	Name     string
	Pass     bool
	Expected uint32
	Got      uint32
}

// VerifyVolumeSet reconstructs every volume then validates each one listed
// in sfvEntries, implementing the "CRC closure" testable property
// end-to-end as one call. Volumes with no SFV entry are not checked and
// get no VerifyResult.
func VerifyVolumeSet(blocks []*srr.SrrBlock, resolver SourceResolver, fs afero.Fs, outputRoot string, sfvEntries []sfv.Entry) (map[string]string, []VerifyResult, error) {
	paths, err := ReconstructVolumes(blocks, resolver, fs, outputRoot)
	if err != nil {
		return nil, nil, err
	}

	var results []VerifyResult
	for name, path := range paths {
		entry, ok := sfv.Lookup(sfvEntries, name)
		if !ok {
			continue
		}
		f, err := fs.Open(path)
		if err != nil {
			return paths, results, err
		}
		pass, got, err := sfv.VerifyCRC(f, entry.ExpectedCRC)
		f.Close()
		if err != nil {
			return paths, results, err
		}
		results = append(results, VerifyResult{Name: name, Pass: pass, Expected: entry.ExpectedCRC, Got: got})
	}
	return paths, results, nil
}
