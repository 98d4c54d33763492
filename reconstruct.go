package srrkit

import (
	"github.com/spf13/afero"

	"github.com/javi11/srrkit/internal/reconstruct"
	"github.com/javi11/srrkit/internal/sfv"
)

// VolumeSource is an opened, seekable source-file handle positioned at
// offset 0, as returned by a SourceResolver.
type VolumeSource = reconstruct.Source

// SourceResolver resolves a logical file name from a RarPackedFile block
// to an opened VolumeSource, per §6.2. The engine never invents or
// rewrites names; matching is by exact string.
type SourceResolver interface {
	Resolve(name string) (VolumeSource, error)
}

// SfvEntry is one parsed SFV line: a relative name and its expected CRC-32.
type SfvEntry = sfv.Entry

// SFVProvider parses one or more SFV files and yields (name, crc32) pairs,
// per §6.2. FileSFVProvider is this module's default implementation.
type SFVProvider interface {
	Entries() ([]SfvEntry, error)
}

// FileSFVProvider is the default SFVProvider: it reads one or more SFV
// files from fs and concatenates their parsed entries, per §6.1's text
// format (comments, blank lines, case-insensitive hex, slash-normalized
// names).
type FileSFVProvider struct {
	Fs    afero.Fs
	Paths []string
}

// Entries implements SFVProvider.
func (p FileSFVProvider) Entries() ([]SfvEntry, error) {
	var out []SfvEntry
	for _, path := range p.Paths {
		f, err := p.Fs.Open(path)
		if err != nil {
			return nil, err
		}
		entries, err := sfv.ParseSFV(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// ReconstructVolumes rebuilds every RAR volume named by blocks' SrrRarFile
// groups, writing each to outputRoot under fs. Returns the written path per
// volume name, per §4.8 / §6.3's reconstruct_volumes.
func ReconstructVolumes(blocks []*SrrBlock, resolver SourceResolver, fs afero.Fs, outputRoot string) (map[string]string, error) {
	return reconstruct.ReconstructVolumes(blocks, resolver, fs, outputRoot)
}

// Job is one independent reconstruction for ReconstructVolumesParallel.
type Job = reconstruct.Job

// JobResult is the outcome of one Job.
type JobResult = reconstruct.JobResult

// ReconstructVolumesParallel reconstructs multiple independent archives
// concurrently, per §5: caller-level parallelism across distinct SRR
// files, never within a single archive's volume set.
func ReconstructVolumesParallel(jobs []Job, fs afero.Fs, workers int) ([]JobResult, error) {
	return reconstruct.ReconstructVolumesParallel(jobs, fs, workers)
}

// VerifyResult is the per-volume CRC outcome of VerifyVolumeSet.
type VerifyResult = reconstruct.VerifyResult

// VerifyVolumeSet reconstructs every volume named by blocks, then validates
// the CRC-32 of each one listed in sfvEntries, implementing the "CRC
// closure" testable property end-to-end. Volumes with no SFV entry are not
// checked.
func VerifyVolumeSet(blocks []*SrrBlock, resolver SourceResolver, fs afero.Fs, outputRoot string, sfvEntries []SfvEntry) (map[string]string, []VerifyResult, error) {
	return reconstruct.VerifyVolumeSet(blocks, resolver, fs, outputRoot, sfvEntries)
}

// VerifyCRC streams the file at path (under fs) through IEEE CRC-32 and
// compares it against expected, per §4.9 / §6.3's verify_crc.
func VerifyCRC(fs afero.Fs, path string, expected uint32) (bool, error) {
	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	pass, _, err := sfv.VerifyCRC(f, expected)
	return pass, err
}
