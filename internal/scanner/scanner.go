// Package scanner discovers markdown documents in a vault.
//
// The walk is deterministic (lexicographic), never follows symlinks, and
// never leaves the vault root. Individual unreadable files are reported
// per-file and do not abort the scan.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// Scanner walks a vault root for markdown files.
type Scanner struct {
	excludeDirs map[string]bool
}

// New creates a Scanner excluding the given directory names at any depth.
func New(excludeDirs []string) *Scanner {
	excluded := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = true
	}
	return &Scanner{excludeDirs: excluded}
}

// Scan streams discovered files over the returned channel. The channel
// closes when the walk completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "vault root does not exist", err).WithPath(absRoot)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.KindConfig, "vault root is not a directory").WithPath(absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, maxFileSize, results)
	}()
	return results, nil
}

// ScanAll collects all discovered files sorted by relative path. Per-file
// errors are returned separately from the file list.
func (s *Scanner) ScanAll(ctx context.Context, opts *ScanOptions) ([]*FileInfo, []error, error) {
	ch, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	var files []*FileInfo
	var fileErrs []error
	for res := range ch {
		if res.Error != nil {
			fileErrs = append(fileErrs, res.Error)
			continue
		}
		files = append(files, res.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, fileErrs, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts *ScanOptions, maxFileSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			select {
			case results <- ScanResult{Error: fmt.Errorf("scan %s: %w", path, err)}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if s.excludeDirs[d.Name()] || opts.excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks could point outside the vault; skip them.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			select {
			case results <- ScanResult{Error: fmt.Errorf("stat %s: %w", relPath, err)}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}

		file := &FileInfo{
			Path:    filepath.ToSlash(relPath),
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		select {
		case results <- ScanResult{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

func (o *ScanOptions) excluded(name string) bool {
	for _, d := range o.ExcludeDirs {
		if d == name {
			return true
		}
	}
	return false
}
