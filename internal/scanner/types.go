package scanner

import "time"

// DefaultMaxFileSize caps how large a markdown file may be before it is
// skipped (10 MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// FileInfo describes a discovered markdown document.
type FileInfo struct {
	// Path is relative to the vault root, always forward-slash separated.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	Size    int64
	ModTime time.Time
}

// ScanResult carries either a discovered file or a per-file error.
// Per-file errors never abort the scan.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// ScanOptions controls a vault walk.
type ScanOptions struct {
	// RootDir is the vault root.
	RootDir string

	// ExcludeDirs are directory names skipped at any depth.
	ExcludeDirs []string

	// MaxFileSize in bytes; zero uses DefaultMaxFileSize.
	MaxFileSize int64
}
