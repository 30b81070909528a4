// Package storage holds the on-disk representation of a torrent's content:
// the final destination files a disk worker flushes staged pieces into, and
// the lifecycle handle that ties their teardown to a single owner.
package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/NamanBalaji/tds/internal/errors"
)

// FileSpec describes one destination file of a torrent.
type FileSpec struct {
	Path   string
	Length int64
}

// FileStorage writes blocks at absolute offsets within a torrent's overall
// byte stream, transparently spanning file boundaries for multi-file
// torrents. It is safe for concurrent use: all I/O goes through ReadAt and
// WriteAt on pre-opened descriptors.
type FileStorage struct {
	files    []*os.File
	offsets  []int64 // absolute byte offset where each file starts
	fileLens []int64
}

// OpenFileStorage opens (creating and pre-sizing as needed) every
// destination file of a torrent.
func OpenFileStorage(baseDir string, specs []FileSpec) (*FileStorage, error) {
	fs := &FileStorage{}

	var total int64

	for _, spec := range specs {
		path := filepath.Join(baseDir, spec.Path)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fs.Close()
			return nil, errors.NewIOError(err, path)
		}

		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			fs.Close()
			return nil, errors.NewIOError(err, path)
		}

		// Pre-size so piece writes beyond the current end of file land in
		// already reserved space instead of fragmenting the file.
		if err := f.Truncate(spec.Length); err != nil {
			f.Close()
			fs.Close()

			return nil, errors.NewIOError(err, path)
		}

		fs.files = append(fs.files, f)
		fs.offsets = append(fs.offsets, total)
		fs.fileLens = append(fs.fileLens, spec.Length)
		total += spec.Length
	}

	return fs, nil
}

// Size returns the total byte length across all files.
func (fs *FileStorage) Size() int64 {
	var total int64
	for _, l := range fs.fileLens {
		total += l
	}

	return total
}

// ReadBlock reads data starting at an absolute offset, crossing file
// boundaries as needed. A short read means the offset range runs past the
// end of the torrent.
func (fs *FileStorage) ReadBlock(b []byte, off int64) (int, error) {
	totalRead := 0
	remaining := len(b)
	currentOffset := off

	for remaining > 0 {
		fileIdx, relativeOffset := fs.locate(currentOffset)
		if fileIdx == -1 {
			break
		}

		chunk := fs.fileLens[fileIdx] - relativeOffset
		if chunk > int64(remaining) {
			chunk = int64(remaining)
		}

		n, err := fs.files[fileIdx].ReadAt(b[totalRead:totalRead+int(chunk)], relativeOffset)
		totalRead += n
		remaining -= n
		currentOffset += int64(n)

		if err != nil && err != io.EOF {
			return totalRead, errors.NewIOError(err, fs.files[fileIdx].Name())
		}

		if n < int(chunk) {
			break
		}
	}

	return totalRead, nil
}

// WriteBlock writes data starting at an absolute offset, crossing file
// boundaries as needed. A short write means the range runs past the end of
// the torrent.
func (fs *FileStorage) WriteBlock(b []byte, off int64) (int, error) {
	totalWritten := 0
	remaining := len(b)
	currentOffset := off

	for remaining > 0 {
		fileIdx, relativeOffset := fs.locate(currentOffset)
		if fileIdx == -1 {
			break
		}

		chunk := fs.fileLens[fileIdx] - relativeOffset
		if chunk > int64(remaining) {
			chunk = int64(remaining)
		}

		n, err := fs.files[fileIdx].WriteAt(b[totalWritten:totalWritten+int(chunk)], relativeOffset)
		totalWritten += n
		remaining -= n
		currentOffset += int64(n)

		if err != nil {
			return totalWritten, errors.NewIOError(err, fs.files[fileIdx].Name())
		}

		if n < int(chunk) {
			break
		}
	}

	return totalWritten, nil
}

// Close closes all underlying descriptors, returning the last error seen.
func (fs *FileStorage) Close() error {
	var lastErr error

	for _, f := range fs.files {
		if f == nil {
			continue
		}

		if err := f.Close(); err != nil {
			lastErr = errors.NewIOError(err, f.Name())
		}
	}

	return lastErr
}

// locate maps an absolute offset to a file index and file-relative offset.
// Returns -1 when the offset lies beyond the end of the torrent.
func (fs *FileStorage) locate(abs int64) (fileIdx int, relativeOffset int64) {
	for i, offset := range fs.offsets {
		if abs >= offset && abs < offset+fs.fileLens[i] {
			return i, abs - offset
		}
	}

	return -1, 0
}
