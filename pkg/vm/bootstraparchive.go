package vm

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// Archive is anything that can answer "does this class name exist, and
// what are its bytes". A .jar, a .jmod, or a plain directory entry all
// satisfy it via ClasspathEntry below; Archive specifically models a
// zip-backed one.
type Archive interface {
	ReadClassBytes(binaryName string) ([]byte, bool, error)
	Close() error
}

// mmapZipArchive memory-maps a .jar/.jmod file and layers archive/zip's
// central-directory reader on top,
// rather than slurping the whole file into a heap-allocated []byte. If
// mmap itself is unavailable (some CI sandboxes disallow it), it falls
// back to a plain heap-backed read so the archive still opens.
type mmapZipArchive struct {
	file       *os.File
	mapping    mmap.MMap // nil when the io.ReadAll fallback was used
	zr         *zip.Reader
	jmodOffset int // 4 for .jmod (skips the "JM\x01\x00" header), 0 for .jar
}

// OpenJarArchive memory-maps a plain .jar (zip with no leading header).
func OpenJarArchive(path string) (Archive, error) {
	return openArchive(path, 0)
}

// OpenJmodArchive memory-maps a .jmod: a zip archive prefixed by a 4-byte
// "JM\x01\x00" magic (the JDK's jmod container format).
func OpenJmodArchive(path string) (Archive, error) {
	return openArchive(path, 4)
}

func openArchive(path string, headerLen int) (Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	m, mmapErr := mmap.Map(f, mmap.RDONLY, 0)
	var raw []byte
	if mmapErr != nil {
		raw, err = io.ReadAll(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading archive %s (mmap unavailable: %v): %w", path, mmapErr, err)
		}
	} else {
		raw = []byte(m)
	}

	if len(raw) < headerLen {
		if mmapErr == nil {
			m.Unmap()
		}
		f.Close()
		return nil, fmt.Errorf("archive %s too short for its header", path)
	}
	body := raw[headerLen:]
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		if mmapErr == nil {
			m.Unmap()
		}
		f.Close()
		return nil, fmt.Errorf("reading zip central directory of %s: %w", path, err)
	}
	archive := &mmapZipArchive{file: f, zr: zr, jmodOffset: headerLen}
	if mmapErr == nil {
		archive.mapping = m
	}
	return archive, nil
}

func (a *mmapZipArchive) ReadClassBytes(binaryName string) ([]byte, bool, error) {
	entryName := "classes/" + binaryName + ".class"
	if a.jmodOffset == 0 {
		entryName = binaryName + ".class"
	}
	for _, f := range a.zr.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false, fmt.Errorf("opening zip entry %s: %w", entryName, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, false, fmt.Errorf("reading zip entry %s: %w", entryName, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

func (a *mmapZipArchive) Close() error {
	if a.mapping != nil {
		a.mapping.Unmap()
	}
	return a.file.Close()
}
