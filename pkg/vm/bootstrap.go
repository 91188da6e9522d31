package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/govem/govem/pkg/heap"
)

// defaultHeapBytes sizes each semispace when Config.HeapBytes is left at
// its zero value; generous enough that toy programs don't force a
// collection on every allocation burst.
const defaultHeapBytes = 64 << 20

// Config holds the knobs a CLI entry point reads from the environment:
// the classpath, the bootstrap archive location, the heap size, and the
// diagnostic collect-after-every-allocation switch.
type Config struct {
	Classpath            []string
	BootstrapArchivePath string
	HeapBytes            int
	DiagGCEveryAlloc     bool
}

// ConfigFromEnv reads RT_JAR_PATH (the bootstrap archive for java/, sun/
// and jdk/ classes), falling back to deriving a java.base.jmod path from
// JDK17_PATH, plus GOVEM_CLASSPATH (a os.PathListSeparator-joined list,
// mirroring CLASSPATH) and GOVEM_DIAG_GC_EVERY_ALLOC.
func ConfigFromEnv() Config {
	cfg := Config{HeapBytes: defaultHeapBytes}

	if p := os.Getenv("RT_JAR_PATH"); p != "" {
		cfg.BootstrapArchivePath = p
	} else if home := os.Getenv("JDK17_PATH"); home != "" {
		cfg.BootstrapArchivePath = filepath.Join(home, "jmods", "java.base.jmod")
	}

	if cp := os.Getenv("GOVEM_CLASSPATH"); cp != "" {
		cfg.Classpath = filepath.SplitList(cp)
	}

	cfg.DiagGCEveryAlloc = os.Getenv("GOVEM_DIAG_GC_EVERY_ALLOC") == "1"
	return cfg
}

// openBootstrapArchive picks the .jar or .jmod reader by extension, both
// backed by the mmap-based Archive in bootstraparchive.go.
func openBootstrapArchive(path string) (Archive, error) {
	if strings.HasSuffix(path, ".jmod") {
		return OpenJmodArchive(path)
	}
	return OpenJarArchive(path)
}

// Bootstrap wires a heap, a mutually-referencing linker+loader pair, and
// the process-wide string intern table into a fresh VM, leaves first:
// heap, then loader/linker, then
// java/lang/String and char[] (so the string heap has somewhere to
// allocate interned instances), then the VM value itself. Native-method
// registration is deliberately left to the caller (package native
// importing package vm would be a cycle if Bootstrap lived there).
func Bootstrap(cfg Config) (*VM, error) {
	if cfg.HeapBytes <= 0 {
		cfg.HeapBytes = defaultHeapBytes
	}

	h := heap.NewHeap(cfg.HeapBytes)
	h.SetDiagGCEveryAlloc(cfg.DiagGCEveryAlloc)

	linker := NewClassLinker(h)
	loader := NewBootstrapClassLoader(linker)

	if cfg.BootstrapArchivePath != "" {
		archive, err := openBootstrapArchive(cfg.BootstrapArchivePath)
		if err != nil {
			return nil, fmt.Errorf("opening bootstrap archive %s: %w", cfg.BootstrapArchivePath, err)
		}
		loader.Archive = archive
	}
	for _, entry := range cfg.Classpath {
		loader.Classpath = append(loader.Classpath, NewDirClasspathEntry(entry))
	}

	strResolved, err := loader.LoadClass("java/lang/String")
	if err != nil {
		return nil, fmt.Errorf("loading java/lang/String: %w", err)
	}
	charArray, err := loader.LoadClass("[C")
	if err != nil {
		return nil, fmt.Errorf("loading char[]: %w", err)
	}

	strings := heap.NewStringHeap(h, strResolved.Instance, charArray.Array)
	return NewVM(h, strings, loader, linker, nil), nil
}
