package vm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/govem/govem/internal/vmerr"
	"github.com/govem/govem/pkg/classfile"
	"github.com/govem/govem/pkg/heap"
)

// ClasspathEntry is one element of the user classpath: a directory or a
// jar archive.
type ClasspathEntry interface {
	ReadClassBytes(binaryName string) ([]byte, bool, error)
}

type dirEntry struct{ path string }

// ReadClassBytes looks directly under the directory first (<dir>/<binary
// name>.class), then falls back to any .jar files sitting in that same
// directory (a `-cp lib/` style wildcard classpath entry), so jars don't
// have to be named individually on the classpath.
func (d dirEntry) ReadClassBytes(binaryName string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(d.path, binaryName+".class"))
	if err == nil {
		return data, true, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("reading %s from %s: %w", binaryName, d.path, err)
	}

	jars, globErr := filepath.Glob(filepath.Join(d.path, "*.jar"))
	if globErr != nil {
		return nil, false, nil
	}
	for _, jarPath := range jars {
		archive, openErr := OpenJarArchive(jarPath)
		if openErr != nil {
			continue
		}
		data, found, readErr := archive.ReadClassBytes(binaryName)
		archive.Close()
		if readErr != nil {
			return nil, false, fmt.Errorf("reading %s from %s: %w", binaryName, jarPath, readErr)
		}
		if found {
			return data, true, nil
		}
	}
	return nil, false, nil
}

type archiveEntry struct{ archive Archive }

func (a archiveEntry) ReadClassBytes(binaryName string) ([]byte, bool, error) {
	return a.archive.ReadClassBytes(binaryName)
}

// NewDirClasspathEntry and NewJarClasspathEntry build classpath entries
// for BootstrapClassLoader.Classpath.
func NewDirClasspathEntry(path string) ClasspathEntry { return dirEntry{path} }

func NewJarClasspathEntry(archive Archive) ClasspathEntry { return archiveEntry{archive} }

// isBootstrapPackage reports whether name is rooted at one of the
// packages the bootstrap archive (not the user classpath) resolves.
func isBootstrapPackage(name string) bool {
	return strings.HasPrefix(name, "java/") ||
		strings.HasPrefix(name, "sun/") ||
		strings.HasPrefix(name, "jdk/")
}

// BootstrapClassLoader is the single, monotone class loader: it decodes
// class bytes (itself or via its classpath/archive), links them via
// ClassLinker, and caches the result forever. Loading is single-threaded:
// the loader runs on the invoking thread.
type BootstrapClassLoader struct {
	Archive   Archive // resolves java/, sun/, jdk/ names; may be nil
	Classpath []ClasspathEntry

	linker *ClassLinker

	classes      map[string]*JClass
	arrayClasses map[string]*ArrayClass
}

// NewBootstrapClassLoader wires a loader to the given linker (which in
// turn owns the heap and the native-initializer hook used by <clinit>).
func NewBootstrapClassLoader(linker *ClassLinker) *BootstrapClassLoader {
	cl := &BootstrapClassLoader{
		linker:       linker,
		classes:      make(map[string]*JClass),
		arrayClasses: make(map[string]*ArrayClass),
	}
	linker.loader = cl
	return cl
}

// LoadClass resolves name (a binary class name, or an array descriptor
// starting with '[') to a *JClass/*ArrayClass pair exposed uniformly as
// a ResolvedClass.
func (cl *BootstrapClassLoader) LoadClass(name string) (*ResolvedClass, error) {
	if strings.HasPrefix(name, "[") {
		return cl.loadArrayClass(name)
	}
	if jc, ok := cl.classes[name]; ok {
		return &ResolvedClass{Instance: jc}, nil
	}

	data, err := cl.readClassBytes(name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s: %w", name, vmerr.ErrNoClassDefFound)
	}

	cf, err := classfile.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %v", name, vmerr.ErrClassFormat, err)
	}
	jc, err := cl.linker.Prepare(cf)
	if err != nil {
		return nil, err
	}
	cl.classes[name] = jc
	return &ResolvedClass{Instance: jc}, nil
}

func (cl *BootstrapClassLoader) readClassBytes(name string) ([]byte, error) {
	if isBootstrapPackage(name) && cl.Archive != nil {
		data, ok, err := cl.Archive.ReadClassBytes(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s from bootstrap archive: %w", name, err)
		}
		if ok {
			return data, nil
		}
		return nil, nil
	}
	for _, entry := range cl.Classpath {
		data, ok, err := entry.ReadClassBytes(name)
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
	}
	return nil, nil
}

func (cl *BootstrapClassLoader) loadArrayClass(descriptor string) (*ResolvedClass, error) {
	if ac, ok := cl.arrayClasses[descriptor]; ok {
		return &ResolvedClass{Array: ac}, nil
	}
	ft, err := classfile.ParseDescriptor(descriptor)
	if err != nil {
		return nil, fmt.Errorf("array descriptor %s: %w: %v", descriptor, vmerr.ErrClassFormat, err)
	}
	if ft.Dimensions == 0 {
		return nil, fmt.Errorf("%s is not an array descriptor: %w", descriptor, vmerr.ErrClassFormat)
	}

	objectClass, err := cl.LoadClass("java/lang/Object")
	if err != nil {
		return nil, err
	}

	ac := &ArrayClass{BinaryName: descriptor, Dimensions: ft.Dimensions, ObjectClass: objectClass.Instance}
	if ft.Dimensions == 1 && ft.ClassName != "" {
		componentResolved, err := cl.LoadClass(ft.ClassName)
		if err != nil {
			return nil, err
		}
		ac.ComponentJC = componentResolved.Instance
	} else if ft.Dimensions == 1 {
		ac.ComponentBase = ft.Base
	}
	// Dimensions > 1: component is always a reference (the next-rank array),
	// ComponentJC/ComponentBase stay unset; ComponentIsRef() already returns
	// true via Dimensions > 1.

	if cl.linker.heap != nil {
		ac.Mirror = cl.linker.newMirror(ac.BinaryName)
	}
	cl.arrayClasses[descriptor] = ac
	return &ResolvedClass{Array: ac}, nil
}

// StaticRoots returns a heap.RefLocation for every static reference-field
// slot of every class this loader has prepared, for folding into the VM's
// GC root set: every reference-or-array static field of every loaded
// class is a root.
func (cl *BootstrapClassLoader) StaticRoots() []heap.RefLocation {
	var roots []heap.RefLocation
	for _, jc := range cl.classes {
		for i := range jc.StaticRefs {
			roots = append(roots, staticRefRoot{jc: jc, idx: i})
		}
	}
	return roots
}

// ResolvedClass is the uniform result of LoadClass: exactly one of
// Instance/Array is set.
type ResolvedClass struct {
	Instance *JClass
	Array    *ArrayClass
}

func (r *ResolvedClass) Name() string {
	if r.Instance != nil {
		return r.Instance.BinaryName
	}
	return r.Array.BinaryName
}
