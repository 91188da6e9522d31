// Package vmerr defines the typed error values the execution core
// surfaces. Every VM-observable failure wraps one of these with
// fmt.Errorf's %w so callers can use errors.Is/errors.As; at the Java
// level each maps to the exception class named in its doc comment.
package vmerr

import "errors"

var (
	// ErrClassFormat is a malformed class file. Maps to
	// java.lang.ClassFormatError.
	ErrClassFormat = errors.New("class format error")

	// ErrNoClassDefFound is a symbolic class reference that could not be
	// resolved to bytes on any classpath entry. Maps to
	// java.lang.NoClassDefFoundError.
	ErrNoClassDefFound = errors.New("no class def found")

	// ErrNoSuchField is a field resolution failure at use. Maps to
	// java.lang.NoSuchFieldError.
	ErrNoSuchField = errors.New("no such field")

	// ErrNoSuchMethod is a method resolution failure at use. Maps to
	// java.lang.NoSuchMethodError.
	ErrNoSuchMethod = errors.New("no such method")

	// ErrUnsatisfiedLink is a native method with no registered handler.
	// Maps to java.lang.UnsatisfiedLinkError.
	ErrUnsatisfiedLink = errors.New("unsatisfied link")

	// ErrIncompatibleClassChange covers method/field access that violates
	// the expected kind (e.g. invokestatic on an instance method).
	// Maps to java.lang.IncompatibleClassChangeError.
	ErrIncompatibleClassChange = errors.New("incompatible class change")

	// ErrUnsupportedOpcode is raised by the opcodes this interpreter
	// does not execute (INVOKEDYNAMIC, JSR/JSR_W/RET, BREAKPOINT,
	// IMPDEP1/2).
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
)
