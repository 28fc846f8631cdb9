// Package errors provides structured error types for the ilreader module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: location path, byte offset within the
// instruction stream, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
//		Path("Demo::Run").
//		Offset(0x12).
//		Detail("switch table of %d targets exceeds method body", n).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Truncated(errors.PhaseDecode, 0x12, 4, 2)
//	err := errors.NotFound(errors.PhaseResolve, "token", "0x0a000001")
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind only, so a bare Error value works as a sentinel:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindOutOfBounds}) { ... }
package errors
