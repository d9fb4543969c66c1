// Package vm executes finalized instruction sequences.
//
// This package contains:
//   - Dynamic value representation over Go values
//   - Classes, modules, singleton classes and method lookup
//   - A stack interpreter with a shared operand stack and lexical frames
//   - Catch-table driven exception handling and non-local exits
//   - Builtin methods for the core classes
package vm
