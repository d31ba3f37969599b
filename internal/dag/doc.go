// Package dag is the assembly layer of the compiler. It takes a texture set
// definition and the module registry and builds the immutable build graph the
// compiler executes: one node per input slot, per module invocation and per
// packed texture, linked by the outputs they consume.
//
// Assemble works in passes: create nodes, link references, detect cycles,
// order topologically, resolve port types, add packing nodes, collapse
// identical sub-invocations and prune nodes nothing consumes. Every problem
// found before execution is reported as a DefinitionError.
package dag
