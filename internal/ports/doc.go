// Package ports defines the interfaces that connect the socklab servers
// and clients to their surroundings.
//
//   - [Logger]: structured diagnostics (pkg/log)
//   - [Printer]: the console lines a lab program prints as its output
//   - [MessageSink]: where servers hand every received payload (journal,
//     capture file, or nothing)
//
// Servers and clients depend only on these interfaces; internal/sink,
// internal/journal and internal/capture provide the implementations.
package ports
