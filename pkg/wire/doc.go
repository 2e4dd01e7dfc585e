// Package wire holds the byte-level formats exchanged by the socklab
// programs.
//
// Three formats live here:
//
//   - Record, the fixed 24-byte binary structure sent by the struct
//     client (little-endian, no padding).
//   - Splitter, which cuts a TCP byte stream into NUL-terminated
//     messages regardless of how the stream was split into reads.
//   - Length-header frames: a 10-byte ASCII decimal length followed by
//     the payload. Frames carry files on the transfer data channel and
//     dictionary Messages (protobuf Struct encoded) on its command
//     channel.
package wire
