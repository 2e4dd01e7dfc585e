// Package transfer implements a small FTP-like service: an authenticated
// command channel carrying wire.Message dictionaries and a separate data
// channel carrying file contents, each in length-header frames.
//
// A session runs in four phases:
//
//  1. The client sends {name, pass} where pass is the hex SHA-512 of the
//     password; the server answers {status: OK} or {status: INV}.
//  2. The server sends {mode: ready} and the client picks passive
//     ({mode: p}, the server listens and sends {port}) or active
//     ({mode: a}, the client listens and sends {port}).
//  3. Commands (cd, ls, get, put) are answered one at a time until the
//     client sends exit or disconnects.
//  4. Both channels are closed.
//
// Every path a client names is resolved inside the server's root
// directory; the working directory the server reports is relative to
// that root and always starts with "/".
package transfer
