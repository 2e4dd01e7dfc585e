// Package domain contains the types shared by the socklab servers,
// clients and sinks.
//
// # Entities
//
//   - [Message]: one payload received by a server, with its peer
//     addresses and session.
//   - [StepError]: a socket call that failed, tagged with the step so the
//     CLI can exit with the lab's status code.
//
// The package has no dependencies on logging, storage or the network
// stack beyond net.Addr.
package domain
