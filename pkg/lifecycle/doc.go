// Package lifecycle provides the state machine and worker bookkeeping
// shared by the long-running socklab servers.
//
// A server moves through Stopped -> Starting -> Running -> Stopping ->
// Stopped; any active state may move to Crashed, and Crashed may be
// restarted. Connection handlers register as workers so that shutdown can
// wait for them with a bound:
//
//	m := lifecycle.NewManager(logger, nil)
//	if err := m.TransitionTo(lifecycle.StateStarting, "listen"); err != nil {
//	    return err
//	}
//	m.Go(func() { serve(conn) })
//	...
//	err := m.WaitWithTimeout(lifecycle.ShutdownTimeout)
//
// Backoff implements capped exponential backoff with jitter for clients
// that retry a connect.
package lifecycle
