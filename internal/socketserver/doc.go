// Package socketserver implements a single-threaded TCP reactor that speaks
// the newline-delimited JSON message protocol.
//
// # Architecture
//
// One goroutine owns the whole server. Each pass of its loop:
//
//   - waits, with a bounded timeout, for the listener or any open
//     connection to become readable
//   - accepts at most one new connection, rejecting it when the table is full
//   - under the table lock, reads once from every ready connection, splits
//     the bytes into frames and dispatches each frame to the Handler
//   - prunes connections that were closed during the pass
//
// Handlers run inside the pass while the table lock is held, which lets
// them fan a message out to every other connection through the Server
// without further locking.
//
// # Message Protocol
//
// Every frame is one JSON object terminated by a newline:
//
//	{"type":"ping","payload":"ping","timestamp":1700000000,"client_id":null}\n
//
// Frames that are not JSON objects are treated as text messages. The base
// protocol answers ping, echo, text and disconnect; anything else gets an
// error reply.
//
// Usage
//
//	srv := socketserver.NewServer(config.DefaultConfig(), logger.Global())
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package socketserver
