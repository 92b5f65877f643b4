// Package socketclient is a TCP client for the newline-delimited JSON
// message protocol served by package socketserver.
//
// A Client sends typed messages, receives replies with a bounded wait, and
// can run a background receiver that is stopped and joined before the
// socket is closed. It never retries or reconnects on its own.
//
// Usage
//
//	c := socketclient.New(socketclient.DefaultConfig(), logger.Global())
//	if err := c.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Disconnect()
//
//	if c.PingServer(3 * time.Second) {
//	    fmt.Println("server is alive")
//	}
package socketclient
