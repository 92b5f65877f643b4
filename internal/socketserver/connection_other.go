//go:build !linux && !darwin

package socketserver

func (c *Connection) read(buf []byte) (int, error) {
	return c.readWithDeadline(buf)
}

func (c *Connection) fd() (int, bool) {
	return -1, false
}
