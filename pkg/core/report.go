package core

import "strconv"

const (
	// RequestByte asks the core for one report line.
	RequestByte = 'y'
	// IdleByte is the mailbox value once a request has been served.
	IdleByte = 'n'
	// LineTerminator ends every report line.
	LineTerminator = "\r\n"

	// maxReportLen covers "4," + 3 * 10 digits + 2 * ", " + CRLF.
	maxReportLen = 2 + 3*10 + 2*2 + 2
)

// Receive is the serial byte-received handler. The mailbox holds one byte; a
// second request before the first is served overwrites it.
func (c *Core) Receive(b byte) {
	c.mailbox.Store(uint32(b))
}

// AppendReport appends one report line to dst:
//
//	<state>,<x>, <y>, <z>\r\n
func AppendReport(dst []byte, state ButtonState, delays [NumChannels]uint32) []byte {
	dst = strconv.AppendUint(dst, uint64(state), 10)
	dst = append(dst, ',')
	for i, d := range delays {
		if i > 0 {
			dst = append(dst, ',', ' ')
		}
		dst = strconv.AppendUint(dst, uint64(d), 10)
	}
	return append(dst, LineTerminator...)
}

// serveReport answers a pending request, if any.
func (c *Core) serveReport() {
	if c.mailbox.Load() != RequestByte {
		return
	}

	line := AppendReport(c.line[:0], c.button, c.Stabilized())
	if _, err := c.out.Write(line); err != nil {
		c.dropped.Add(1)
	}
	c.mailbox.Store(IdleByte)
}

// DroppedReports returns how many report lines failed to send.
func (c *Core) DroppedReports() uint32 {
	return c.dropped.Load()
}
