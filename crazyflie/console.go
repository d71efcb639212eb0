package crazyflie

import (
	"strings"

	"go.uber.org/zap"
)

// console accumulates the firmware's printf output into lines.
type console struct {
	log     *zap.Logger
	pending strings.Builder
	lines   func(string)
}

func (c *console) handle(frame []byte) {
	if len(frame) < 2 {
		return
	}

	str := string(frame[1:])
	for {
		i := strings.Index(str, "\n")
		if i == -1 {
			c.pending.WriteString(str)
			return
		}
		c.pending.WriteString(str[:i])
		line := c.pending.String()
		c.pending.Reset()
		str = str[i+1:]

		c.log.Info(line)
		if c.lines != nil {
			c.lines(line)
		}
	}
}

func (c *console) reset() {
	c.pending.Reset()
}
