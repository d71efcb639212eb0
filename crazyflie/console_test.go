package crazyflie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestConsoleAccumulatesLines(t *testing.T) {
	var lines []string
	c := console{log: zap.NewNop(), lines: func(l string) { lines = append(lines, l) }}

	c.handle([]byte{0x00})
	c.handle(append([]byte{0x00}, "SYS: Crazy"...))
	c.handle(append([]byte{0x00}, "flie 2.1\nEEPROM: I2C"...))
	assert.Equal(t, []string{"SYS: Crazyflie 2.1"}, lines)

	c.handle(append([]byte{0x00}, " ok\n\n"...))
	assert.Equal(t, []string{"SYS: Crazyflie 2.1", "EEPROM: I2C ok", ""}, lines)

	c.handle(append([]byte{0x00}, "partial"...))
	c.reset()
	c.handle(append([]byte{0x00}, "fresh\n"...))
	assert.Equal(t, "fresh", lines[len(lines)-1])
}
