package crtp

import "fmt"

type crtpError uint8

func (e crtpError) Error() string {
	return fmt.Sprintf("crtp: %s", crtpErrorString[e])
}

const (
	ErrorMalformedFrame crtpError = iota
	ErrorPacketIncorrectType
)

var crtpErrorString = map[crtpError]string{
	ErrorMalformedFrame:      "malformed frame",
	ErrorPacketIncorrectType: "cannot decode packet from bytes: incorrect format",
}
