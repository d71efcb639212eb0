package toc

import "fmt"

type tocError uint8

func (e tocError) Error() string {
	return fmt.Sprintf("toc: %s", tocErrorString[e])
}

const (
	ErrorUnknownType tocError = iota
	ErrorTruncatedPayload
	ErrorTocTimeout
	ErrorTocBusy
	ErrorTocCanceled
	ErrorUnsupportedPort
	ErrorValueOutOfRange
)

var tocErrorString = map[tocError]string{
	ErrorUnknownType:      "unknown variable type",
	ErrorTruncatedPayload: "payload shorter than the variable type",
	ErrorTocTimeout:       "no further entries received",
	ErrorTocBusy:          "a request for this port is already running",
	ErrorTocCanceled:      "request canceled",
	ErrorUnsupportedPort:  "port has no table of contents",
	ErrorValueOutOfRange:  "value cannot be represented by the variable type",
}
