package crazyflie

import (
	"fmt"

	"github.com/mikehamer/crazyclient/link"
)

type FailureKind uint8

const (
	FailureTransportUnavailable FailureKind = iota
	FailureConnectionTimeout
	FailureTransportOther
)

var failureKindNames = map[FailureKind]string{
	FailureTransportUnavailable: "transport unavailable",
	FailureConnectionTimeout:    "connection timeout",
	FailureTransportOther:       "transport error",
}

func (k FailureKind) String() string {
	if s, ok := failureKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("failure(%d)", uint8(k))
}

// Failure is a user-presentable connection failure.
type Failure struct {
	Kind   FailureKind `json:"-"`
	Title  string      `json:"title"`
	Detail string      `json:"detail"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("crazyflie: %s: %s", f.Title, f.Detail)
}

// FailureFromTransport classifies a transport LastError string.
func FailureFromTransport(lastError string) Failure {
	switch lastError {
	case link.ErrorBluetoothDisabled:
		return Failure{
			Kind:   FailureTransportUnavailable,
			Title:  "Bluetooth disabled",
			Detail: "Please enable Bluetooth to connect a Crazyflie",
		}
	case link.ErrorRadioNotFound:
		return Failure{
			Kind:   FailureTransportUnavailable,
			Title:  "Radio not found",
			Detail: "Please plug in a Crazyradio to connect a Crazyflie",
		}
	case link.ErrorTimeout:
		return Failure{
			Kind:   FailureConnectionTimeout,
			Title:  "Connection timeout",
			Detail: "Could not find Crazyflie",
		}
	default:
		return Failure{
			Kind:   FailureTransportOther,
			Title:  "Error",
			Detail: lastError,
		}
	}
}
