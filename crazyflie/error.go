package crazyflie

import "fmt"

type crazyflieError uint8

func (e crazyflieError) Error() string {
	return fmt.Sprintf("crazyflie: %s", crazyflieErrorString[e])
}

const (
	ErrorClosed crazyflieError = iota
	ErrorNotConnected
	ErrorTocNotLoaded
	ErrorParamNotFound
	ErrorParamReadOnly
	ErrorNoResponse
)

var crazyflieErrorString = map[crazyflieError]string{
	ErrorClosed:        "session closed",
	ErrorNotConnected:  "not connected",
	ErrorTocNotLoaded:  "parameter table not loaded",
	ErrorParamNotFound: "parameter not found",
	ErrorParamReadOnly: "parameter is read-only",
	ErrorNoResponse:    "no response from the crazyflie",
}
