package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikehamer/crazyclient/ble"
	"github.com/mikehamer/crazyclient/crazyradio"
	"github.com/mikehamer/crazyclient/link"
	"github.com/mikehamer/crazyclient/link/stub"
)

// openLink builds the transport a link URI names. paramV2 only matters to the
// stub, which has to know the id width of parameter value requests.
func openLink(uri string, paramV2 bool, logger *zap.Logger) (link.Link, link.Params, error) {
	params, err := link.ParseURI(uri)
	if err != nil {
		return nil, link.Params{}, err
	}

	switch params.Scheme {
	case "ble":
		return ble.New(logger), params, nil
	case "radio":
		return crazyradio.New(logger), params, nil
	case "stub":
		cfg := stub.CrazyflieConfig()
		cfg.ParamV2 = paramV2
		return stub.New(cfg), params, nil
	default:
		return nil, link.Params{}, fmt.Errorf("no transport for %q", params.Scheme)
	}
}
