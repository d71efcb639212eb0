package link

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseURI reads ble://<name>, radio://<dongle>/<channel>/<rate>/<address> and
// stub://<name>. Missing radio fields take the factory defaults.
func ParseURI(uri string) (Params, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Params{}, fmt.Errorf("link: bad uri %q: %w", uri, err)
	}

	p := Params{
		Scheme:   u.Scheme,
		Channel:  DefaultChannel,
		Datarate: Datarate2M,
		Address:  DefaultAddress,
		Timeout:  DefaultTimeout,
	}

	switch u.Scheme {
	case "ble":
		p.Name = u.Host
		if p.Name == "" {
			p.Name = DefaultBLEName
		}
	case "stub":
		p.Name = u.Host
	case "radio":
		fields := []string{u.Host}
		if path := strings.Trim(u.Path, "/"); path != "" {
			fields = append(fields, strings.Split(path, "/")...)
		}
		if err := parseRadio(&p, fields); err != nil {
			return Params{}, fmt.Errorf("link: bad uri %q: %w", uri, err)
		}
	default:
		return Params{}, fmt.Errorf("link: unsupported scheme %q", u.Scheme)
	}
	return p, nil
}

func parseRadio(p *Params, fields []string) error {
	if len(fields) > 0 && fields[0] != "" {
		dongle, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("dongle: %w", err)
		}
		p.Dongle = dongle
	}
	if len(fields) > 1 {
		channel, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil || channel > 125 {
			return fmt.Errorf("channel %q out of range", fields[1])
		}
		p.Channel = uint8(channel)
	}
	if len(fields) > 2 {
		switch strings.ToUpper(fields[2]) {
		case "250K":
			p.Datarate = Datarate250K
		case "1M":
			p.Datarate = Datarate1M
		case "2M":
			p.Datarate = Datarate2M
		default:
			return fmt.Errorf("datarate %q", fields[2])
		}
	}
	if len(fields) > 3 {
		// trim any leading hex prefix
		address, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(fields[3]), "0x"), 16, 64)
		if err != nil || address > 0xFFFFFFFFFF {
			return fmt.Errorf("address %q", fields[3])
		}
		p.Address = address
	}
	return nil
}
