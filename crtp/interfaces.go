package crtp

// RequestPacket is anything that can be framed and sent to the Crazyflie.
type RequestPacket interface {
	Port() Port
	Channel() Channel
	Bytes() []byte
}

// Frame prefixes the packet body with its header byte.
func Frame(request RequestPacket) []byte {
	body := request.Bytes()
	data := make([]byte, len(body)+1)
	data[0] = HeaderByte(request.Port(), request.Channel())
	copy(data[1:], body)
	return data
}
