package ble

// MTU is the largest write the Crazyflie accepts on one characteristic.
const MTU = 20

// Fragments on the crtpUp and crtpDown characteristics carry a control byte:
// bit 7 marks the first fragment, bits 5-6 hold a rolling packet id and, on
// the first fragment, bits 0-4 hold the total length minus one.
const (
	controlStart  = 0x80
	controlPidBit = 5
	controlPid    = 0x03 << controlPidBit
	controlLength = 0x1F

	fragmentPayload = MTU - 1
	maxPacket       = controlLength + 1
)

func fragment(packet []byte, pid uint8) [][]byte {
	if len(packet) == 0 || len(packet) > maxPacket {
		return nil
	}

	pidBits := (pid << controlPidBit) & controlPid
	first := len(packet)
	if first > fragmentPayload {
		first = fragmentPayload
	}

	head := make([]byte, 0, first+1)
	head = append(head, controlStart|pidBits|byte(len(packet)-1))
	head = append(head, packet[:first]...)
	out := [][]byte{head}

	if rest := packet[first:]; len(rest) > 0 {
		tail := make([]byte, 0, len(rest)+1)
		tail = append(tail, pidBits)
		tail = append(tail, rest...)
		out = append(out, tail)
	}
	return out
}

// assembler rebuilds packets from crtpDown notifications. A fragment that
// does not continue the current packet is dropped.
type assembler struct {
	buf    []byte
	want   int
	pid    byte
	active bool
}

func (a *assembler) push(frag []byte) ([]byte, bool) {
	if len(frag) < 2 {
		return nil, false
	}
	control := frag[0]

	if control&controlStart != 0 {
		a.buf = append(a.buf[:0], frag[1:]...)
		a.want = int(control&controlLength) + 1
		a.pid = control & controlPid
		a.active = true
	} else {
		if !a.active || control&controlPid != a.pid {
			a.active = false
			return nil, false
		}
		a.buf = append(a.buf, frag[1:]...)
	}

	if len(a.buf) < a.want {
		return nil, false
	}

	a.active = false
	packet := make([]byte, a.want)
	copy(packet, a.buf)
	return packet, true
}

func (a *assembler) reset() {
	a.buf = a.buf[:0]
	a.active = false
}
