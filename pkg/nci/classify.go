package nci

// Classify parses the raw response to cmd. The universal unrecognized command
// response is detected first since it is a valid answer to any request; all
// other responses are routed to the parser matching the command that was sent.
func Classify(cmd Command, raw []byte) Outcome {
	if len(raw) == 0 || raw[0] != LF {
		return Malformed{Reason: "missing LF", Offset: 0}
	}
	if isUnrecognized(raw) {
		return Unrecognized{}
	}

	switch cmd {
	case RequestWeight:
		return ParseWeight(raw)
	case ChangeUnits:
		return ParseUnits(raw)
	case RequestStatus, ZeroScale:
		return StatusReport{Status: decodeStatusAt(raw, 1)}
	default:
		return Malformed{Reason: "response to unsupported " + cmd.String(), Offset: 0}
	}
}

// Complete reports whether buf contains the CR ETX sequence ending a response frame
func Complete(buf []byte) bool {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == CR && buf[i+1] == ETX {
			return true
		}
	}
	return false
}
