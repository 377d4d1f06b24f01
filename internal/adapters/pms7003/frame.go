package pms7003

import "encoding/binary"

// MarshalFrame builds a wire-exact sensor frame for the given atmospheric
// concentrations. Standard-particle words mirror the atmospheric values
// and the particle-count words are zero. Used by simulators and tests.
func MarshalFrame(pm1, pm25, pm10 uint16) []byte {
	frame := make([]byte, FrameLen)
	frame[0] = syncByte1
	frame[1] = syncByte2
	binary.BigEndian.PutUint16(frame[2:], payloadLen)

	// Standard particle (CF=1) words 0..2.
	binary.BigEndian.PutUint16(frame[4:], pm1)
	binary.BigEndian.PutUint16(frame[6:], pm25)
	binary.BigEndian.PutUint16(frame[8:], pm10)

	// Atmospheric words 3..5.
	binary.BigEndian.PutUint16(frame[offPM1:], pm1)
	binary.BigEndian.PutUint16(frame[offPM25:], pm25)
	binary.BigEndian.PutUint16(frame[offPM10:], pm10)

	var sum uint16
	for _, b := range frame[:FrameLen-2] {
		sum += uint16(b)
	}
	binary.BigEndian.PutUint16(frame[FrameLen-2:], sum)
	return frame
}
