package audio

import "encoding/binary"

// EncodeWAV wraps a clip's PCM data in a minimal RIFF/WAVE container
// (PCM format, 16-bit). Batch recognizers that accept file uploads take
// this as their input.
func EncodeWAV(c Clip) []byte {
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := c.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	const bitsPerSample = 16
	byteRate := rate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataLen := len(c.PCM)

	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], c.PCM)
	return buf
}
