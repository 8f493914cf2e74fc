package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// ContentTypeWAV is the MIME type of encoded output.
	ContentTypeWAV = "audio/wav"

	wavHeaderSize    = 44
	wavBitsPerSample = 16
	wavFormatPCM     = 1
)

// EncodeWAV writes the waveform as a 16-bit PCM RIFF/WAVE stream and returns the number of
// bytes written.
func EncodeWAV(w io.Writer, wf *Waveform) (int64, error) {
	if err := wf.Validate(); err != nil {
		return 0, err
	}

	dataSize := len(wf.Samples) * wavBitsPerSample / 8
	blockAlign := wf.Channels * wavBitsPerSample / 8
	byteRate := wf.SampleRate * blockAlign

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(wf.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(wf.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], wavBitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	n, err := w.Write(header)
	written := int64(n)
	if err != nil {
		return written, fmt.Errorf("write wav header: %w", err)
	}

	pcm := make([]byte, dataSize)
	for i, s := range wf.Samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(quantize(s)))
	}

	n, err = w.Write(pcm)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("write wav data: %w", err)
	}

	return written, nil
}

// WAVBytes encodes the waveform into an in-memory WAV file.
func WAVBytes(wf *Waveform) ([]byte, error) {
	var buf bytes.Buffer
	if wf != nil {
		buf.Grow(wavHeaderSize + 2*len(wf.Samples))
	}

	if _, err := EncodeWAV(&buf, wf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// quantize clips s to [-1, 1] and scales it to a signed 16-bit sample.
func quantize(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * math.MaxInt16))
}
