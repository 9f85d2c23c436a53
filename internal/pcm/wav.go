package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	wavHeaderSize  = 44
	bitsPerSample  = 16
	audioFormatPCM = 1
)

// WAVInfo describes the PCM stream inside a WAV container
type WAVInfo struct {
	SampleRate int
	Channels   int
}

// EncodeWAV wraps PCM16 LE data into a canonical 44-byte-header WAV file
func EncodeWAV(data []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if channels <= 0 || channels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if len(data)%(BytesPerSample*channels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(data)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes(), nil
}

// DecodeWAV extracts the PCM16 data chunk from a WAV file, skipping any other subchunks
func DecodeWAV(r io.Reader) ([]byte, WAVInfo, error) {
	var info WAVInfo

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, info, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, info, errors.New("not a RIFF/WAVE file")
	}

	var haveFmt bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, info, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			chunk := make([]byte, size)
			if _, err := io.ReadFull(r, chunk); err != nil {
				return nil, info, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(chunk) < 16 {
				return nil, info, errors.New("fmt chunk too short")
			}
			if binary.LittleEndian.Uint16(chunk[0:2]) != audioFormatPCM {
				return nil, info, errors.New("only uncompressed PCM is supported")
			}
			if binary.LittleEndian.Uint16(chunk[14:16]) != bitsPerSample {
				return nil, info, errors.New("only 16-bit samples are supported")
			}
			info.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, info, errors.New("data chunk before fmt chunk")
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, info, fmt.Errorf("read data chunk: %w", err)
			}
			return data[:n-n%BytesPerSample], info, nil
		default:
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, info, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}
