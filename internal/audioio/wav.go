// Package audioio implements WAV encode/decode and file-backed
// implementations of the capture/playback producer/consumer contracts,
// used as a portable stand-in for the real DMA/I2S capture binding and
// playback sink, which are out of scope for a portable build.
package audioio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Header holds metadata extracted from a WAV file.
type Header struct {
	SampleRate    int
	NumChannels   int
	BitsPerSample int
}

// ReadWAV parses a 16-bit PCM WAV file from raw bytes, returning
// interleaved samples normalized to [-1.0, +1.0] and a Header with the
// sample rate, channel count and bit depth.
// Channels are left interleaved (channel-major per frame) — callers
// that want mono must downmix explicitly.
func ReadWAV(data []byte) ([]float64, Header, error) {
	var hdr Header
	if len(data) < 12 {
		return nil, hdr, errors.New("wav: file too short")
	}

	if string(data[0:4]) != "RIFF" {
		return nil, hdr, errors.New("wav: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return nil, hdr, errors.New("wav: missing WAVE identifier")
	}

	var haveHeader bool
	var pcmData []byte

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		chunkStart := pos + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, hdr, errors.New("wav: fmt chunk too small")
			}
			if chunkStart+16 > len(data) {
				return nil, hdr, errors.New("wav: fmt chunk truncated")
			}
			audioFormat := binary.LittleEndian.Uint16(data[chunkStart : chunkStart+2])
			if audioFormat != 1 {
				return nil, hdr, fmt.Errorf("wav: unsupported audio format %d (only PCM/1 supported)", audioFormat)
			}
			hdr = Header{
				NumChannels:   int(binary.LittleEndian.Uint16(data[chunkStart+2 : chunkStart+4])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[chunkStart+4 : chunkStart+8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[chunkStart+14 : chunkStart+16])),
			}
			if hdr.BitsPerSample != 16 {
				return nil, hdr, fmt.Errorf("wav: unsupported bits per sample %d (only 16 supported)", hdr.BitsPerSample)
			}
			haveHeader = true

		case "data":
			end := chunkStart + chunkSize
			if end > len(data) {
				end = len(data)
			}
			pcmData = data[chunkStart:end]
		}

		pos = chunkStart + chunkSize
		if chunkSize%2 != 0 {
			pos++
		}
	}

	if !haveHeader {
		return nil, hdr, errors.New("wav: no fmt chunk found")
	}
	if pcmData == nil {
		return nil, hdr, errors.New("wav: no data chunk found")
	}

	numSamples := len(pcmData) / 2
	samples := make([]float64, numSamples)
	for i := 0; i < numSamples; i++ {
		s := int16(binary.LittleEndian.Uint16(pcmData[i*2 : i*2+2]))
		samples[i] = float64(s) / 32768.0
	}

	return samples, hdr, nil
}

// ToInt16 converts normalized float64 samples in [-1.0, +1.0] to
// clipped int16 PCM, the representation the capture ring buffer and
// Producer/Consumer contracts operate on.
func ToInt16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(math.Round(s * 32767))
	}
	return out
}

// ToFloat64 converts int16 PCM samples to normalized float64 samples
// in [-1.0, +1.0].
func ToFloat64(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// WriteWAV encodes interleaved float64 samples (in [-1.0, +1.0]) as a
// 16-bit PCM WAV file with the given sample rate and channel count.
func WriteWAV(samples []float64, sampleRate, numChannels int) []byte {
	numSamples := len(samples)
	dataSize := numSamples * 2
	fileSize := 36 + dataSize

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*2))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		var i16 int16
		if s >= 0 {
			i16 = int16(math.Round(s * 32767))
		} else {
			i16 = int16(math.Round(s * 32768))
		}
		binary.Write(buf, binary.LittleEndian, i16)
	}

	return buf.Bytes()
}
