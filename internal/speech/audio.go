// Package speech converts between audio and text: speech-to-text through a
// whisper.cpp server and text-to-speech through the Piper binary.
package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// WhisperRate is the sample rate whisper models expect.
const WhisperRate = 16000

// ErrBadWAV is returned for WAV payloads this package cannot read.
var ErrBadWAV = errors.New("unsupported wav")

// EncodeWAV writes mono float samples in [-1,1] as 16-bit PCM WAV.
func EncodeWAV(samples []float32, rate int) []byte {
	dataLen := len(samples) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, floatToPCM(s))
	}
	return buf.Bytes()
}

// DecodeWAV reads a 16-bit PCM WAV and returns mono samples (channels are
// averaged) and the sample rate.
func DecodeWAV(data []byte) ([]float32, int, error) {
	r := bytes.NewReader(data)
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil || string(riff[:4]) != "RIFF" || string(riff[8:]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing RIFF header", ErrBadWAV)
	}
	var (
		channels, bits uint16
		rate           uint32
		haveFmt        bool
	)
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: no data chunk", ErrBadWAV)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated chunk", ErrBadWAV)
		}
		switch string(id[:]) {
		case "fmt ":
			chunk := make([]byte, size)
			if _, err := io.ReadFull(r, chunk); err != nil || size < 16 {
				return nil, 0, fmt.Errorf("%w: bad fmt chunk", ErrBadWAV)
			}
			if format := binary.LittleEndian.Uint16(chunk[0:2]); format != 1 {
				return nil, 0, fmt.Errorf("%w: format %d", ErrBadWAV, format)
			}
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			rate = binary.LittleEndian.Uint32(chunk[4:8])
			bits = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			if !haveFmt || bits != 16 || channels == 0 {
				return nil, 0, fmt.Errorf("%w: need 16-bit PCM", ErrBadWAV)
			}
			if int64(size) > int64(r.Len()) {
				size = uint32(r.Len())
			}
			pcm := make([]int16, int(size)/2)
			if err := binary.Read(r, binary.LittleEndian, pcm); err != nil {
				return nil, 0, fmt.Errorf("%w: %v", ErrBadWAV, err)
			}
			return mixDown(pcm, int(channels)), int(rate), nil
		default:
			if _, err := r.Seek(int64(size+size%2), io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("%w: %v", ErrBadWAV, err)
			}
		}
	}
}

func mixDown(pcm []int16, channels int) []float32 {
	out := make([]float32, len(pcm)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(pcm[i*channels+c]) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func floatToPCM(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * 32767))
}

// PCMToFloat converts little-endian 16-bit PCM bytes to samples. A trailing
// odd byte is ignored.
func PCMToFloat(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / 32768
	}
	return out
}

// Resample converts samples to rate by linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

// DefaultSilenceRMS is the RMS under which audio counts as silence.
const DefaultSilenceRMS = 0.01

// IsSilent reports whether the RMS of samples is below threshold.
func IsSilent(samples []float32, threshold float64) bool {
	if len(samples) == 0 {
		return true
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum/float64(len(samples))) < threshold
}
