package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Chunk is a piece of synthesized audio. The last chunk on a failed stream
// carries Err.
type Chunk struct {
	Samples []float32
	Rate    int
	Err     error
}

// Synthesizer turns text into streamed audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan Chunk, error)
}

// ErrEmptyText is returned when there is nothing to speak.
var ErrEmptyText = errors.New("empty text")

// chunkBytes is the PCM read size per emitted chunk (about 0.1s at 22 kHz).
const chunkBytes = 4410

// Piper runs the piper binary with raw PCM output.
type Piper struct {
	Binary     string
	Voice      string
	SampleRate int
	Logger     zerolog.Logger

	// args replaces the computed arguments; tests use it with a stand-in binary.
	args []string
}

// NewPiper returns a Piper for the given binary and voice model.
func NewPiper(binary, voice string, rate int, log zerolog.Logger) *Piper {
	if binary == "" {
		binary = "piper"
	}
	if rate <= 0 {
		rate = 22050
	}
	return &Piper{Binary: binary, Voice: voice, SampleRate: rate, Logger: log}
}

// Available reports whether the binary can be found.
func (p *Piper) Available() bool {
	_, err := exec.LookPath(p.Binary)
	return err == nil
}

// Synthesize starts piper and streams its audio. The channel is closed when
// the process exits; canceling ctx kills it.
func (p *Piper) Synthesize(ctx context.Context, text string) (<-chan Chunk, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return nil, ErrEmptyText
	}
	args := p.args
	if args == nil {
		args = []string{"--model", p.Voice, "--output_raw"}
	}
	cmd := exec.CommandContext(ctx, p.Binary, args...)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.Binary, err)
	}

	out := make(chan Chunk, 8)
	go func() {
		defer close(out)
		buf := make([]byte, chunkBytes)
		var carry []byte
		total := 0
		for {
			n, rerr := stdout.Read(buf)
			if n > 0 {
				data := append(carry, buf[:n]...)
				even := len(data) &^ 1
				if even > 0 {
					samples := PCMToFloat(data[:even])
					total += len(samples)
					select {
					case out <- Chunk{Samples: samples, Rate: p.SampleRate}:
					case <-ctx.Done():
					}
				}
				carry = append([]byte(nil), data[even:]...)
			}
			if rerr != nil {
				if !errors.Is(rerr, io.EOF) {
					p.Logger.Warn().Err(rerr).Msg("piper read")
				}
				break
			}
		}
		if err := cmd.Wait(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			select {
			case out <- Chunk{Err: fmt.Errorf("piper: %w: %s", err, msg)}:
			case <-ctx.Done():
			}
			return
		}
		p.Logger.Debug().Int("samples", total).Msg("synthesized")
	}()
	return out, nil
}

// Collect drains a chunk stream into one buffer.
func Collect(ch <-chan Chunk) ([]float32, int, error) {
	var (
		all  []float32
		rate int
	)
	for c := range ch {
		if c.Err != nil {
			return all, rate, c.Err
		}
		rate = c.Rate
		all = append(all, c.Samples...)
	}
	return all, rate, nil
}
