package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asistan/pkg/types"
)

// ErrUnavailable marks a probe that cannot read the device. It is logged, never
// returned to callers of CurrentUsage.
type ErrUnavailable struct{ Cause error }

func (e *ErrUnavailable) Error() string {
	return "resource probe unavailable: " + e.Cause.Error()
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// NvidiaSMI reads memory usage through the nvidia-smi command line tool.
type NvidiaSMI struct {
	Binary   string
	GPUIndex int
	Timeout  time.Duration
	Logger   zerolog.Logger

	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)

	warnOnce sync.Once
}

// NewNvidiaSMI returns a probe for the given GPU index.
func NewNvidiaSMI(gpuIndex int, log zerolog.Logger) *NvidiaSMI {
	return &NvidiaSMI{Binary: "nvidia-smi", GPUIndex: gpuIndex, Timeout: 3 * time.Second, Logger: log}
}

func (n *NvidiaSMI) CurrentUsage(ctx context.Context) float64 {
	used, _, err := n.query(ctx)
	if err != nil {
		n.degraded(err)
		return 0
	}
	return used
}

func (n *NvidiaSMI) Info(ctx context.Context) types.ProbeInfo {
	used, total, err := n.query(ctx)
	if err != nil {
		n.degraded(err)
		return types.ProbeInfo{}
	}
	info := types.ProbeInfo{Available: true, UsedGB: used, TotalGB: total, FreeGB: total - used}
	if total > 0 {
		info.Percent = used / total * 100
	}
	return info
}

func (n *NvidiaSMI) degraded(err error) {
	n.warnOnce.Do(func() {
		n.Logger.Warn().Err(&ErrUnavailable{Cause: err}).Int("gpu", n.GPUIndex).Msg("gpu memory probe unavailable; reporting 0 usage")
	})
}

// query returns used and total memory in GB.
func (n *NvidiaSMI) query(ctx context.Context) (float64, float64, error) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	bin := n.Binary
	if bin == "" {
		bin = "nvidia-smi"
	}
	run := n.run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, bin,
		"--query-gpu=memory.used,memory.total",
		"--format=csv,noheader,nounits",
		"--id="+strconv.Itoa(n.GPUIndex))
	if err != nil {
		return 0, 0, err
	}
	return parseSMI(out)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return nil, fmt.Errorf("%w: %s", err, s)
		}
		return nil, err
	}
	return out, nil
}

// parseSMI parses "used, total" MiB from the first line of output.
func parseSMI(out []byte) (float64, float64, error) {
	line := strings.TrimSpace(string(out))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected nvidia-smi output: %q", line)
	}
	used, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse used: %w", err)
	}
	total, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse total: %w", err)
	}
	return used / 1024, total / 1024, nil
}
