package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"asistan/internal/common/fsutil"
	"asistan/pkg/types"
)

var quantPattern = regexp.MustCompile(`(?i)(?:^|[.\-_])((?:I?Q\d+(?:_[A-Z0-9]+)*)|F16|F32|BF16)(?:\.gguf)?$`)

// ScanGGUF lists *.gguf files in dir. ID is the filename without extension
// and Path the absolute file path.
func ScanGGUF(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := types.Model{
			ID:      name[:len(name)-len(".gguf")],
			Backend: "llama",
			Path:    filepath.Join(abs, name),
		}
		if q := quantPattern.FindStringSubmatch(name); q != nil {
			m.Quant = strings.ToUpper(q[1])
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}
