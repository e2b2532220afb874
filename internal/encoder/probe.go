package encoder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sharetube/studio/internal/fault"
)

var requiredEncoders = []string{"libx264", "aac"}

var probed sync.Map

// Probe checks once per binary that the encoder lists every codec the pipeline uses.
func Probe(ctx context.Context, bin string) error {
	if _, ok := probed.Load(bin); ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-encoders").Output()
	if err != nil {
		return fault.Wrap(fault.WithMessage(ErrCodecUnavailable, "failed to list encoders"), err)
	}

	if missing := missingEncoders(out); len(missing) > 0 {
		return fault.WithMessage(ErrCodecUnavailable,
			fmt.Sprintf("%s lacks encoders: %s", bin, strings.Join(missing, ", ")))
	}

	probed.Store(bin, struct{}{})
	return nil
}

// missingEncoders parses `-encoders` output, where each codec line is
// " V....D libx264   description".
func missingEncoders(out []byte) []string {
	have := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 {
			have[fields[1]] = true
		}
	}

	var missing []string
	for _, name := range requiredEncoders {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
