// internal/browser/artifacts.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const screenshotTimeout = 15 * time.Second

// Artifacts writes diagnostic screenshots. Capturing is best effort: failures
// are logged and never returned to the caller.
type Artifacts struct {
	dir    string
	logger *zap.Logger
}

// NewArtifacts creates an Artifacts writer rooted at dir.
func NewArtifacts(dir string, logger *zap.Logger) *Artifacts {
	return &Artifacts{dir: dir, logger: logger.Named("artifacts")}
}

// Capture saves a full-page screenshot of page as <dir>/<name>.png and returns
// the path, or "" if anything went wrong.
func (a *Artifacts) Capture(ctx context.Context, page Page, name string) string {
	if a == nil || page == nil {
		return ""
	}

	// The page may be the reason ctx expired, so bound the capture on its own.
	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	buf, err := page.Screenshot(capCtx)
	if err != nil {
		a.logger.Warn("Failed to capture screenshot.", zap.String("name", name), zap.Error(err))
		return ""
	}

	path, err := a.write(name, buf)
	if err != nil {
		a.logger.Warn("Failed to save screenshot.", zap.String("name", name), zap.Error(err))
		return ""
	}
	a.logger.Info("Screenshot saved.", zap.String("path", path))
	return path
}

func (a *Artifacts) write(name string, buf []byte) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	path := filepath.Join(a.dir, name+".png")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
