package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"towncrier/internal/post"
	"towncrier/pkg/logging"
)

// Store writes one archive record per composed post, regardless of publish
// outcome. Records are plain files meant to be read by humans: a JSON
// document with the full record and a .txt companion with the rendered body.
type Store struct {
	dir    string
	logger logging.Logger
}

func NewStore(dir string, logger logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the archive directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists p and returns the path of the JSON record. Each post gets a
// unique filename; an existing file of the same name gets a uuid suffix so
// records are never overwritten.
func (s *Store) Save(p post.Post) (string, error) {
	stamp := p.CreatedAt.Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", p.Platform, stamp)

	jsonPath := filepath.Join(s.dir, base+".json")
	if _, err := os.Stat(jsonPath); err == nil {
		base = fmt.Sprintf("%s_%s", base, uuid.NewString()[:8])
		jsonPath = filepath.Join(s.dir, base+".json")
	}

	payload, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode archive record: %w", err)
	}
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		return "", fmt.Errorf("write archive record: %w", err)
	}

	textPath := filepath.Join(s.dir, base+".txt")
	if err := os.WriteFile(textPath, []byte(renderText(p)), 0o644); err != nil {
		return "", fmt.Errorf("write archive text: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"platform": string(p.Platform),
		"path":     jsonPath,
		"chars":    p.CharacterCount,
	}).Info("Post archived")

	return jsonPath, nil
}

func renderText(p post.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", p.Title)
	fmt.Fprintf(&b, "TOPIC: %s\n", p.Topic)
	fmt.Fprintf(&b, "PLATFORM: %s\n", p.Platform)
	fmt.Fprintf(&b, "GENERATED: %s\n", p.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "LENGTH: %d characters\n", p.CharacterCount)
	fmt.Fprintf(&b, "STATUS: %s\n", p.Status)
	b.WriteString("\n" + strings.Repeat("=", 70) + "\n\n")
	b.WriteString(p.Body)
	b.WriteString("\n")
	return b.String()
}
