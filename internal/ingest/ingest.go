// Package ingest turns files on disk into memory items: content hashing
// for idempotent re-ingestion, paragraph-bounded chunking, and a pluggable
// extractor dispatch for non-text formats (spec.md section 4.6).
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memctl/memctl/internal/memory"
)

// Chunk is one paragraph-bounded slice of a source file.
type Chunk struct {
	Seq     int
	Text    string
	Title   string
	EntName string
}

const softMaxChars = 2000

// Extractor turns raw file bytes into plain text. Registered per
// extension; a file whose extension has no registered extractor surfaces
// a clear error rather than being silently skipped (spec.md section 4.6).
type Extractor func(raw []byte) (string, error)

var extractors = map[string]Extractor{
	".txt":      plainTextExtractor,
	".md":       plainTextExtractor,
	".markdown": plainTextExtractor,
	".go":       plainTextExtractor,
	".py":       plainTextExtractor,
	".js":       plainTextExtractor,
	".ts":       plainTextExtractor,
	".json":     plainTextExtractor,
	".yaml":     plainTextExtractor,
	".yml":      plainTextExtractor,
}

// RegisterExtractor adds or overrides the extractor used for an
// extension (lowercase, with leading dot).
func RegisterExtractor(ext string, fn Extractor) {
	extractors[strings.ToLower(ext)] = fn
}

func plainTextExtractor(raw []byte) (string, error) {
	return string(raw), nil
}

// ExtractFile reads path and returns its plain-text content, using the
// extractor registered for its extension.
func ExtractFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("no extractor registered for extension %q (file %s)", ext, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return fn(raw)
}

// SHA256Hex returns the lowercase-hex SHA-256 digest of content, the
// value stored in corpus_hashes.sha256 for idempotent re-ingestion.
func SHA256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ChunkParagraphs splits text on blank lines into paragraph chunks,
// greedily packing consecutive short paragraphs together up to
// softMaxChars and splitting any paragraph that alone exceeds it at the
// nearest preceding newline.
func ChunkParagraphs(text string) []Chunk {
	paras := splitParagraphs(text)
	var chunks []Chunk
	var buf strings.Builder
	seq := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Seq: seq, Text: strings.TrimSpace(buf.String())})
		seq++
		buf.Reset()
	}

	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) > softMaxChars {
			flush()
			for _, part := range splitOversized(p, softMaxChars) {
				chunks = append(chunks, Chunk{Seq: seq, Text: part})
				seq++
			}
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(p)+2 > softMaxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	flush()
	if len(chunks) == 0 && strings.TrimSpace(text) != "" {
		chunks = append(chunks, Chunk{Seq: 0, Text: strings.TrimSpace(text)})
	}
	return chunks
}

func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(normalized, "\n\n")
}

// splitOversized breaks a single paragraph larger than max into
// line-boundary-respecting pieces of at most max characters.
func splitOversized(p string, max int) []string {
	lines := strings.Split(p, "\n")
	var out []string
	var buf strings.Builder
	for _, line := range lines {
		if buf.Len() > 0 && buf.Len()+len(line)+1 > max {
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
	}
	if buf.Len() > 0 {
		out = append(out, strings.TrimSpace(buf.String()))
	}
	return out
}

// InferTitle takes the first non-empty line of a chunk (truncated) as a
// human-scannable title when the caller hasn't supplied one.
func InferTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#-* "))
		if line != "" {
			if len(line) > 80 {
				return line[:80]
			}
			return line
		}
	}
	return ""
}

// BuildProposal assembles a memory.Proposal for one ingested chunk,
// stamping provenance back to the originating file and chunk sequence.
func BuildProposal(chunk Chunk, sourcePath string, tags []string, scope string) memory.Proposal {
	return memory.Proposal{
		Type:    "note",
		Title:   InferTitle(chunk.Text),
		Content: chunk.Text,
		Tags:    tags,
		WhyStore: "ingested from mounted corpus file",
		ProvenanceHint: memory.Provenance{
			SourceKind: "file",
			SourceID:   sourcePath,
			ChunkIDs:   []string{fmt.Sprintf("%d", chunk.Seq)},
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		},
		Scope: scope,
	}
}
