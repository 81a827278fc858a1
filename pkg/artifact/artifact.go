package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Artifact represents an immutable, versioned generation output from a provider.
type Artifact struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Content   string            `json:"content"`
	Provider  string            `json:"provider"`
	Model     string            `json:"model"`
	Prompt    string            `json:"prompt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Hash      string            `json:"hash"`
}

// New creates a new Artifact with computed hash.
func New(content, provider, model, prompt string) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Version:   1,
		Content:   content,
		Provider:  provider,
		Model:     model,
		Prompt:    prompt,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// NewVersion creates the next version of an artifact with updated content.
// The ID is preserved so a repair chain stays addressable as one lineage.
func (a *Artifact) NewVersion(content string) *Artifact {
	next := &Artifact{
		ID:        a.ID,
		Version:   a.Version + 1,
		Content:   content,
		Provider:  a.Provider,
		Model:     a.Model,
		Prompt:    a.Prompt,
		Metadata:  copyMetadata(a.Metadata),
		CreatedAt: time.Now().UTC(),
	}
	next.Hash = next.computeHash()
	return next
}

// WithMetadata returns a copy of the artifact with additional metadata.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	next := &Artifact{
		ID:        a.ID,
		Version:   a.Version,
		Content:   a.Content,
		Provider:  a.Provider,
		Model:     a.Model,
		Prompt:    a.Prompt,
		Metadata:  copyMetadata(a.Metadata),
		CreatedAt: a.CreatedAt,
		Hash:      a.Hash,
	}
	next.Metadata[key] = value
	return next
}

// HashContent returns the sha256 hex digest of arbitrary content,
// truncated to 16 characters to match artifact hashes.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

func (a *Artifact) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.Content))
	h.Write([]byte(a.Provider))
	h.Write([]byte(a.Model))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func copyMetadata(m map[string]string) map[string]string {
	copied := make(map[string]string, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}
