// Package trust computes content checksums and stable identity hashes, and
// records per-file checksum manifests for skill packages.
package trust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// LockName is the file a manifest is stored under inside a package. It is
// never checksummed itself.
const LockName = "skill.lock.json"

// Manifest stores checksums for all files of a skill package.
type Manifest struct {
	Version   string            `json:"version"`
	Skill     string            `json:"skill,omitempty"`
	Checksums map[string]string `json:"checksums"` // file path -> "sha256:<hex>"
}

// IntegrityViolation describes a checksum mismatch or missing entry.
type IntegrityViolation struct {
	Path     string `json:"path"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Reason   string `json:"reason"` // "mismatch", "missing_in_manifest", "missing_in_package", "content_unavailable"
}

// ComputeChecksum returns the SHA-256 checksum of content as "sha256:<hex>".
func ComputeChecksum(content []byte) string {
	h := sha256.Sum256(content)
	return fmt.Sprintf("sha256:%x", h)
}

// VerifyChecksum checks whether content matches the expected checksum string.
func VerifyChecksum(content []byte, expected string) bool {
	return ComputeChecksum(content) == expected
}

// Fingerprint returns the hex SHA-256 of the parts joined by ":".
func Fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h[:])
}

// ShortHash returns the first 8 hex characters of the SHA-256 of v's
// canonical JSON encoding. Map keys are sorted by encoding/json.
func ShortHash(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprint(v))
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:4])
}

// GenerateManifest checksums every text file of the package.
func GenerateManifest(ctx context.Context, repo contract.Repository, skill string) (*Manifest, error) {
	files, err := repo.ListFiles(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	m := &Manifest{
		Version:   "1",
		Skill:     skill,
		Checksums: make(map[string]string, len(files)),
	}
	for _, f := range files {
		if f.ContentType == contract.ContentBinary || f.Path == LockName {
			continue
		}
		content, err := repo.ReadText(ctx, f.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", f.Path, err)
		}
		m.Checksums[f.Path] = ComputeChecksum([]byte(content))
	}
	return m, nil
}

// VerifyManifest checks every package file against the manifest.
// It returns a list of violations (empty if everything matches).
func VerifyManifest(ctx context.Context, repo contract.Repository, manifest *Manifest) []IntegrityViolation {
	var violations []IntegrityViolation

	files, err := repo.ListFiles(ctx, "")
	if err != nil {
		return []IntegrityViolation{{Reason: "package_error"}}
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		if f.ContentType == contract.ContentBinary || f.Path == LockName {
			continue
		}
		present[f.Path] = true

		expected, inManifest := manifest.Checksums[f.Path]
		if !inManifest {
			violations = append(violations, IntegrityViolation{
				Path:   f.Path,
				Reason: "missing_in_manifest",
			})
			continue
		}

		content, err := repo.ReadText(ctx, f.Path)
		if err != nil {
			violations = append(violations, IntegrityViolation{
				Path:     f.Path,
				Expected: expected,
				Reason:   "content_unavailable",
			})
			continue
		}

		actual := ComputeChecksum([]byte(content))
		if actual != expected {
			violations = append(violations, IntegrityViolation{
				Path:     f.Path,
				Expected: expected,
				Actual:   actual,
				Reason:   "mismatch",
			})
		}
	}

	// Check for entries in manifest not in the package
	var missing []string
	for p := range manifest.Checksums {
		if !present[p] {
			missing = append(missing, p)
		}
	}
	sort.Strings(missing)
	for _, p := range missing {
		violations = append(violations, IntegrityViolation{
			Path:     p,
			Expected: manifest.Checksums[p],
			Reason:   "missing_in_package",
		})
	}

	return violations
}

// String renders the violation as a one-line warning.
func (v IntegrityViolation) String() string {
	if v.Path == "" {
		return "integrity: " + v.Reason
	}
	return fmt.Sprintf("integrity: %s %s", v.Path, v.Reason)
}

// ReadLock loads the package's lock manifest. It returns nil without error
// when the package has none.
func ReadLock(ctx context.Context, repo contract.Repository) (*Manifest, error) {
	files, err := repo.ListFiles(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	for _, f := range files {
		if f.Path != LockName {
			continue
		}
		data, err := repo.ReadText(ctx, LockName)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", LockName, err)
		}
		m, err := UnmarshalManifest([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", LockName, err)
		}
		return m, nil
	}
	return nil, nil
}

// MarshalManifest serializes a manifest to JSON.
func MarshalManifest(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalManifest deserializes a manifest from JSON.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Checksums == nil {
		m.Checksums = map[string]string{}
	}
	return &m, nil
}
