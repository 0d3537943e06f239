package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jward/docgap/internal/model"
)

// Fingerprint returns the hex sha256 of file content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FingerprintFile reads path and fingerprints its bytes.
func FingerprintFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return Fingerprint(b), nil
}

// SignatureHash computes a deterministic hash from an entity's semantic
// identity: name, kind, visibility, params, return, raises, attributes and
// existing documentation. Location changes do NOT affect the hash.
func SignatureHash(e model.Entity) string {
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", e.QualifiedName)
	fmt.Fprintf(h, "kind:%s\n", e.Kind)
	fmt.Fprintf(h, "language:%s\n", e.Language)
	fmt.Fprintf(h, "visibility:%s\n", e.Visibility)

	// Params keep declaration order.
	for i, p := range e.Signature.Params {
		fmt.Fprintf(h, "param:%d:%s:%s:%v:%v\n", i, p.Name, p.Type, p.HasDefault, p.Variadic)
	}
	fmt.Fprintf(h, "return:%s:%v\n", e.Signature.ReturnType, e.Signature.HasReturn)

	// Raises and attributes are sets; sort for determinism.
	fmt.Fprintf(h, "raises:%s\n", strings.Join(sortedCopy(e.Raises), ","))
	fmt.Fprintf(h, "attributes:%s\n", strings.Join(sortedCopy(e.Attributes), ","))

	if e.Doc != nil {
		fmt.Fprintf(h, "doc:%s\n", e.Doc.Raw)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// GapFingerprint keys the generation cache. Any change to the entity's
// signature, the gap type, the documentation style or the model settings
// produces a new key.
func GapFingerprint(signatureHash string, gap model.GapType, style, modelName string, temperature float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "signature:%s\n", signatureHash)
	fmt.Fprintf(h, "gap:%s\n", gap)
	fmt.Fprintf(h, "style:%s\n", style)
	fmt.Fprintf(h, "model:%s\n", modelName)
	fmt.Fprintf(h, "temperature:%s\n", strconv.FormatFloat(temperature, 'f', -1, 64))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
