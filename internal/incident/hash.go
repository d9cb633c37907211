package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ComputeHash derives the incident fingerprint: a sha256 hex digest over a
// canonical serialization of the immutable content fields only. Verification
// state is deliberately excluded so the digest stays stable across status
// transitions and comparable against the value anchored on the ledger.
//
// The serialization is versioned; changing field order or format would break
// comparability with already-anchored records.
func ComputeHash(i Incident) (string, error) {
	if i.ReporterID == "" || i.Title == "" {
		return "", fmt.Errorf("incident %s: hash input missing reporter or title", i.ID)
	}
	if !i.Category.Valid() {
		return "", fmt.Errorf("incident %s: hash input has invalid category %q", i.ID, i.Category)
	}
	if i.CreatedAt.IsZero() {
		return "", fmt.Errorf("incident %s: hash input missing creation time", i.ID)
	}

	fields := []string{
		"v1",
		i.ReporterID,
		string(i.Category),
		i.Title,
		i.Description,
		i.Location.Address,
		strconv.FormatInt(i.CreatedAt.UTC().UnixNano(), 10),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:]), nil
}
