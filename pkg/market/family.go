package market

import (
	"fmt"
	"strings"
)

// Family is a fungible-token protocol family.
type Family string

const (
	BSV20 Family = "bsv20"
	BSV21 Family = "bsv21"
)

// Families lists every supported family in a stable order.
var Families = []Family{BSV20, BSV21}

// ParseFamily accepts the route spelling of a family. "bsv20v2" is the
// legacy name for bsv21.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bsv20":
		return BSV20, nil
	case "bsv21", "bsv20v2":
		return BSV21, nil
	default:
		return "", fmt.Errorf("unsupported asset type %q", s)
	}
}

func (f Family) String() string { return string(f) }

// NormalizeKey turns a tick or id into the TokenKey used in every cache key.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Cache key layout.

func TokenKey(f Family, key string) string {
	return fmt.Sprintf("token-%s-%s", f, NormalizeKey(key))
}

func ListingsKey(f Family, key string) string {
	return fmt.Sprintf("listings-%s-%s", f, NormalizeKey(key))
}

func SalesKey(f Family, key string) string {
	return fmt.Sprintf("sales-%s-%s", f, NormalizeKey(key))
}

func SaleBodiesKey(f Family, key string) string {
	return fmt.Sprintf("sale-%s-%s", f, NormalizeKey(key))
}

func AutofillKey(f Family) string {
	return fmt.Sprintf("autofill-%s", f)
}

func IncludedKey(f Family) string {
	return fmt.Sprintf("included-%s", f)
}

func PctChangeKey(label string, f Family, key string) string {
	return fmt.Sprintf("pct-%s-%s-%s", strings.ToLower(label), f, NormalizeKey(key))
}

// UpdatedChannel is the pub/sub channel announcing canonical writes for a family.
func UpdatedChannel(f Family) string {
	return fmt.Sprintf("market:%s:updated", f)
}

// UpdatedPattern matches UpdatedChannel for every family.
const UpdatedPattern = "market:*:updated"

// FamilyFromChannel extracts the family from an UpdatedChannel name.
func FamilyFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
