package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// Report holds the fragments of two object documents that differ.
type Report struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// Objects compares two object documents. It reports whether they match and,
// when they do not, a Report pruned to the differing fields.
func Objects(before, after map[string]any) (bool, *Report, error) {
	beforeHash, err := hashObject(before)
	if err != nil {
		return false, nil, err
	}
	afterHash, err := hashObject(after)
	if err != nil {
		return false, nil, err
	}

	report := &Report{
		Before: make(map[string]any),
		After:  make(map[string]any),
	}
	if beforeHash == afterHash {
		return true, report, nil
	}

	prune(report.Before, report.After, before, after)
	return false, report, nil
}

// prune copies only the differing entries of b and a into bOut and aOut,
// descending into nested maps so unchanged siblings stay out of the report.
func prune(bOut, aOut, b, a map[string]any) {
	for k, bv := range b {
		av, found := a[k]
		if !found {
			bOut[k] = bv
			continue
		}

		bm, bIsMap := bv.(map[string]any)
		am, aIsMap := av.(map[string]any)
		if bIsMap && aIsMap {
			bSub := make(map[string]any)
			aSub := make(map[string]any)
			prune(bSub, aSub, bm, am)
			if len(bSub) > 0 || len(aSub) > 0 {
				bOut[k] = bSub
				aOut[k] = aSub
			}
			continue
		}

		if !reflect.DeepEqual(bv, av) {
			bOut[k] = bv
			aOut[k] = av
		}
	}

	for k, av := range a {
		if _, found := b[k]; !found {
			aOut[k] = av
		}
	}
}

// hashObject produces a stable hash for arbitrary JSON data.
func hashObject(obj map[string]any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("unable to serialize object for comparison: %w", err)
	}

	canonical, err := jsoncanonicalizer.Transform(data)
	if err != nil {
		return "", fmt.Errorf("unable to canonicalize object for comparison: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
