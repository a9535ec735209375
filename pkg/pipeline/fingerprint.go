package pipeline

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// Hex-encoded 64-bit fingerprints, matching what the catalog stores and
// what the duplicate grouper parses back.

func perceptionHashHex(img image.Image) (string, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

func averageHashHex(img image.Image) (string, error) {
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

func differenceHashHex(img image.Image) (string, error) {
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}
