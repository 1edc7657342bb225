// Package experiment assigns users to A/B groups and keeps the assignment stable.
package experiment

import (
	"crypto/sha256"
	"encoding/binary"

	"task-tracker-api/internal/models"
)

// Bucket deterministically places userID in treatment or control. The last
// four bytes of SHA-256(userID), read big-endian, modulo 100 are compared with
// ratio, which is clamped to [0,100].
func Bucket(userID string, ratio int) (models.ExperimentGroup, uint32) {
	sum := sha256.Sum256([]byte(userID))
	h := binary.BigEndian.Uint32(sum[len(sum)-4:])
	if int(h%100) < ClampRatio(ratio) {
		return models.GroupTreatment, h
	}
	return models.GroupControl, h
}

func ClampRatio(ratio int) int {
	switch {
	case ratio < 0:
		return 0
	case ratio > 100:
		return 100
	}
	return ratio
}
