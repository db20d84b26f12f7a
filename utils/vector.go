package utils

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector packs float32 values as little-endian IEEE 754 words.
// The length is derived from the blob size on decode.
func EncodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector reverses EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// CosineDistance returns 1 - cos(a, b). Vectors of different length or with zero
// magnitude have no defined angle and report an error.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine distance dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cosine distance on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("cosine distance with zero-magnitude vector")
	}
	return 1 - dot/(math.Sqrt(na2)*math.Sqrt(nb2)), nil
}

// SimilarityFromDistance converts a cosine distance into a score clamped to [0, 1].
func SimilarityFromDistance(distance float64) float64 {
	s := 1 - distance
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
