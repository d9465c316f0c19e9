package provider

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cespare/xxhash/v2"

	"github.com/helixml/vectable/domain/embedding"
)

// DefaultHashDimension is the vector size of the hash function.
const DefaultHashDimension = 64

// HashFunction is a deterministic bag-of-words embedder. Each lower-cased
// token is hashed into one of dim buckets with a hash-derived sign, and the
// result is L2-normalized. Texts sharing words land close under cosine
// distance. It needs no model or network and is meant for tests and offline use.
type HashFunction struct {
	dimension int
	seed      uint64
}

// NewHashFunction creates a hash embedder. A non-positive dimension selects
// DefaultHashDimension.
func NewHashFunction(dimension int, seed uint64) *HashFunction {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashFunction{dimension: dimension, seed: seed}
}

// SourceType returns Utf8.
func (h *HashFunction) SourceType() arrow.DataType { return arrow.BinaryTypes.String }

// DestType returns the configured vector type for string sources.
func (h *HashFunction) DestType(source arrow.DataType) (embedding.VectorType, error) {
	if err := textDestType(source, h.dimension); err != nil {
		return embedding.VectorType{}, fmt.Errorf("hash: %w", err)
	}
	return embedding.NewVectorType(h.dimension), nil
}

// ComputeSourceEmbeddings embeds every row of source.
func (h *HashFunction) ComputeSourceEmbeddings(ctx context.Context, source arrow.Array) ([][]float32, error) {
	values, err := texts(source)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(values))
	for i, text := range values {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

// ComputeQueryEmbeddings embeds a single text query.
func (h *HashFunction) ComputeQueryEmbeddings(ctx context.Context, query any) ([]float32, error) {
	text, err := queryText(query)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

func (h *HashFunction) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], h.seed)

	for _, token := range tokenize(text) {
		d := xxhash.New()
		_, _ = d.Write(seed[:])
		_, _ = d.WriteString(token)
		sum := d.Sum64()

		bucket := sum % uint64(h.dimension)
		if sum&(1<<63) != 0 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// HashFactory returns a factory reading the definition params "dim" and "seed".
func HashFactory() embedding.Factory {
	return embedding.FactoryFunc(func(params embedding.Params) (embedding.Function, error) {
		dim := params.GetInt("dim", DefaultHashDimension)
		if dim <= 0 {
			return nil, fmt.Errorf("hash: %w: %d", ErrUnknownDimension, dim)
		}
		return NewHashFunction(dim, uint64(params.GetInt("seed", 0))), nil
	})
}

var _ embedding.Function = (*HashFunction)(nil)
