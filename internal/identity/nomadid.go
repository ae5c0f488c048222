package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	nomadIDFallbackBase  = "nomad"
	nomadIDMaxBaseLength = 10
	// Numeric suffixes stop at two digits so generated ids stay within
	// twelve characters; past that the generator switches to a random
	// suffix instead of walking an unbounded sequence.
	nomadIDMaxSuffix       = 99
	nomadIDRandomSuffixLen = 6
)

var errNomadIDExhausted = errors.New("identity: nomad id suffix space exhausted")

type nomadIDGenerator struct {
	store        ProfileStore
	randomSuffix func() string
}

func newNomadIDGenerator(store ProfileStore) *nomadIDGenerator {
	return &nomadIDGenerator{
		store:        store,
		randomSuffix: uuidSuffix,
	}
}

// Generate allocates a nomad id seeded by candidateName. The returned id is
// free at the time of the check; the store's uniqueness constraint remains
// the authority at insert time.
func (g *nomadIDGenerator) Generate(ctx context.Context, candidateName string) (string, error) {
	base := normalizeNomadSeed(candidateName)

	for suffix := 0; suffix <= nomadIDMaxSuffix; suffix++ {
		candidate := base
		if suffix > 0 {
			candidate = fmt.Sprintf("%s%d", base, suffix)
		}
		taken, err := g.taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	// Pathological contention on this base; fall back to a random suffix
	// rather than walking ever-larger numbers.
	for attempt := 0; attempt < 5; attempt++ {
		candidate := randomCandidate(base, g.randomSuffix())
		taken, err := g.taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errNomadIDExhausted
}

func (g *nomadIDGenerator) taken(ctx context.Context, candidate string) (bool, error) {
	_, err := g.store.FindByField(ctx, FieldNomadID, candidate)
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// normalizeNomadSeed lower-cases the seed, strips everything outside
// [a-z0-9], and truncates it. An empty result falls back to a default base.
func normalizeNomadSeed(candidateName string) string {
	seed := candidateName
	if strings.TrimSpace(seed) == "" {
		seed = nomadIDFallbackBase
	}

	var builder strings.Builder
	for _, char := range strings.ToLower(seed) {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') {
			builder.WriteRune(char)
		}
		if builder.Len() >= nomadIDMaxBaseLength {
			break
		}
	}

	if builder.Len() == 0 {
		return nomadIDFallbackBase
	}
	return builder.String()
}

func randomCandidate(base, suffix string) string {
	trimmed := base
	if len(trimmed)+len(suffix) > nomadIDMaxBaseLength+2 {
		trimmed = trimmed[:nomadIDMaxBaseLength+2-len(suffix)]
	}
	return trimmed + suffix
}

func uuidSuffix() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:nomadIDRandomSuffixLen]
}
