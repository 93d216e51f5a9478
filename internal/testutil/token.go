package testutil

// FixedTokenGenerator generates the same subscription token every time.
//
// This enables deterministic test execution: a watched query under a
// FixedTokenGenerator produces byte-identical emissions run after run.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a new fixed token generator.
//
// If token is empty, Generate() returns "test-sub-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-sub-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
//
// Implements runtime.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
