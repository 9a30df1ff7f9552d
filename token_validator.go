package accounts

// TokenValidator verifies a raw session token and maps it into claims. The
// gate, the JWT middleware, and the session helpers all consume this
// interface so deployments can swap signing backends without touching them.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a plain function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrUnableToDecodeSession
	}
	return f(tokenString)
}

// MultiTokenValidator runs a chain of validators, useful during signing key
// rotation when tokens issued under the previous key are still in flight.
// A malformed result moves on to the next validator; any other failure,
// expiry included, ends the chain since a later key cannot fix it.
type MultiTokenValidator struct {
	chain []TokenValidator
}

// NewMultiTokenValidator builds the chain, skipping nil entries.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	chain := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v == nil {
			continue
		}
		chain = append(chain, v)
	}
	return &MultiTokenValidator{chain: chain}
}

func (m *MultiTokenValidator) Validate(tokenString string) (AuthClaims, error) {
	var lastMalformed error

	for _, v := range m.chain {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if !IsMalformedError(err) {
			return nil, err
		}
		lastMalformed = err
	}

	if lastMalformed != nil {
		return nil, lastMalformed
	}
	return nil, ErrTokenMalformed
}
