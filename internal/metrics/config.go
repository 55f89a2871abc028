package metrics

import (
	"regexp"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
)

const (
	DefaultNamespace = "apcupsd"

	infoName   = "info"
	upName     = "up"
	helpPrefix = "APC UPS "
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Config struct {
	// Namespace prefixes every exported family.
	Namespace string
	// IdentityKeys are rendered as labels of the info family, always in
	// this order and present even when the daemon did not report them.
	IdentityKeys []string
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !namespacePattern.MatchString(c.Namespace) {
		return errFactory.WithData(ErrInvalidConfig, "namespace "+c.Namespace)
	}
	for _, k := range c.IdentityKeys {
		if !namespacePattern.MatchString(k) {
			return errFactory.WithData(ErrInvalidConfig, "identity key "+k)
		}
	}

	return nil
}
