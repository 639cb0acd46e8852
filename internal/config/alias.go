package config

import "fmt"

// AliasMode controls whether users may register additional usernames.
type AliasMode string

const (
	AliasAlways  AliasMode = "always"
	AliasPremium AliasMode = "premium"
	AliasNever   AliasMode = "never"
)

func ParseAliasMode(s string) (AliasMode, error) {
	switch m := AliasMode(s); m {
	case AliasAlways, AliasPremium, AliasNever:
		return m, nil
	}
	return "", &ConfigParseError{Msg: fmt.Sprintf("Not a valid value for AliasMode: %q", s)}
}

func (m *AliasMode) UnmarshalText(b []byte) error {
	v, err := ParseAliasMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
