// Package pgp validates recipient keys and encrypts content for them.
package pgp

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

var ErrNoKey = errors.New("pgp: no public key")

// ReadKey parses an armored public key block.
func ReadKey(armored string) (openpgp.EntityList, error) {
	if strings.TrimSpace(armored) == "" {
		return nil, ErrNoKey
	}
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(entities) == 0 {
		return nil, ErrNoKey
	}
	return entities, nil
}

// IsValidKey reports whether armored contains at least one usable key.
func IsValidKey(armored string) bool {
	_, err := ReadKey(armored)
	return err == nil
}

// Encrypt returns plaintext as an armored PGP message for armoredKey.
func Encrypt(armoredKey, plaintext string) (string, error) {
	entities, err := ReadKey(armoredKey)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	if err != nil {
		return "", fmt.Errorf("creating armor writer: %w", err)
	}

	encWriter, err := openpgp.Encrypt(armorWriter, entities, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("creating encrypt writer: %w", err)
	}

	if _, err := encWriter.Write([]byte(plaintext)); err != nil {
		return "", fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return "", fmt.Errorf("closing encrypt writer: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("closing armor writer: %w", err)
	}

	return buf.String(), nil
}
