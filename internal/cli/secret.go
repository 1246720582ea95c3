package cli

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// EncryptSecret encrypts plaintext with an age scrypt passphrase and returns
// the ASCII-armored ciphertext, safe to store in a copy's file map.
func EncryptSecret(plaintext []byte, passphrase string) (string, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return "", fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)
	encWriter, err := age.Encrypt(armorWriter, recipient)
	if err != nil {
		return "", fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := encWriter.Write(plaintext); err != nil {
		return "", fmt.Errorf("encrypting secret: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.String(), nil
}

// DecryptSecret reverses EncryptSecret given the same passphrase.
func DecryptSecret(armored string, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	armorReader := armor.NewReader(bytes.NewReader([]byte(armored)))
	decReader, err := age.Decrypt(armorReader, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret: %w", err)
	}
	plaintext, err := io.ReadAll(decReader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted secret: %w", err)
	}
	return plaintext, nil
}
