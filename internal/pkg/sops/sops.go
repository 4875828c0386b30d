// Package sops decrypts SOPS-encrypted secrets files.
package sops

import (
	"context"
	"fmt"
	"path/filepath"

	"bbinflator/internal/pkg/command"
)

// Decryptor returns the plaintext of an encrypted file.
type Decryptor interface {
	Decrypt(ctx context.Context, path string) ([]byte, error)
}

// CLIDecryptor runs "sops -d" from the file's directory so that .sops.yaml
// creation rules next to it apply.
type CLIDecryptor struct {
	Binary string
}

func (d CLIDecryptor) Decrypt(ctx context.Context, path string) ([]byte, error) {
	bin := d.Binary
	if bin == "" {
		bin = "sops"
	}
	out, err := command.Run(ctx, command.Options{Dir: filepath.Dir(path)}, bin, "-d", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", path, err)
	}
	return out, nil
}
