package auth

import (
	"context"
	"fmt"
	"os"

	"github.com/1password/onepassword-sdk-go"
)

const (
	// EnvBoxToken is the Vagrant Cloud token variable vagrant itself reads
	EnvBoxToken = "VAGRANT_CLOUD_TOKEN"
	// EnvOnePasswordToken enables the 1Password lookup
	EnvOnePasswordToken = "OP_SERVICE_ACCOUNT_TOKEN"
)

// BoxToken is a resolved Vagrant Cloud token
type BoxToken struct {
	Token  string
	Source string // For debugging: "cli", "env", "1password"
}

// secretResolver is the part of the 1Password client we use
type secretResolver func(ctx context.Context, serviceAccountToken, secretRef string) (string, error)

// ResolveBoxToken resolves the token used to download private boxes, using
// this priority chain:
// 1. CLI flag (highest priority)
// 2. VAGRANT_CLOUD_TOKEN
// 3. 1Password (if OP_SERVICE_ACCOUNT_TOKEN is set and a secret reference is configured)
//
// Public boxes need no token, so finding none is not an error: it returns nil.
func ResolveBoxToken(ctx context.Context, cliToken, secretRef string) (*BoxToken, error) {
	return resolveBoxToken(ctx, cliToken, secretRef, resolveFrom1Password)
}

func resolveBoxToken(ctx context.Context, cliToken, secretRef string, resolve secretResolver) (*BoxToken, error) {
	// Priority 1: CLI flag
	if cliToken != "" {
		return &BoxToken{Token: cliToken, Source: "cli"}, nil
	}

	// Priority 2: Environment variable
	if token := os.Getenv(EnvBoxToken); token != "" {
		return &BoxToken{Token: token, Source: "env"}, nil
	}

	// Priority 3: 1Password
	if opToken := os.Getenv(EnvOnePasswordToken); opToken != "" && secretRef != "" {
		token, err := resolve(ctx, opToken, secretRef)
		if err != nil {
			return nil, err
		}
		return &BoxToken{Token: token, Source: "1password"}, nil
	}

	return nil, nil
}

// resolveFrom1Password retrieves the token from 1Password using the SDK
func resolveFrom1Password(ctx context.Context, serviceAccountToken, secretRef string) (string, error) {
	client, err := onepassword.NewClient(
		ctx,
		onepassword.WithServiceAccountToken(serviceAccountToken),
		onepassword.WithIntegrationInfo("Boxwright Vagrant Cloud Auth", "v1.0.0"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create 1Password client: %w", err)
	}

	token, err := client.Secrets().Resolve(ctx, secretRef)
	if err != nil {
		return "", fmt.Errorf("failed to resolve 1Password secret '%s': %w", secretRef, err)
	}
	return token, nil
}
