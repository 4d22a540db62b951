// Command envcheck reports whether the transcription provider's credential
// is visible to the service, without printing the credential itself.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/snarg/transcribe-api/internal/config"
)

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.Provider, "provider", "", "provider to check (overrides STT_PROVIDER)")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if !report(os.Stdout, cfg) {
		os.Exit(1)
	}
}

// report prints the credential summary and returns false when the provider
// has nothing to authenticate with.
func report(w io.Writer, cfg *config.Config) bool {
	key := cfg.APIKey()
	name := cfg.APIKeyEnv()

	fmt.Fprintf(w, "Provider:        %s\n", cfg.Provider)
	if key == "" {
		fmt.Fprintf(w, "%-16s missing\n", name+":")
		if cfg.HasCredential() {
			fmt.Fprintln(w, "Using application default credentials")
		}
		return cfg.HasCredential()
	}

	fmt.Fprintf(w, "%-16s present\n", name+":")
	fmt.Fprintf(w, "Length:          %d\n", len(key))
	fmt.Fprintf(w, "Starts with:     %s\n", mask(key))
	if cfg.Provider == config.ProviderOpenAI {
		fmt.Fprintf(w, "Project key:     %t\n", strings.HasPrefix(key, "sk-proj-"))
	}
	return true
}

// mask keeps a short prefix so keys can be told apart without exposing them.
func mask(key string) string {
	const keep = 8
	if len(key) <= keep {
		return strings.Repeat("*", len(key))
	}
	return key[:keep] + "..."
}
