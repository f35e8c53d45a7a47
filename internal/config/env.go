package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides a variable that is already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	if envPath, ok := findEnvFile(); ok {
		godotenv.Load(envPath)
	}
}

// findEnvFile walks up from the working directory looking for .cgraph/.env
func findEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}

	for {
		candidate := filepath.Join(dir, ".cgraph", ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
