// Package util provides shared utility functions.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an executable by name.
// Search order:
//  1. configured (an explicit path from configuration)
//  2. the envVar environment variable, when set
//  3. ./name
//  4. name on PATH
func FindBinary(name, configured, envVar string) (string, error) {
	if configured != "" {
		if IsExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("configured %s binary %q is not executable", name, configured)
	}

	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && IsExecutable(envPath) {
			return envPath, nil
		}
	}

	localPath := "./" + name
	if IsExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// IsExecutable reports whether path is a regular file with an execute bit set.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
