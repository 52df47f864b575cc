package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// secretsDir - стандартный путь Docker Secrets. Переопределяется в тестах.
var secretsDir = "/run/secrets"

// ReadSecret читает обязательный секрет из файла Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := filepath.Join(secretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadOptionalSecret: файл секрета, затем переменная окружения envName, иначе пустая строка.
func ReadOptionalSecret(secretName, envName string) string {
	if secret, err := ReadSecret(secretName); err == nil {
		return secret
	}
	return strings.TrimSpace(os.Getenv(envName))
}
