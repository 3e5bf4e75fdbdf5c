package secret

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrKeyNotFound = errors.New("key not found in env file")
	ErrPlaceholder = errors.New("env value is empty or a placeholder")
	ErrInvalidKey  = errors.New("invalid env key")
)

// Placeholders are template values that must be replaced before use.
var Placeholders = []string{"your-secure-token-here", "change-me"}

var (
	envKey    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	bareValue = regexp.MustCompile(`^[A-Za-z0-9_./:@+-]*$`)
)

// ReadEnv parses the .env file at path.
func ReadEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

// Lookup returns the value of key in the .env file at path. Surrounding
// quotes are removed. Empty and placeholder values fail with ErrPlaceholder.
func Lookup(path, key string) (string, error) {
	env, err := ReadEnv(path)
	if err != nil {
		return "", err
	}
	v, ok := env[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	v = strings.TrimSpace(v)
	if v == "" || isPlaceholder(v) {
		return "", fmt.Errorf("%w: %s", ErrPlaceholder, key)
	}
	return v, nil
}

func isPlaceholder(v string) bool {
	for _, p := range Placeholders {
		if v == p {
			return true
		}
	}
	return false
}

// Upsert sets key to value in the .env file at path. Existing KEY= lines are
// rewritten in place and every other line is kept as is; a missing key is
// appended. The file is replaced atomically and left readable by its owner
// only. A missing file is created.
func Upsert(path, key, value string) error {
	if !envKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	line, err := formatLine(key, value)
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var out bytes.Buffer
	replaced := false
	if len(existing) > 0 {
		lines := strings.SplitAfter(string(existing), "\n")
		for _, l := range lines {
			if l == "" {
				continue
			}
			if strings.HasPrefix(strings.TrimSpace(l), key+"=") {
				out.WriteString(line)
				out.WriteByte('\n')
				replaced = true
				continue
			}
			out.WriteString(l)
		}
	}
	if !replaced {
		if out.Len() > 0 && !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
			out.WriteByte('\n')
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	return writeAtomic(path, out.Bytes())
}

func formatLine(key, value string) (string, error) {
	if bareValue.MatchString(value) {
		return key + "=" + value, nil
	}
	line, err := godotenv.Marshal(map[string]string{key: value})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	return line, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
