package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeToken(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write token file: %v", err)
	}
	return path
}

func TestLoadCredentials_InlineToken(t *testing.T) {
	creds, err := LoadCredentials("  abc123  ", "/does/not/exist")
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.Token() != "abc123" {
		t.Errorf("Token() = %q, want %q", creds.Token(), "abc123")
	}
	if creds.Source != "config" {
		t.Errorf("Source = %q, want %q", creds.Source, "config")
	}
}

func TestLoadCredentials_TokenFile(t *testing.T) {
	path := writeToken(t, "file-token\n")

	creds, err := LoadCredentials("", path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.Token() != "file-token" {
		t.Errorf("Token() = %q, want %q", creds.Token(), "file-token")
	}
	if creds.Source != path {
		t.Errorf("Source = %q, want %q", creds.Source, path)
	}
}

func TestLoadCredentials_Errors(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		path    func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "nothing configured",
			path:    func(t *testing.T) string { return "" },
			wantErr: ErrNoCredentials,
		},
		{
			name:    "empty file",
			path:    func(t *testing.T) string { return writeToken(t, " \n\t") },
			wantErr: ErrEmptyToken,
		},
		{
			name:    "bearer prefix only",
			path:    func(t *testing.T) string { return writeToken(t, "Bearer  ") },
			wantErr: ErrEmptyToken,
		},
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
			wantErr: os.ErrNotExist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCredentials(tt.token, tt.path(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadCredentials error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadToken_StripsBearerPrefix(t *testing.T) {
	path := writeToken(t, "Bearer xyz\n")

	token, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "xyz" {
		t.Errorf("LoadToken = %q, want %q", token, "xyz")
	}
}

func TestCredentials_Header(t *testing.T) {
	creds, _ := LoadCredentials("tok", "")
	if got := creds.Header()["Authorization"]; got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}

	var nilCreds *Credentials
	if len(nilCreds.Header()) != 0 {
		t.Error("nil credentials should produce no headers")
	}
}

func TestCredentials_String(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"short", "****"},
		{"abcdefghijkl", "abcd****ijkl"},
	}
	for _, tt := range tests {
		creds := &Credentials{token: tt.token}
		if got := creds.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
