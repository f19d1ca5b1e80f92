package hashing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashBytes(t *testing.T) {
	hash, size, err := HashBytes([]byte("hello world"))
	if err != nil {
		t.Fatalf("HashBytes() error = %v", err)
	}
	if size != 11 {
		t.Errorf("size = %d, want 11", size)
	}
	if !strings.HasPrefix(hash, "blake3:") {
		t.Errorf("hash = %q, want blake3: prefix", hash)
	}
	if err := Validate(hash); err != nil {
		t.Errorf("Validate(%q) error = %v", hash, err)
	}

	again, _, err := HashBytes([]byte("hello world"))
	if err != nil {
		t.Fatalf("second HashBytes() error = %v", err)
	}
	if again != hash {
		t.Errorf("hash not deterministic: %q != %q", again, hash)
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content.bin")
	content := strings.Repeat("asset-registry-content-", 1000)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	hash, size, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	wantHash, _, _ := HashBytes([]byte(content))
	if hash != wantHash {
		t.Errorf("HashFile hash = %q, want %q", hash, wantHash)
	}
}

func TestHashFileMissing(t *testing.T) {
	_, _, err := HashFile(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("HashFile() on a missing file returned nil error")
	}
}

func TestHashSeekerRestoresOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seek.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening fixture: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(4, 0); err != nil {
		t.Fatalf("seeking: %v", err)
	}
	if _, _, err := HashSeeker(f); err != nil {
		t.Fatalf("HashSeeker() error = %v", err)
	}
	pos, err := f.Seek(0, 1)
	if err != nil {
		t.Fatalf("checking offset: %v", err)
	}
	if pos != 4 {
		t.Errorf("offset after HashSeeker = %d, want 4 (restored)", pos)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "blake3:" + strings.Repeat("a", 64), false},
		{"missing prefix", strings.Repeat("a", 64), true},
		{"wrong length", "blake3:abcd", true},
		{"uppercase hex", "blake3:" + strings.Repeat("A", 64), true},
		{"non hex", "blake3:" + strings.Repeat("g", 64), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
