package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "CAPTIONER_PASSPHRASE"
)

// FileStore keeps keys in an AES-GCM encrypted JSON file. The passphrase
// comes from CAPTIONER_PASSPHRASE or a generated .passphrase file next to it.
type FileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

type fileEnvelope struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewFileStore creates a FileStore at path
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(filepath.Join(dir, ".passphrase"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &FileStore{path: path, passphrase: passphrase}, nil
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) Set(key *Key) error {
	if key == nil || key.Provider == "" {
		return ErrInvalidKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, salt, err := f.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load existing keys: %w", err)
	}
	if all == nil {
		all = make(map[string]Key)
	}
	all[key.Provider] = *key
	return f.save(all, salt)
}

func (f *FileStore) Get(provider string) (*Key, error) {
	if provider == "" {
		return nil, ErrInvalidKey
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	all, _, err := f.load()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	key, ok := all[provider]
	if !ok {
		return nil, ErrNotFound
	}
	return &key, nil
}

func (f *FileStore) List() ([]*Key, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	all, _, err := f.load()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]*Key, 0, len(all))
	for _, key := range all {
		k := key
		out = append(out, &k)
	}
	return out, nil
}

func (f *FileStore) Delete(provider string) error {
	if provider == "" {
		return ErrInvalidKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	all, salt, err := f.load()
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, ok := all[provider]; !ok {
		return ErrNotFound
	}
	delete(all, provider)

	if len(all) == 0 {
		return os.Remove(f.path)
	}
	return f.save(all, salt)
}

// load decrypts the file. The returned salt is reused on the next save.
func (f *FileStore) load() (map[string]Key, []byte, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return nil, nil, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode key file: %w", err)
	}

	plain, err := decrypt(sealed, f.derive(salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt key file: %w", err)
	}

	var all map[string]Key
	if err := json.Unmarshal(plain, &all); err != nil {
		return nil, nil, fmt.Errorf("failed to parse keys: %w", err)
	}
	return all, salt, nil
}

func (f *FileStore) save(all map[string]Key, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal keys: %w", err)
	}
	sealed, err := encrypt(plain, f.derive(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt keys: %w", err)
	}

	content, err := json.MarshalIndent(fileEnvelope{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   1,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) derive(salt []byte) []byte {
	return pbkdf2.Key([]byte(f.passphrase), salt, iterations, keySize, sha256.New)
}

func loadPassphrase(path string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
