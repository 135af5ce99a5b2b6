// Package metadata stores the free-form context attached to ratings. The
// ledger only keeps a 32-byte reference; the blob itself lives here, keyed
// by the Keccak-256 hash of its canonical JSON encoding.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
)

const (
	MaxCommentLength      = 4096
	MaxContextKeys        = 32
	MaxContextKeyLength   = 128
	MaxContextValueLength = 1024
)

var (
	ErrNotFound     = errors.New("metadata not found")
	ErrEmptyBlob    = errors.New("metadata blob is empty")
	ErrHashMismatch = errors.New("stored metadata does not match its reference")
)

// Blob is the content behind a rating's metadata reference.
type Blob struct {
	Comment string            `json:"comment"`
	Context map[string]string `json:"context,omitempty"`
}

func (b Blob) validate() error {
	if strings.TrimSpace(b.Comment) == "" && len(b.Context) == 0 {
		return ErrEmptyBlob
	}
	if len(b.Comment) > MaxCommentLength {
		return fmt.Errorf("comment exceeds %d bytes", MaxCommentLength)
	}
	if !utf8.ValidString(b.Comment) {
		return fmt.Errorf("comment is not valid utf-8")
	}
	if len(b.Context) > MaxContextKeys {
		return fmt.Errorf("context has more than %d keys", MaxContextKeys)
	}
	// encoding/json replaces invalid UTF-8, which would hash a different
	// blob than the caller sent.
	for k, v := range b.Context {
		switch {
		case strings.TrimSpace(k) == "":
			return fmt.Errorf("context key is empty")
		case len(k) > MaxContextKeyLength:
			return fmt.Errorf("context key %.32q exceeds %d bytes", k, MaxContextKeyLength)
		case !utf8.ValidString(k):
			return fmt.Errorf("context key is not valid utf-8")
		case len(v) > MaxContextValueLength:
			return fmt.Errorf("context value of %q exceeds %d bytes", k, MaxContextValueLength)
		case !utf8.ValidString(v):
			return fmt.Errorf("context value of %q is not valid utf-8", k)
		}
	}
	return nil
}

// Encode returns the canonical encoding of b and its reference.
// encoding/json sorts map keys, so equal blobs always hash equally.
func Encode(b Blob) (ledger.MetadataRef, []byte, error) {
	if err := b.validate(); err != nil {
		return ledger.MetadataRef{}, nil, err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return ledger.MetadataRef{}, nil, fmt.Errorf("marshal blob: %w", err)
	}
	return refOf(data), data, nil
}

func refOf(data []byte) ledger.MetadataRef {
	var ref ledger.MetadataRef
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(ref[:0])
	return ref
}

// Backend persists encoded blobs by reference.
type Backend interface {
	PutMetadata(ctx context.Context, ref ledger.MetadataRef, data []byte) error
	GetMetadata(ctx context.Context, ref ledger.MetadataRef) ([]byte, error)
}

type Service struct {
	backend Backend
}

func New(backend Backend) *Service {
	return &Service{backend: backend}
}

// Put stores b and returns its reference. Storing the same blob twice is a
// no-op that yields the same reference.
func (s *Service) Put(ctx context.Context, b Blob) (ledger.MetadataRef, error) {
	ref, data, err := Encode(b)
	if err != nil {
		return ledger.MetadataRef{}, err
	}
	if err := s.backend.PutMetadata(ctx, ref, data); err != nil {
		return ledger.MetadataRef{}, fmt.Errorf("store metadata %s: %w", ref, err)
	}
	return ref, nil
}

// Get loads and verifies the blob behind ref.
func (s *Service) Get(ctx context.Context, ref ledger.MetadataRef) (Blob, error) {
	data, err := s.backend.GetMetadata(ctx, ref)
	if err != nil {
		return Blob{}, err
	}
	if refOf(data) != ref {
		return Blob{}, ErrHashMismatch
	}
	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return Blob{}, fmt.Errorf("unmarshal metadata %s: %w", ref, err)
	}
	return b, nil
}
