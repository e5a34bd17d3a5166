package kv

import (
	"context"

	"github.com/robostem/matchjump/backend/crypto"
)

// Sealed encrypts values before they reach Inner. Keys stay readable.
type Sealed struct {
	Inner Store
	Enc   crypto.Encryptor
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	v, err := s.Inner.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return crypto.DecryptString(s.Enc, v)
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	v, err := crypto.EncryptString(s.Enc, value)
	if err != nil {
		return err
	}
	return s.Inner.Set(ctx, key, v)
}

func (s *Sealed) Delete(ctx context.Context, key string) error { return s.Inner.Delete(ctx, key) }

func (s *Sealed) List(ctx context.Context, prefix string) (map[string]string, error) {
	raw, err := s.Inner.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		pt, err := crypto.DecryptString(s.Enc, v)
		if err != nil {
			return nil, err
		}
		out[k] = pt
	}
	return out, nil
}
