package vault

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeySize is the symmetric key length the snapshot cipher expects.
const KeySize = 32

// KeyDeriver turns a password and salt into snapshot key material. Kept as
// an interface so the derivation policy stays swappable independently of
// the snapshot format.
type KeyDeriver interface {
	DeriveKey(password, salt []byte) ([]byte, error)
}

// Argon2Deriver derives keys with Argon2id. The work factors are tunable;
// zero values fall back to the defaults below.
type Argon2Deriver struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

const (
	defaultKDFTime      = 10
	defaultKDFMemoryKiB = 10_000
	defaultKDFThreads   = 4
)

var _ KeyDeriver = Argon2Deriver{}

func (d Argon2Deriver) DeriveKey(password, salt []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("password is empty")
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("salt is empty")
	}

	t := d.Time
	if t == 0 {
		t = defaultKDFTime
	}
	mem := d.MemoryKiB
	if mem == 0 {
		mem = defaultKDFMemoryKiB
	}
	threads := d.Threads
	if threads == 0 {
		threads = defaultKDFThreads
	}

	return argon2.IDKey(password, salt, t, mem, threads, KeySize), nil
}

// Zero scrubs key material in place. Derived keys must not linger in memory
// after the vault is done with them.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
