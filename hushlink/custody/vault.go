package custody

import (
	"io"

	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/fault"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/TheusHen/hushlink/hushlink/scratch"
	"github.com/TheusHen/hushlink/hushlink/storage"
	"github.com/sirupsen/logrus"
)

// PINReader prompts for a PIN and returns the raw line, newline included.
type PINReader interface {
	ReadPIN() ([]byte, error)
}

// PINFunc adapts a function to PINReader.
type PINFunc func() ([]byte, error)

func (f PINFunc) ReadPIN() ([]byte, error) { return f() }

// Vault recovers the long-term key from storage with a freshly prompted PIN.
type Vault struct {
	Store  storage.Store
	Schema *storage.Schema
	Params Params
	Alloc  scratch.Allocator
	PIN    PINReader
	Log    *logrus.Entry
}

func (v *Vault) schema() *storage.Schema {
	if v.Schema == nil {
		return storage.DefaultSchema()
	}
	return v.Schema
}

func (v *Vault) log(function string) *logrus.Entry {
	return logging.For(v.Log, "custody", function)
}

// LongTermKey prompts for the PIN and unwraps the stored key. The caller owns
// the result and must wipe it.
func (v *Vault) LongTermKey() ([]byte, error) {
	rec, err := v.schema().ReadSector(v.Store, storage.SectorKey)
	if err != nil {
		return nil, err
	}
	wrapped, salt := rec[storage.FieldWrappedKey], rec[storage.FieldSalt]
	if wrapped == nil || salt == nil {
		return nil, fault.E(fault.KindStorage, "custody.LongTermKey", storage.ErrUnset)
	}
	defer crypto.Wipe(wrapped)

	pin, err := v.PIN.ReadPIN()
	if err != nil {
		crypto.Wipe(salt)
		return nil, fault.E(fault.KindInput, "custody.LongTermKey", err)
	}
	key, err := Transform(wrapped, pin, salt, v.Params, v.Alloc)
	if err != nil {
		v.log("Vault.LongTermKey").WithError(err).Warn("PIN rejected")
		return nil, err
	}
	return key, nil
}

// Provision stores key wrapped under pin with a fresh salt drawn from rand.
// key and pin are wiped.
func (v *Vault) Provision(rand io.Reader, key, pin []byte) error {
	defer crypto.Wipe(key)

	salt := make([]byte, v.Params.SaltSize)
	if _, err := io.ReadFull(rand, salt); err != nil {
		crypto.Wipe(pin)
		return fault.E(fault.KindRandomness, "custody.Provision", err)
	}
	stored := append([]byte(nil), salt...)
	defer crypto.Wipe(stored)

	wrapped, err := Transform(key, pin, salt, v.Params, v.Alloc)
	if err != nil {
		return err
	}
	defer crypto.Wipe(wrapped)

	err = v.schema().WriteSector(v.Store, storage.SectorKey, storage.Record{
		storage.FieldWrappedKey: wrapped,
		storage.FieldSalt:       stored,
	})
	if err != nil {
		return err
	}
	v.log("Vault.Provision").Info("long-term key provisioned")
	return nil
}

// ChangePIN re-wraps the stored key under newPIN with a fresh salt. The
// current PIN is read through the vault's PINReader.
func (v *Vault) ChangePIN(rand io.Reader, newPIN []byte) error {
	key, err := v.LongTermKey()
	if err != nil {
		crypto.Wipe(newPIN)
		return err
	}
	return v.Provision(rand, key, newPIN)
}
