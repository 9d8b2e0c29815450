// Command hushlink-provision stores a PIN-wrapped long-term key in the flash
// image, or re-wraps the stored key under a new PIN.
//
// Both endpoints of a pair must hold the same long-term key: provision the
// first one without --key, then pass the printed key to the second one.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/TheusHen/hushlink/hushlink/config"
	"github.com/TheusHen/hushlink/hushlink/console"
	"github.com/TheusHen/hushlink/hushlink/crypto"
	"github.com/TheusHen/hushlink/hushlink/custody"
	"github.com/TheusHen/hushlink/hushlink/drbg"
	"github.com/TheusHen/hushlink/hushlink/logging"
	"github.com/TheusHen/hushlink/hushlink/scratch"
	"github.com/TheusHen/hushlink/hushlink/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var errPINMismatch = errors.New("PINs do not match")

func main() {
	fs := pflag.NewFlagSet("hushlink-provision", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	keyHex := fs.String("key", "", "Long-term key as 64 hex digits; generated when empty")
	changePIN := fs.Bool("change-pin", false, "Re-wrap the stored key under a new PIN")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(1)
	}

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logrus.NewEntry(logging.New(logging.Options{Debug: cfg.Debug, JSON: cfg.JSONLog}))

	if err := provision(cfg, *keyHex, *changePIN, log); err != nil {
		log.WithError(err).Error("provisioning failed")
		os.Exit(1)
	}
}

func provision(cfg *config.Config, keyHex string, changePIN bool, log *logrus.Entry) error {
	rng, err := drbg.SeedFrom(drbg.SystemSource{}, cfg.Crypto.SeedSize)
	if err != nil {
		return err
	}
	defer rng.Wipe()

	store, err := storage.OpenFile(cfg.Storage.Path, storage.DefaultImageSize, log)
	if err != nil {
		return err
	}
	alloc, err := scratch.New(scratch.Strategy(cfg.Storage.Allocation))
	if err != nil {
		return err
	}
	prompt := console.New(os.Stdin, os.Stdout, cfg.Custody)
	vault := &custody.Vault{Store: store, Params: cfg.Custody, Alloc: alloc, PIN: prompt, Log: log}

	if changePIN {
		newPIN, err := readNewPIN(prompt, cfg.Custody)
		if err != nil {
			return err
		}
		prompt.Say("Current PIN:")
		return vault.ChangePIN(rng, newPIN)
	}

	key := make([]byte, crypto.KeySize)
	generated := keyHex == ""
	if generated {
		if err := rng.Generate(key); err != nil {
			return err
		}
	} else {
		n, err := hex.Decode(key, []byte(keyHex))
		if err != nil || n != crypto.KeySize || len(keyHex) != 2*crypto.KeySize {
			return fmt.Errorf("--key must be %d hex digits", 2*crypto.KeySize)
		}
	}
	if generated {
		prompt.Say("Long-term key (provision the peer with --key):\n%x", key)
	}

	pin, err := readNewPIN(prompt, cfg.Custody)
	if err != nil {
		crypto.Wipe(key)
		return err
	}
	return vault.Provision(rng, key, pin)
}

// readNewPIN asks for a PIN twice and validates it.
func readNewPIN(prompt *console.Prompter, p custody.Params) ([]byte, error) {
	prompt.Say("New PIN:")
	first, err := prompt.ReadPIN()
	if err != nil {
		return nil, err
	}
	if err := custody.ValidatePIN(first, p); err != nil {
		crypto.Wipe(first)
		return nil, err
	}
	prompt.Say("Repeat new PIN:")
	second, err := prompt.ReadPIN()
	if err != nil {
		crypto.Wipe(first)
		return nil, err
	}
	defer crypto.Wipe(second)
	if !crypto.Equal(first, second) {
		crypto.Wipe(first)
		return nil, errPINMismatch
	}
	return first, nil
}
