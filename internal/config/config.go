package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional afcmirror configuration file. All fields
// are pointers so an absent key never overrides a flag.
type Config struct {
	Device   DeviceConfig   `toml:"device"`
	Library  LibraryConfig  `toml:"library"`
	Transfer TransferConfig `toml:"transfer"`
}

// DeviceConfig describes how to reach the device.
type DeviceConfig struct {
	Host      *string `toml:"host"`
	Port      *int    `toml:"port"`
	User      *string `toml:"user"`
	KeyFile   *string `toml:"key_file"`
	MusicRoot *string `toml:"music_root"`
}

// LibraryConfig describes the local side of the mirror.
type LibraryConfig struct {
	Root        *string  `toml:"root"`
	Directories []string `toml:"directories"`
}

// TransferConfig holds persistent transfer defaults.
type TransferConfig struct {
	BWLimit *int64 `toml:"bwlimit"`
	Verify  *bool  `toml:"verify"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "afcmirror", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
