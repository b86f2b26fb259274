// Package config loads client.Options from a TOML file, layered over
// client.DefaultOptions() — the configuration-parsing ambient concern
// named in spec §6 as out of the core's scope to define a format for, but
// which every deployment of the core still needs. github.com/BurntSushi/toml
// is the teacher repository's TOML library of choice.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/pepper-iot/rabbitmq-streams-go/client"
)

// file is the on-disk shape. Every field is a pointer so an absent key
// leaves the corresponding client.DefaultOptions() value untouched,
// instead of zeroing it out.
type file struct {
	Host         *string `toml:"host"`
	Port         *uint16 `toml:"port"`
	User         *string `toml:"user"`
	Password     *string `toml:"password"`
	VHost        *string `toml:"vhost"`
	Heartbeat    *uint32 `toml:"heartbeat"`
	MaxFrameSize *uint32 `toml:"max_frame_size"`
}

// Load reads a TOML file at path and applies its keys on top of
// client.DefaultOptions(). A missing file, or one that's merely empty, is
// not an error; a malformed one is.
func Load(path string) (client.Options, error) {
	opts := client.DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, err
	}

	var f file
	if _, err := toml.Decode(string(data), &f); err != nil {
		return opts, err
	}

	return applyTo(opts, f), nil
}

func applyTo(opts client.Options, f file) client.Options {
	if f.Host != nil {
		opts.Host = *f.Host
	}
	if f.Port != nil {
		opts.Port = *f.Port
	}
	if f.User != nil {
		opts.User = *f.User
	}
	if f.Password != nil {
		opts.Password = *f.Password
	}
	if f.VHost != nil {
		opts.VHost = *f.VHost
	}
	if f.Heartbeat != nil {
		opts.Heartbeat = *f.Heartbeat
	}
	if f.MaxFrameSize != nil {
		opts.MaxFrameSize = *f.MaxFrameSize
	}
	return opts
}
