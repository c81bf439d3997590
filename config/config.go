// Package config provides a go-simpler.org/env configuration table for the
// relay, following the same environment-variable-first, optional-.env-file
// override pattern as the teacher's own configuration package.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"go-simpler.org/env"

	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/log"
	"brokerly.dev/version"
)

// C is the relay's configuration, read from the environment or a .env file
// found in the configuration directory.
type C struct {
	AppName    string `env:"BROKERLY_APP_NAME" default:"brokerly"`
	Config     string `env:"BROKERLY_CONFIG_DIR" usage:"location of the .env override file"`
	DataDir    string `env:"BROKERLY_DATA_DIR" usage:"storage location for the event database"`
	Listen     string `env:"BROKERLY_LISTEN" default:"0.0.0.0" usage:"network listen address"`
	Port       int    `env:"BROKERLY_PORT" default:"3334" usage:"port to listen on"`
	LogLevel   string `env:"BROKERLY_LOG_LEVEL" default:"info" usage:"trace debug info warn error fatal"`
	DBLogLevel string `env:"BROKERLY_DB_LOG_LEVEL" default:"info" usage:"trace debug info warn error fatal"`

	// Writer / store tuning.
	MessagesPerSec int `env:"BROKERLY_MESSAGES_PER_SEC" default:"0" usage:"rate limit for event ingest, 0 disables limiting"`
	ReadPoolMin    int `env:"BROKERLY_READ_POOL_MIN" default:"2" usage:"minimum idle connections in the read-only pool"`
	ReadPoolMax    int `env:"BROKERLY_READ_POOL_MAX" default:"8" usage:"maximum connections in the read-only pool"`

	// Connection Handler tuning.
	MaxMessageSize int64 `env:"BROKERLY_MAX_MESSAGE_SIZE" default:"131072" usage:"websocket frame size advertised as max_message_length in the relay information document, in bytes; incoming frames are not checked against it"`

	// Authorization / identity.
	Allowlist        []string `env:"BROKERLY_ALLOWLIST" usage:"hex pubkeys permitted to publish; empty means unrestricted"`
	IdentityEnforced bool     `env:"BROKERLY_IDENTITY_ENFORCED" default:"false" usage:"reject kind:0-unverified authors at ingest"`
	IdentityActive   bool     `env:"BROKERLY_IDENTITY_ACTIVE" default:"false" usage:"forward metadata events to the identity verifier"`

	// Relay information document.
	RelayName        string `env:"BROKERLY_RELAY_NAME" default:"brokerly" usage:"name advertised in the relay information document"`
	RelayDescription string `env:"BROKERLY_RELAY_DESCRIPTION" usage:"description advertised in the relay information document"`
	RelayContact     string `env:"BROKERLY_RELAY_CONTACT" usage:"contact advertised in the relay information document"`
	RelayPubkey      string `env:"BROKERLY_RELAY_PUBKEY" usage:"operator pubkey advertised in the relay information document"`
}

// New loads configuration from the environment, falling back to defaults and
// then to a .env file in Config if present.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.T(err) {
		return
	}
	if cfg.Config == "" {
		cfg.Config = filepath.Join(xdg.ConfigHome, cfg.AppName)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(xdg.DataHome, cfg.AppName)
	}
	envPath := filepath.Join(cfg.Config, ".env")
	if fileExists(envPath) {
		var data []byte
		if data, err = os.ReadFile(envPath); chk.E(err) {
			return
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if key, value, ok := strings.Cut(line, "="); ok && !strings.HasPrefix(line, "#") {
				os.Setenv(strings.TrimSpace(key), strings.TrimSpace(value))
			}
		}
		if err = env.Load(cfg, &env.Options{SliceSep: ","}); chk.T(err) {
			return
		}
		log.I.F("loaded configuration from %s", envPath)
	}
	return
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// HelpRequested reports whether the process was invoked with a help flag.
func HelpRequested() bool {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "help", "-h", "--help", "-help", "?":
			return true
		}
	}
	return false
}

// PrintHelp writes the environment-variable reference to w.
func PrintHelp(cfg *C, w io.Writer) {
	fmt.Fprintf(w, "%s %s\n\n%s\n\n", cfg.AppName, version.V, version.Description)
	env.Usage(cfg, w, &env.Options{SliceSep: ","})
}

// kv is a sortable environment-variable key/value pair, used by PrintEnv.
type kv struct{ key, value string }

type kvSlice []kv

func (s kvSlice) Len() int           { return len(s) }
func (s kvSlice) Less(i, j int) bool { return s[i].key < s[j].key }
func (s kvSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// PrintEnv writes the current configuration as KEY=value lines, suitable for
// saving as a .env override file.
func PrintEnv(cfg *C, w io.Writer) {
	pairs := kvSlice{
		{"BROKERLY_APP_NAME", cfg.AppName},
		{"BROKERLY_CONFIG_DIR", cfg.Config},
		{"BROKERLY_DATA_DIR", cfg.DataDir},
		{"BROKERLY_LISTEN", cfg.Listen},
		{"BROKERLY_PORT", strconv.Itoa(cfg.Port)},
		{"BROKERLY_LOG_LEVEL", cfg.LogLevel},
		{"BROKERLY_DB_LOG_LEVEL", cfg.DBLogLevel},
		{"BROKERLY_MESSAGES_PER_SEC", strconv.Itoa(cfg.MessagesPerSec)},
		{"BROKERLY_ALLOWLIST", strings.Join(cfg.Allowlist, ",")},
		{"BROKERLY_IDENTITY_ENFORCED", strconv.FormatBool(cfg.IdentityEnforced)},
		{"BROKERLY_IDENTITY_ACTIVE", strconv.FormatBool(cfg.IdentityActive)},
	}
	sort.Sort(pairs)
	for _, p := range pairs {
		fmt.Fprintf(w, "%s=%s\n", p.key, p.value)
	}
}
