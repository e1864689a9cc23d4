package config

import "xdao.co/mediacid/storage/casconfig"

const (
	defaultPollIntervalSeconds   = 5
	defaultRequestTimeoutSeconds = 30
	defaultStoreBackend          = StoreMemory
	defaultSQLitePath            = "~/.local/share/mediacid/metadata.db"
	defaultFSPath                = "~/.local/share/mediacid/records"
	defaultKeysDir               = "~/.mediacid/keys"
	defaultLogLevel              = "info"
	defaultLogFormat             = "console"
	defaultHTTPBind              = "127.0.0.1:7780"
)

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Transcoder: Transcoder{
			PollIntervalSeconds:   defaultPollIntervalSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Store: Store{Backend: defaultStoreBackend},
		CAS:   casconfig.Default(),
		Keys:  Keys{Dir: defaultKeysDir},
		Log:   Log{Level: defaultLogLevel, Format: defaultLogFormat},
		HTTP:  HTTP{Bind: defaultHTTPBind},
	}
}
