package config

const (
	defaultStateDir          = "~/.local/share/imagebit"
	defaultLogDirName        = "logs"
	defaultEncoderBinary     = "cwebp"
	defaultFormatFlag        = "-lossless"
	defaultInputExtension    = ".png"
	defaultOutputExtension   = ".webp"
	defaultPollIntervalMS    = 100
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultNtfyTimeout       = 10
	defaultConfigPathSetting = "~/.config/imagebit/config.toml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Encoder: Encoder{
			Binary:          defaultEncoderBinary,
			FormatFlags:     []string{defaultFormatFlag},
			InputExtensions: []string{defaultInputExtension},
			OutputExtension: defaultOutputExtension,
			VerifyOutput:    true,
		},
		Scheduler: Scheduler{
			MaxProcesses:   0,
			PollIntervalMS: defaultPollIntervalMS,
			WaitForExit:    true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
			NotifySuccess:         true,
		},
	}
}
