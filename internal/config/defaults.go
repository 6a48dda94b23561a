package config

const (
	defaultDataDir         = "~/.local/share/fieldsync/data"
	defaultLogDir          = "~/.local/share/fieldsync/logs"
	defaultCredentialsFile = "~/.config/fieldsync/credentials.json"

	defaultLedgerEventsEndpoint = "/items/events"
	defaultRequestTimeout       = 30

	defaultMaxFastRetries           = 3
	defaultCooldownMinutes          = 15
	defaultMaxAgeDays               = 7
	defaultProcessingTimeoutSeconds = 120
	defaultDebounceSeconds          = 30

	defaultPollIntervalSeconds       = 60
	defaultBackgroundIntervalMinutes = 15
	defaultBatchOptimal              = 20
	defaultBatchNormal               = 10
	defaultBatchConservative         = 5
	defaultBatchCritical             = 1
	defaultLowBatteryPercent         = 20

	defaultRetentionDays = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:         defaultDataDir,
			LogDir:          defaultLogDir,
			CredentialsFile: defaultCredentialsFile,
		},
		Ledger: Ledger{
			EventsEndpoint: defaultLedgerEventsEndpoint,
			RequestTimeout: defaultRequestTimeout,
		},
		Proof: Proof{
			RequestTimeout: defaultRequestTimeout,
		},
		Retry: Retry{
			MaxFastRetries:           defaultMaxFastRetries,
			CooldownMinutes:          defaultCooldownMinutes,
			MaxAgeDays:               defaultMaxAgeDays,
			ProcessingTimeoutSeconds: defaultProcessingTimeoutSeconds,
			DebounceSeconds:          defaultDebounceSeconds,
		},
		Scheduler: Scheduler{
			PollIntervalSeconds:       defaultPollIntervalSeconds,
			BackgroundIntervalMinutes: defaultBackgroundIntervalMinutes,
			BatchOptimal:              defaultBatchOptimal,
			BatchNormal:               defaultBatchNormal,
			BatchConservative:         defaultBatchConservative,
			BatchCritical:             defaultBatchCritical,
			LowBatteryPercent:         defaultLowBatteryPercent,
		},
		Storage: Storage{
			RetentionDays: defaultRetentionDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
