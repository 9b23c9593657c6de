package config

const (
	defaultStagingDir         = "~/.local/share/eclipse/staging"
	defaultLogDir             = "~/.local/share/eclipse/logs"
	defaultDataDir            = "~/.local/share/eclipse"
	defaultSessionFile        = "~/.local/share/eclipse/session.json"
	defaultTelegramAPIBase    = "https://api.telegram.org"
	defaultInstagramAPIBase   = "https://www.instagram.com"
	defaultUserAgent          = "Mozilla/5.0 (X11; Linux x86_64; rv:132.0) Gecko/20100101 Firefox/132.0"
	defaultInlineCeilingMiB   = 48
	defaultDocumentCeilingMiB = 1900
	defaultMaxGroupSize       = 10
	defaultSendTimeout        = 300
	defaultPollTimeout        = 30
	defaultFetchParallelism   = 3
	defaultLookupTimeout      = 30
	defaultItemTimeout        = 120
	defaultChunkKiB           = 128
	defaultFFmpegBinary       = "ffmpeg"
	defaultTierTimeout        = 600
	defaultReencodeCRF        = 28
	defaultDownscaleCRF       = 32
	defaultMaxHeight          = 720
	defaultAudioBitrateKbps   = 96
	defaultMaxConcurrent      = 1
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Telegram: Telegram{
			APIBase:            defaultTelegramAPIBase,
			InlineCeilingMiB:   defaultInlineCeilingMiB,
			DocumentCeilingMiB: defaultDocumentCeilingMiB,
			MaxGroupSize:       defaultMaxGroupSize,
			SendTimeout:        defaultSendTimeout,
			PollTimeout:        defaultPollTimeout,
		},
		Instagram: Instagram{
			SessionFile: defaultSessionFile,
			APIBase:     defaultInstagramAPIBase,
			UserAgent:   defaultUserAgent,
		},
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			DataDir:    defaultDataDir,
		},
		Fetch: Fetch{
			Parallelism:   defaultFetchParallelism,
			LookupTimeout: defaultLookupTimeout,
			ItemTimeout:   defaultItemTimeout,
			ChunkKiB:      defaultChunkKiB,
		},
		Transcode: Transcode{
			FFmpegBinary:     defaultFFmpegBinary,
			TierTimeout:      defaultTierTimeout,
			ReencodeCRF:      defaultReencodeCRF,
			DownscaleCRF:     defaultDownscaleCRF,
			MaxHeight:        defaultMaxHeight,
			AudioBitrateKbps: defaultAudioBitrateKbps,
		},
		Workflow: Workflow{
			MaxConcurrent: defaultMaxConcurrent,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
