package config

const (
	defaultWorkDir                  = "~/.local/share/clipharvest/work"
	defaultLogDir                   = "~/.local/share/clipharvest/logs"
	defaultManifestFormat           = ManifestFormatRows
	defaultFetchBackend             = FetchBackendYTDLP
	defaultFetchBinary              = "yt-dlp"
	defaultReferenceFormat          = "https://www.youtube.com/watch?v={id}"
	defaultFetchTimeoutSeconds      = 600
	defaultFFmpegBinary             = "ffmpeg"
	defaultFFprobeBinary            = "ffprobe"
	defaultFFmpegTimeoutSeconds     = 300
	defaultDurationToleranceSeconds = 0.5
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Batch: Batch{
			RowLimit:              0,
			PreferHighestQuality:  true,
			ResetWorkspaceOnStart: false,
			KeepIntermediates:     true,
		},
		Manifest: Manifest{
			Format: defaultManifestFormat,
		},
		Fetch: Fetch{
			Backend:         defaultFetchBackend,
			Binary:          defaultFetchBinary,
			ReferenceFormat: defaultReferenceFormat,
			TimeoutSeconds:  defaultFetchTimeoutSeconds,
		},
		FFmpeg: FFmpeg{
			Binary:         defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			TimeoutSeconds: defaultFFmpegTimeoutSeconds,
		},
		Validation: Validation{
			VerifyDuration:           false,
			DurationToleranceSeconds: defaultDurationToleranceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
