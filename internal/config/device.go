package config

import "time"

// DeviceConfig is the on-disk TOML configuration for cmd/device. Field
// names mirror the configuration option table in the specification; any
// keys this struct does not declare are silently ignored by
// BurntSushi/toml's decoder, satisfying the "unknown options MUST be
// accepted and ignored" forward-compatibility requirement.
type DeviceConfig struct {
	ManifestURL       string `toml:"manifest_url"`
	BaseFileURL       string `toml:"base_file_url"`
	DestDir           string `toml:"dest_dir"`
	ForceUpdate       bool   `toml:"force_update"`
	RecurseHTTPFS     bool   `toml:"recurse_http_fs"`
	StrictHTTPFS      bool   `toml:"strict_http_fs"`
	OTAStateFile      string `toml:"ota_state_file"`
	LocalManifestFile string `toml:"local_manifest_file"`
	ApplicationName   string `toml:"application_name"`
	HTTPTimeoutS      int    `toml:"http_timeout_s"`

	BackupSkipExtensions []string `toml:"backup_skip_extensions"`
	BackupSkipPrefixes   []string `toml:"backup_skip_prefixes"`

	ManifestAuthKey        string `toml:"manifest_auth_key"`
	ManifestSignatureField string `toml:"manifest_signature_field"`

	DownloadRetries  int   `toml:"download_retries"`
	RetryBaseDelayMS int64 `toml:"retry_base_delay_ms"`
	ResumeDownloads  bool  `toml:"resume_downloads"`
	IOChunkSize      int   `toml:"io_chunk_size"`
	MD5ChunkSize     int   `toml:"md5_chunk_size"`

	DeleteFilesNotInManifestPolicy     string   `toml:"delete_files_not_in_manifest_policy"`
	DeleteFilesNotInManifestExtensions []string `toml:"delete_files_not_in_manifest_extensions"`

	EventSinkWSURL string `toml:"event_sink_ws_url"`
	RunID          string `toml:"run_id"`

	MaintenanceWindow MaintenanceWindowConfig `toml:"maintenance_window"`

	Logging LoggingConfig `toml:"logging"`
}

// MaintenanceWindowConfig is the TOML shape of the device-local scheduling
// gate (not part of the manifest wire format, not fleet coordination).
type MaintenanceWindowConfig struct {
	Enabled    bool   `toml:"enabled"`
	StartHour  int    `toml:"start_hour"`
	EndHour    int    `toml:"end_hour"`
	DaysOfWeek []int  `toml:"days_of_week"`
	Timezone   string `toml:"timezone"`
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Dir        string `toml:"dir"`
	FileName   string `toml:"file_name"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days"`
	MaxFiles   int    `toml:"max_files"`
	Console    bool   `toml:"console"`
}

// HTTPTimeout returns HTTPTimeoutS as a Duration, or 0 (disabled) when
// unset, matching the spec's "unset disables" rule for http_timeout_s.
func (c DeviceConfig) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutS <= 0 {
		return 0
	}
	return time.Duration(c.HTTPTimeoutS) * time.Second
}

// Default returns a DeviceConfig populated with the specification's
// documented defaults, for WriteTOML to emit as a starter file.
func Default() DeviceConfig {
	return DeviceConfig{
		DestDir:                "./ota",
		OTAStateFile:           "ota_state.txt",
		LocalManifestFile:      "versions.json",
		ApplicationName:        "ota",
		ManifestSignatureField: "signature",
		DownloadRetries:        3,
		RetryBaseDelayMS:       500,
		IOChunkSize:            32 * 1024,
		MD5ChunkSize:           512,
		BackupSkipExtensions: []string{
			".png", ".jpg", ".jpeg", ".gif", ".bmp", ".rgb565", ".raw", ".bin", ".ttf", ".otf", ".woff",
		},
		BackupSkipPrefixes:                 []string{"assets/", "static/", "media/", "images/", "fonts/"},
		DeleteFilesNotInManifestPolicy:     "never",
		Logging: LoggingConfig{
			Level:      "INFO",
			Dir:        "logs",
			FileName:   "ota.log",
			MaxSizeMB:  20,
			MaxAgeDays: 7,
			MaxFiles:   10,
			Console:    true,
		},
	}
}
