package config

const (
	defaultInputDir             = "~/dicom"
	defaultOutputDir            = "~/bids"
	defaultStagingDir           = "~/.local/share/bidsort/staging"
	defaultLogDir               = "~/.local/share/bidsort/logs"
	defaultSubjectPattern       = "*"
	defaultJobs                 = 1
	defaultBackupCountMode      = BackupCountMax
	defaultStaleStagingHours    = 24
	defaultConverterBinary      = "dcm2niix"
	defaultConverterTimeout     = 600
	defaultFilenameTemplate     = "%n--%p--%t"
	defaultMinFunctionalVolumes = 100
	defaultMinAnatomical        = 2
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Backup count modes for the ledger BACKUP-* columns.
const (
	BackupCountMax    = "max"
	BackupCountGroups = "groups"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:   defaultInputDir,
			OutputDir:  defaultOutputDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Ingest: Ingest{
			SubjectPattern:    defaultSubjectPattern,
			Jobs:              defaultJobs,
			Modalities:        []string{"anat", "dwi", "func"},
			BackupCountMode:   defaultBackupCountMode,
			StaleStagingHours: defaultStaleStagingHours,
		},
		Dcm2niix: Dcm2niix{
			Binary:           defaultConverterBinary,
			Compress:         true,
			TimeoutSeconds:   defaultConverterTimeout,
			FilenameTemplate: defaultFilenameTemplate,
		},
		Criteria: Criteria{
			DiffusionDenylist:    []string{"FA", "ADC", "TENSOR", "EXP"},
			MinFunctionalVolumes: defaultMinFunctionalVolumes,
			MinAnatomical:        defaultMinAnatomical,
			ScoutPatterns:        []string{"localizer", "scout", "survey", "aahead"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Mapping: Mapping{
			Corrections: map[string]string{},
			Sessions:    map[string]SessionCode{},
			Protocols:   []string{"dti", "MPRAGE", "MPR", "t1_mprage", "t2_spc", "T2", "BOLD"},
			Classes: map[string]string{
				"dti":       ClassDiffusion,
				"MPRAGE":    ClassT1,
				"MPR":       ClassT1,
				"t1_mprage": ClassT1,
				"t2_spc":    ClassT2,
				"T2":        ClassT2,
				"BOLD":      ClassFunctional,
			},
			Directions: map[string]string{
				"j-": "dir-AP",
				"j":  "dir-PA",
				"i-": "dir-RL",
				"i":  "dir-LR",
			},
		},
	}
}
