package repo

import (
	"time"
)

// BpsDenominator is the basis-point scale used by all voting thresholds.
const BpsDenominator uint16 = 10000

type Config struct {
	RepoRoot   string     `mapstructure:"-" toml:"-"`
	Log        Log        `mapstructure:"log" toml:"log"`
	Governance Governance `mapstructure:"governance" toml:"governance"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

// Governance holds the default voting parameters applied to groups created
// without an explicit voting config, and the period bounds accepted by
// voting_config_change proposals.
type Governance struct {
	// minimum fraction (in bps) of the locked member count that must vote
	ParticipationQuorumBps uint16 `mapstructure:"participation_quorum_bps" toml:"participation_quorum_bps"`
	// minimum fraction (in bps) of votes cast that must be YES
	MajorityThresholdBps uint16        `mapstructure:"majority_threshold_bps" toml:"majority_threshold_bps"`
	VotingPeriod         time.Duration `mapstructure:"voting_period" toml:"voting_period"`
	MinVotingPeriod      time.Duration `mapstructure:"min_voting_period" toml:"min_voting_period"`
	MaxVotingPeriod      time.Duration `mapstructure:"max_voting_period" toml:"max_voting_period"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		Log: Log{
			Level:        "info",
			Filename:     "govern.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
		Governance: Governance{
			ParticipationQuorumBps: 5100,
			MajorityThresholdBps:   5001,
			VotingPeriod:           7 * 24 * time.Hour,
			MinVotingPeriod:        time.Hour,
			MaxVotingPeriod:        365 * 24 * time.Hour,
		},
	}
}
