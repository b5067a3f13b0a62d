package mowas

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a configuration problem the operator has to fix.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Duration is a config timespan, written as "<N>[m|h|d|w]". A bare
// number means minutes.
type Duration time.Duration

var durationRe = regexp.MustCompile(`^([0-9]+)([mhdw]?)$`)

func ParseDurationConfig(s string) (Duration, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, configErrorf("invalid duration %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, configErrorf("invalid duration %q", s)
	}
	unit := time.Minute
	switch m[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return Duration(time.Duration(n) * unit), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDurationConfig(value.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// HexBytes is a byte string written as hex in the config file.
type HexBytes []byte

func (h *HexBytes) UnmarshalYAML(value *yaml.Node) error {
	b, err := hex.DecodeString(value.Value)
	if err != nil {
		return configErrorf("invalid hex string %q: %v", value.Value, err)
	}
	*h = b
	return nil
}

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Geodata GeodataConfig `yaml:"geodata"`
	Cache   CacheConfig   `yaml:"cache"`
	Source  SourceConfig  `yaml:"source"`
	Target  TargetConfig  `yaml:"target"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console *bool  `yaml:"console"`
	File    string `yaml:"file"`
}

type GeodataConfig struct {
	Path string `yaml:"path"`
}

type CacheConfig struct {
	Path  string   `yaml:"path"`
	Purge Duration `yaml:"purge"`
}

type SourceConfig struct {
	DARC    map[string]*DARCSourceConfig    `yaml:"darc"`
	BBKFile map[string]*BBKFileSourceConfig `yaml:"bbk_file"`
	BBKURL  map[string]*BBKURLSourceConfig  `yaml:"bbk_url"`
}

type DARCSourceConfig struct {
	DirJSON       string `yaml:"dir_json"`
	DirCAP        string `yaml:"dir_cap"`
	DirAudio      string `yaml:"dir_audio"`
	FetchInternet bool   `yaml:"fetch_internet"`
	FetchHamnet   bool   `yaml:"fetch_hamnet"`
}

type BBKFileSourceConfig struct {
	Path string `yaml:"path"`
}

type BBKURLSourceConfig struct {
	URL string `yaml:"url"`
}

type TargetConfig struct {
	APRSKISSSerial map[string]*APRSKISSSerialConfig `yaml:"aprs_kiss_serial"`
	APRSKISSTCP    map[string]*APRSKISSTCPConfig    `yaml:"aprs_kiss_tcp"`
}

type FilterConfig struct {
	Geocodes []string `yaml:"geocodes"`
	MaxAge   Duration `yaml:"max_age"`
}

// ScheduleConfig maps an age threshold onto the repetition interval in
// force up to that threshold, e.g. {"1h": "10", "1d": "1h"}.
type ScheduleConfig map[string]string

type BeaconConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	Prefix     string `yaml:"prefix"`
	Time       *bool  `yaml:"time"`
	Compressed bool   `yaml:"compressed"`
	MaxAreas   int    `yaml:"max_areas"`
}

type BulletinConfig struct {
	Mode string `yaml:"mode"`
	ID   string `yaml:"id"`
}

type APRSConfig struct {
	DstCall         string         `yaml:"dstcall"`
	MyCall          string         `yaml:"mycall"`
	DigiPath        []string       `yaml:"digipath"`
	TruncateComment *bool          `yaml:"truncate_comment"`
	Beacon          BeaconConfig   `yaml:"beacon"`
	Bulletin        BulletinConfig `yaml:"bulletin"`
}

type KISSConfig struct {
	Ports []int `yaml:"ports"`
}

type SerialConfig struct {
	Device  string   `yaml:"device"`
	Baud    int      `yaml:"baud"`
	CmdUp   HexBytes `yaml:"cmd_up"`
	CmdDown HexBytes `yaml:"cmd_down"`
	CmdPre  HexBytes `yaml:"cmd_pre"`
	CmdPost HexBytes `yaml:"cmd_post"`
}

type RemoteConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type APRSTargetConfig struct {
	Filter   FilterConfig   `yaml:"filter"`
	Schedule ScheduleConfig `yaml:"schedule"`
	APRS     APRSConfig     `yaml:"aprs"`
	KISS     KISSConfig     `yaml:"kiss"`
}

type APRSKISSSerialConfig struct {
	APRSTargetConfig `yaml:",inline"`
	Serial           SerialConfig `yaml:"serial"`
}

type APRSKISSTCPConfig struct {
	APRSTargetConfig `yaml:",inline"`
	Remote           RemoteConfig `yaml:"remote"`
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("cannot read config file %s: %v", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, configErrorf("cannot parse config file: %v", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func boolDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (c *Config) applyDefaults() {
	if c.Cache.Purge == 0 {
		c.Cache.Purge = Duration(31 * 24 * time.Hour)
	}
	for _, t := range c.Target.APRSKISSSerial {
		if t == nil {
			continue
		}
		t.APRSTargetConfig.applyDefaults()
		if t.Serial.Baud == 0 {
			t.Serial.Baud = 115200
		}
	}
	for _, t := range c.Target.APRSKISSTCP {
		if t == nil {
			continue
		}
		t.APRSTargetConfig.applyDefaults()
	}
}

func (t *APRSTargetConfig) applyDefaults() {
	if t.Filter.MaxAge == 0 {
		t.Filter.MaxAge = Duration(4 * time.Hour)
	}
	if t.APRS.DstCall == "" {
		t.APRS.DstCall = "APMOWA"
	}
	if t.APRS.DigiPath == nil {
		t.APRS.DigiPath = []string{"WIDE1-1"}
	}
	if t.APRS.Beacon.Prefix == "" {
		t.APRS.Beacon.Prefix = "MOWA"
	}
	if t.APRS.Bulletin.ID == "" {
		t.APRS.Bulletin.ID = "0MOWAS"
	}
	// KISS ports outside 0..15 cannot be addressed in a frame.
	var ports []int
	for _, p := range t.KISS.Ports {
		if p >= 0 && p < 16 {
			ports = append(ports, p)
		}
	}
	if len(ports) == 0 {
		ports = []int{0}
	}
	t.KISS.Ports = ports
}

func (c *Config) validate() error {
	if c.Cache.Path == "" {
		return configErrorf("cache.path is required")
	}
	for name, s := range c.Source.DARC {
		if s == nil {
			return configErrorf("source darc/%s: empty section", name)
		}
		if s.DirJSON == "" || s.DirCAP == "" {
			return configErrorf("source darc/%s: dir_json and dir_cap are required", name)
		}
		if !s.FetchInternet && !s.FetchHamnet {
			return configErrorf("source darc/%s: neither fetch_internet nor fetch_hamnet enabled", name)
		}
	}
	for name, s := range c.Source.BBKFile {
		if s == nil || s.Path == "" {
			return configErrorf("source bbk_file/%s: path is required", name)
		}
	}
	for name, s := range c.Source.BBKURL {
		if s == nil || s.URL == "" {
			return configErrorf("source bbk_url/%s: url is required", name)
		}
	}
	for name, t := range c.Target.APRSKISSSerial {
		if t == nil {
			return configErrorf("target aprs_kiss_serial/%s: empty section", name)
		}
		if err := t.APRSTargetConfig.validate("aprs_kiss_serial", name); err != nil {
			return err
		}
		if t.Serial.Device == "" {
			return configErrorf("target aprs_kiss_serial/%s: serial.device is required", name)
		}
	}
	for name, t := range c.Target.APRSKISSTCP {
		if t == nil {
			return configErrorf("target aprs_kiss_tcp/%s: empty section", name)
		}
		if err := t.APRSTargetConfig.validate("aprs_kiss_tcp", name); err != nil {
			return err
		}
		if t.Remote.Host == "" {
			return configErrorf("target aprs_kiss_tcp/%s: remote.host is required", name)
		}
		if t.Remote.Port <= 0 || t.Remote.Port > 65535 {
			return configErrorf("target aprs_kiss_tcp/%s: remote.port is required", name)
		}
	}
	return nil
}

func (t *APRSTargetConfig) validate(ttype, name string) error {
	if t.APRS.MyCall == "" {
		return configErrorf("target %s/%s: aprs.mycall is required", ttype, name)
	}
	return nil
}
