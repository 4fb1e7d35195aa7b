package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "otad"

// Config holds the configuration options for the agent.
type Config struct {
	Device  *DeviceConfig  `yaml:"device,omitempty"`
	MQTT    *MQTTConfig    `yaml:"mqtt,omitempty"`
	OTA     *OTAConfig     `yaml:"ota,omitempty"`
	Flash   *FlashConfig   `yaml:"flash,omitempty"`
	Journal *JournalConfig `yaml:"journal,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// DeviceConfig identifies the device to the cloud.
type DeviceConfig struct {
	ID              string `yaml:"id,omitempty"`
	FirmwareVersion string `yaml:"firmwareVersion,omitempty"`
}

// MQTTConfig holds the device-cloud session options.
type MQTTConfig struct {
	Broker         string        `yaml:"broker,omitempty"`
	ClientID       string        `yaml:"clientId,omitempty"`
	Username       string        `yaml:"username,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	TopicPrefix    string        `yaml:"topicPrefix,omitempty"`
	QoS            byte          `yaml:"qos,omitempty"`
	ConnectTimeout time.Duration `yaml:"connectTimeout,omitempty"`
}

// OTAConfig holds the download pipeline options.
type OTAConfig struct {
	Port             int           `yaml:"port,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
	RecvBufferSize   int           `yaml:"recvBufferSize,omitempty"`
	ProgressInterval time.Duration `yaml:"progressInterval,omitempty"`
	RestartDelay     time.Duration `yaml:"restartDelay,omitempty"`
	HaltDelay        time.Duration `yaml:"haltDelay,omitempty"`
}

// FlashConfig locates the partition images.
type FlashConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// JournalConfig locates the attempt journal.
type JournalConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// Path returns the default configuration file location.
func Path() string {
	return filepath.Join(xdg.ConfigHome, configFileName+".yaml")
}

// GetConfig reads the configuration file at path (or Path() when empty) and
// returns a Config struct. If the file does not exist, it returns the default
// configuration.
func GetConfig(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	defaults := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	deviceCfg := zeroOr(cfg.Device, defaults.Device)
	mqttCfg := zeroOr(cfg.MQTT, defaults.MQTT)
	otaCfg := zeroOr(cfg.OTA, defaults.OTA)
	flashCfg := zeroOr(cfg.Flash, defaults.Flash)
	journalCfg := zeroOr(cfg.Journal, defaults.Journal)
	logCfg := zeroOr(cfg.Log, defaults.Log)

	return &Config{
		Device: &DeviceConfig{
			ID:              zeroOr(deviceCfg.ID, defaults.Device.ID),
			FirmwareVersion: zeroOr(deviceCfg.FirmwareVersion, defaults.Device.FirmwareVersion),
		},
		MQTT: &MQTTConfig{
			Broker:         zeroOr(mqttCfg.Broker, defaults.MQTT.Broker),
			ClientID:       zeroOr(mqttCfg.ClientID, zeroOr(deviceCfg.ID, defaults.MQTT.ClientID)),
			Username:       mqttCfg.Username,
			Password:       mqttCfg.Password,
			TopicPrefix:    zeroOr(mqttCfg.TopicPrefix, defaults.MQTT.TopicPrefix),
			QoS:            zeroOr(mqttCfg.QoS, defaults.MQTT.QoS),
			ConnectTimeout: zeroOr(mqttCfg.ConnectTimeout, defaults.MQTT.ConnectTimeout),
		},
		OTA: &OTAConfig{
			Port:             zeroOr(otaCfg.Port, defaults.OTA.Port),
			Timeout:          zeroOr(otaCfg.Timeout, defaults.OTA.Timeout),
			RecvBufferSize:   zeroOr(otaCfg.RecvBufferSize, defaults.OTA.RecvBufferSize),
			ProgressInterval: zeroOr(otaCfg.ProgressInterval, defaults.OTA.ProgressInterval),
			RestartDelay:     zeroOr(otaCfg.RestartDelay, defaults.OTA.RestartDelay),
			HaltDelay:        zeroOr(otaCfg.HaltDelay, defaults.OTA.HaltDelay),
		},
		Flash: &FlashConfig{
			Dir: zeroOr(flashCfg.Dir, defaults.Flash.Dir),
		},
		Journal: &JournalConfig{
			Path: zeroOr(journalCfg.Path, defaults.Journal.Path),
		},
		Log: &LogConfig{
			Level: zeroOr(logCfg.Level, defaults.Log.Level),
			File:  logCfg.File,
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		Device: &DeviceConfig{
			ID:              deviceID,
			FirmwareVersion: firmwareVersion,
		},
		MQTT: &MQTTConfig{
			Broker:         mqttBroker,
			ClientID:       deviceID,
			TopicPrefix:    mqttTopicPrefix,
			QoS:            mqttQoS,
			ConnectTimeout: mqttConnectTimeout,
		},
		OTA: &OTAConfig{
			Port:             otaPort,
			Timeout:          otaTimeout,
			RecvBufferSize:   otaRecvBufferSize,
			ProgressInterval: otaProgressInterval,
			RestartDelay:     otaRestartDelay,
			HaltDelay:        otaHaltDelay,
		},
		Flash: &FlashConfig{
			Dir: flashDir,
		},
		Journal: &JournalConfig{
			Path: journalPath,
		},
		Log: &LogConfig{
			Level: logLevel,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
