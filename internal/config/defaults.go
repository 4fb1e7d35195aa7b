package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	deviceID        = "otad-device"
	firmwareVersion = "v1.0.0"

	mqttBroker         = "tcp://127.0.0.1:1883"
	mqttTopicPrefix    = "welink"
	mqttQoS            = 1
	mqttConnectTimeout = 10 * time.Second

	otaPort             = 80
	otaTimeout          = 5000 * time.Millisecond
	otaRecvBufferSize   = 1024
	otaProgressInterval = 3 * time.Second
	otaRestartDelay     = 200 * time.Millisecond
	otaHaltDelay        = 3 * time.Second

	logLevel = "info"
)

var (
	dataDir     = filepath.Join(xdg.DataHome, configFileName)
	flashDir    = filepath.Join(dataDir, "flash")
	journalPath = filepath.Join(dataDir, "journal.db")
)
