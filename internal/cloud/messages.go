package cloud

import (
	"github.com/NamanBalaji/otad/internal/ota"
)

// Topics are the per-device MQTT topics.
type Topics struct {
	Offer      string
	OfferReply string
	Progress   string
	Result     string
}

// NewTopics builds the topic set "<prefix>/<device>/ota/...".
func NewTopics(prefix, deviceID string) Topics {
	base := prefix + "/" + deviceID + "/ota/"

	return Topics{
		Offer:      base + "offer",
		OfferReply: base + "offer/reply",
		Progress:   base + "progress",
		Result:     base + "result",
	}
}

// OfferMessage is the cloud's new-package notification.
type OfferMessage struct {
	TargetVersion string `json:"target_version"`
	MD5           string `json:"md5"`
	URL           string `json:"url"`
	PkgSize       int64  `json:"pkg_size"`
	Desc          string `json:"desc,omitempty"`
}

func (m OfferMessage) Offer() ota.Offer {
	return ota.Offer{
		TargetVersion: m.TargetVersion,
		Checksum:      m.MD5,
		URL:           m.URL,
		PackageSize:   m.PkgSize,
		Description:   m.Desc,
	}
}

// OfferReply tells the cloud whether the device took the offer.
type OfferReply struct {
	TargetVersion string `json:"target_version"`
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
}

type ProgressMessage struct {
	Code         int32  `json:"ret_code"`
	Msg          string `json:"err_msg"`
	DownloadSize int64  `json:"download_size"`
	TotalSize    int64  `json:"total_size"`
}

type ResultMessage struct {
	Code       int32  `json:"ret_code"`
	Msg        string `json:"err_msg"`
	NewVersion string `json:"new_version"`
}
