package usbresolver

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadRules reads a device rule file and returns the validated rule set.
// The file holds the rules under a top-level "devices" key and may be
// JSON, YAML, or TOML:
//
//	devices:
//	  - role: imu
//	    vid: 9025
//	    pid: 32822
//	    serial: SN-1
//	  - role: top_camera
//	    vid: 3141
//	    pid: 25771
//	    port_path: 1-1.4
//
// VID and PID are plain decimal numbers. Rule order is significant: when a
// device matches several rules at the same strength, the earlier rule wins.
func LoadRules(path string) ([]DeviceRule, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading rule file %s: %w", path, err)
	}

	var rules []DeviceRule
	if err := v.UnmarshalKey("devices", &rules); err != nil {
		return nil, fmt.Errorf("parsing rule file %s: %w", path, err)
	}

	if err := ValidateRules(rules); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}

	return rules, nil
}
